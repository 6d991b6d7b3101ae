package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/signal"
)

func simDay(n int) time.Time {
	return time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func constantReturnSeries(n int, dailyRet float64) *market.PriceSeries {
	bars := make([]market.Bar, n)
	price := 100.0
	for i := range bars {
		bars[i] = market.Bar{Date: simDay(i), Close: price}
		price *= 1 + dailyRet
	}
	return &market.PriceSeries{Ticker: "SPY", Bars: bars}
}

func allSignals(n int, sig signal.Signal) []signal.Daily {
	out := make([]signal.Daily, n)
	for i := range out {
		out[i] = signal.Daily{Signal: sig, Composite: 100}
	}
	return out
}

// frictionless removes transaction costs and the trailing stop so the
// compounding math can be checked exactly.
func frictionless() Config {
	cfg := DefaultConfig()
	cfg.CostBps = 0
	cfg.TrailingStopDD = -0.99
	return cfg
}

func TestSimulateExactCompounding(t *testing.T) {
	// 101 bars produce 100 sessions of +1%. Day 0 trades flat, and every
	// later day holds Buy exposure carried from the prior session, so the
	// equity must land exactly on 1.01^100.
	prices := constantReturnSeries(101, 0.01)
	signals := allSignals(101, signal.Buy)

	curve, err := Simulate(frictionless(), prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := math.Pow(1.01, 100)
	got := curve.Days[len(curve.Days)-1].Equity
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected equity %.12f, got %.12f", want, got)
	}
}

func TestSimulateFirstDayFlat(t *testing.T) {
	prices := constantReturnSeries(5, 0.10)
	signals := allSignals(5, signal.Buy)

	curve, err := Simulate(frictionless(), prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if curve.Days[0].TargetExposure != 0 {
		t.Errorf("day 0 must trade at zero exposure, got %v", curve.Days[0].TargetExposure)
	}
	if curve.Days[0].Equity != 1.0 {
		t.Errorf("day 0 equity must stay at 1.0, got %v", curve.Days[0].Equity)
	}
}

func TestSimulateNoLookahead(t *testing.T) {
	prices := constantReturnSeries(10, 0.01)
	signals := allSignals(10, signal.Buy)

	base, err := Simulate(frictionless(), prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Flipping the final signal must not change any prior day: exposure
	// on day t derives only from information through t-1.
	mutated := allSignals(10, signal.Buy)
	mutated[9] = signal.Daily{Signal: signal.Flee}

	perturbed, err := Simulate(frictionless(), prices, mutated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 9; i++ {
		if base.Days[i].Equity != perturbed.Days[i].Equity {
			t.Errorf("day %d equity changed after mutating a later signal", i)
		}
		if base.Days[i].AppliedExposure != perturbed.Days[i].AppliedExposure {
			t.Errorf("day %d exposure changed after mutating a later signal", i)
		}
	}
	// Day 9 itself still trades on day 8's signal.
	if base.Days[9].Equity != perturbed.Days[9].Equity {
		t.Error("day 9 trades on day 8's signal, mutating day 9 must not affect it")
	}
}

func TestSimulateIdempotent(t *testing.T) {
	prices := constantReturnSeries(40, 0.02)
	signals := allSignals(40, signal.Watch)
	cfg := DefaultConfig()

	first, err := Simulate(cfg, prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Simulate(cfg, prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range first.Days {
		if first.Days[i] != second.Days[i] {
			t.Fatalf("day %d differs between identical runs", i)
		}
	}
}

func TestSimulateTrailingStopOrder(t *testing.T) {
	// Flat, then one -15% crash day. The tentative equity breaches the
	// -10% trailing stop, so the crash day itself must be repriced at
	// throttled exposure: 1 + (-0.15 * 1.0 * 0.3) = 0.955.
	closes := []float64{100, 100, 100, 85}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Date: simDay(i), Close: c}
	}
	prices := &market.PriceSeries{Ticker: "SPY", Bars: bars}
	signals := allSignals(len(closes), signal.Buy)

	cfg := DefaultConfig()
	cfg.CostBps = 0

	curve, err := Simulate(cfg, prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	crash := curve.Days[3]
	if !crash.Throttled {
		t.Fatal("crash day should trip the trailing stop")
	}
	wantExposure := 1.0 * cfg.TrailingStopMultiplier
	if math.Abs(crash.AppliedExposure-wantExposure) > 1e-12 {
		t.Errorf("expected applied exposure %v, got %v", wantExposure, crash.AppliedExposure)
	}
	wantEquity := 1 + (-0.15)*wantExposure
	if math.Abs(crash.Equity-wantEquity) > 1e-12 {
		t.Errorf("expected equity %v, got %v", wantEquity, crash.Equity)
	}
	// The peak stays at the pre-throttle tentative value, not the
	// recomputed equity.
	if curve.Days[2].Equity != 1.0 {
		t.Errorf("pre-crash equity should be 1.0, got %v", curve.Days[2].Equity)
	}
}

func TestSimulateExposureWithinBounds(t *testing.T) {
	// Volatile prices and a rotating signal stream must keep every day's
	// exposure inside [0, MaxExposure], throttled days included.
	closes := []float64{100, 104, 96, 88, 95, 80, 85, 70, 90, 100}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Date: simDay(i), Close: c}
	}
	prices := &market.PriceSeries{Ticker: "SPY", Bars: bars}

	rotation := []signal.Signal{signal.Buy, signal.Watch, signal.Flee, signal.EarlyWarning, signal.ContrarianBuy}
	signals := make([]signal.Daily, len(closes))
	for i := range signals {
		signals[i] = signal.Daily{Signal: rotation[i%len(rotation)], Composite: 50}
	}

	cfg := DefaultConfig()
	curve, err := Simulate(cfg, prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	max := cfg.MaxExposure()
	for i, day := range curve.Days {
		if day.TargetExposure < 0 || day.TargetExposure > max {
			t.Errorf("day %d target exposure %v outside [0, %v]", i, day.TargetExposure, max)
		}
		if day.AppliedExposure < 0 || day.AppliedExposure > max {
			t.Errorf("day %d applied exposure %v outside [0, %v]", i, day.AppliedExposure, max)
		}
		if day.AppliedExposure > day.TargetExposure {
			t.Errorf("day %d applied exposure %v exceeds target %v", i, day.AppliedExposure, day.TargetExposure)
		}
	}
}

func TestSimulateReturnClamp(t *testing.T) {
	// A bad data point implying a -99.9% day must be clamped so equity
	// stays positive.
	closes := []float64{100, 100, 0.1, 0.1}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Date: simDay(i), Close: c}
	}
	prices := &market.PriceSeries{Ticker: "SPY", Bars: bars}
	signals := allSignals(len(closes), signal.Buy)

	curve, err := Simulate(frictionless(), prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, day := range curve.Days {
		if day.Equity <= 0 || math.IsNaN(day.Equity) {
			t.Errorf("day %d equity must stay positive and finite, got %v", i, day.Equity)
		}
		if day.Return < -0.99 {
			t.Errorf("day %d return below clamp: %v", i, day.Return)
		}
	}
}

func TestSimulateTransactionCostOnTransition(t *testing.T) {
	prices := constantReturnSeries(4, 0.0)
	signals := []signal.Daily{
		{Signal: signal.Flee},
		{Signal: signal.Buy},
		{Signal: signal.Buy},
		{Signal: signal.Buy},
	}

	cfg := DefaultConfig()
	cfg.CostBps = 100 // 1% per transition for easy arithmetic
	cfg.TrailingStopDD = -0.99

	curve, err := Simulate(cfg, prices, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One transition: day 2 moves from target 0 (day 1 saw day 0's Flee)
	// to target 1.0. Days 3 onward hold, so the cost is charged once.
	want := 1.0 * (1 - 0.01)
	got := curve.Days[len(curve.Days)-1].Equity
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected a single cost charge to %v, got %v", want, got)
	}
}

func TestSimulateLengthMismatch(t *testing.T) {
	prices := constantReturnSeries(5, 0.01)
	if _, err := Simulate(DefaultConfig(), prices, allSignals(4, signal.Buy)); err == nil {
		t.Error("expected error on signal/price length mismatch")
	}
}

func TestSimulateEmptySeries(t *testing.T) {
	if _, err := Simulate(DefaultConfig(), &market.PriceSeries{Ticker: "SPY"}, nil); err == nil {
		t.Error("expected error on empty series")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty exposure", func(c *Config) { c.Exposure = nil }},
		{"unknown signal", func(c *Config) { c.Exposure["hodl"] = 1.0 }},
		{"exposure above cap", func(c *Config) { c.Exposure["buy"] = 1.5 }},
		{"negative exposure", func(c *Config) { c.Exposure["buy"] = -0.1 }},
		{"positive stop", func(c *Config) { c.TrailingStopDD = 0.1 }},
		{"multiplier above one", func(c *Config) { c.TrailingStopMultiplier = 1.5 }},
		{"clamp min too low", func(c *Config) { c.ClampMin = -1.0 }},
		{"negative cost", func(c *Config) { c.CostBps = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}
