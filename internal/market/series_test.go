package market

import (
	"math"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func flatSeries(ticker string, n int, close float64) *PriceSeries {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{Date: day(i), Close: close}
	}
	return &PriceSeries{Ticker: ticker, Bars: bars}
}

func TestNewPriceSeriesSortsByDate(t *testing.T) {
	bars := []Bar{
		{Date: day(2), Close: 3},
		{Date: day(0), Close: 1},
		{Date: day(1), Close: 2},
	}
	s, err := NewPriceSeries("SPY", bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < s.Len(); i++ {
		if s.Close(i) != float64(i+1) {
			t.Errorf("bar %d: expected close %d, got %v", i, i+1, s.Close(i))
		}
	}
}

func TestValidateRejectsDuplicateDates(t *testing.T) {
	s := &PriceSeries{Ticker: "SPY", Bars: []Bar{
		{Date: day(0), Close: 1},
		{Date: day(0), Close: 2},
	}}
	if err := s.Validate(); err == nil {
		t.Error("expected error for duplicate dates")
	}
}

func TestValidateRejectsNonFiniteClose(t *testing.T) {
	s := &PriceSeries{Ticker: "SPY", Bars: []Bar{
		{Date: day(0), Close: math.NaN()},
	}}
	if err := s.Validate(); err == nil {
		t.Error("expected error for NaN close")
	}
}

func TestValidateRejectsNonPositiveClose(t *testing.T) {
	for _, close := range []float64{0, -5} {
		s := &PriceSeries{Ticker: "SPY", Bars: []Bar{
			{Date: day(0), Close: close},
		}}
		if err := s.Validate(); err == nil {
			t.Errorf("expected error for close %v", close)
		}
	}
}

func TestMAAtRequiresFullWindow(t *testing.T) {
	s := flatSeries("SPY", 19, 100)
	if _, ok := s.MAAt(20, s.Len()-1); ok {
		t.Error("MA20 should be undefined with 19 sessions")
	}

	s = flatSeries("SPY", 20, 100)
	ma, ok := s.MAAt(20, s.Len()-1)
	if !ok {
		t.Fatal("MA20 should be defined with exactly 20 sessions")
	}
	if ma != 100 {
		t.Errorf("expected MA 100, got %v", ma)
	}
}

func TestReturnAtMissingHistoryIsZero(t *testing.T) {
	s := flatSeries("SPY", 10, 100)
	if ret := s.ReturnAt(21, s.Len()-1); ret != 0 {
		t.Errorf("expected 0 for missing lookback, got %v", ret)
	}
}

func TestReturnAt(t *testing.T) {
	s := &PriceSeries{Ticker: "SPY", Bars: []Bar{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 110},
	}}
	ret := s.ReturnAt(1, 1)
	if math.Abs(ret-0.10) > 1e-12 {
		t.Errorf("expected 0.10, got %v", ret)
	}
}

func TestDailyReturnsFirstDayIsZero(t *testing.T) {
	s := &PriceSeries{Ticker: "SPY", Bars: []Bar{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 101},
	}}
	rets := s.DailyReturns()
	if rets[0] != 0 {
		t.Errorf("first day return should be 0, got %v", rets[0])
	}
	if math.Abs(rets[1]-0.01) > 1e-12 {
		t.Errorf("expected 0.01, got %v", rets[1])
	}
}

func TestRangeAtShortHistoryUsesWhatExists(t *testing.T) {
	s := &PriceSeries{Ticker: "SPY", Bars: []Bar{
		{Date: day(0), Close: 90},
		{Date: day(1), Close: 110},
		{Date: day(2), Close: 100},
	}}
	high, low, ok := s.RangeAt(252, 2)
	if !ok {
		t.Fatal("range should be defined on a non-empty series")
	}
	if high != 110 || low != 90 {
		t.Errorf("expected high 110 low 90, got %v/%v", high, low)
	}
}

func TestIndexOnAndSlice(t *testing.T) {
	s := flatSeries("SPY", 5, 100)

	i, ok := s.IndexOn(day(2))
	if !ok || i != 2 {
		t.Errorf("expected index 2, got %d ok=%v", i, ok)
	}

	// A date between sessions resolves to the next session.
	i, ok = s.IndexOn(day(2).Add(-12 * time.Hour))
	if !ok || i != 2 {
		t.Errorf("expected index 2 for mid-gap date, got %d ok=%v", i, ok)
	}

	if _, ok := s.IndexOn(day(99)); ok {
		t.Error("expected no index past the last bar")
	}

	sub := s.Slice(day(3))
	if sub.Len() != 2 {
		t.Errorf("expected 2 bars after slice, got %d", sub.Len())
	}
	if sub.Slice(day(99)).Len() != 0 {
		t.Error("slicing past the end should yield an empty series")
	}
}

func TestPctChangeTail(t *testing.T) {
	s := &PriceSeries{Ticker: "SPY", Bars: []Bar{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 110},
		{Date: day(2), Close: 99},
	}}
	changes := s.PctChangeTail(20, 2)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if math.Abs(changes[0]-0.10) > 1e-12 || math.Abs(changes[1]-(-0.10)) > 1e-12 {
		t.Errorf("unexpected changes: %v", changes)
	}
}

func TestHasSynthetic(t *testing.T) {
	s := flatSeries("SSO", 3, 50)
	if s.HasSynthetic() {
		t.Error("fresh series should have no synthetic bars")
	}
	s.Bars[0].Synthetic = true
	if !s.HasSynthetic() {
		t.Error("expected synthetic flag to be reported")
	}
}
