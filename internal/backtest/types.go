// Package backtest replays daily signals against price history under a
// position-sizing and drawdown-throttling policy, and validates the result
// across named crisis windows.
package backtest

import (
	"fmt"
	"time"

	"github.com/jefflab/macroscope/internal/signal"
)

// Config holds the simulation policy. The exposure table is configuration,
// not hard-coded logic; values above 1.0 represent simulated leverage.
type Config struct {
	Exposure map[string]float64 `yaml:"exposure"` // signal name to fraction in [0, 1.2]

	// CostBps is charged once per exposure transition, not per day held.
	CostBps float64 `yaml:"cost_bps"`

	// TrailingStopDD is the drawdown-from-peak threshold (negative, e.g.
	// -0.10) past which exposure is scaled by TrailingStopMultiplier.
	TrailingStopDD         float64 `yaml:"trailing_stop_dd"`
	TrailingStopMultiplier float64 `yaml:"trailing_stop_multiplier"`

	// Daily returns are clamped to [ClampMin, ClampMax] before
	// compounding so one bad data point cannot produce NaN or negative
	// equity.
	ClampMin float64 `yaml:"clamp_min"`
	ClampMax float64 `yaml:"clamp_max"`
}

// DefaultConfig returns the standard simulation preset.
func DefaultConfig() Config {
	return Config{
		Exposure: map[string]float64{
			"buy":            1.0,
			"contrarian_buy": 0.8,
			"watch":          0.7,
			"early_warning":  0.5,
			"flee":           0.0,
		},
		CostBps:                10.0,
		TrailingStopDD:         -0.10,
		TrailingStopMultiplier: 0.3,
		ClampMin:               -0.99,
		ClampMax:               5.0,
	}
}

// Validate checks the policy bounds.
func (c Config) Validate() error {
	if len(c.Exposure) == 0 {
		return fmt.Errorf("exposure table is empty")
	}
	for name, exp := range c.Exposure {
		if _, err := signal.Parse(name); err != nil {
			return err
		}
		if exp < 0 || exp > 1.2 {
			return fmt.Errorf("exposure for %s out of range [0, 1.2]: %.2f", name, exp)
		}
	}
	if c.TrailingStopDD >= 0 {
		return fmt.Errorf("trailing stop drawdown must be negative, got %.2f", c.TrailingStopDD)
	}
	if c.TrailingStopMultiplier < 0 || c.TrailingStopMultiplier > 1 {
		return fmt.Errorf("trailing stop multiplier out of range [0, 1]: %.2f", c.TrailingStopMultiplier)
	}
	if c.ClampMin <= -1 || c.ClampMax <= 0 {
		return fmt.Errorf("invalid return clamp [%.2f, %.2f]", c.ClampMin, c.ClampMax)
	}
	if c.CostBps < 0 {
		return fmt.Errorf("cost must be non-negative, got %.1f bps", c.CostBps)
	}
	return nil
}

// ExposureFor maps a signal to its target exposure; unknown signals get
// zero exposure.
func (c Config) ExposureFor(sig signal.Signal) float64 {
	return c.Exposure[sig.String()]
}

// MaxExposure returns the largest exposure in the table.
func (c Config) MaxExposure() float64 {
	max := 0.0
	for _, exp := range c.Exposure {
		if exp > max {
			max = exp
		}
	}
	return max
}

// State is the simulation accumulator, advanced once per trading day in
// strict date order and discarded at end of run.
type State struct {
	CumEquity       float64
	RunningPeak     float64
	CurrentExposure float64
}

// NewState returns the initial accumulator.
func NewState() State {
	return State{CumEquity: 1.0, RunningPeak: 1.0, CurrentExposure: 0.0}
}

// Day is one simulated trading day.
type Day struct {
	Date            time.Time     `json:"date"`
	Close           float64       `json:"close"`
	Return          float64       `json:"return"` // clamped daily return
	Signal          signal.Signal `json:"-"`
	SignalName      string        `json:"signal"`
	Composite       float64       `json:"composite"`
	TargetExposure  float64       `json:"target_exposure"`
	AppliedExposure float64       `json:"applied_exposure"`
	Throttled       bool          `json:"throttled,omitempty"`
	Equity          float64       `json:"equity"`
	BAHEquity       float64       `json:"bah_equity"`
	Drawdown        float64       `json:"drawdown"`
	BAHDrawdown     float64       `json:"bah_drawdown"`
	Synthetic       bool          `json:"synthetic,omitempty"`
}

// EquityCurve is the full simulation output for one instrument.
type EquityCurve struct {
	Ticker string `json:"ticker"`
	Days   []Day  `json:"days"`
}

// Start returns the first simulated date.
func (ec *EquityCurve) Start() time.Time {
	if len(ec.Days) == 0 {
		return time.Time{}
	}
	return ec.Days[0].Date
}

// End returns the last simulated date.
func (ec *EquityCurve) End() time.Time {
	if len(ec.Days) == 0 {
		return time.Time{}
	}
	return ec.Days[len(ec.Days)-1].Date
}

// DayOn returns the index of the first simulated day on or after date.
func (ec *EquityCurve) DayOn(date time.Time) (int, bool) {
	for i, d := range ec.Days {
		if !d.Date.Before(date) {
			return i, true
		}
	}
	return 0, false
}

// Summary is the headline result set exposed to the backtest report layer.
type Summary struct {
	Ticker            string    `json:"ticker"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	TotalDays         int       `json:"total_days"`
	ThrottledDays     int       `json:"throttled_days"`
	StrategyReturnPct float64   `json:"strategy_return_pct"`
	BAHReturnPct      float64   `json:"bah_return_pct"`
	StrategyMDDPct    float64   `json:"strategy_mdd_pct"`
	BAHMDDPct         float64   `json:"bah_mdd_pct"`
	CAGRPct           float64   `json:"cagr_pct"`
	HasSynthetic      bool      `json:"has_synthetic"` // any day computed on fabricated history
}
