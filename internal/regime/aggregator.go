// Package regime implements the macro risk aggregator: it folds VIX, OVX,
// the yield-curve spread, and price-versus-trend into a composite macro
// score and a discrete regime label.
package regime

import (
	"github.com/jefflab/macroscope/internal/macro"
)

// Regime classifies the macro environment.
type Regime int

const (
	Strong Regime = iota
	Neutral
	Stressed
)

func (r Regime) String() string {
	switch r {
	case Strong:
		return "strong"
	case Neutral:
		return "neutral"
	case Stressed:
		return "stressed"
	default:
		return "unknown"
	}
}

// Config holds the aggregator's tuning. The weights and thresholds were
// tuned empirically across iterations of the source strategy; they are
// configuration to be re-tuned, not settled constants.
type Config struct {
	VIXWeight    float64 `yaml:"vix_weight"`    // observed range 1.0 to 1.5
	OVXWeight    float64 `yaml:"ovx_weight"`    // observed range 1.2 to 2.0
	VIXThreshold float64 `yaml:"vix_threshold"` // observed range 22 to 28
	OVXThreshold float64 `yaml:"ovx_threshold"` // observed range 34 to 40

	// CreditPenalty is the flat penalty applied while the yield curve is
	// inverted (10y minus 3m below zero).
	CreditPenalty float64 `yaml:"credit_penalty"`

	// ConfirmMultiplier amplifies the whole penalty once price trades
	// below its reference moving average: macro stress is penalized
	// harder after price has confirmed weakness.
	ConfirmMultiplier float64 `yaml:"confirm_multiplier"` // observed range 2.0 to 2.5

	// SpikeRatio is the VIX-to-trailing-average ratio that flags a
	// volatility spike independently of the composite score.
	SpikeRatio float64 `yaml:"spike_ratio"`

	StrongFloor  float64 `yaml:"strong_floor"`  // composite at or above this is Strong
	NeutralFloor float64 `yaml:"neutral_floor"` // composite at or above this is Neutral
}

// DefaultConfig returns the standard aggregator preset.
func DefaultConfig() Config {
	return Config{
		VIXWeight:         1.2,
		OVXWeight:         1.5,
		VIXThreshold:      25.0,
		OVXThreshold:      35.0,
		CreditPenalty:     20.0,
		ConfirmMultiplier: 2.0,
		SpikeRatio:        1.25,
		StrongFloor:       85.0,
		NeutralFloor:      55.0,
	}
}

// PriceContext carries the price-versus-trend inputs for the confirmation
// multiplier. ReferenceMA is the shorter trend MA appropriate to the
// instrument class (MA50 standard, MA20 leveraged); HasReferenceMA is
// false while that MA is still undefined.
type PriceContext struct {
	Close          float64
	ReferenceMA    float64
	HasReferenceMA bool
}

// Result is the aggregator output for one date.
type Result struct {
	Composite float64 `json:"composite"`
	Regime    string  `json:"regime"`
	Penalty   float64 `json:"penalty"`
	VolSpike  bool    `json:"vol_spike"`
}

// Aggregate computes the composite macro score and regime label for one
// snapshot. The composite is 100 minus the accumulated penalty and is
// unbounded below.
func Aggregate(cfg Config, snap macro.Snapshot, px PriceContext) Result {
	penalty := 0.0
	if snap.VIX > cfg.VIXThreshold {
		penalty += cfg.VIXWeight * (snap.VIX - cfg.VIXThreshold)
	}
	if snap.OVX > cfg.OVXThreshold {
		penalty += cfg.OVXWeight * (snap.OVX - cfg.OVXThreshold)
	}
	if snap.YieldSpread < 0 {
		penalty += cfg.CreditPenalty
	}

	if px.HasReferenceMA && px.Close < px.ReferenceMA {
		penalty *= cfg.ConfirmMultiplier
	}

	composite := 100.0 - penalty

	spike := snap.VIXAvg5 > 0 && snap.VIX/snap.VIXAvg5 > cfg.SpikeRatio

	regime := classify(cfg, composite)
	if spike {
		// A sudden acceleration in fear pre-empts the slower penalty
		// accumulation.
		regime = Stressed
	}

	return Result{
		Composite: composite,
		Regime:    regime.String(),
		Penalty:   penalty,
		VolSpike:  spike,
	}
}

func classify(cfg Config, composite float64) Regime {
	switch {
	case composite >= cfg.StrongFloor:
		return Strong
	case composite >= cfg.NeutralFloor:
		return Neutral
	default:
		return Stressed
	}
}
