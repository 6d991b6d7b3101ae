// Package signal turns momentum and macro inputs into the discrete daily
// trading signal the dashboard and backtest consume.
package signal

import (
	"fmt"
)

// Signal is the daily classification for one instrument or portfolio.
// Exactly one value holds per date.
type Signal int

const (
	Flee Signal = iota
	EarlyWarning
	Watch
	ContrarianBuy
	Buy
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "buy"
	case ContrarianBuy:
		return "contrarian_buy"
	case Watch:
		return "watch"
	case EarlyWarning:
		return "early_warning"
	case Flee:
		return "flee"
	default:
		return "unknown"
	}
}

// Parse maps a signal name (as used in YAML exposure tables) back to the
// enum.
func Parse(name string) (Signal, error) {
	switch name {
	case "buy":
		return Buy, nil
	case "contrarian_buy":
		return ContrarianBuy, nil
	case "watch":
		return Watch, nil
	case "early_warning":
		return EarlyWarning, nil
	case "flee":
		return Flee, nil
	default:
		return Flee, fmt.Errorf("unknown signal %q", name)
	}
}

// Config holds the classifier thresholds.
type Config struct {
	// StressFloor: below this composite score, a price under its MA200
	// classifies as Flee.
	StressFloor float64 `yaml:"stress_floor"`
	// BuyFloor: at or above this composite score the classification is Buy.
	BuyFloor float64 `yaml:"buy_floor"`
	// DeepDiscount: price below MA200 times this fraction flags a
	// capitulation candidate (ContrarianBuy).
	DeepDiscount float64 `yaml:"deep_discount"`
}

// DefaultConfig returns the standard classifier preset.
func DefaultConfig() Config {
	return Config{
		StressFloor:  55.0,
		BuyFloor:     70.0,
		DeepDiscount: 0.90,
	}
}

// Inputs carries everything the classifier evaluates for one day. It is a
// pure classifier re-evaluated fresh each day: no hysteresis, no
// transition restrictions.
type Inputs struct {
	Close     float64
	MA200     float64
	HasMA200  bool
	RefMA     float64 // shorter reference MA: MA50 standard, MA20 leveraged
	HasRefMA  bool
	Composite float64
	VolSpike  bool
}

// Classify derives the signal for one day. When the moving averages are
// still undefined the result is Flee: the conservative fail-safe, never
// Buy.
func Classify(cfg Config, in Inputs) Signal {
	if !in.HasMA200 || !in.HasRefMA {
		return Flee
	}

	switch {
	case in.Close < in.MA200 && in.Composite < cfg.StressFloor:
		return Flee
	case in.Close < in.RefMA || in.VolSpike:
		return EarlyWarning // reduced exposure, not zero
	case in.Composite >= cfg.BuyFloor:
		return Buy
	case in.Close < in.MA200*cfg.DeepDiscount:
		return ContrarianBuy
	default:
		return Watch
	}
}
