// Package config defines the versioned scoring policy: every weight and
// threshold the pipeline uses, grouped into named presets. Successive
// tuning iterations become presets here instead of parallel code paths.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jefflab/macroscope/internal/backtest"
	"github.com/jefflab/macroscope/internal/regime"
	"github.com/jefflab/macroscope/internal/score"
	"github.com/jefflab/macroscope/internal/signal"
)

// Policy bundles the full tuning surface of the pipeline.
type Policy struct {
	Name       string          `yaml:"name"`
	Scoring    score.Weights   `yaml:"scoring"`
	Macro      regime.Config   `yaml:"macro"`
	Classifier signal.Config   `yaml:"classifier"`
	Backtest   backtest.Config `yaml:"backtest"`
}

// StandardPolicy is the default preset.
func StandardPolicy() Policy {
	return Policy{
		Name:       "standard",
		Scoring:    score.DefaultWeights(),
		Macro:      regime.DefaultConfig(),
		Classifier: signal.DefaultConfig(),
		Backtest:   backtest.DefaultConfig(),
	}
}

// AggressivePolicy keeps more exposure through stress: higher macro
// thresholds, a lower buy floor, and a softer trailing stop.
func AggressivePolicy() Policy {
	p := StandardPolicy()
	p.Name = "aggressive"
	p.Macro.VIXThreshold = 28.0
	p.Macro.OVXThreshold = 40.0
	p.Macro.ConfirmMultiplier = 2.0
	p.Classifier.BuyFloor = 60.0
	p.Backtest.Exposure["watch"] = 0.8
	p.Backtest.TrailingStopDD = -0.12
	return p
}

// DefensivePolicy cuts risk earlier: lower thresholds, heavier
// confirmation multiplier, tighter stop.
func DefensivePolicy() Policy {
	p := StandardPolicy()
	p.Name = "defensive"
	p.Macro.VIXThreshold = 22.0
	p.Macro.OVXThreshold = 34.0
	p.Macro.ConfirmMultiplier = 2.5
	p.Classifier.BuyFloor = 75.0
	p.Backtest.Exposure["watch"] = 0.5
	p.Backtest.Exposure["early_warning"] = 0.3
	p.Backtest.TrailingStopDD = -0.08
	return p
}

// Preset returns a built-in policy by name.
func Preset(name string) (Policy, error) {
	switch name {
	case "", "standard":
		return StandardPolicy(), nil
	case "aggressive":
		return AggressivePolicy(), nil
	case "defensive":
		return DefensivePolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown policy preset %q", name)
	}
}

// PresetNames lists the built-in presets.
func PresetNames() []string {
	return []string{"standard", "aggressive", "defensive"}
}

// LoadPolicy reads a policy from a YAML file, starting from the standard
// preset so omitted fields keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	policy := StandardPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy %q: %w", policy.Name, err)
	}
	return policy, nil
}

// Validate checks every tuning value against its documented range.
func (p Policy) Validate() error {
	if p.Macro.VIXWeight < 0 || p.Macro.OVXWeight < 0 {
		return fmt.Errorf("macro weights must be non-negative")
	}
	if p.Macro.VIXThreshold <= 0 || p.Macro.OVXThreshold <= 0 {
		return fmt.Errorf("macro thresholds must be positive")
	}
	if p.Macro.ConfirmMultiplier < 1 {
		return fmt.Errorf("confirmation multiplier below 1 would reward confirmed weakness: %.2f", p.Macro.ConfirmMultiplier)
	}
	if p.Macro.SpikeRatio <= 1 {
		return fmt.Errorf("spike ratio must exceed 1, got %.2f", p.Macro.SpikeRatio)
	}
	if p.Macro.StrongFloor <= p.Macro.NeutralFloor {
		return fmt.Errorf("strong floor %.1f must exceed neutral floor %.1f", p.Macro.StrongFloor, p.Macro.NeutralFloor)
	}
	if p.Classifier.DeepDiscount <= 0 || p.Classifier.DeepDiscount >= 1 {
		return fmt.Errorf("deep discount must be in (0, 1), got %.2f", p.Classifier.DeepDiscount)
	}
	if p.Classifier.BuyFloor <= p.Classifier.StressFloor {
		return fmt.Errorf("buy floor %.1f must exceed stress floor %.1f", p.Classifier.BuyFloor, p.Classifier.StressFloor)
	}
	if p.Scoring.DemotionPenalty <= 0 {
		return fmt.Errorf("demotion penalty must be positive, got %.1f", p.Scoring.DemotionPenalty)
	}
	return p.Backtest.Validate()
}
