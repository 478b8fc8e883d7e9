package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategySpec describes one strategy instance to run inside a phase.
type StrategySpec struct {
	Type       string             `yaml:"type"` // grid, momentum, combined
	Weight     float64            `yaml:"weight"`
	Parameters map[string]float64 `yaml:"parameters"`
}

// PhaseSpec maps a balance range onto a risk/strategy configuration.
// Ranges must not overlap; MaxBalance of 0 means unbounded.
type PhaseSpec struct {
	Name       string         `yaml:"name"`
	MinBalance float64        `yaml:"min_balance"`
	MaxBalance float64        `yaml:"max_balance"`
	Leverage   float64        `yaml:"leverage"`
	Strategies []StrategySpec `yaml:"strategies"`
}

// PhaseFile is the top-level YAML structure.
type PhaseFile struct {
	Phases []PhaseSpec `yaml:"phases"`
}

// LoadPhases reads phase definitions from a YAML file, falling back to the
// compiled defaults when path is empty.
func LoadPhases(path string) ([]PhaseSpec, error) {
	if path == "" {
		return DefaultPhases(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phase config: %w", err)
	}

	var file PhaseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse phase config: %w", err)
	}
	if len(file.Phases) == 0 {
		return nil, fmt.Errorf("phase config %s defines no phases", path)
	}
	return file.Phases, nil
}

// DefaultPhases returns the built-in three-tier capital ladder.
func DefaultPhases() []PhaseSpec {
	return []PhaseSpec{
		{
			Name:       "initial",
			MinBalance: 0,
			MaxBalance: 1000,
			Leverage:   3,
			Strategies: []StrategySpec{
				{Type: "grid", Weight: 1.0, Parameters: map[string]float64{
					"levels":     10,
					"spacing":    0.005,
					"investment": 0.8,
					"min_profit": 0.002,
					"fee":        0.0005,
					"deviation":  0.03,
				}},
			},
		},
		{
			Name:       "growth",
			MinBalance: 1000,
			MaxBalance: 10000,
			Leverage:   5,
			Strategies: []StrategySpec{
				{Type: "grid", Weight: 0.6, Parameters: map[string]float64{
					"levels":     16,
					"spacing":    0.004,
					"investment": 0.7,
					"min_profit": 0.002,
					"fee":        0.0005,
					"deviation":  0.03,
				}},
				{Type: "momentum", Weight: 0.4, Parameters: map[string]float64{
					"window":             20,
					"momentum_threshold": 0.01,
					"volume_threshold":   1.5,
				}},
			},
		},
		{
			Name:       "scaling",
			MinBalance: 10000,
			MaxBalance: 0, // unbounded
			Leverage:   4,
			Strategies: []StrategySpec{
				{Type: "grid", Weight: 0.5, Parameters: map[string]float64{
					"levels":     20,
					"spacing":    0.003,
					"investment": 0.6,
					"min_profit": 0.0015,
					"fee":        0.0005,
					"deviation":  0.025,
				}},
				{Type: "momentum", Weight: 0.5, Parameters: map[string]float64{
					"window":             30,
					"momentum_threshold": 0.008,
					"volume_threshold":   1.3,
				}},
			},
		},
	}
}
