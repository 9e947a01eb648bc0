// Package config loads the decision-core configuration from YAML and
// provides a ready-to-run example configuration for quick starts.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/leo-handover/core"
	"github.com/signalsfoundry/leo-handover/model"
)

// Load reads a YAML configuration file, fills defaults and validates it.
func Load(path string) (*core.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse unmarshals YAML configuration, fills defaults and validates it.
func Parse(data []byte) (*core.Config, error) {
	var cfg core.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Example returns a complete two-constellation configuration that passes
// validation. The replay command falls back to it when no config file is
// given, and scenario generation uses its constellation names.
func Example() *core.Config {
	cfg := core.Config{
		Constellations: map[string]core.ConstellationConfig{
			"iridium-next": {
				MinElevationDeg:       8,
				OptimalDistanceLowKm:  200,
				OptimalDistanceHighKm: 900,
				Fallbacks: map[model.EventType]core.FallbackThresholds{
					model.EventA4: {Threshold1: -100, Threshold2: -110, Hysteresis: 1.5},
					model.EventA5: {Threshold1: -100, Threshold2: -110, Hysteresis: 1.5},
					model.EventD2: {Threshold1: 1500, Threshold2: 800, Hysteresis: 25},
				},
			},
			"oneweb": {
				MinElevationDeg:       15,
				OptimalDistanceLowKm:  300,
				OptimalDistanceHighKm: 1100,
				Pool:                  core.PoolConfig{MinSize: 2, MaxSize: 6},
				Fallbacks: map[model.EventType]core.FallbackThresholds{
					model.EventA4: {Threshold1: -98, Threshold2: -108, Hysteresis: 2},
					model.EventA5: {Threshold1: -98, Threshold2: -108, Hysteresis: 2},
					model.EventD2: {Threshold1: 1800, Threshold2: 1000, Hysteresis: 30},
				},
			},
		},
	}
	cfg.ApplyDefaults()
	return &cfg
}
