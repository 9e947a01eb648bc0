package core

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/leo-handover/model"
)

// Default tuning values, applied by ApplyDefaults wherever a field is zero.
const (
	DefaultMinElevationDeg    = 10.0
	DefaultPoolMinSize        = 2
	DefaultPoolMaxSize        = 4
	DefaultA3OffsetDB         = 3.0
	DefaultPersistenceSeconds = 10.0
	DefaultMinSampleCount     = 30
	DefaultHysteresisFraction = 0.25
	DefaultHysteresisFloor    = 0.1

	DefaultRSRPFloorDBm         = -140.0
	DefaultRSRPCeilingDBm       = -60.0
	DefaultSINRFloorDB          = -10.0
	DefaultSINRCeilingDB        = 25.0
	DefaultLinkMarginCapDB      = 20.0
	DefaultFeasibilityThreshold = 0.5
	DefaultMinRSRPImprovementDB = 2.0

	DefaultHighScoreThreshold     = 0.75
	DefaultModerateScoreThreshold = 0.55
	DefaultEventLookbackSeconds   = 120.0
	DefaultEpochIntervalSeconds   = 60.0
)

// TieBreakPolicy selects how simultaneous qualifying events are resolved
// when the decision engine must pick a target.
type TieBreakPolicy string

const (
	// TieBreakSeverity prefers A5/D2 over A4 over A3, then score.
	TieBreakSeverity TieBreakPolicy = "severity"
	// TieBreakScore ignores event class and takes the top-scored candidate.
	TieBreakScore TieBreakPolicy = "score"
)

// FallbackThresholds are the configured constants used when a constellation's
// sample population is too small for dynamic derivation.
type FallbackThresholds struct {
	Threshold1 float64 `yaml:"threshold1" json:"Threshold1"`
	Threshold2 float64 `yaml:"threshold2" json:"Threshold2"`
	Hysteresis float64 `yaml:"hysteresis" json:"Hysteresis"`
}

// PoolConfig bounds the candidate pool size.
type PoolConfig struct {
	MinSize int `yaml:"min_size" json:"MinSize"`
	MaxSize int `yaml:"max_size" json:"MaxSize"`
}

// EventConfig holds per-constellation event detection parameters. The
// persistence duration applies to entering and leaving alike.
type EventConfig struct {
	A3OffsetDB         float64 `yaml:"a3_offset_db" json:"A3OffsetDB"`
	PersistenceSeconds float64 `yaml:"persistence_seconds" json:"PersistenceSeconds"`
}

// Persistence returns the persistence window as a duration.
func (e EventConfig) Persistence() time.Duration {
	return time.Duration(e.PersistenceSeconds * float64(time.Second))
}

// ConstellationConfig carries everything the core needs to know about one
// constellation: visibility mask, pool bounds, event parameters, geometry
// preferences and the fallback threshold constants.
type ConstellationConfig struct {
	Name string `yaml:"name" json:"Name"`

	MinElevationDeg float64 `yaml:"min_elevation_deg" json:"MinElevationDeg"`

	// Optimal ground-distance band for the geometry sub-score. Outside the
	// band the score decays linearly over FalloffKm.
	OptimalDistanceLowKm  float64 `yaml:"optimal_distance_low_km" json:"OptimalDistanceLowKm"`
	OptimalDistanceHighKm float64 `yaml:"optimal_distance_high_km" json:"OptimalDistanceHighKm"`
	DistanceFalloffKm     float64 `yaml:"distance_falloff_km" json:"DistanceFalloffKm"`

	Pool   PoolConfig  `yaml:"pool" json:"Pool"`
	Events EventConfig `yaml:"events" json:"Events"`

	// Fallbacks is keyed by event type, consulted only on the
	// configured-fallback derivation path.
	Fallbacks map[model.EventType]FallbackThresholds `yaml:"fallbacks" json:"Fallbacks"`
}

// DerivationConfig tunes threshold derivation.
type DerivationConfig struct {
	HysteresisFraction float64 `yaml:"hysteresis_fraction" json:"HysteresisFraction"`
	HysteresisFloor    float64 `yaml:"hysteresis_floor" json:"HysteresisFloor"`
	MinSampleCount     int     `yaml:"min_sample_count" json:"MinSampleCount"`
}

// Weights are the evaluator's sub-score weights. They must sum to 1.
type Weights struct {
	Signal    float64 `yaml:"signal" json:"Signal"`
	Geometry  float64 `yaml:"geometry" json:"Geometry"`
	Stability float64 `yaml:"stability" json:"Stability"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 { return w.Signal + w.Geometry + w.Stability }

// EvaluatorConfig tunes candidate scoring and feasibility gating. The floor
// values double as the documented worst-case substitutes for missing
// measurements.
type EvaluatorConfig struct {
	Weights Weights `yaml:"weights" json:"Weights"`

	RSRPFloorDBm    float64 `yaml:"rsrp_floor_dbm" json:"RSRPFloorDBm"`
	RSRPCeilingDBm  float64 `yaml:"rsrp_ceiling_dbm" json:"RSRPCeilingDBm"`
	SINRFloorDB     float64 `yaml:"sinr_floor_db" json:"SINRFloorDB"`
	SINRCeilingDB   float64 `yaml:"sinr_ceiling_db" json:"SINRCeilingDB"`
	LinkMarginCapDB float64 `yaml:"link_margin_cap_db" json:"LinkMarginCapDB"`

	FeasibilityThreshold float64 `yaml:"feasibility_threshold" json:"FeasibilityThreshold"`
	MinRSRPImprovementDB float64 `yaml:"min_rsrp_improvement_db" json:"MinRSRPImprovementDB"`
}

// DecisionConfig tunes the decision rule table.
type DecisionConfig struct {
	HighScoreThreshold     float64        `yaml:"high_score_threshold" json:"HighScoreThreshold"`
	ModerateScoreThreshold float64        `yaml:"moderate_score_threshold" json:"ModerateScoreThreshold"`
	EventLookbackSeconds   float64        `yaml:"event_lookback_seconds" json:"EventLookbackSeconds"`
	TieBreak               TieBreakPolicy `yaml:"tie_break" json:"TieBreak"`
}

// EventLookback returns the lookback window as a duration.
func (d DecisionConfig) EventLookback() time.Duration {
	return time.Duration(d.EventLookbackSeconds * float64(time.Second))
}

// Config is the complete decision-core configuration for one run.
type Config struct {
	EpochIntervalSeconds float64 `yaml:"epoch_interval_seconds" json:"EpochIntervalSeconds"`
	// Workers bounds run parallelism; 0 means one worker per CPU.
	Workers int `yaml:"workers" json:"Workers"`

	Derivation DerivationConfig `yaml:"derivation" json:"Derivation"`
	Evaluator  EvaluatorConfig  `yaml:"evaluator" json:"Evaluator"`
	Decision   DecisionConfig   `yaml:"decision" json:"Decision"`

	Constellations map[string]ConstellationConfig `yaml:"constellations" json:"Constellations"`
}

// EpochInterval returns the epoch spacing as a duration.
func (c *Config) EpochInterval() time.Duration {
	return time.Duration(c.EpochIntervalSeconds * float64(time.Second))
}

// Constellation looks up the configuration for the named constellation.
func (c *Config) Constellation(name string) (ConstellationConfig, error) {
	cc, ok := c.Constellations[name]
	if !ok {
		return ConstellationConfig{}, fmt.Errorf("%w: %q", ErrUnknownConstellation, name)
	}
	return cc, nil
}

// DefaultConfig returns a Config with every tunable at its default and no
// constellations registered.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued tunables in place. Constellation entries
// are defaulted individually; the map key wins over an empty Name field.
func (c *Config) ApplyDefaults() {
	if c.EpochIntervalSeconds <= 0 {
		c.EpochIntervalSeconds = DefaultEpochIntervalSeconds
	}
	if c.Derivation.HysteresisFraction <= 0 {
		c.Derivation.HysteresisFraction = DefaultHysteresisFraction
	}
	if c.Derivation.HysteresisFloor <= 0 {
		c.Derivation.HysteresisFloor = DefaultHysteresisFloor
	}
	if c.Derivation.MinSampleCount <= 0 {
		c.Derivation.MinSampleCount = DefaultMinSampleCount
	}

	ev := &c.Evaluator
	if ev.Weights == (Weights{}) {
		ev.Weights = Weights{Signal: 0.5, Geometry: 0.3, Stability: 0.2}
	}
	if ev.RSRPFloorDBm == 0 {
		ev.RSRPFloorDBm = DefaultRSRPFloorDBm
	}
	if ev.RSRPCeilingDBm == 0 {
		ev.RSRPCeilingDBm = DefaultRSRPCeilingDBm
	}
	if ev.SINRFloorDB == 0 {
		ev.SINRFloorDB = DefaultSINRFloorDB
	}
	if ev.SINRCeilingDB == 0 {
		ev.SINRCeilingDB = DefaultSINRCeilingDB
	}
	if ev.LinkMarginCapDB <= 0 {
		ev.LinkMarginCapDB = DefaultLinkMarginCapDB
	}
	if ev.FeasibilityThreshold <= 0 {
		ev.FeasibilityThreshold = DefaultFeasibilityThreshold
	}
	if ev.MinRSRPImprovementDB <= 0 {
		ev.MinRSRPImprovementDB = DefaultMinRSRPImprovementDB
	}

	dec := &c.Decision
	if dec.HighScoreThreshold <= 0 {
		dec.HighScoreThreshold = DefaultHighScoreThreshold
	}
	if dec.ModerateScoreThreshold <= 0 {
		dec.ModerateScoreThreshold = DefaultModerateScoreThreshold
	}
	if dec.EventLookbackSeconds <= 0 {
		dec.EventLookbackSeconds = DefaultEventLookbackSeconds
	}
	if dec.TieBreak == "" {
		dec.TieBreak = TieBreakSeverity
	}

	for name, cc := range c.Constellations {
		cc.applyDefaults(name)
		c.Constellations[name] = cc
	}
}

func (cc *ConstellationConfig) applyDefaults(name string) {
	if cc.Name == "" {
		cc.Name = name
	}
	if cc.MinElevationDeg == 0 {
		cc.MinElevationDeg = DefaultMinElevationDeg
	}
	if cc.Pool.MinSize <= 0 {
		cc.Pool.MinSize = DefaultPoolMinSize
	}
	if cc.Pool.MaxSize <= 0 {
		cc.Pool.MaxSize = DefaultPoolMaxSize
	}
	if cc.Events.A3OffsetDB == 0 {
		cc.Events.A3OffsetDB = DefaultA3OffsetDB
	}
	if cc.Events.PersistenceSeconds <= 0 {
		cc.Events.PersistenceSeconds = DefaultPersistenceSeconds
	}
	if cc.DistanceFalloffKm <= 0 {
		width := cc.OptimalDistanceHighKm - cc.OptimalDistanceLowKm
		if width > 0 {
			cc.DistanceFalloffKm = width
		} else {
			cc.DistanceFalloffKm = 500
		}
	}
}

// Validate checks cross-field constraints. It assumes ApplyDefaults has run.
func (c *Config) Validate() error {
	if math.Abs(c.Evaluator.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("%w: got %.6f", ErrWeightInvariant, c.Evaluator.Weights.Sum())
	}
	if c.Evaluator.Weights.Signal < 0 || c.Evaluator.Weights.Geometry < 0 || c.Evaluator.Weights.Stability < 0 {
		return fmt.Errorf("%w: negative weight", ErrWeightInvariant)
	}
	if c.Evaluator.RSRPCeilingDBm <= c.Evaluator.RSRPFloorDBm {
		return fmt.Errorf("%w: rsrp ceiling %.1f <= floor %.1f", ErrInvalidConfig,
			c.Evaluator.RSRPCeilingDBm, c.Evaluator.RSRPFloorDBm)
	}
	if c.Evaluator.SINRCeilingDB <= c.Evaluator.SINRFloorDB {
		return fmt.Errorf("%w: sinr ceiling %.1f <= floor %.1f", ErrInvalidConfig,
			c.Evaluator.SINRCeilingDB, c.Evaluator.SINRFloorDB)
	}
	switch c.Decision.TieBreak {
	case TieBreakSeverity, TieBreakScore:
	default:
		return fmt.Errorf("%w: tie_break %q", ErrInvalidConfig, c.Decision.TieBreak)
	}
	if len(c.Constellations) == 0 {
		return fmt.Errorf("%w: no constellations configured", ErrInvalidConfig)
	}
	for name, cc := range c.Constellations {
		if err := cc.validate(); err != nil {
			return fmt.Errorf("constellation %q: %w", name, err)
		}
	}
	return nil
}

func (cc *ConstellationConfig) validate() error {
	if cc.Pool.MinSize > cc.Pool.MaxSize {
		return fmt.Errorf("%w: pool min_size %d > max_size %d", ErrInvalidConfig,
			cc.Pool.MinSize, cc.Pool.MaxSize)
	}
	if cc.MinElevationDeg < 0 || cc.MinElevationDeg >= 90 {
		return fmt.Errorf("%w: min_elevation_deg %.1f out of range", ErrInvalidConfig, cc.MinElevationDeg)
	}
	if cc.OptimalDistanceHighKm < cc.OptimalDistanceLowKm {
		return fmt.Errorf("%w: optimal distance band inverted", ErrInvalidConfig)
	}
	for et, fb := range cc.Fallbacks {
		if !et.Valid() {
			return fmt.Errorf("%w: fallback for %q", ErrUnknownEventType, string(et))
		}
		if fb.Threshold1 < fb.Threshold2 {
			return fmt.Errorf("%w: fallback %s threshold1 %.2f < threshold2 %.2f",
				ErrInvalidConfig, et, fb.Threshold1, fb.Threshold2)
		}
		if fb.Hysteresis < 0 {
			return fmt.Errorf("%w: fallback %s negative hysteresis", ErrInvalidConfig, et)
		}
	}
	return nil
}
