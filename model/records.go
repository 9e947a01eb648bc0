package model

import "time"

// Quantity names a measured quantity that statistics and thresholds are
// derived over.
type Quantity string

const (
	QuantityGroundDistance Quantity = "ground_distance_km"
	QuantityRSRP           Quantity = "rsrp_dbm"
)

// AllQuantities lists the quantities the statistics collector tracks.
var AllQuantities = []Quantity{QuantityGroundDistance, QuantityRSRP}

// DerivationMethod tags how a ThresholdSet was produced.
type DerivationMethod string

const (
	// DerivationDynamic means the thresholds came from this run's sample
	// distribution.
	DerivationDynamic DerivationMethod = "dynamic"
	// DerivationConfiguredFallback means the sample population was too
	// small and configured constants were used instead.
	DerivationConfiguredFallback DerivationMethod = "configured-fallback"
)

// ThresholdSet holds the derived trigger parameters for one constellation
// and event type. Sets are derived fresh on every run; they are never
// carried across runs.
type ThresholdSet struct {
	Constellation string    `json:"Constellation"`
	EventType     EventType `json:"EventType"`
	Quantity      Quantity  `json:"Quantity"`

	// Threshold1 is the degraded-serving boundary (75th percentile when
	// dynamic), Threshold2 the acceptable-neighbor boundary (50th).
	Threshold1 float64 `json:"Threshold1"`
	Threshold2 float64 `json:"Threshold2"`
	Hysteresis float64 `json:"Hysteresis"`

	Method      DerivationMethod `json:"Method"`
	SampleCount int              `json:"SampleCount"`
	DerivedAt   time.Time        `json:"DerivedAt"`
}

// PoolState is the candidate pool chosen for one constellation at one epoch.
// Members are ordered by selection priority (retained members first, then
// descending elevation).
type PoolState struct {
	Constellation string    `json:"Constellation"`
	Timestamp     time.Time `json:"Timestamp"`
	Members       []string  `json:"Members"`

	VisibleCount int `json:"VisibleCount"`

	// UnderCovered is set when fewer satellites were visible than the
	// configured minimum pool size.
	UnderCovered  bool    `json:"UnderCovered"`
	CoverageRatio float64 `json:"CoverageRatio"`
}

// Contains reports whether id is a pool member.
func (p *PoolState) Contains(id string) bool {
	for _, m := range p.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Recommendation is the action a decision record proposes.
type Recommendation string

const (
	RecommendMaintain Recommendation = "maintain"
	RecommendPrepare  Recommendation = "prepare"
	RecommendHandover Recommendation = "handover"
)

// GateResult reports one feasibility gate with the value it compared and the
// threshold it compared against, so a reader can audit the verdict without
// re-running the evaluator.
type GateResult struct {
	Name      string  `json:"Name"`
	Passed    bool    `json:"Passed"`
	Value     float64 `json:"Value"`
	Threshold float64 `json:"Threshold"`
}

// CandidateScore is the evaluator's output for one candidate at one epoch.
type CandidateScore struct {
	SatelliteID string `json:"SatelliteID"`

	Signal    float64 `json:"Signal"`
	Geometry  float64 `json:"Geometry"`
	Stability float64 `json:"Stability"`
	Total     float64 `json:"Total"`

	RSRPImprovementDB float64 `json:"RSRPImprovementDB"`

	Feasible       bool         `json:"Feasible"`
	Gates          []GateResult `json:"Gates,omitempty"`
	FailureReasons []string     `json:"FailureReasons,omitempty"`
}

// ReasoningStep is one entry in a decision's rule-scan trace. Every rule the
// engine examined appears, matched or not.
type ReasoningStep struct {
	Rule    string `json:"Rule"`
	Matched bool   `json:"Matched"`
	Detail  string `json:"Detail"`
}

// DecisionRecord is the engine's verdict for one epoch.
type DecisionRecord struct {
	ID    string `json:"ID"`
	RunID string `json:"RunID"`

	Timestamp     time.Time `json:"Timestamp"`
	Constellation string    `json:"Constellation"`
	ServingID     string    `json:"ServingID"`

	Recommendation Recommendation `json:"Recommendation"`
	// TargetID is empty for maintain decisions.
	TargetID   string  `json:"TargetID,omitempty"`
	Confidence float64 `json:"Confidence"`

	RuleName  string          `json:"RuleName"`
	Reasoning []ReasoningStep `json:"Reasoning"`
	// Notes carries structured markers such as no_feasible_candidates.
	Notes map[string]string `json:"Notes,omitempty"`

	Candidates []CandidateScore `json:"Candidates,omitempty"`
}
