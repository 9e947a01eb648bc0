package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-handover/model"
)

func evaluatorTestConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Weights:              Weights{Signal: 0.5, Geometry: 0.3, Stability: 0.2},
		RSRPFloorDBm:         -140,
		RSRPCeilingDBm:       -60,
		SINRFloorDB:          -10,
		SINRCeilingDB:        30,
		LinkMarginCapDB:      20,
		FeasibilityThreshold: 0.5,
		MinRSRPImprovementDB: 2,
	}
}

func evaluatorConstellation() ConstellationConfig {
	return ConstellationConfig{
		Name:                  "leo-a",
		OptimalDistanceLowKm:  300,
		OptimalDistanceHighKm: 800,
		DistanceFalloffKm:     500,
	}
}

func candidate(id string, elevDeg, distKm float64, rsrp, sinr, margin *float64, usable bool) *model.CandidateSample {
	return &model.CandidateSample{
		SatelliteID:      id,
		Constellation:    "leo-a",
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ElevationDeg:     elevDeg,
		GroundDistanceKm: distKm,
		RSRPdBm:          rsrp,
		SINRdB:           sinr,
		LinkMarginDB:     margin,
		Usable:           usable,
	}
}

// TestNewEvaluatorRejectsBadWeights ensures the weight invariant is checked
// at construction.
func TestNewEvaluatorRejectsBadWeights(t *testing.T) {
	cfg := evaluatorTestConfig()
	cfg.Weights = Weights{Signal: 0.5, Geometry: 0.3, Stability: 0.3}
	if _, err := NewEvaluator(cfg, nil); !errors.Is(err, ErrWeightInvariant) {
		t.Fatalf("err = %v, want ErrWeightInvariant", err)
	}
}

// TestEvaluateSubScores checks each normalized sub-score and the weighted
// total on hand-computed values.
func TestEvaluateSubScores(t *testing.T) {
	e, err := NewEvaluator(evaluatorTestConfig(), nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	serving := candidate("sat-serving", 30, 600, model.Float64Ptr(-110), model.Float64Ptr(5), nil, true)
	// RSRP -100 over [-140,-60] → 0.5; elevation 45/90 → 0.5 with the
	// distance inside the band → geometry 0.6*0.5+0.4 = 0.7;
	// SINR 10 over [-10,30] → 0.5 with no margin.
	cand := candidate("sat-1", 45, 500, model.Float64Ptr(-100), model.Float64Ptr(10), nil, true)

	scores, skips := e.EvaluateCandidates(context.Background(), evaluatorConstellation(), serving,
		[]*model.CandidateSample{cand})
	if len(skips) != 0 {
		t.Fatalf("unexpected skips: %v", skips)
	}
	if len(scores) != 1 {
		t.Fatalf("got %d scores, want 1", len(scores))
	}

	s := scores[0]
	if math.Abs(s.Signal-0.5) > 1e-9 {
		t.Fatalf("Signal = %v, want 0.5", s.Signal)
	}
	if math.Abs(s.Geometry-0.7) > 1e-9 {
		t.Fatalf("Geometry = %v, want 0.7", s.Geometry)
	}
	if math.Abs(s.Stability-0.5) > 1e-9 {
		t.Fatalf("Stability = %v, want 0.5", s.Stability)
	}
	wantTotal := 0.5*0.5 + 0.3*0.7 + 0.2*0.5
	if math.Abs(s.Total-wantTotal) > 1e-9 {
		t.Fatalf("Total = %v, want %v", s.Total, wantTotal)
	}
	if s.RSRPImprovementDB != 10 {
		t.Fatalf("RSRPImprovementDB = %v, want 10", s.RSRPImprovementDB)
	}
	if !s.Feasible {
		t.Fatalf("expected feasible candidate: %+v", s.FailureReasons)
	}
}

// TestEvaluateSkipsMissingSINR verifies the no-substitute path: the
// candidate is dropped and the skip reported, never scored with an invented
// stability.
func TestEvaluateSkipsMissingSINR(t *testing.T) {
	e, _ := NewEvaluator(evaluatorTestConfig(), nil)
	serving := candidate("sat-serving", 30, 600, model.Float64Ptr(-110), model.Float64Ptr(5), nil, true)

	scores, skips := e.EvaluateCandidates(context.Background(), evaluatorConstellation(), serving,
		[]*model.CandidateSample{
			candidate("sat-nosinr", 45, 500, model.Float64Ptr(-100), nil, nil, true),
			candidate("sat-ok", 45, 500, model.Float64Ptr(-100), model.Float64Ptr(10), nil, true),
		})

	if len(scores) != 1 || scores[0].SatelliteID != "sat-ok" {
		t.Fatalf("scores = %+v, want only sat-ok", scores)
	}
	if skips["missing_sinr"] != 1 {
		t.Fatalf("skips = %v, want missing_sinr=1", skips)
	}
}

// TestEvaluateSubstitutesMissingRSRP verifies the documented worst-case
// substitute: a candidate without RSRP scores at the signal floor and its
// improvement gate compares against the floor, but it is still evaluated.
func TestEvaluateSubstitutesMissingRSRP(t *testing.T) {
	e, _ := NewEvaluator(evaluatorTestConfig(), nil)
	serving := candidate("sat-serving", 30, 600, model.Float64Ptr(-110), model.Float64Ptr(5), nil, true)

	scores, skips := e.EvaluateCandidates(context.Background(), evaluatorConstellation(), serving,
		[]*model.CandidateSample{
			candidate("sat-norsrp", 45, 500, nil, model.Float64Ptr(10), nil, true),
		})
	if len(skips) != 0 {
		t.Fatalf("substituted candidate must not be skipped: %v", skips)
	}
	if len(scores) != 1 {
		t.Fatalf("got %d scores, want 1", len(scores))
	}

	s := scores[0]
	if s.Signal != 0 {
		t.Fatalf("Signal = %v, want 0 at the floor", s.Signal)
	}
	if s.RSRPImprovementDB != -140-(-110) {
		t.Fatalf("RSRPImprovementDB = %v, want -30", s.RSRPImprovementDB)
	}
	if s.Feasible {
		t.Fatalf("floor-substituted candidate cannot be feasible: %+v", s)
	}
}

// TestFeasibilityGates exercises each gate failing in isolation and checks
// the recorded gate results.
func TestFeasibilityGates(t *testing.T) {
	e, _ := NewEvaluator(evaluatorTestConfig(), nil)
	serving := candidate("sat-serving", 30, 600, model.Float64Ptr(-100), model.Float64Ptr(5), nil, true)

	cases := []struct {
		name     string
		cand     *model.CandidateSample
		wantGate string
	}{
		{
			// Strong RSRP but dismal stability and geometry keep the
			// total under the feasibility threshold.
			name:     "score gate",
			cand:     candidate("sat-weak", 2, 2500, model.Float64Ptr(-95), model.Float64Ptr(-9), nil, true),
			wantGate: "score",
		},
		{
			// High score but barely better than serving.
			name:     "improvement gate",
			cand:     candidate("sat-close", 60, 500, model.Float64Ptr(-99), model.Float64Ptr(20), nil, true),
			wantGate: "rsrp_improvement",
		},
		{
			name:     "usable gate",
			cand:     candidate("sat-unusable", 60, 500, model.Float64Ptr(-80), model.Float64Ptr(20), nil, false),
			wantGate: "usable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scores, _ := e.EvaluateCandidates(context.Background(), evaluatorConstellation(), serving,
				[]*model.CandidateSample{tc.cand})
			if len(scores) != 1 {
				t.Fatalf("got %d scores, want 1", len(scores))
			}
			s := scores[0]
			if s.Feasible {
				t.Fatalf("expected infeasible candidate: %+v", s)
			}
			failed := map[string]bool{}
			for _, g := range s.Gates {
				if !g.Passed {
					failed[g.Name] = true
				}
			}
			if !failed[tc.wantGate] {
				t.Fatalf("gate %q did not fail; gates = %+v", tc.wantGate, s.Gates)
			}
			if len(s.FailureReasons) == 0 {
				t.Fatalf("infeasible candidate has no failure reasons")
			}
		})
	}
}

// TestStabilityBlendsLinkMargin compares stability with and without a link
// margin present.
func TestStabilityBlendsLinkMargin(t *testing.T) {
	e, _ := NewEvaluator(evaluatorTestConfig(), nil)
	serving := candidate("sat-serving", 30, 600, model.Float64Ptr(-110), model.Float64Ptr(5), nil, true)

	bare := candidate("sat-bare", 45, 500, model.Float64Ptr(-100), model.Float64Ptr(10), nil, true)
	margined := candidate("sat-margin", 45, 500, model.Float64Ptr(-100), model.Float64Ptr(10), model.Float64Ptr(10), true)

	scores, _ := e.EvaluateCandidates(context.Background(), evaluatorConstellation(), serving,
		[]*model.CandidateSample{bare, margined})
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}

	if scores[0].Stability != 0.5 {
		t.Fatalf("bare stability = %v, want 0.5", scores[0].Stability)
	}
	// 0.7*0.5 + 0.3*(10/20) = 0.5 … same SINR, half-cap margin.
	want := 0.7*0.5 + 0.3*0.5
	if math.Abs(scores[1].Stability-want) > 1e-9 {
		t.Fatalf("margined stability = %v, want %v", scores[1].Stability, want)
	}
}

// TestGeometryScoreDistanceBand checks the band plateau and the linear
// falloff outside it.
func TestGeometryScoreDistanceBand(t *testing.T) {
	e, _ := NewEvaluator(evaluatorTestConfig(), nil)
	cc := evaluatorConstellation()

	inBand := e.geometryScore(cc, candidate("a", 90, 550, nil, nil, nil, true))
	if inBand != 1 {
		t.Fatalf("in-band zenith geometry = %v, want 1", inBand)
	}

	// 250 km beyond the band edge with a 500 km falloff → distance part 0.5.
	outBand := e.geometryScore(cc, candidate("b", 90, 1050, nil, nil, nil, true))
	want := 0.6 + 0.4*0.5
	if math.Abs(outBand-want) > 1e-9 {
		t.Fatalf("out-of-band geometry = %v, want %v", outBand, want)
	}
}
