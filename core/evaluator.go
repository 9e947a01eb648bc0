package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/model"
)

// RSRPOrFloor returns the sample's RSRP, substituting the configured
// worst-case floor when the measurement is missing.
func (c EvaluatorConfig) RSRPOrFloor(s *model.CandidateSample) float64 {
	if s.HasRSRP() {
		return *s.RSRPdBm
	}
	return c.RSRPFloorDBm
}

// SINROrFloor returns the sample's SINR, substituting the configured
// worst-case floor when the measurement is missing.
func (c EvaluatorConfig) SINROrFloor(s *model.CandidateSample) float64 {
	if s.HasSINR() {
		return *s.SINRdB
	}
	return c.SINRFloorDB
}

// Evaluator scores handover candidates against the serving satellite.
//
// Each candidate gets three sub-scores normalized to [0,1] (signal from
// RSRP, geometry from elevation and the optimal distance band, stability
// from SINR blended with link margin) combined by the configured weights.
// Feasibility is gated separately so a high score alone never qualifies a
// candidate.
type Evaluator struct {
	cfg EvaluatorConfig
	log logging.Logger
}

// NewEvaluator validates the weight vector and returns an Evaluator. A nil
// logger is replaced with the noop logger.
func NewEvaluator(cfg EvaluatorConfig, log logging.Logger) (*Evaluator, error) {
	if math.Abs(cfg.Weights.Sum()-1) > 1e-6 {
		return nil, fmt.Errorf("%w: got %.6f", ErrWeightInvariant, cfg.Weights.Sum())
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Evaluator{cfg: cfg, log: log}, nil
}

// EvaluateCandidates scores every candidate in input order. Candidates
// missing a measurement without a documented substitute are skipped with a
// warning and reported in the skip counts; missing RSRP substitutes the
// worst-case floor and missing link margin simply drops out of the
// stability blend.
func (e *Evaluator) EvaluateCandidates(ctx context.Context, cc ConstellationConfig, serving *model.CandidateSample, candidates []*model.CandidateSample) ([]model.CandidateScore, SkipCounts) {
	scores := make([]model.CandidateScore, 0, len(candidates))
	skips := make(SkipCounts)
	for _, cand := range candidates {
		score, ok, reason := e.scoreOne(cc, serving, cand)
		if !ok {
			skips[reason]++
			e.log.Warn(ctx, "candidate skipped",
				logging.String("satellite_id", cand.SatelliteID),
				logging.String("reason", reason))
			continue
		}
		scores = append(scores, score)
	}
	return scores, skips
}

func (e *Evaluator) scoreOne(cc ConstellationConfig, serving, cand *model.CandidateSample) (model.CandidateScore, bool, string) {
	// SINR has no documented worst-case substitute: without it the
	// stability of the link cannot be assessed at all.
	if !cand.HasSINR() {
		return model.CandidateScore{}, false, "missing_sinr"
	}

	candRSRP := e.cfg.RSRPOrFloor(cand)
	servRSRP := e.cfg.RSRPOrFloor(serving)

	signal := normalize(candRSRP, e.cfg.RSRPFloorDBm, e.cfg.RSRPCeilingDBm)
	geometry := e.geometryScore(cc, cand)
	stability := e.stabilityScore(cand)

	w := e.cfg.Weights
	total := w.Signal*signal + w.Geometry*geometry + w.Stability*stability

	score := model.CandidateScore{
		SatelliteID:       cand.SatelliteID,
		Signal:            signal,
		Geometry:          geometry,
		Stability:         stability,
		Total:             total,
		RSRPImprovementDB: candRSRP - servRSRP,
	}
	e.gate(&score, cand)
	return score, true, ""
}

// gate applies the feasibility gates, recording each verdict with the value
// and threshold it compared so decisions can be audited afterwards.
func (e *Evaluator) gate(score *model.CandidateScore, cand *model.CandidateSample) {
	gates := []model.GateResult{
		{
			Name:      "score",
			Passed:    score.Total > e.cfg.FeasibilityThreshold,
			Value:     score.Total,
			Threshold: e.cfg.FeasibilityThreshold,
		},
		{
			Name:      "rsrp_improvement",
			Passed:    score.RSRPImprovementDB > e.cfg.MinRSRPImprovementDB,
			Value:     score.RSRPImprovementDB,
			Threshold: e.cfg.MinRSRPImprovementDB,
		},
		{
			Name:      "usable",
			Passed:    cand.Usable,
			Value:     boolValue(cand.Usable),
			Threshold: 1,
		},
	}

	score.Feasible = true
	score.Gates = gates
	for _, g := range gates {
		if !g.Passed {
			score.Feasible = false
			score.FailureReasons = append(score.FailureReasons,
				fmt.Sprintf("%s %.2f not beyond %.2f", g.Name, g.Value, g.Threshold))
		}
	}
}

// geometryScore blends elevation with closeness to the optimal ground
// distance band. Elevation dominates: a zenith pass is the best geometry a
// constellation can offer.
func (e *Evaluator) geometryScore(cc ConstellationConfig, cand *model.CandidateSample) float64 {
	elev := clamp01(cand.ElevationDeg / 90)

	dist := 1.0
	switch {
	case cand.GroundDistanceKm < cc.OptimalDistanceLowKm:
		gap := cc.OptimalDistanceLowKm - cand.GroundDistanceKm
		dist = clamp01(1 - gap/cc.DistanceFalloffKm)
	case cand.GroundDistanceKm > cc.OptimalDistanceHighKm:
		gap := cand.GroundDistanceKm - cc.OptimalDistanceHighKm
		dist = clamp01(1 - gap/cc.DistanceFalloffKm)
	}

	return 0.6*elev + 0.4*dist
}

// stabilityScore maps SINR over its configured window and blends in the
// link margin when the sample carries one.
func (e *Evaluator) stabilityScore(cand *model.CandidateSample) float64 {
	sinr := normalize(*cand.SINRdB, e.cfg.SINRFloorDB, e.cfg.SINRCeilingDB)
	if !cand.HasLinkMargin() {
		return sinr
	}
	margin := clamp01(*cand.LinkMarginDB / e.cfg.LinkMarginCapDB)
	return 0.7*sinr + 0.3*margin
}

func normalize(v, floor, ceiling float64) float64 {
	return clamp01((v - floor) / (ceiling - floor))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
