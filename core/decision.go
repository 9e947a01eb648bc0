package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/model"
)

// Confidence levels attached by the decision rules.
const (
	confidenceNoCandidates = 0.95
	confidenceEventUrgency = 0.90
	confidenceStrongScore  = 0.80
	confidenceMaintain     = 0.70
	confidencePrepare      = 0.65
)

// DecisionInput is one epoch's view: the serving satellite, the evaluated
// candidates, and the serving-failure events active around the epoch. The
// caller substitutes worst-case floors into the serving measurements before
// building the input.
type DecisionInput struct {
	RunID         string
	Epoch         time.Time
	Constellation string

	ServingID      string
	ServingRSRPdBm float64
	ServingSINRdB  float64

	Scores []model.CandidateScore

	// UrgentEvents are A5/D2 records for the serving satellite that are
	// active at the epoch or entered within the lookback window.
	UrgentEvents []model.EventRecord
}

type ruleContext struct {
	in       *DecisionInput
	quality  SignalQuality
	feasible []model.CandidateScore
	// top is nil only when feasible is empty; the first table rule
	// terminates that case before any later rule dereferences it.
	top *model.CandidateScore
}

type ruleOutcome struct {
	recommendation model.Recommendation
	target         string
	confidence     float64
	notes          map[string]string
}

// decisionRule is one row of the rule table: a named predicate producing an
// outcome. Rules are scanned in order and the first match wins; the scan is
// data, not control flow, so reordering or inserting rules is a table edit.
type decisionRule struct {
	name string
	eval func(g *DecisionEngine, rc *ruleContext) (bool, ruleOutcome, string)
}

// DecisionEngine turns epoch inputs into decision records by scanning its
// rule table. Every examined rule leaves a reasoning step, matched or not.
type DecisionEngine struct {
	cfg   DecisionConfig
	log   logging.Logger
	rules []decisionRule
}

// NewDecisionEngine returns an engine with the standard rule table. A nil
// logger is replaced with the noop logger.
func NewDecisionEngine(cfg DecisionConfig, log logging.Logger) *DecisionEngine {
	if log == nil {
		log = logging.Noop()
	}
	return &DecisionEngine{
		cfg: cfg,
		log: log,
		rules: []decisionRule{
			{name: "no_feasible_candidates", eval: ruleNoFeasible},
			{name: "serving_failure_event", eval: ruleServingFailure},
			{name: "strong_candidate", eval: ruleStrongCandidate},
			{name: "serving_degraded", eval: ruleServingDegraded},
			{name: "maintain_default", eval: ruleMaintain},
		},
	}
}

// Decide evaluates the rule table for one epoch.
func (g *DecisionEngine) Decide(ctx context.Context, in DecisionInput) model.DecisionRecord {
	rc := &ruleContext{
		in:      &in,
		quality: ClassifySignal(in.ServingRSRPdBm, in.ServingSINRdB),
	}
	rc.feasible = feasibleByScore(in.Scores)
	if len(rc.feasible) > 0 {
		rc.top = &rc.feasible[0]
	}

	rec := model.DecisionRecord{
		ID:            uuid.NewString(),
		RunID:         in.RunID,
		Timestamp:     in.Epoch,
		Constellation: in.Constellation,
		ServingID:     in.ServingID,
		Notes:         make(map[string]string),
		Candidates:    sortedByScore(in.Scores),
	}

	for _, rule := range g.rules {
		matched, out, detail := rule.eval(g, rc)
		rec.Reasoning = append(rec.Reasoning, model.ReasoningStep{
			Rule:    rule.name,
			Matched: matched,
			Detail:  detail,
		})
		if !matched {
			continue
		}
		rec.Recommendation = out.recommendation
		rec.TargetID = out.target
		rec.Confidence = out.confidence
		rec.RuleName = rule.name
		for k, v := range out.notes {
			rec.Notes[k] = v
		}
		break
	}

	g.log.Info(ctx, "decision",
		logging.String("constellation", in.Constellation),
		logging.String("serving_id", in.ServingID),
		logging.String("recommendation", string(rec.Recommendation)),
		logging.String("rule", rec.RuleName),
		logging.String("target_id", rec.TargetID))
	return rec
}

func ruleNoFeasible(g *DecisionEngine, rc *ruleContext) (bool, ruleOutcome, string) {
	detail := fmt.Sprintf("%d of %d candidates feasible", len(rc.feasible), len(rc.in.Scores))
	if len(rc.feasible) > 0 {
		return false, ruleOutcome{}, detail
	}
	return true, ruleOutcome{
		recommendation: model.RecommendMaintain,
		confidence:     confidenceNoCandidates,
		notes:          map[string]string{"no_feasible_candidates": "true"},
	}, detail
}

func ruleServingFailure(g *DecisionEngine, rc *ruleContext) (bool, ruleOutcome, string) {
	if len(rc.in.UrgentEvents) == 0 {
		return false, ruleOutcome{}, "no active A5/D2 events for serving"
	}
	target, via := g.pickEventTarget(rc)
	detail := fmt.Sprintf("active events [%s], target %s", eventSummary(rc.in.UrgentEvents), target)
	return true, ruleOutcome{
		recommendation: model.RecommendHandover,
		target:         target,
		confidence:     confidenceEventUrgency,
		notes:          map[string]string{"target_via": via},
	}, detail
}

func ruleStrongCandidate(g *DecisionEngine, rc *ruleContext) (bool, ruleOutcome, string) {
	top := rc.top
	detail := fmt.Sprintf("top %s score %.3f vs threshold %.3f, rsrp improvement %.1f dB",
		top.SatelliteID, top.Total, g.cfg.HighScoreThreshold, top.RSRPImprovementDB)
	if top.Total <= g.cfg.HighScoreThreshold {
		return false, ruleOutcome{}, detail
	}
	return true, ruleOutcome{
		recommendation: model.RecommendHandover,
		target:         top.SatelliteID,
		confidence:     confidenceStrongScore,
	}, detail
}

func ruleServingDegraded(g *DecisionEngine, rc *ruleContext) (bool, ruleOutcome, string) {
	top := rc.top
	detail := fmt.Sprintf("serving quality %s, top score %.3f vs threshold %.3f",
		rc.quality, top.Total, g.cfg.ModerateScoreThreshold)
	if !rc.quality.AtOrBelow(QualityFair) || top.Total <= g.cfg.ModerateScoreThreshold {
		return false, ruleOutcome{}, detail
	}
	return true, ruleOutcome{
		recommendation: model.RecommendPrepare,
		target:         top.SatelliteID,
		confidence:     confidencePrepare,
	}, detail
}

func ruleMaintain(g *DecisionEngine, rc *ruleContext) (bool, ruleOutcome, string) {
	return true, ruleOutcome{
		recommendation: model.RecommendMaintain,
		confidence:     confidenceMaintain,
	}, "no earlier rule indicated a change"
}

// pickEventTarget chooses the handover target under the configured
// tie-break policy. Severity prefers the neighbor named by the gravest
// active event when that neighbor is feasible; both policies fall back to
// the top-scored feasible candidate.
func (g *DecisionEngine) pickEventTarget(rc *ruleContext) (target, via string) {
	if g.cfg.TieBreak == TieBreakSeverity {
		events := append([]model.EventRecord(nil), rc.in.UrgentEvents...)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].EventType.Severity() > events[j].EventType.Severity()
		})
		for _, ev := range events {
			for i := range rc.feasible {
				if rc.feasible[i].SatelliteID == ev.NeighborID {
					return ev.NeighborID, fmt.Sprintf("event_%s_neighbor", ev.EventType)
				}
			}
		}
	}
	return rc.top.SatelliteID, "top_score"
}

func eventSummary(events []model.EventRecord) string {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		parts = append(parts, fmt.Sprintf("%s:%s", ev.EventType, ev.NeighborID))
	}
	return strings.Join(parts, " ")
}

// feasibleByScore filters to feasible candidates ordered best-first.
func feasibleByScore(scores []model.CandidateScore) []model.CandidateScore {
	out := make([]model.CandidateScore, 0, len(scores))
	for _, s := range scores {
		if s.Feasible {
			out = append(out, s)
		}
	}
	return sortInPlace(out)
}

func sortedByScore(scores []model.CandidateScore) []model.CandidateScore {
	return sortInPlace(append([]model.CandidateScore(nil), scores...))
}

func sortInPlace(scores []model.CandidateScore) []model.CandidateScore {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		return scores[i].SatelliteID < scores[j].SatelliteID
	})
	return scores
}
