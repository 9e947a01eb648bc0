package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/leo-handover/core"
	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/internal/observability"
	"github.com/signalsfoundry/leo-handover/kb"
	"github.com/signalsfoundry/leo-handover/model"
	"github.com/signalsfoundry/leo-handover/timectrl"
)

// constellationWalk replays one constellation's samples in timestamp order.
// Detection advances at every instant; the pool, evaluator and decision
// engine run at epoch boundaries. The serving satellite starts as the top
// pool member of the first epoch and afterwards follows handover decisions.
//
// A walk runs on a single goroutine; only the detector and the accumulated
// slices live here, the shared stage objects are read-only.
type constellationWalk struct {
	name  string
	cc    core.ConstellationConfig
	cfg   *core.Config
	runID string

	tracks  *kb.TrackStore
	clock   timectrl.ReplayClock
	metrics *observability.PipelineCollector
	log     logging.Logger

	detector  *core.EventDetector
	optimizer *core.PoolOptimizer
	evaluator *core.Evaluator
	engine    *core.DecisionEngine

	pool      *model.PoolState
	servingID string

	pools     []model.PoolState
	events    []model.EventRecord
	decisions []model.DecisionRecord
	skips     core.SkipCounts
	epochs    int
}

func (w *constellationWalk) run(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Replay/Constellation",
		trace.WithAttributes(attribute.String("constellation", w.name)))
	defer span.End()

	if err := w.walk(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.Int("epochs", w.epochs),
		attribute.Int("events", len(w.events)))
	return nil
}

func (w *constellationWalk) walk(ctx context.Context) error {
	timestamps := w.tracks.Timestamps(w.name)
	if len(timestamps) == 0 {
		w.log.Warn(ctx, "constellation has no samples")
		return nil
	}

	interval := w.cfg.EpochInterval()
	nextEpoch := timestamps[0]

	for _, ts := range timestamps {
		if err := w.clock.Advance(ctx, ts); err != nil {
			return fmt.Errorf("advance replay clock: %w", err)
		}

		epochDue := !ts.Before(nextEpoch)
		var view []model.CandidateSample
		if epochDue {
			// Samples older than one epoch interval are stale for epoch
			// purposes.
			view = w.tracks.CurrentSamples(w.name, ts, interval)
			if err := w.refreshPool(ctx, ts, view); err != nil {
				return err
			}
		}

		if err := w.detect(ctx, ts); err != nil {
			return err
		}

		if epochDue {
			if err := w.decide(ctx, ts, view); err != nil {
				return err
			}
			for !nextEpoch.After(ts) {
				nextEpoch = nextEpoch.Add(interval)
			}
		}
	}

	if len(w.detector.Skips()) > 0 {
		w.metrics.AddSkips(w.name, w.detector.Skips())
		mergeSkips(w.skips, w.detector.Skips())
	}
	return nil
}

// refreshPool reoptimizes the pool for the epoch and seeds the serving
// satellite on the first epoch that has any member.
func (w *constellationWalk) refreshPool(ctx context.Context, ts time.Time, view []model.CandidateSample) error {
	started := time.Now()
	state, err := w.optimizer.Optimize(ctx, ts, view, w.pool)
	w.metrics.ObserveStage("optimize", time.Since(started))
	if err != nil {
		return err
	}

	w.pool = &state
	w.pools = append(w.pools, state)
	w.metrics.SetPoolState(w.name, state.CoverageRatio, state.VisibleCount)

	if w.servingID == "" && len(state.Members) > 0 {
		w.servingID = state.Members[0]
		w.log.Info(ctx, "initial serving satellite selected",
			logging.String("serving_id", w.servingID),
			logging.Int("pool_size", len(state.Members)))
	}
	return nil
}

// detect advances every (serving, pool neighbor) pair whose satellites were
// both measured at exactly this instant. Unpaired instants are not an error;
// the persistence clocks simply do not advance for them.
func (w *constellationWalk) detect(ctx context.Context, ts time.Time) error {
	if w.pool == nil || w.servingID == "" {
		return nil
	}
	serving, ok := w.tracks.SampleAt(w.servingID, ts)
	if !ok {
		return nil
	}

	started := time.Now()
	for _, id := range w.pool.Members {
		if id == w.servingID {
			continue
		}
		neighbor, ok := w.tracks.SampleAt(id, ts)
		if !ok {
			continue
		}
		records, err := w.detector.ObservePair(ctx, &serving, &neighbor)
		if err != nil {
			return err
		}
		for _, rec := range records {
			w.events = append(w.events, rec)
			w.metrics.IncEvent(w.name, string(rec.EventType), string(rec.Direction))
		}
	}
	w.metrics.ObserveStage("detect", time.Since(started))
	return nil
}

// decide evaluates the pool against the serving satellite and runs the rule
// table. A serving satellite with no sample in the epoch view is an
// invariant violation and aborts the run.
func (w *constellationWalk) decide(ctx context.Context, ts time.Time, view []model.CandidateSample) error {
	if w.servingID == "" {
		w.log.Warn(ctx, "epoch skipped, no serving satellite selectable",
			logging.String("epoch", ts.Format(time.RFC3339)))
		return nil
	}

	byID := make(map[string]*model.CandidateSample, len(view))
	for i := range view {
		byID[view[i].SatelliteID] = &view[i]
	}
	serving, ok := byID[w.servingID]
	if !ok {
		return fmt.Errorf("%w: %q at %s", core.ErrServingSampleMissing,
			w.servingID, ts.Format(time.RFC3339))
	}

	candidates := make([]*model.CandidateSample, 0, len(w.pool.Members))
	for _, id := range w.pool.Members {
		if id == w.servingID {
			continue
		}
		if s, ok := byID[id]; ok {
			candidates = append(candidates, s)
		}
	}

	started := time.Now()
	scores, skips := w.evaluator.EvaluateCandidates(ctx, w.cc, serving, candidates)
	w.metrics.ObserveStage("evaluate", time.Since(started))
	w.metrics.AddSkips(w.name, skips)
	mergeSkips(w.skips, skips)

	in := core.DecisionInput{
		RunID:          w.runID,
		Epoch:          ts,
		Constellation:  w.name,
		ServingID:      w.servingID,
		ServingRSRPdBm: w.cfg.Evaluator.RSRPOrFloor(serving),
		ServingSINRdB:  w.cfg.Evaluator.SINROrFloor(serving),
		Scores:         scores,
		UrgentEvents:   urgentEvents(w.events, w.servingID, ts, w.cfg.Decision.EventLookback()),
	}

	started = time.Now()
	rec := w.engine.Decide(ctx, in)
	w.metrics.ObserveStage("decide", time.Since(started))
	w.metrics.IncDecision(w.name, string(rec.Recommendation))
	w.decisions = append(w.decisions, rec)
	w.epochs++

	if rec.Recommendation == model.RecommendHandover && rec.TargetID != "" {
		w.log.Info(ctx, "serving satellite handed over",
			logging.String("from", w.servingID),
			logging.String("to", rec.TargetID),
			logging.String("rule", rec.RuleName))
		w.servingID = rec.TargetID
	}
	return nil
}

// urgentEvents selects the serving-failure events the decision engine must
// weigh: A5/D2 tuples still triggered at the epoch, plus tuples whose
// entering transition happened inside the lookback window even if they have
// since left. Ordered by severity, then recency, then neighbor ID.
func urgentEvents(events []model.EventRecord, servingID string, epoch time.Time, lookback time.Duration) []model.EventRecord {
	type tuple struct {
		event    model.EventType
		neighbor string
	}
	latest := make(map[tuple]model.EventRecord)
	open := make(map[tuple]bool)
	for _, ev := range events {
		if ev.ServingID != servingID {
			continue
		}
		if ev.EventType != model.EventA5 && ev.EventType != model.EventD2 {
			continue
		}
		k := tuple{event: ev.EventType, neighbor: ev.NeighborID}
		switch ev.Direction {
		case model.DirectionEntering:
			latest[k] = ev
			open[k] = true
		case model.DirectionLeaving:
			open[k] = false
		}
	}

	out := make([]model.EventRecord, 0, len(latest))
	for k, ev := range latest {
		if open[k] || epoch.Sub(ev.Timestamp) <= lookback {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if si, sj := out[i].EventType.Severity(), out[j].EventType.Severity(); si != sj {
			return si > sj
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].NeighborID < out[j].NeighborID
	})
	return out
}
