// Package pipeline orchestrates a batch replay over a track store. Statistics
// and thresholds are derived once per run, then each constellation's samples
// are walked in timestamp order, driving event detection at every instant and
// pool optimization, candidate evaluation and the decision engine at every
// epoch boundary. Constellations are processed in parallel on a bounded
// worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
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

const tracerName = "github.com/signalsfoundry/leo-handover/internal/pipeline"

// ErrNoData is returned when a run is started over an empty track store.
var ErrNoData = errors.New("track store holds no samples")

// Options carries the optional collaborators of a Runner. Zero values are
// replaced with inert defaults: an unpaced clock, collectors on a private
// registry, the noop logger.
type Options struct {
	Clock      timectrl.ReplayClock
	Metrics    *observability.PipelineCollector
	RunMetrics *observability.RunCollector
	Log        logging.Logger
}

// Runner replays a track store through the decision chain. A Runner is
// reusable: every Run derives its own statistics and thresholds and starts
// its event machines from idle.
type Runner struct {
	cfg    *core.Config
	tracks *kb.TrackStore

	clock      timectrl.ReplayClock
	metrics    *observability.PipelineCollector
	runMetrics *observability.RunCollector
	log        logging.Logger
}

// New validates the configuration and builds a Runner over the given store.
func New(cfg *core.Config, tracks *kb.TrackStore, opts Options) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("New: nil config")
	}
	if tracks == nil {
		return nil, fmt.Errorf("New: nil track store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	log := opts.Log
	if log == nil {
		log = logging.Noop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timectrl.NewImmediate(time.Time{})
	}
	metrics := opts.Metrics
	if metrics == nil {
		var err error
		metrics, err = observability.NewPipelineCollector(prometheus.NewRegistry())
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
	}
	runMetrics := opts.RunMetrics
	if runMetrics == nil {
		var err error
		runMetrics, err = observability.NewRunCollector(prometheus.NewRegistry())
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
	}

	return &Runner{
		cfg:        cfg,
		tracks:     tracks,
		clock:      clock,
		metrics:    metrics,
		runMetrics: runMetrics,
		log:        log,
	}, nil
}

// RunResult aggregates everything a completed run produced. Records are
// grouped by constellation in name order and chronological within each
// constellation.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Samples int
	Epochs  int

	Stats      core.StatsSet
	Thresholds []model.ThresholdSet
	Pools      []model.PoolState
	Events     []model.EventRecord
	Decisions  []model.DecisionRecord

	// Skips tallies observations excluded across all stages, by reason.
	Skips core.SkipCounts
}

// Recommendations tallies the run's decisions by recommendation.
func (r *RunResult) Recommendations() map[model.Recommendation]int {
	out := make(map[model.Recommendation]int)
	for _, d := range r.Decisions {
		out[d.Recommendation]++
	}
	return out
}

// Run replays every stored sample through the decision chain and returns the
// aggregated artifacts. An invariant violation aborts the run; nothing is
// returned for an aborted run.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	ctx, runID := logging.EnsureRunID(ctx)
	ctx, log := logging.WithRunLogger(ctx, r.log)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "Replay/Run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	startedAt := time.Now().UTC()
	res, err := r.replay(ctx, log, runID)
	if err != nil {
		span.RecordError(err)
		if core.IsInvariantViolation(err) {
			r.runMetrics.IncInvariantAbort()
			log.Error(ctx, "run aborted on invariant violation",
				logging.String("error", err.Error()))
		}
		return nil, err
	}

	res.RunID = runID
	res.StartedAt = startedAt
	res.FinishedAt = time.Now().UTC()
	r.runMetrics.ObserveRunDuration(res.FinishedAt.Sub(res.StartedAt))
	r.runMetrics.AddEpochs(res.Epochs)
	r.runMetrics.SetTriggeredTuples(triggeredTupleCount(res.Events))

	log.Info(ctx, "run complete",
		logging.Int("samples", res.Samples),
		logging.Int("epochs", res.Epochs),
		logging.Int("events", len(res.Events)),
		logging.Int("decisions", len(res.Decisions)))
	return res, nil
}

func (r *Runner) replay(ctx context.Context, log logging.Logger, runID string) (*RunResult, error) {
	constellations := r.tracks.Constellations()
	if len(constellations) == 0 {
		return nil, fmt.Errorf("Run: %w", ErrNoData)
	}

	ccs := make(map[string]core.ConstellationConfig, len(constellations))
	for _, name := range constellations {
		cc, err := r.cfg.Constellation(name)
		if err != nil {
			return nil, fmt.Errorf("Run: %w", err)
		}
		ccs[name] = cc
	}

	// Stage objects are built per run so their log lines carry the run ID.
	evaluator, err := core.NewEvaluator(r.cfg.Evaluator, log)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	engine := core.NewDecisionEngine(r.cfg.Decision, log)

	stats, skips := r.collectStatistics(ctx, core.NewCollector(log), constellations)
	thresholdSets, thresholdsByName, err := r.deriveThresholds(ctx, core.NewDeriver(r.cfg.Derivation, log), constellations, ccs, stats)
	if err != nil {
		return nil, err
	}

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sem := make(chan struct{}, workers)

	walks := make([]*constellationWalk, len(constellations))
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for i, name := range constellations {
		walks[i] = &constellationWalk{
			name:      name,
			cc:        ccs[name],
			cfg:       r.cfg,
			runID:     runID,
			tracks:    r.tracks,
			clock:     r.clock,
			metrics:   r.metrics,
			log:       log.With(logging.String("constellation", name)),
			detector:  core.NewEventDetector(ccs[name], thresholdsByName[name], log),
			optimizer: core.NewPoolOptimizer(ccs[name], log),
			evaluator: evaluator,
			engine:    engine,
			skips:     make(core.SkipCounts),
		}

		wg.Add(1)
		go func(w *constellationWalk) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := w.run(ctx); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("constellation %q: %w", w.name, err)
				}
				errMu.Unlock()
			}
		}(walks[i])
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	res := &RunResult{
		Samples:    r.tracks.Len(),
		Stats:      stats,
		Thresholds: thresholdSets,
		Skips:      skips,
	}
	for _, w := range walks {
		res.Pools = append(res.Pools, w.pools...)
		res.Events = append(res.Events, w.events...)
		res.Decisions = append(res.Decisions, w.decisions...)
		res.Epochs += w.epochs
		mergeSkips(res.Skips, w.skips)
	}
	return res, nil
}

// collectStatistics computes the per-constellation distributions over every
// stored sample and feeds the ingestion metrics.
func (r *Runner) collectStatistics(ctx context.Context, collector *core.Collector, constellations []string) (core.StatsSet, core.SkipCounts) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Replay/CollectStatistics")
	defer span.End()

	started := time.Now()
	stats := make(core.StatsSet)
	skips := make(core.SkipCounts)
	for _, name := range constellations {
		samples := r.tracks.ConstellationSamples(name)
		r.metrics.AddSamplesIngested(name, len(samples))

		set, perSkips := collector.Collect(ctx, samples)
		for key, st := range set {
			stats[key] = st
		}
		r.metrics.AddSkips(name, perSkips)
		mergeSkips(skips, perSkips)
	}
	r.metrics.ObserveStage("collect", time.Since(started))
	span.SetAttributes(attribute.Int("distributions", len(stats)))
	return stats, skips
}

// deriveThresholds derives one ThresholdSet per (constellation, event type)
// and indexes them for the detectors.
func (r *Runner) deriveThresholds(ctx context.Context, deriver *core.Deriver, constellations []string, ccs map[string]core.ConstellationConfig, stats core.StatsSet) ([]model.ThresholdSet, map[string]map[model.EventType]model.ThresholdSet, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Replay/DeriveThresholds")
	defer span.End()

	started := time.Now()
	now := time.Now().UTC()
	all := make([]model.ThresholdSet, 0, len(constellations)*len(model.AllEventTypes))
	byName := make(map[string]map[model.EventType]model.ThresholdSet, len(constellations))
	for _, name := range constellations {
		sets, err := deriver.Derive(ctx, ccs[name], stats, now)
		if err != nil {
			span.RecordError(err)
			return nil, nil, fmt.Errorf("deriveThresholds: constellation %q: %w", name, err)
		}
		all = append(all, sets...)
		byName[name] = core.ThresholdsByEvent(sets)

		counts := countByMethod(sets)
		for _, method := range []model.DerivationMethod{model.DerivationDynamic, model.DerivationConfiguredFallback} {
			r.metrics.SetThresholdSets(name, string(method), counts[string(method)])
		}
	}
	r.metrics.ObserveStage("derive", time.Since(started))
	span.SetAttributes(attribute.Int("threshold_sets", len(all)))
	return all, byName, nil
}

func countByMethod(sets []model.ThresholdSet) map[string]int {
	out := make(map[string]int)
	for _, s := range sets {
		out[string(s.Method)]++
	}
	return out
}

func mergeSkips(dst, src core.SkipCounts) {
	for reason, n := range src {
		dst[reason] += n
	}
}

// triggeredTupleCount counts the tuples whose last transition was entering,
// i.e. tuples still triggered when the run ended.
func triggeredTupleCount(events []model.EventRecord) int {
	type tuple struct {
		event    model.EventType
		serving  string
		neighbor string
	}
	open := make(map[tuple]bool)
	for _, ev := range events {
		k := tuple{event: ev.EventType, serving: ev.ServingID, neighbor: ev.NeighborID}
		open[k] = ev.Direction == model.DirectionEntering
	}
	n := 0
	for _, isOpen := range open {
		if isOpen {
			n++
		}
	}
	return n
}
