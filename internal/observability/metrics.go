package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector bundles Prometheus metrics for the handover pipeline and
// provides the /metrics handler the replay binary serves.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	SamplesIngested *prometheus.CounterVec
	SamplesSkipped  *prometheus.CounterVec
	EventsDetected  *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	StageDurations  *prometheus.HistogramVec

	PoolCoverageRatio *prometheus.GaugeVec
	PoolVisible       *prometheus.GaugeVec
	ThresholdSets     *prometheus.GaugeVec
}

// NewPipelineCollector registers pipeline Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ingested, err := registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_samples_ingested_total",
		Help: "Total number of candidate samples ingested, labeled by constellation.",
	}, []string{"constellation"}), "handover_samples_ingested_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_samples_skipped_total",
		Help: "Samples excluded from a processing stage, labeled by constellation and reason.",
	}, []string{"constellation", "reason"}), "handover_samples_skipped_total")
	if err != nil {
		return nil, err
	}

	events, err := registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_events_total",
		Help: "Measurement events emitted by the detector, labeled by constellation, event type, and direction.",
	}, []string{"constellation", "event_type", "direction"}), "handover_events_total")
	if err != nil {
		return nil, err
	}

	decisions, err := registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_decisions_total",
		Help: "Decision records produced, labeled by constellation and recommendation.",
	}, []string{"constellation", "recommendation"}), "handover_decisions_total")
	if err != nil {
		return nil, err
	}

	stages, err := registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "handover_stage_duration_seconds",
		Help:    "Pipeline stage latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"stage"}), "handover_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	coverage, err := registerOrReuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handover_pool_coverage_ratio",
		Help: "Visible satellites over the configured pool minimum, capped at 1.",
	}, []string{"constellation"}), "handover_pool_coverage_ratio")
	if err != nil {
		return nil, err
	}

	visible, err := registerOrReuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handover_pool_visible_satellites",
		Help: "Satellites above the elevation mask at the latest epoch.",
	}, []string{"constellation"}), "handover_pool_visible_satellites")
	if err != nil {
		return nil, err
	}

	thresholds, err := registerOrReuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handover_threshold_sets",
		Help: "Threshold sets in effect for the current run, labeled by constellation and derivation method.",
	}, []string{"constellation", "method"}), "handover_threshold_sets")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:          gatherer,
		SamplesIngested:   ingested,
		SamplesSkipped:    skipped,
		EventsDetected:    events,
		Decisions:         decisions,
		StageDurations:    stages,
		PoolCoverageRatio: coverage,
		PoolVisible:       visible,
		ThresholdSets:     thresholds,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// AddSamplesIngested records n samples entering the run for a constellation.
func (c *PipelineCollector) AddSamplesIngested(constellation string, n int) {
	if c == nil || c.SamplesIngested == nil {
		return
	}
	c.SamplesIngested.WithLabelValues(constellation).Add(float64(n))
}

// AddSkips folds a stage's skip counts into the skip counter.
func (c *PipelineCollector) AddSkips(constellation string, skips map[string]int) {
	if c == nil || c.SamplesSkipped == nil {
		return
	}
	for reason, n := range skips {
		c.SamplesSkipped.WithLabelValues(constellation, reason).Add(float64(n))
	}
}

// IncEvent counts one emitted event record.
func (c *PipelineCollector) IncEvent(constellation, eventType, direction string) {
	if c == nil || c.EventsDetected == nil {
		return
	}
	c.EventsDetected.WithLabelValues(constellation, eventType, direction).Inc()
}

// IncDecision counts one decision record.
func (c *PipelineCollector) IncDecision(constellation, recommendation string) {
	if c == nil || c.Decisions == nil {
		return
	}
	c.Decisions.WithLabelValues(constellation, recommendation).Inc()
}

// ObserveStage records one stage execution.
func (c *PipelineCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDurations == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// SetPoolState updates the pool gauges from one epoch's pool selection.
func (c *PipelineCollector) SetPoolState(constellation string, coverageRatio float64, visible int) {
	if c == nil {
		return
	}
	if c.PoolCoverageRatio != nil {
		c.PoolCoverageRatio.WithLabelValues(constellation).Set(coverageRatio)
	}
	if c.PoolVisible != nil {
		c.PoolVisible.WithLabelValues(constellation).Set(float64(visible))
	}
}

// SetThresholdSets records how many threshold sets a derivation pass produced
// with the given method.
func (c *PipelineCollector) SetThresholdSets(constellation, method string, count int) {
	if c == nil || c.ThresholdSets == nil {
		return
	}
	c.ThresholdSets.WithLabelValues(constellation, method).Set(float64(count))
}
