package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunCollector exposes run-level Prometheus metrics.
type RunCollector struct {
	gatherer prometheus.Gatherer

	RunDuration     prometheus.Histogram
	EpochsTotal     prometheus.Counter
	InvariantAborts prometheus.Counter
	TuplesTriggered prometheus.Gauge
}

// NewRunCollector registers run metrics against the provided registerer.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runHistogram, err := registerOrReuse(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "handover_run_duration_seconds",
		Help:    "Wall-clock duration of complete pipeline runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}), "handover_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	epochs, err := registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "handover_epochs_total",
		Help: "Cumulative number of decision epochs evaluated.",
	}), "handover_epochs_total")
	if err != nil {
		return nil, err
	}

	aborts, err := registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "handover_invariant_aborts_total",
		Help: "Runs aborted because an input or pool invariant was violated.",
	}), "handover_invariant_aborts_total")
	if err != nil {
		return nil, err
	}

	triggered, err := registerOrReuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "handover_event_tuples_triggered",
		Help: "Event tuples currently in the triggered state.",
	}), "handover_event_tuples_triggered")
	if err != nil {
		return nil, err
	}

	return &RunCollector{
		gatherer:        gatherer,
		RunDuration:     runHistogram,
		EpochsTotal:     epochs,
		InvariantAborts: aborts,
		TuplesTriggered: triggered,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RunCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRunDuration records a completed run's wall-clock duration.
func (c *RunCollector) ObserveRunDuration(d time.Duration) {
	if c == nil || c.RunDuration == nil {
		return
	}
	c.RunDuration.Observe(d.Seconds())
}

// AddEpochs adds to the processed-epoch counter.
func (c *RunCollector) AddEpochs(n int) {
	if c == nil || c.EpochsTotal == nil {
		return
	}
	c.EpochsTotal.Add(float64(n))
}

// IncInvariantAbort counts a run aborted on an invariant violation.
func (c *RunCollector) IncInvariantAbort() {
	if c == nil || c.InvariantAborts == nil {
		return
	}
	c.InvariantAborts.Inc()
}

// SetTriggeredTuples updates the triggered-tuple gauge.
func (c *RunCollector) SetTriggeredTuples(count int) {
	if c == nil || c.TuplesTriggered == nil {
		return
	}
	c.TuplesTriggered.Set(float64(count))
}
