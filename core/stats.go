package core

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/model"
)

// SampleStatistics summarizes the empirical distribution of one quantity
// over one constellation's samples within a run.
type SampleStatistics struct {
	Constellation string         `json:"Constellation"`
	Quantity      model.Quantity `json:"Quantity"`

	Count  int     `json:"Count"`
	Min    float64 `json:"Min"`
	Max    float64 `json:"Max"`
	Mean   float64 `json:"Mean"`
	StdDev float64 `json:"StdDev"`

	P25 float64 `json:"P25"`
	P50 float64 `json:"P50"`
	P75 float64 `json:"P75"`
	P95 float64 `json:"P95"`
}

// StatsKey addresses one distribution in a StatsSet.
type StatsKey struct {
	Constellation string
	Quantity      model.Quantity
}

// StatsSet holds every distribution computed for a run.
type StatsSet map[StatsKey]*SampleStatistics

// Lookup returns the distribution for (constellation, quantity).
func (s StatsSet) Lookup(constellation string, q model.Quantity) (*SampleStatistics, bool) {
	st, ok := s[StatsKey{Constellation: constellation, Quantity: q}]
	return st, ok
}

// SkipCounts tallies samples excluded from a collection pass, keyed by
// reason. The pipeline feeds these into its skip metrics.
type SkipCounts map[string]int

// Collector groups samples by (constellation, quantity) and computes their
// distributions. Samples whose governing field is absent are excluded from
// that quantity only, with a warning per (constellation, quantity).
type Collector struct {
	log logging.Logger
}

// NewCollector returns a Collector. A nil logger is replaced with the noop
// logger.
func NewCollector(log logging.Logger) *Collector {
	if log == nil {
		log = logging.Noop()
	}
	return &Collector{log: log}
}

// Collect computes the per-(constellation, quantity) distributions for the
// given samples. Sample order does not matter here; ordering constraints are
// enforced by the event detector, not the collector.
func (c *Collector) Collect(ctx context.Context, samples []model.CandidateSample) (StatsSet, SkipCounts) {
	values := make(map[StatsKey][]float64)
	skipped := make(map[StatsKey]int)

	for i := range samples {
		s := &samples[i]
		for _, q := range model.AllQuantities {
			key := StatsKey{Constellation: s.Constellation, Quantity: q}
			v, ok := quantityValue(s, q)
			if !ok {
				skipped[key]++
				c.log.Debug(ctx, "sample missing governing field",
					logging.String("satellite_id", s.SatelliteID),
					logging.String("quantity", string(q)))
				continue
			}
			values[key] = append(values[key], v)
		}
	}

	skips := make(SkipCounts)
	for key, n := range skipped {
		c.log.Warn(ctx, "samples excluded from distribution",
			logging.String("constellation", key.Constellation),
			logging.String("quantity", string(key.Quantity)),
			logging.Int("skipped", n))
		skips[skipReason(key.Quantity)] += n
	}

	set := make(StatsSet, len(values))
	for key, vs := range values {
		set[key] = summarize(key, vs)
	}
	return set, skips
}

func skipReason(q model.Quantity) string {
	return fmt.Sprintf("missing_%s", string(q))
}

// quantityValue extracts the governing field for q, reporting presence.
func quantityValue(s *model.CandidateSample, q model.Quantity) (float64, bool) {
	switch q {
	case model.QuantityGroundDistance:
		return s.GroundDistanceKm, true
	case model.QuantityRSRP:
		if !s.HasRSRP() {
			return 0, false
		}
		return *s.RSRPdBm, true
	default:
		return 0, false
	}
}

func summarize(key StatsKey, vs []float64) *SampleStatistics {
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)

	st := &SampleStatistics{
		Constellation: key.Constellation,
		Quantity:      key.Quantity,
		Count:         len(sorted),
		Min:           sorted[0],
		Max:           sorted[len(sorted)-1],
	}

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	st.Mean = sum / float64(len(sorted))

	var sq float64
	for _, v := range sorted {
		d := v - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(len(sorted)))

	st.P25 = percentile(sorted, 25)
	st.P50 = percentile(sorted, 50)
	st.P75 = percentile(sorted, 75)
	st.P95 = percentile(sorted, 95)
	return st
}

// percentile interpolates linearly between the closest order statistics.
// The input must be sorted and non-empty.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
