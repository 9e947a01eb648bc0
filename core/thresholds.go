package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/model"
)

// Deriver turns per-run sample statistics into event trigger thresholds.
//
// Threshold1 is the 75th percentile of the governing quantity (the degraded
// serving boundary), Threshold2 the 50th (the acceptable neighbor boundary).
// Hysteresis scales with the observed spread so constellations with narrow
// distributions get proportionally narrow bands. Derivation happens on every
// run; a ThresholdSet never outlives the run that produced it.
type Deriver struct {
	cfg DerivationConfig
	log logging.Logger
}

// NewDeriver returns a Deriver. A nil logger is replaced with the noop
// logger.
func NewDeriver(cfg DerivationConfig, log logging.Logger) *Deriver {
	if log == nil {
		log = logging.Noop()
	}
	return &Deriver{cfg: cfg, log: log}
}

// Derive produces one ThresholdSet per event type for the constellation.
// When the governing quantity's population is smaller than the configured
// minimum, the constellation's fallback constants are used and the set is
// tagged configured-fallback; the fallback is logged, never silent.
func (d *Deriver) Derive(ctx context.Context, cc ConstellationConfig, stats StatsSet, now time.Time) ([]model.ThresholdSet, error) {
	sets := make([]model.ThresholdSet, 0, len(model.AllEventTypes))
	for _, et := range model.AllEventTypes {
		set, err := d.deriveOne(ctx, cc, et, stats, now)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (d *Deriver) deriveOne(ctx context.Context, cc ConstellationConfig, et model.EventType, stats StatsSet, now time.Time) (model.ThresholdSet, error) {
	q := et.GoverningQuantity()
	set := model.ThresholdSet{
		Constellation: cc.Name,
		EventType:     et,
		Quantity:      q,
		DerivedAt:     now,
	}

	st, ok := stats.Lookup(cc.Name, q)
	if ok && st.Count >= d.cfg.MinSampleCount {
		set.Threshold1 = st.P75
		set.Threshold2 = st.P50
		set.Hysteresis = d.hysteresis(st.StdDev)
		set.Method = model.DerivationDynamic
		set.SampleCount = st.Count
		return set, nil
	}

	count := 0
	if ok {
		count = st.Count
	}
	fb, haveFallback := cc.Fallbacks[et]
	if !haveFallback {
		return model.ThresholdSet{}, fmt.Errorf("%w: constellation %q event %s has %d samples (need %d)",
			ErrNoFallback, cc.Name, et, count, d.cfg.MinSampleCount)
	}

	d.log.Warn(ctx, "threshold derivation fell back to configured constants",
		logging.String("constellation", cc.Name),
		logging.String("event_type", string(et)),
		logging.Int("sample_count", count),
		logging.Int("min_sample_count", d.cfg.MinSampleCount))

	set.Threshold1 = fb.Threshold1
	set.Threshold2 = fb.Threshold2
	set.Hysteresis = fb.Hysteresis
	set.Method = model.DerivationConfiguredFallback
	set.SampleCount = count
	return set, nil
}

// hysteresis converts the observed spread into a trigger band, floored so a
// degenerate distribution cannot collapse the band to zero width.
func (d *Deriver) hysteresis(stddev float64) float64 {
	h := d.cfg.HysteresisFraction * stddev
	if h < d.cfg.HysteresisFloor {
		return d.cfg.HysteresisFloor
	}
	return h
}

// ThresholdsByEvent indexes a derived slice by event type for detector use.
func ThresholdsByEvent(sets []model.ThresholdSet) map[model.EventType]model.ThresholdSet {
	out := make(map[model.EventType]model.ThresholdSet, len(sets))
	for _, s := range sets {
		out[s.EventType] = s
	}
	return out
}
