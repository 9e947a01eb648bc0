package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/model"
)

// machineState is the detection state of one (event, serving, neighbor)
// tuple.
type machineState int

const (
	stateIdle machineState = iota
	stateArmed
	stateTriggered
)

func (s machineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateArmed:
		return "armed"
	case stateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

type tupleKey struct {
	Event      model.EventType
	ServingID  string
	NeighborID string
}

type tupleMachine struct {
	state machineState

	// armedSince is when the entering condition started holding; zero
	// outside stateArmed. leaveSince is the same for the leaving condition
	// while triggered. Any non-satisfying observation zeroes the relevant
	// clock: persistence gives no partial credit.
	armedSince time.Time
	leaveSince time.Time

	lastTS time.Time
}

// EventDetector runs the A3/A4/A5/D2 state machines for one constellation.
// It is driven by one goroutine per constellation and is not safe for
// concurrent use.
type EventDetector struct {
	cc         ConstellationConfig
	thresholds map[model.EventType]model.ThresholdSet
	log        logging.Logger

	machines map[tupleKey]*tupleMachine
	skips    SkipCounts
}

// NewEventDetector returns a detector using the given derived thresholds.
// A nil logger is replaced with the noop logger.
func NewEventDetector(cc ConstellationConfig, thresholds map[model.EventType]model.ThresholdSet, log logging.Logger) *EventDetector {
	if log == nil {
		log = logging.Noop()
	}
	return &EventDetector{
		cc:         cc,
		thresholds: thresholds,
		log:        log,
		machines:   make(map[tupleKey]*tupleMachine),
		skips:      make(SkipCounts),
	}
}

// ObservePair advances every event type's machine for one aligned
// (serving, neighbor) measurement pair. Records are returned for each
// transition the pair caused: armed→triggered emits entering,
// triggered→idle emits leaving.
func (d *EventDetector) ObservePair(ctx context.Context, serving, neighbor *model.CandidateSample) ([]model.EventRecord, error) {
	if !serving.Timestamp.Equal(neighbor.Timestamp) {
		return nil, fmt.Errorf("%w: pair timestamps differ (%s vs %s)",
			ErrUnorderedSamples, serving.Timestamp.Format(time.RFC3339Nano), neighbor.Timestamp.Format(time.RFC3339Nano))
	}
	if serving.SatelliteID == neighbor.SatelliteID {
		return nil, fmt.Errorf("%w: satellite %q paired with itself", ErrPoolInvariant, serving.SatelliteID)
	}

	var records []model.EventRecord
	for _, et := range model.AllEventTypes {
		rec, err := d.observe(ctx, et, serving, neighbor)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (d *EventDetector) observe(ctx context.Context, et model.EventType, serving, neighbor *model.CandidateSample) (*model.EventRecord, error) {
	ts := neighbor.Timestamp
	key := tupleKey{Event: et, ServingID: serving.SatelliteID, NeighborID: neighbor.SatelliteID}
	m := d.machines[key]
	if m == nil {
		m = &tupleMachine{}
		d.machines[key] = m
	}
	if ts.Before(m.lastTS) {
		return nil, fmt.Errorf("%w: tuple %s %s→%s saw %s after %s",
			ErrUnorderedSamples, et, key.ServingID, key.NeighborID,
			ts.Format(time.RFC3339Nano), m.lastTS.Format(time.RFC3339Nano))
	}
	m.lastTS = ts

	ms, mn, ok := governingPair(et, serving, neighbor)
	if !ok {
		// The condition is unknowable at this instant. Continuity is
		// broken either way, so pending clocks reset; a triggered tuple
		// stays triggered until a sustained leaving condition is observed.
		d.skips[fmt.Sprintf("missing_%s", string(et.GoverningQuantity()))]++
		if m.state == stateArmed {
			m.state = stateIdle
		}
		m.armedSince = time.Time{}
		m.leaveSince = time.Time{}
		d.log.Debug(ctx, "event pair skipped, governing measurement missing",
			logging.String("event_type", string(et)),
			logging.String("serving_id", serving.SatelliteID),
			logging.String("neighbor_id", neighbor.SatelliteID))
		return nil, nil
	}

	th := d.thresholds[et]
	persistence := d.cc.Events.Persistence()

	switch m.state {
	case stateIdle:
		if !d.enterHolds(et, th, ms, mn) {
			return nil, nil
		}
		m.state = stateArmed
		m.armedSince = ts
		fallthrough

	case stateArmed:
		if !d.enterHolds(et, th, ms, mn) {
			m.state = stateIdle
			m.armedSince = time.Time{}
			return nil, nil
		}
		if ts.Sub(m.armedSince) < persistence {
			return nil, nil
		}
		armedAt := m.armedSince
		m.state = stateTriggered
		m.armedSince = time.Time{}
		m.leaveSince = time.Time{}
		rec := d.record(et, th, model.DirectionEntering, key, ts, armedAt, ms, mn)
		d.log.Info(ctx, "event triggered",
			logging.String("event_type", string(et)),
			logging.String("serving_id", key.ServingID),
			logging.String("neighbor_id", key.NeighborID),
			logging.String("state", m.state.String()))
		return rec, nil

	case stateTriggered:
		if !d.leaveHolds(et, th, ms, mn) {
			m.leaveSince = time.Time{}
			return nil, nil
		}
		if m.leaveSince.IsZero() {
			m.leaveSince = ts
		}
		if ts.Sub(m.leaveSince) < persistence {
			return nil, nil
		}
		leftAt := m.leaveSince
		m.state = stateIdle
		m.leaveSince = time.Time{}
		rec := d.record(et, th, model.DirectionLeaving, key, ts, leftAt, ms, mn)
		d.log.Info(ctx, "event released",
			logging.String("event_type", string(et)),
			logging.String("serving_id", key.ServingID),
			logging.String("neighbor_id", key.NeighborID),
			logging.String("state", m.state.String()))
		return rec, nil
	}
	return nil, nil
}

func (d *EventDetector) record(et model.EventType, th model.ThresholdSet, dir model.EventDirection, key tupleKey, ts, since time.Time, ms, mn float64) *model.EventRecord {
	return &model.EventRecord{
		ID:            uuid.NewString(),
		EventType:     et,
		Direction:     dir,
		Constellation: d.cc.Name,
		ServingID:     key.ServingID,
		NeighborID:    key.NeighborID,
		Timestamp:     ts,
		ArmedAt:       since,
		ServingValue:  ms,
		NeighborValue: mn,
		Threshold1:    th.Threshold1,
		Threshold2:    th.Threshold2,
		Hysteresis:    th.Hysteresis,
	}
}

// enterHolds evaluates the entering condition for one pair observation.
// For distance-governed events a larger serving value is worse, so the
// comparison directions flip relative to the signal events.
func (d *EventDetector) enterHolds(et model.EventType, th model.ThresholdSet, ms, mn float64) bool {
	hys := th.Hysteresis
	switch et {
	case model.EventA3:
		return mn-ms > d.cc.Events.A3OffsetDB+hys
	case model.EventA4:
		return mn > th.Threshold1+hys
	case model.EventA5:
		return ms < th.Threshold1-hys && mn > th.Threshold2+hys
	case model.EventD2:
		return ms > th.Threshold1+hys && mn < th.Threshold2-hys
	default:
		return false
	}
}

// leaveHolds evaluates the leaving condition. A5 and D2 release when either
// half of their entering condition reverses.
func (d *EventDetector) leaveHolds(et model.EventType, th model.ThresholdSet, ms, mn float64) bool {
	hys := th.Hysteresis
	switch et {
	case model.EventA3:
		return mn-ms < d.cc.Events.A3OffsetDB-hys
	case model.EventA4:
		return mn < th.Threshold1-hys
	case model.EventA5:
		return ms > th.Threshold1+hys || mn < th.Threshold2-hys
	case model.EventD2:
		return ms < th.Threshold1-hys || mn > th.Threshold2+hys
	default:
		return false
	}
}

// governingPair extracts the serving and neighbor values the event type
// compares. Signal events need both RSRP measurements present so the audit
// record is complete; a missing measurement makes the pair unevaluable.
func governingPair(et model.EventType, serving, neighbor *model.CandidateSample) (ms, mn float64, ok bool) {
	if et.GoverningQuantity() == model.QuantityGroundDistance {
		return serving.GroundDistanceKm, neighbor.GroundDistanceKm, true
	}
	if !serving.HasRSRP() || !neighbor.HasRSRP() {
		return 0, 0, false
	}
	return *serving.RSRPdBm, *neighbor.RSRPdBm, true
}

// TriggeredNeighbors snapshots the tuples currently in the triggered state
// for the given serving satellite, keyed by event type.
func (d *EventDetector) TriggeredNeighbors(servingID string) map[model.EventType][]string {
	out := make(map[model.EventType][]string)
	for key, m := range d.machines {
		if key.ServingID == servingID && m.state == stateTriggered {
			out[key.Event] = append(out[key.Event], key.NeighborID)
		}
	}
	return out
}

// Skips returns the per-reason counts of pair observations skipped for
// missing measurements.
func (d *EventDetector) Skips() SkipCounts {
	return d.skips
}
