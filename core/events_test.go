package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-handover/model"
)

var eventEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func eventConstellation(persistenceSec float64) ConstellationConfig {
	return ConstellationConfig{
		Name: "leo-a",
		// A3 offset set high so signal scenarios exercise exactly the
		// event type under test.
		Events: EventConfig{A3OffsetDB: 50, PersistenceSeconds: persistenceSec},
	}
}

func evSample(id string, at time.Time, rsrp *float64, distKm float64) *model.CandidateSample {
	return &model.CandidateSample{
		SatelliteID:      id,
		Constellation:    "leo-a",
		Timestamp:        at,
		ElevationDeg:     40,
		GroundDistanceKm: distKm,
		RSRPdBm:          rsrp,
		Usable:           true,
	}
}

func observeRSRP(t *testing.T, d *EventDetector, at time.Time, servingRSRP, neighborRSRP float64) []model.EventRecord {
	t.Helper()
	recs, err := d.ObservePair(context.Background(),
		evSample("sat-serving", at, model.Float64Ptr(servingRSRP), 500),
		evSample("sat-neighbor", at, model.Float64Ptr(neighborRSRP), 400))
	if err != nil {
		t.Fatalf("ObservePair at %s: %v", at, err)
	}
	return recs
}

// TestA4ExactTiming walks an A4 tuple through a full entering and leaving
// cycle on a 5 s cadence with 10 s persistence: armed at t+0, triggered at
// t+10, leave pending at t+15, released at t+25.
func TestA4ExactTiming(t *testing.T) {
	thresholds := map[model.EventType]model.ThresholdSet{
		model.EventA4: {EventType: model.EventA4, Threshold1: -95, Hysteresis: 2},
	}
	d := NewEventDetector(eventConstellation(10), thresholds, nil)

	steps := []struct {
		offsetSec    int
		neighborRSRP float64
		wantRecords  int
		wantDir      model.EventDirection
	}{
		{0, -92, 0, ""},   // above -93: condition starts holding, armed
		{5, -92, 0, ""},   // 5 s elapsed, still short of persistence
		{10, -92, 1, model.DirectionEntering},
		{15, -98, 0, ""},  // below -97: leaving condition starts
		{20, -98, 0, ""},
		{25, -98, 1, model.DirectionLeaving},
	}

	var all []model.EventRecord
	for _, step := range steps {
		at := eventEpoch.Add(time.Duration(step.offsetSec) * time.Second)
		recs := observeRSRP(t, d, at, -110, step.neighborRSRP)
		if len(recs) != step.wantRecords {
			t.Fatalf("t+%ds: got %d records, want %d", step.offsetSec, len(recs), step.wantRecords)
		}
		if step.wantRecords == 1 && recs[0].Direction != step.wantDir {
			t.Fatalf("t+%ds: direction = %s, want %s", step.offsetSec, recs[0].Direction, step.wantDir)
		}
		all = append(all, recs...)
	}

	entering, leaving := all[0], all[1]
	if entering.EventType != model.EventA4 || leaving.EventType != model.EventA4 {
		t.Fatalf("event types = %s/%s, want A4/A4", entering.EventType, leaving.EventType)
	}
	if !entering.Timestamp.Equal(eventEpoch.Add(10 * time.Second)) {
		t.Fatalf("entering at %v, want t+10s", entering.Timestamp)
	}
	if !entering.ArmedAt.Equal(eventEpoch) {
		t.Fatalf("entering ArmedAt = %v, want t+0s", entering.ArmedAt)
	}
	if entering.ServingValue != -110 || entering.NeighborValue != -92 {
		t.Fatalf("entering values = %v/%v", entering.ServingValue, entering.NeighborValue)
	}
	if entering.Threshold1 != -95 || entering.Hysteresis != 2 {
		t.Fatalf("entering thresholds = %v/%v", entering.Threshold1, entering.Hysteresis)
	}
	if !leaving.ArmedAt.Equal(eventEpoch.Add(15 * time.Second)) {
		t.Fatalf("leaving ArmedAt = %v, want t+15s", leaving.ArmedAt)
	}
}

// TestPersistenceResetsToZero verifies there is no partial credit: one
// non-satisfying sample restarts the persistence window from scratch.
func TestPersistenceResetsToZero(t *testing.T) {
	thresholds := map[model.EventType]model.ThresholdSet{
		model.EventA4: {EventType: model.EventA4, Threshold1: -95, Hysteresis: 2},
	}
	d := NewEventDetector(eventConstellation(10), thresholds, nil)

	values := []struct {
		offsetSec int
		rsrp      float64
		want      int
	}{
		{0, -92, 0},
		{5, -94, 0},  // inside the band: condition broken, timer zeroed
		{10, -92, 0}, // condition holds again, new window starts here
		{15, -92, 0},
		{20, -92, 1}, // 10 s from t+10, not from t+0
	}
	for _, v := range values {
		at := eventEpoch.Add(time.Duration(v.offsetSec) * time.Second)
		recs := observeRSRP(t, d, at, -110, v.rsrp)
		if len(recs) != v.want {
			t.Fatalf("t+%ds: got %d records, want %d", v.offsetSec, len(recs), v.want)
		}
		if v.want == 1 && !recs[0].ArmedAt.Equal(eventEpoch.Add(10*time.Second)) {
			t.Fatalf("ArmedAt = %v, want t+10s", recs[0].ArmedAt)
		}
	}
}

// TestHysteresisPreventsOscillation drives a triggered tuple with values
// bouncing inside the dead band and expects no transitions in either
// direction.
func TestHysteresisPreventsOscillation(t *testing.T) {
	thresholds := map[model.EventType]model.ThresholdSet{
		model.EventA4: {EventType: model.EventA4, Threshold1: -95, Hysteresis: 2},
	}
	d := NewEventDetector(eventConstellation(0), thresholds, nil)

	if recs := observeRSRP(t, d, eventEpoch, -110, -92); len(recs) != 1 {
		t.Fatalf("expected immediate trigger with zero persistence, got %d records", len(recs))
	}

	// All values sit strictly between the leave boundary (-97) and the
	// enter boundary (-93).
	deadBand := []float64{-94, -96, -93.5, -96.5, -95}
	for i, rsrp := range deadBand {
		at := eventEpoch.Add(time.Duration(i+1) * 5 * time.Second)
		if recs := observeRSRP(t, d, at, -110, rsrp); len(recs) != 0 {
			t.Fatalf("dead band value %v produced %d records", rsrp, len(recs))
		}
	}

	triggered := d.TriggeredNeighbors("sat-serving")
	if got := triggered[model.EventA4]; len(got) != 1 || got[0] != "sat-neighbor" {
		t.Fatalf("TriggeredNeighbors = %v, want A4 sat-neighbor", triggered)
	}
}

// TestA5EntersAndLeavesOnEitherReversal covers the dual condition: both
// halves must hold to enter, and either reversal releases.
func TestA5EntersAndLeavesOnEitherReversal(t *testing.T) {
	thresholds := map[model.EventType]model.ThresholdSet{
		model.EventA5: {EventType: model.EventA5, Threshold1: -95, Threshold2: -100, Hysteresis: 1},
	}

	t.Run("neighbor collapse releases", func(t *testing.T) {
		d := NewEventDetector(eventConstellation(0), thresholds, nil)

		// Serving degraded but neighbor not yet good enough: no event.
		if recs := observeRSRP(t, d, eventEpoch, -97, -100.5); len(recs) != 0 {
			t.Fatalf("half condition produced %d records", len(recs))
		}
		recs := observeRSRP(t, d, eventEpoch.Add(5*time.Second), -97, -98)
		if len(recs) != 1 || recs[0].Direction != model.DirectionEntering {
			t.Fatalf("expected entering, got %v", recs)
		}
		recs = observeRSRP(t, d, eventEpoch.Add(10*time.Second), -97, -102)
		if len(recs) != 1 || recs[0].Direction != model.DirectionLeaving {
			t.Fatalf("expected leaving on neighbor collapse, got %v", recs)
		}
	})

	t.Run("serving recovery releases", func(t *testing.T) {
		d := NewEventDetector(eventConstellation(0), thresholds, nil)

		recs := observeRSRP(t, d, eventEpoch, -97, -98)
		if len(recs) != 1 || recs[0].Direction != model.DirectionEntering {
			t.Fatalf("expected entering, got %v", recs)
		}
		recs = observeRSRP(t, d, eventEpoch.Add(5*time.Second), -93, -98)
		if len(recs) != 1 || recs[0].Direction != model.DirectionLeaving {
			t.Fatalf("expected leaving on serving recovery, got %v", recs)
		}
	})
}

// TestD2DistanceConditions checks the distance analogue where larger
// serving values are worse.
func TestD2DistanceConditions(t *testing.T) {
	thresholds := map[model.EventType]model.ThresholdSet{
		model.EventD2: {EventType: model.EventD2, Threshold1: 1100, Threshold2: 700, Hysteresis: 25},
	}
	d := NewEventDetector(eventConstellation(0), thresholds, nil)

	observe := func(at time.Time, servingKm, neighborKm float64) []model.EventRecord {
		recs, err := d.ObservePair(context.Background(),
			evSample("sat-serving", at, model.Float64Ptr(-100), servingKm),
			evSample("sat-neighbor", at, model.Float64Ptr(-100), neighborKm))
		if err != nil {
			t.Fatalf("ObservePair: %v", err)
		}
		return recs
	}

	if recs := observe(eventEpoch, 1150, 650); len(recs) != 1 || recs[0].EventType != model.EventD2 {
		t.Fatalf("expected D2 entering, got %v", recs)
	}
	if recs := observe(eventEpoch.Add(5*time.Second), 1050, 650); len(recs) != 1 || recs[0].Direction != model.DirectionLeaving {
		t.Fatalf("expected D2 leaving when serving distance recovers, got %v", recs)
	}
}

// TestMissingRSRPBreaksContinuity verifies that a pair with a missing
// measurement is skipped with the arming clock reset, and that the skip is
// counted.
func TestMissingRSRPBreaksContinuity(t *testing.T) {
	thresholds := map[model.EventType]model.ThresholdSet{
		model.EventA4: {EventType: model.EventA4, Threshold1: -95, Hysteresis: 2},
	}
	d := NewEventDetector(eventConstellation(10), thresholds, nil)

	observeRSRP(t, d, eventEpoch, -110, -92)

	// Neighbor measurement lost at t+5: the A4 window must restart.
	recs, err := d.ObservePair(context.Background(),
		evSample("sat-serving", eventEpoch.Add(5*time.Second), model.Float64Ptr(-110), 500),
		evSample("sat-neighbor", eventEpoch.Add(5*time.Second), nil, 400))
	if err != nil {
		t.Fatalf("ObservePair: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("skipped pair produced %d records", len(recs))
	}

	for i, offset := range []int{10, 15, 20} {
		recs := observeRSRP(t, d, eventEpoch.Add(time.Duration(offset)*time.Second), -110, -92)
		wantLen := 0
		if i == 2 {
			wantLen = 1 // 10 s measured from t+10, not t+0
		}
		if len(recs) != wantLen {
			t.Fatalf("t+%ds: got %d records, want %d", offset, len(recs), wantLen)
		}
	}

	if d.Skips()["missing_rsrp_dbm"] == 0 {
		t.Fatalf("missing measurement was not counted: %v", d.Skips())
	}
}

// TestObservePairRejectsRegression ensures out-of-order tuple timestamps
// abort with the ordering invariant error.
func TestObservePairRejectsRegression(t *testing.T) {
	d := NewEventDetector(eventConstellation(10), map[model.EventType]model.ThresholdSet{}, nil)

	observeRSRP(t, d, eventEpoch.Add(10*time.Second), -110, -105)
	_, err := d.ObservePair(context.Background(),
		evSample("sat-serving", eventEpoch, model.Float64Ptr(-110), 500),
		evSample("sat-neighbor", eventEpoch, model.Float64Ptr(-105), 400))
	if !errors.Is(err, ErrUnorderedSamples) {
		t.Fatalf("err = %v, want ErrUnorderedSamples", err)
	}
}

// TestA3OffsetComparison verifies the relative condition including the
// configured offset.
func TestA3OffsetComparison(t *testing.T) {
	cc := eventConstellation(0)
	cc.Events.A3OffsetDB = 3
	thresholds := map[model.EventType]model.ThresholdSet{
		model.EventA3: {EventType: model.EventA3, Hysteresis: 1},
		// Keep the absolute events quiet for these values.
		model.EventA4: {EventType: model.EventA4, Threshold1: -60},
		model.EventA5: {EventType: model.EventA5, Threshold1: -120, Threshold2: -60},
	}
	d := NewEventDetector(cc, thresholds, nil)

	// Difference 3.5 dB is inside offset+hysteresis: no event.
	if recs := observeRSRP(t, d, eventEpoch, -95, -91.5); len(recs) != 0 {
		t.Fatalf("difference below band produced %v", recs)
	}
	recs := observeRSRP(t, d, eventEpoch.Add(5*time.Second), -95, -90.5)
	if len(recs) != 1 || recs[0].EventType != model.EventA3 || recs[0].Direction != model.DirectionEntering {
		t.Fatalf("expected A3 entering, got %v", recs)
	}
	// Difference shrinks below offset-hysteresis: leaving.
	recs = observeRSRP(t, d, eventEpoch.Add(10*time.Second), -95, -93.5)
	if len(recs) != 1 || recs[0].Direction != model.DirectionLeaving {
		t.Fatalf("expected A3 leaving, got %v", recs)
	}
}
