package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-handover/core"
	"github.com/signalsfoundry/leo-handover/model"
)

var trackEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func trackSample(id, constellation string, at time.Time, elevDeg float64) *model.CandidateSample {
	return &model.CandidateSample{
		SatelliteID:   id,
		Constellation: constellation,
		Timestamp:     at,
		ElevationDeg:  elevDeg,
		Usable:        true,
	}
}

func TestAddAndQueryTrack(t *testing.T) {
	store := NewTrackStore()
	for i := 0; i < 3; i++ {
		s := trackSample("sat-1", "leo-a", trackEpoch.Add(time.Duration(i)*time.Minute), float64(10+i))
		if err := store.AddSample(s); err != nil {
			t.Fatalf("AddSample error: %v", err)
		}
	}

	track := store.Track("sat-1")
	if len(track) != 3 {
		t.Fatalf("Track len=%d, want 3", len(track))
	}

	got, ok := store.SampleAt("sat-1", trackEpoch.Add(time.Minute))
	if !ok || got.ElevationDeg != 11 {
		t.Fatalf("SampleAt = (%+v, %v), want elevation 11", got, ok)
	}
	if _, ok := store.SampleAt("sat-1", trackEpoch.Add(90*time.Second)); ok {
		t.Fatalf("SampleAt between sample times should report absence")
	}

	got, ok = store.LatestAt("sat-1", trackEpoch.Add(90*time.Second))
	if !ok || got.ElevationDeg != 11 {
		t.Fatalf("LatestAt = (%+v, %v), want the t+60s sample", got, ok)
	}
	if _, ok := store.LatestAt("sat-1", trackEpoch.Add(-time.Second)); ok {
		t.Fatalf("LatestAt before the first sample should report absence")
	}
}

func TestAddSampleRejectsRegression(t *testing.T) {
	store := NewTrackStore()
	if err := store.AddSample(trackSample("sat-1", "leo-a", trackEpoch, 10)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}
	err := store.AddSample(trackSample("sat-1", "leo-a", trackEpoch.Add(-time.Minute), 12))
	if !errors.Is(err, core.ErrUnorderedSamples) {
		t.Fatalf("err = %v, want ErrUnorderedSamples", err)
	}
}

func TestAddSampleReplacesAtEqualTimestamp(t *testing.T) {
	store := NewTrackStore()
	if err := store.AddSample(trackSample("sat-1", "leo-a", trackEpoch, 10)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}
	if err := store.AddSample(trackSample("sat-1", "leo-a", trackEpoch, 15)); err != nil {
		t.Fatalf("AddSample at equal timestamp error: %v", err)
	}

	if got := store.Len(); got != 1 {
		t.Fatalf("Len=%d, want 1 after replacement", got)
	}
	s, ok := store.SampleAt("sat-1", trackEpoch)
	if !ok || s.ElevationDeg != 15 {
		t.Fatalf("SampleAt = (%+v, %v), want replaced elevation 15", s, ok)
	}
}

func TestAddSampleRejectsConstellationChange(t *testing.T) {
	store := NewTrackStore()
	if err := store.AddSample(trackSample("sat-1", "leo-a", trackEpoch, 10)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}
	if err := store.AddSample(trackSample("sat-1", "leo-b", trackEpoch.Add(time.Minute), 10)); err == nil {
		t.Fatalf("expected constellation change to fail")
	}
}

func TestConstellationQueries(t *testing.T) {
	store := NewTrackStore()
	for _, id := range []string{"sat-b", "sat-a"} {
		for i := 0; i < 2; i++ {
			s := trackSample(id, "leo-a", trackEpoch.Add(time.Duration(i)*time.Minute), 20)
			if err := store.AddSample(s); err != nil {
				t.Fatalf("AddSample error: %v", err)
			}
		}
	}
	if err := store.AddSample(trackSample("sat-z", "leo-b", trackEpoch, 30)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}

	if got := store.Constellations(); len(got) != 2 || got[0] != "leo-a" || got[1] != "leo-b" {
		t.Fatalf("Constellations = %v", got)
	}
	if got := store.Satellites("leo-a"); len(got) != 2 || got[0] != "sat-a" || got[1] != "sat-b" {
		t.Fatalf("Satellites = %v, want sorted [sat-a sat-b]", got)
	}
	if got := store.ConstellationSamples("leo-a"); len(got) != 4 {
		t.Fatalf("ConstellationSamples len=%d, want 4", len(got))
	}

	// Two satellites share the same two instants: timestamps dedupe.
	stamps := store.Timestamps("leo-a")
	if len(stamps) != 2 {
		t.Fatalf("Timestamps = %v, want 2 distinct instants", stamps)
	}
	if !stamps[0].Equal(trackEpoch) || !stamps[1].Equal(trackEpoch.Add(time.Minute)) {
		t.Fatalf("Timestamps = %v, want ascending", stamps)
	}
}

func TestCurrentSamplesSkipsStale(t *testing.T) {
	store := NewTrackStore()
	if err := store.AddSample(trackSample("sat-fresh", "leo-a", trackEpoch.Add(9*time.Minute), 20)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}
	if err := store.AddSample(trackSample("sat-stale", "leo-a", trackEpoch, 40)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}

	got := store.CurrentSamples("leo-a", trackEpoch.Add(10*time.Minute), 2*time.Minute)
	if len(got) != 1 || got[0].SatelliteID != "sat-fresh" {
		t.Fatalf("CurrentSamples = %+v, want only sat-fresh", got)
	}
}

func TestSubscribe(t *testing.T) {
	store := NewTrackStore()

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	unsubscribe := store.Subscribe(func(e Event) {
		got = e
		wg.Done()
	})

	if err := store.AddSample(trackSample("sat-1", "leo-a", trackEpoch, 10)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}
	wg.Wait()

	if got.Type != EventSampleAppended {
		t.Fatalf("got event type %v, want EventSampleAppended", got.Type)
	}
	if got.Sample.SatelliteID != "sat-1" {
		t.Fatalf("event sample = %+v, want sat-1", got.Sample)
	}

	unsubscribe()
	calls := 0
	store.Subscribe(func(Event) { calls++ })
	if err := store.AddSample(trackSample("sat-1", "leo-a", trackEpoch.Add(time.Minute), 10)); err != nil {
		t.Fatalf("AddSample error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("remaining subscriber called %d times, want 1", calls)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewTrackStore()

	var wg sync.WaitGroup
	// Concurrent readers/writers on separate satellites
	for i := 0; i < 10; i++ {
		wg.Add(2)
		id := fmt.Sprintf("sat-%d", i)
		go func() {
			defer wg.Done()
			_ = store.Track(id)
			_ = store.Constellations()
			_, _ = store.LatestAt(id, trackEpoch)
		}()
		go func() {
			defer wg.Done()
			_ = store.AddSample(trackSample(id, "leo-a", trackEpoch, 10))
		}()
	}
	wg.Wait()

	if got := store.Len(); got != 10 {
		t.Fatalf("Len=%d, want 10", got)
	}
}
