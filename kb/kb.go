package kb

import (
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/signalsfoundry/leo-handover/core"
    "github.com/signalsfoundry/leo-handover/model"
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
    EventSampleAppended EventType = iota
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
    Type   EventType
    Sample model.CandidateSample
}

// TrackStore is an in-memory, thread-safe store of candidate samples, kept as
// one chronological track per satellite.
type TrackStore struct {
    mu sync.RWMutex

    tracks        map[string][]model.CandidateSample
    constellation map[string]string
    members       map[string][]string

    count int

    subs []func(Event)
}

// NewTrackStore constructs an empty store.
func NewTrackStore() *TrackStore {
    return &TrackStore{
        tracks:        make(map[string][]model.CandidateSample),
        constellation: make(map[string]string),
        members:       make(map[string][]string),
    }
}

// AddSample appends a sample to its satellite's track and notifies
// subscribers. Tracks stay chronological: a timestamp behind the track head
// is rejected, and a sample at exactly the head's timestamp replaces it.
func (ts *TrackStore) AddSample(s *model.CandidateSample) error {
    if s == nil {
        return fmt.Errorf("AddSample: nil sample")
    }
    if s.SatelliteID == "" || s.Constellation == "" {
        return fmt.Errorf("AddSample: sample missing satellite or constellation ID")
    }
    if s.Timestamp.IsZero() {
        return fmt.Errorf("AddSample: sample for %q has zero timestamp", s.SatelliteID)
    }

    ts.mu.Lock()
    if known, ok := ts.constellation[s.SatelliteID]; ok && known != s.Constellation {
        ts.mu.Unlock()
        return fmt.Errorf("AddSample: satellite %q already tracked in constellation %q", s.SatelliteID, known)
    }

    track := ts.tracks[s.SatelliteID]
    if n := len(track); n > 0 {
        head := track[n-1].Timestamp
        if s.Timestamp.Before(head) {
            ts.mu.Unlock()
            return fmt.Errorf("%w: satellite %q at %s, track already at %s",
                core.ErrUnorderedSamples, s.SatelliteID,
                s.Timestamp.Format(time.RFC3339), head.Format(time.RFC3339))
        }
        if s.Timestamp.Equal(head) {
            track[n-1] = *s
            ts.mu.Unlock()
            return nil
        }
    }

    if _, ok := ts.constellation[s.SatelliteID]; !ok {
        ts.constellation[s.SatelliteID] = s.Constellation
        ids := append(ts.members[s.Constellation], s.SatelliteID)
        sort.Strings(ids)
        ts.members[s.Constellation] = ids
    }
    ts.tracks[s.SatelliteID] = append(track, *s)
    ts.count++

    event := Event{
        Type:   EventSampleAppended,
        Sample: *s, // copy for safety
    }
    subs := append([]func(Event){}, ts.subs...)
    ts.mu.Unlock()

    // Notify subscribers outside the lock to avoid deadlocks.
    for _, sub := range subs {
        sub(event)
    }
    return nil
}

// Track returns a snapshot copy of the satellite's samples in time order.
func (ts *TrackStore) Track(satelliteID string) []model.CandidateSample {
    ts.mu.RLock()
    defer ts.mu.RUnlock()
    return append([]model.CandidateSample(nil), ts.tracks[satelliteID]...)
}

// SampleAt returns the satellite's sample taken at exactly the given time.
func (ts *TrackStore) SampleAt(satelliteID string, at time.Time) (model.CandidateSample, bool) {
    ts.mu.RLock()
    defer ts.mu.RUnlock()

    track := ts.tracks[satelliteID]
    idx := searchTrack(track, at)
    if idx == 0 {
        return model.CandidateSample{}, false
    }
    s := track[idx-1]
    if !s.Timestamp.Equal(at) {
        return model.CandidateSample{}, false
    }
    return s, true
}

// LatestAt returns the most recent sample at or before the given time.
func (ts *TrackStore) LatestAt(satelliteID string, at time.Time) (model.CandidateSample, bool) {
    ts.mu.RLock()
    defer ts.mu.RUnlock()

    track := ts.tracks[satelliteID]
    idx := searchTrack(track, at)
    if idx == 0 {
        return model.CandidateSample{}, false
    }
    return track[idx-1], true
}

// CurrentSamples returns the freshest sample per satellite of the
// constellation as of the given time, skipping satellites whose latest sample
// is older than maxAge. Results are ordered by satellite ID.
func (ts *TrackStore) CurrentSamples(constellation string, at time.Time, maxAge time.Duration) []model.CandidateSample {
    ts.mu.RLock()
    defer ts.mu.RUnlock()

    res := make([]model.CandidateSample, 0, len(ts.members[constellation]))
    for _, id := range ts.members[constellation] {
        track := ts.tracks[id]
        idx := searchTrack(track, at)
        if idx == 0 {
            continue
        }
        s := track[idx-1]
        if at.Sub(s.Timestamp) > maxAge {
            continue
        }
        res = append(res, s)
    }
    return res
}

// Constellations returns the tracked constellation names, sorted.
func (ts *TrackStore) Constellations() []string {
    ts.mu.RLock()
    defer ts.mu.RUnlock()

    res := make([]string, 0, len(ts.members))
    for name := range ts.members {
        res = append(res, name)
    }
    sort.Strings(res)
    return res
}

// Satellites returns the constellation's satellite IDs, sorted.
func (ts *TrackStore) Satellites(constellation string) []string {
    ts.mu.RLock()
    defer ts.mu.RUnlock()
    return append([]string(nil), ts.members[constellation]...)
}

// ConstellationSamples returns every sample of the constellation, grouped by
// satellite in ID order and chronological within each satellite.
func (ts *TrackStore) ConstellationSamples(constellation string) []model.CandidateSample {
    ts.mu.RLock()
    defer ts.mu.RUnlock()

    var res []model.CandidateSample
    for _, id := range ts.members[constellation] {
        res = append(res, ts.tracks[id]...)
    }
    return res
}

// Timestamps returns the distinct sample timestamps seen across the
// constellation, ascending.
func (ts *TrackStore) Timestamps(constellation string) []time.Time {
    ts.mu.RLock()
    defer ts.mu.RUnlock()

    seen := make(map[int64]time.Time)
    for _, id := range ts.members[constellation] {
        for _, s := range ts.tracks[id] {
            seen[s.Timestamp.UnixNano()] = s.Timestamp
        }
    }
    res := make([]time.Time, 0, len(seen))
    for _, t := range seen {
        res = append(res, t)
    }
    sort.Slice(res, func(i, j int) bool { return res[i].Before(res[j]) })
    return res
}

// Len returns the total number of stored samples.
func (ts *TrackStore) Len() int {
    ts.mu.RLock()
    defer ts.mu.RUnlock()
    return ts.count
}

// Subscribe registers a callback for store events. It returns an unsubscribe function.
func (ts *TrackStore) Subscribe(fn func(Event)) (unsubscribe func()) {
    ts.mu.Lock()
    defer ts.mu.Unlock()
    ts.subs = append(ts.subs, fn)
    idx := len(ts.subs) - 1

    return func() {
        ts.mu.Lock()
        defer ts.mu.Unlock()
        if idx < 0 || idx >= len(ts.subs) {
            return
        }
        ts.subs = append(ts.subs[:idx], ts.subs[idx+1:]...)
        idx = -1
    }
}

// searchTrack returns the first index whose timestamp is after at. The track
// is chronological, so index-1 is the latest sample at or before at.
func searchTrack(track []model.CandidateSample, at time.Time) int {
    return sort.Search(len(track), func(i int) bool {
        return track[i].Timestamp.After(at)
    })
}
