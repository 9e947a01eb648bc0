// kb/loader_test.go
package kb

import (
    "bytes"
    "strings"
    "testing"
    "time"
)

func TestLoadDataset_PopulatesStore(t *testing.T) {
    jsonData := `
{
  "name": "two-sat-pass",
  "generated_at": "2026-03-01T00:00:00Z",
  "samples": [
    {
      "satellite_id": "iri-1",
      "constellation": "iridium-next",
      "timestamp": "2026-03-01T12:00:00Z",
      "elevation_deg": 34.5,
      "azimuth_deg": 128.0,
      "slant_range_km": 1420.0,
      "ground_distance_km": 910.0,
      "rsrp_dbm": -98.5,
      "sinr_db": 9.2,
      "link_margin_db": 4.1
    },
    {
      "satellite_id": "iri-2",
      "constellation": "iridium-next",
      "timestamp": "2026-03-01T12:00:00Z",
      "elevation_deg": 12.0,
      "azimuth_deg": 301.5,
      "slant_range_km": 2270.0,
      "ground_distance_km": 1890.0,
      "sinr_db": 2.4,
      "usable": false
    },
    {
      "satellite_id": "iri-1",
      "constellation": "iridium-next",
      "timestamp": "2026-03-01T12:01:00Z",
      "elevation_deg": 36.1,
      "azimuth_deg": 127.2,
      "slant_range_km": 1398.0,
      "ground_distance_km": 884.0,
      "rsrp_dbm": -97.9,
      "sinr_db": 9.6
    }
  ]
}
`

    store := NewTrackStore()

    summary, err := LoadDataset(store, strings.NewReader(jsonData))
    if err != nil {
        t.Fatalf("LoadDataset returned error: %v", err)
    }
    if summary == nil {
        t.Fatalf("expected non-nil dataset summary")
    }

    // Summary
    if summary.Name != "two-sat-pass" {
        t.Errorf("summary name = %q, want two-sat-pass", summary.Name)
    }
    if summary.Samples != 3 || summary.Satellites != 2 {
        t.Errorf("summary counts = %d samples / %d satellites, want 3 / 2", summary.Samples, summary.Satellites)
    }
    if len(summary.Constellations) != 1 || summary.Constellations[0] != "iridium-next" {
        t.Errorf("summary constellations = %v", summary.Constellations)
    }
    wantStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
    if !summary.Start.Equal(wantStart) || !summary.End.Equal(wantStart.Add(time.Minute)) {
        t.Errorf("summary span = %s .. %s", summary.Start, summary.End)
    }

    // Store contents
    if got := store.Len(); got != 3 {
        t.Fatalf("store Len=%d, want 3", got)
    }
    track := store.Track("iri-1")
    if len(track) != 2 {
        t.Fatalf("iri-1 track len=%d, want 2", len(track))
    }
    first := track[0]
    if !first.HasRSRP() || *first.RSRPdBm != -98.5 {
        t.Errorf("iri-1 first RSRP = %+v, want -98.5", first.RSRPdBm)
    }
    if !first.HasLinkMargin() || *first.LinkMarginDB != 4.1 {
        t.Errorf("iri-1 first link margin = %+v, want 4.1", first.LinkMarginDB)
    }
    if !first.Usable {
        t.Errorf("iri-1 should default to usable")
    }

    degraded := store.Track("iri-2")[0]
    if degraded.HasRSRP() {
        t.Errorf("iri-2 RSRP should be absent, got %v", *degraded.RSRPdBm)
    }
    if degraded.Usable {
        t.Errorf("iri-2 usable = true, want explicit false honored")
    }
}

func TestLoadDataset_Errors(t *testing.T) {
    cases := []struct {
        name     string
        jsonData string
    }{
        {
            name:     "malformed json",
            jsonData: `{"samples": [`,
        },
        {
            name: "empty satellite id",
            jsonData: `{"samples": [
              {"satellite_id": "", "constellation": "c", "timestamp": "2026-03-01T12:00:00Z"}
            ]}`,
        },
        {
            name: "empty constellation",
            jsonData: `{"samples": [
              {"satellite_id": "sat-1", "constellation": "", "timestamp": "2026-03-01T12:00:00Z"}
            ]}`,
        },
        {
            name: "bad timestamp",
            jsonData: `{"samples": [
              {"satellite_id": "sat-1", "constellation": "c", "timestamp": "yesterday"}
            ]}`,
        },
        {
            name: "per-satellite time regression",
            jsonData: `{"samples": [
              {"satellite_id": "sat-1", "constellation": "c", "timestamp": "2026-03-01T12:01:00Z"},
              {"satellite_id": "sat-1", "constellation": "c", "timestamp": "2026-03-01T12:00:00Z"}
            ]}`,
        },
    }

    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            if _, err := LoadDataset(NewTrackStore(), strings.NewReader(tc.jsonData)); err == nil {
                t.Fatalf("expected load error")
            }
        })
    }
}

func TestSaveDataset_RoundTrips(t *testing.T) {
    store := NewTrackStore()
    base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
    for i := 0; i < 3; i++ {
        if err := store.AddSample(trackSample("sat-1", "leo-a", base.Add(time.Duration(i)*time.Minute), float64(10+i))); err != nil {
            t.Fatalf("AddSample error: %v", err)
        }
    }

    var buf bytes.Buffer
    if err := SaveDataset(&buf, "round-trip", base, store.Track("sat-1")); err != nil {
        t.Fatalf("SaveDataset error: %v", err)
    }

    reloaded := NewTrackStore()
    summary, err := LoadDataset(reloaded, &buf)
    if err != nil {
        t.Fatalf("LoadDataset of saved output: %v", err)
    }
    if summary.Name != "round-trip" || summary.Samples != 3 {
        t.Fatalf("summary = %+v", summary)
    }
    got := reloaded.Track("sat-1")
    if len(got) != 3 || got[2].ElevationDeg != 12 {
        t.Fatalf("reloaded track = %+v", got)
    }
}
