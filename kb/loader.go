// kb/loader.go
package kb

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/leo-handover/model"
)

// DatasetSummary is a small summary of what was loaded from JSON. It's mainly
// useful for logging or printing from main().
type DatasetSummary struct {
	Name           string
	Constellations []string
	Satellites     int
	Samples        int
	Start          time.Time
	End            time.Time
}

// internal JSON shapes, kept unexported so we're free to evolve them.
type datasetJSON struct {
	Name        string       `json:"name"`
	GeneratedAt string       `json:"generated_at,omitempty"`
	Samples     []sampleJSON `json:"samples"`
}

type sampleJSON struct {
	SatelliteID      string  `json:"satellite_id"`
	Constellation    string  `json:"constellation"`
	Timestamp        string  `json:"timestamp"` // RFC 3339
	ElevationDeg     float64 `json:"elevation_deg"`
	AzimuthDeg       float64 `json:"azimuth_deg"`
	SlantRangeKm     float64 `json:"slant_range_km"`
	GroundDistanceKm float64 `json:"ground_distance_km"`
	// Radio measurements are optional; absent means the measurement was
	// not available at that instant, not that it was zero.
	RSRPdBm      *float64 `json:"rsrp_dbm,omitempty"`
	SINRdB       *float64 `json:"sinr_db,omitempty"`
	LinkMarginDB *float64 `json:"link_margin_db,omitempty"`
	Usable       *bool    `json:"usable,omitempty"` // optional; defaults to true
}

// LoadDataset reads a JSON sample dataset from r and appends every sample to
// the store. Samples must appear in chronological order per satellite; the
// store rejects regressions and the loader surfaces that as a load error.
func LoadDataset(store *TrackStore, r io.Reader) (*DatasetSummary, error) {
	if store == nil {
		return nil, fmt.Errorf("LoadDataset: store is nil")
	}

	var payload datasetJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadDataset: decode failed: %w", err)
	}

	summary := &DatasetSummary{Name: payload.Name}
	seen := make(map[string]bool)
	satellites := make(map[string]bool)

	for i, js := range payload.Samples {
		if js.SatelliteID == "" {
			return nil, fmt.Errorf("LoadDataset: sample %d has empty satellite_id", i)
		}
		if js.Constellation == "" {
			return nil, fmt.Errorf("LoadDataset: sample %d (%s) has empty constellation", i, js.SatelliteID)
		}
		at, err := time.Parse(time.RFC3339, js.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("LoadDataset: sample %d (%s) timestamp: %w", i, js.SatelliteID, err)
		}

		usable := true
		if js.Usable != nil {
			usable = *js.Usable
		}

		s := &model.CandidateSample{
			SatelliteID:      js.SatelliteID,
			Constellation:    js.Constellation,
			Timestamp:        at,
			ElevationDeg:     js.ElevationDeg,
			AzimuthDeg:       js.AzimuthDeg,
			SlantRangeKm:     js.SlantRangeKm,
			GroundDistanceKm: js.GroundDistanceKm,
			RSRPdBm:          js.RSRPdBm,
			SINRdB:           js.SINRdB,
			LinkMarginDB:     js.LinkMarginDB,
			Usable:           usable,
		}
		if err := store.AddSample(s); err != nil {
			return nil, fmt.Errorf("LoadDataset: sample %d: %w", i, err)
		}

		if !seen[js.Constellation] {
			seen[js.Constellation] = true
			summary.Constellations = append(summary.Constellations, js.Constellation)
		}
		satellites[js.SatelliteID] = true
		summary.Samples++
		if summary.Start.IsZero() || at.Before(summary.Start) {
			summary.Start = at
		}
		if at.After(summary.End) {
			summary.End = at
		}
	}

	summary.Satellites = len(satellites)
	return summary, nil
}

// SaveDataset writes the samples as a JSON dataset that LoadDataset can read
// back. Timestamps are serialized in UTC at nanosecond precision.
func SaveDataset(w io.Writer, name string, generatedAt time.Time, samples []model.CandidateSample) error {
	payload := datasetJSON{
		Name:    name,
		Samples: make([]sampleJSON, 0, len(samples)),
	}
	if !generatedAt.IsZero() {
		payload.GeneratedAt = generatedAt.UTC().Format(time.RFC3339)
	}

	for i := range samples {
		s := &samples[i]
		js := sampleJSON{
			SatelliteID:      s.SatelliteID,
			Constellation:    s.Constellation,
			Timestamp:        s.Timestamp.UTC().Format(time.RFC3339Nano),
			ElevationDeg:     s.ElevationDeg,
			AzimuthDeg:       s.AzimuthDeg,
			SlantRangeKm:     s.SlantRangeKm,
			GroundDistanceKm: s.GroundDistanceKm,
			RSRPdBm:          s.RSRPdBm,
			SINRdB:           s.SINRdB,
			LinkMarginDB:     s.LinkMarginDB,
		}
		if !s.Usable {
			usable := false
			js.Usable = &usable
		}
		payload.Samples = append(payload.Samples, js)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&payload); err != nil {
		return fmt.Errorf("SaveDataset: encode failed: %w", err)
	}
	return nil
}
