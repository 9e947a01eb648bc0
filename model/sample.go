package model

import "time"

// CandidateSample is one timestamped measurement of a candidate satellite as
// seen from the serving cell's reference location. Geometry fields come from
// deterministic orbit propagation and are always present. Radio measurements
// come from the measurement collection upstream and may be missing; presence
// is checked per field, never inferred from a zero value.
type CandidateSample struct {
	SatelliteID   string    `json:"SatelliteID"`
	Constellation string    `json:"Constellation"`
	Timestamp     time.Time `json:"Timestamp"`

	ElevationDeg     float64 `json:"ElevationDeg"`
	AzimuthDeg       float64 `json:"AzimuthDeg"`
	SlantRangeKm     float64 `json:"SlantRangeKm"`
	GroundDistanceKm float64 `json:"GroundDistanceKm"`

	// RSRPdBm and SINRdB are omitted when the upstream collector had no
	// measurement for this satellite at this timestamp.
	RSRPdBm *float64 `json:"RSRPdBm,omitempty"`
	SINRdB  *float64 `json:"SINRdB,omitempty"`

	// LinkMarginDB is an optional precomputed fade margin.
	LinkMarginDB *float64 `json:"LinkMarginDB,omitempty"`

	// Usable is the upstream serviceability verdict for this sample.
	Usable bool `json:"Usable"`
}

// HasRSRP reports whether the sample carries an RSRP measurement.
func (s *CandidateSample) HasRSRP() bool { return s.RSRPdBm != nil }

// HasSINR reports whether the sample carries a SINR measurement.
func (s *CandidateSample) HasSINR() bool { return s.SINRdB != nil }

// HasLinkMargin reports whether the sample carries a link margin.
func (s *CandidateSample) HasLinkMargin() bool { return s.LinkMarginDB != nil }

// Clone returns a deep copy so callers can hold samples across store updates.
func (s *CandidateSample) Clone() CandidateSample {
	out := *s
	out.RSRPdBm = clonePtr(s.RSRPdBm)
	out.SINRdB = clonePtr(s.SINRdB)
	out.LinkMarginDB = clonePtr(s.LinkMarginDB)
	return out
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float64Ptr is a convenience for building samples in loaders and tests.
func Float64Ptr(v float64) *float64 { return &v }
