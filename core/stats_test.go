package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-handover/model"
)

func statsSample(id string, distKm float64, rsrp *float64) model.CandidateSample {
	return model.CandidateSample{
		SatelliteID:      id,
		Constellation:    "leo-a",
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ElevationDeg:     45,
		GroundDistanceKm: distKm,
		RSRPdBm:          rsrp,
		Usable:           true,
	}
}

// TestCollectPercentiles checks the interpolated percentiles and moments
// over a small known distribution.
func TestCollectPercentiles(t *testing.T) {
	samples := []model.CandidateSample{
		statsSample("sat-1", 10, model.Float64Ptr(-100)),
		statsSample("sat-2", 20, model.Float64Ptr(-95)),
		statsSample("sat-3", 30, model.Float64Ptr(-90)),
		statsSample("sat-4", 40, model.Float64Ptr(-85)),
	}

	set, skips := NewCollector(nil).Collect(context.Background(), samples)
	if len(skips) != 0 {
		t.Fatalf("unexpected skips: %v", skips)
	}

	st, ok := set.Lookup("leo-a", model.QuantityGroundDistance)
	if !ok {
		t.Fatalf("no distance statistics for leo-a")
	}
	if st.Count != 4 {
		t.Fatalf("Count = %d, want 4", st.Count)
	}
	if st.Min != 10 || st.Max != 40 {
		t.Fatalf("Min/Max = %v/%v, want 10/40", st.Min, st.Max)
	}
	if st.Mean != 25 {
		t.Fatalf("Mean = %v, want 25", st.Mean)
	}
	wantStdDev := math.Sqrt(125) // population stddev of 10,20,30,40
	if math.Abs(st.StdDev-wantStdDev) > 1e-9 {
		t.Fatalf("StdDev = %v, want %v", st.StdDev, wantStdDev)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"P25", st.P25, 17.5},
		{"P50", st.P50, 25},
		{"P75", st.P75, 32.5},
		{"P95", st.P95, 38.5},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

// TestCollectSkipsMissingRSRP verifies that a sample without an RSRP
// measurement is excluded from the RSRP distribution only, and that the
// exclusion is reported.
func TestCollectSkipsMissingRSRP(t *testing.T) {
	samples := []model.CandidateSample{
		statsSample("sat-1", 100, model.Float64Ptr(-100)),
		statsSample("sat-2", 200, nil),
		statsSample("sat-3", 300, model.Float64Ptr(-90)),
	}

	set, skips := NewCollector(nil).Collect(context.Background(), samples)

	dist, ok := set.Lookup("leo-a", model.QuantityGroundDistance)
	if !ok || dist.Count != 3 {
		t.Fatalf("distance Count = %v, want 3", dist)
	}
	rsrp, ok := set.Lookup("leo-a", model.QuantityRSRP)
	if !ok || rsrp.Count != 2 {
		t.Fatalf("rsrp Count = %v, want 2", rsrp)
	}
	if skips["missing_rsrp_dbm"] != 1 {
		t.Fatalf("skips = %v, want missing_rsrp_dbm=1", skips)
	}
}

// TestCollectSingleSample covers the degenerate one-sample distribution:
// every percentile collapses onto the value and the spread is zero.
func TestCollectSingleSample(t *testing.T) {
	set, _ := NewCollector(nil).Collect(context.Background(), []model.CandidateSample{
		statsSample("sat-1", 550, model.Float64Ptr(-101)),
	})

	st, ok := set.Lookup("leo-a", model.QuantityGroundDistance)
	if !ok {
		t.Fatalf("no statistics")
	}
	if st.P25 != 550 || st.P50 != 550 || st.P75 != 550 || st.P95 != 550 {
		t.Fatalf("percentiles = %v/%v/%v/%v, want all 550", st.P25, st.P50, st.P75, st.P95)
	}
	if st.StdDev != 0 {
		t.Fatalf("StdDev = %v, want 0", st.StdDev)
	}
}

// TestCollectGroupsByConstellation ensures distributions do not bleed across
// constellations.
func TestCollectGroupsByConstellation(t *testing.T) {
	a := statsSample("sat-1", 100, model.Float64Ptr(-100))
	b := statsSample("sat-2", 900, model.Float64Ptr(-80))
	b.Constellation = "leo-b"

	set, _ := NewCollector(nil).Collect(context.Background(), []model.CandidateSample{a, b})

	sa, ok := set.Lookup("leo-a", model.QuantityGroundDistance)
	if !ok || sa.Count != 1 || sa.Mean != 100 {
		t.Fatalf("leo-a stats = %+v", sa)
	}
	sb, ok := set.Lookup("leo-b", model.QuantityGroundDistance)
	if !ok || sb.Count != 1 || sb.Mean != 900 {
		t.Fatalf("leo-b stats = %+v", sb)
	}
}
