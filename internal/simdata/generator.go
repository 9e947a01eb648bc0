package simdata

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/signalsfoundry/leo-handover/model"
)

// ErrInvalidParams reports unusable generator parameters.
var ErrInvalidParams = errors.New("invalid generator parameters")

// Link-budget constants for the synthetic downlink. The model only has to
// produce a monotonic, realistically-ranged distance vs. quality
// relationship, not an engineering-grade budget.
const (
	noiseFloorDBm        = -117.0
	interferenceMarginDB = 2.0
	requiredSINRdB       = 3.0
	marginCapDB          = 20.0
)

// ConstellationSpec describes one synthetic Walker-style shell. When TLE is
// non-empty those published element sets replace the synthesized shell and
// only the link-budget fields still apply.
type ConstellationSpec struct {
	Name           string
	Planes         int
	PerPlane       int
	InclinationDeg float64
	// MeanMotion is in revolutions per day and fixes the shell altitude.
	MeanMotion     float64
	EccentricityE7 int
	FrequencyGHz   float64
	EIRPdBW        float64
	RxGainDBi      float64
	CatalogBase    int
	IntlDesignator string

	TLE []TLEEntry
}

func (s *ConstellationSpec) applyDefaults() {
	if s.Planes <= 0 {
		s.Planes = 6
	}
	if s.PerPlane <= 0 {
		s.PerPlane = 11
	}
	if s.InclinationDeg == 0 {
		s.InclinationDeg = 86.4
	}
	if s.MeanMotion <= 0 {
		s.MeanMotion = 14.34
	}
	if s.EccentricityE7 <= 0 {
		s.EccentricityE7 = 2000
	}
	if s.FrequencyGHz <= 0 {
		s.FrequencyGHz = 11.7
	}
	if s.EIRPdBW == 0 {
		s.EIRPdBW = 37
	}
	if s.RxGainDBi == 0 {
		s.RxGainDBi = 5
	}
	if s.CatalogBase <= 0 {
		s.CatalogBase = 70000
	}
	if s.IntlDesignator == "" {
		s.IntlDesignator = "24001A"
	}
}

// Params controls one dataset generation run.
type Params struct {
	Start          time.Time
	Duration       time.Duration
	SampleInterval time.Duration
	Observer       Observer

	// MinElevationDeg is the emission mask: samples at or below it are not
	// written at all. UsableElevationDeg is the upstream serviceability
	// verdict carried on each sample; zero means the 5° default.
	MinElevationDeg    float64
	UsableElevationDeg float64

	// Drop rates in [0, 1] leave the corresponding measurement unset,
	// exercising downstream missing-field handling.
	RSRPDropRate   float64
	SINRDropRate   float64
	MarginDropRate float64

	Seed           int64
	Constellations []ConstellationSpec
}

func (p *Params) applyDefaults() {
	if p.Duration <= 0 {
		p.Duration = 30 * time.Minute
	}
	if p.SampleInterval <= 0 {
		p.SampleInterval = 10 * time.Second
	}
	if p.Observer == (Observer{}) {
		p.Observer = Observer{LatDeg: 40.0, LonDeg: -105.0}
	}
	if p.UsableElevationDeg == 0 {
		p.UsableElevationDeg = 5
	}
	if len(p.Constellations) == 0 {
		p.Constellations = DefaultConstellations()
	}
}

// DefaultConstellations returns shells modelled on the two operational
// constellations the example configuration names.
func DefaultConstellations() []ConstellationSpec {
	return []ConstellationSpec{
		{
			Name:           "iridium-next",
			Planes:         6,
			PerPlane:       11,
			InclinationDeg: 86.4,
			MeanMotion:     14.34,
			CatalogBase:    41917,
			IntlDesignator: "17003A",
		},
		{
			// A subset of the full shell keeps generation quick.
			Name:           "oneweb",
			Planes:         4,
			PerPlane:       9,
			InclinationDeg: 87.9,
			MeanMotion:     13.15,
			CatalogBase:    44057,
			IntlDesignator: "19010A",
		},
	}
}

// Generate propagates every satellite across the configured window and
// returns the visible samples in timestamp-major order. Each satellite's
// samples are strictly time-ordered, so the result loads directly into a
// track store.
func Generate(p Params) ([]model.CandidateSample, error) {
	if p.Start.IsZero() {
		return nil, fmt.Errorf("%w: start time required", ErrInvalidParams)
	}
	p.applyDefaults()

	type member struct {
		constellation string
		freqGHz       float64
		eirpDBW       float64
		rxGainDBi     float64
		orb           orbiter
	}
	var members []member
	for i := range p.Constellations {
		spec := &p.Constellations[i]
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: constellation %d has no name", ErrInvalidParams, i)
		}
		spec.applyDefaults()

		if len(spec.TLE) > 0 {
			for _, e := range spec.TLE {
				id := e.Name
				if id == "" {
					id = spec.Name + "-" + catalogNumber(e.Line1)
				}
				members = append(members, member{
					constellation: spec.Name,
					freqGHz:       spec.FrequencyGHz,
					eirpDBW:       spec.EIRPdBW,
					rxGainDBi:     spec.RxGainDBi,
					orb:           newOrbiter(id, e.Line1, e.Line2),
				})
			}
			continue
		}

		for plane := 0; plane < spec.Planes; plane++ {
			raan := 360 * float64(plane) / float64(spec.Planes)
			// Stagger slots between planes so satellites do not cross the
			// equator in lockstep.
			phase := 360 * float64(plane) / float64(spec.Planes*spec.PerPlane)
			for slot := 0; slot < spec.PerPlane; slot++ {
				ma := math.Mod(360*float64(slot)/float64(spec.PerPlane)+phase, 360)
				id := fmt.Sprintf("%s-%d%02d", spec.Name, plane+1, slot+1)
				catnum := spec.CatalogBase + plane*spec.PerPlane + slot
				line1, line2 := tleLines(catnum, spec.IntlDesignator, p.Start,
					spec.InclinationDeg, raan, spec.EccentricityE7, 0, ma, spec.MeanMotion)
				members = append(members, member{
					constellation: spec.Name,
					freqGHz:       spec.FrequencyGHz,
					eirpDBW:       spec.EIRPdBW,
					rxGainDBi:     spec.RxGainDBi,
					orb:           newOrbiter(id, line1, line2),
				})
			}
		}
	}

	obs := p.Observer.ECEF()
	rng := rand.New(rand.NewSource(p.Seed))

	steps := int(p.Duration / p.SampleInterval)
	if steps < 1 {
		steps = 1
	}

	var samples []model.CandidateSample
	for i := 0; i < steps; i++ {
		ts := p.Start.Add(time.Duration(i) * p.SampleInterval)
		for _, m := range members {
			pos := m.orb.positionECEF(ts)
			elev := ElevationDegrees(obs, pos)
			if elev <= p.MinElevationDeg {
				continue
			}

			slant := obs.DistanceTo(pos)
			rsrp := receivedPowerDBm(m.eirpDBW, m.rxGainDBi, m.freqGHz, slant)
			sinr := rsrp - noiseFloorDBm - interferenceMarginDB
			margin := sinr - requiredSINRdB
			if margin > marginCapDB {
				margin = marginCapDB
			}

			s := model.CandidateSample{
				SatelliteID:      m.orb.id,
				Constellation:    m.constellation,
				Timestamp:        ts,
				ElevationDeg:     elev,
				AzimuthDeg:       AzimuthDegrees(obs, pos),
				SlantRangeKm:     slant,
				GroundDistanceKm: GroundDistanceKm(obs, pos),
				Usable:           elev >= p.UsableElevationDeg,
			}
			if rng.Float64() >= p.RSRPDropRate {
				s.RSRPdBm = model.Float64Ptr(rsrp)
			}
			if rng.Float64() >= p.SINRDropRate {
				s.SINRdB = model.Float64Ptr(sinr)
			}
			if rng.Float64() >= p.MarginDropRate {
				s.LinkMarginDB = model.Float64Ptr(margin)
			}
			samples = append(samples, s)
		}
	}
	return samples, nil
}

// receivedPowerDBm evaluates the downlink budget at distanceKm: EIRP plus
// terminal gain minus free-space path loss, converted to dBm.
//
// Free-space path loss in dB: 92.45 + 20 log10(d_km) + 20 log10(f_GHz).
func receivedPowerDBm(eirpDBW, rxGainDBi, fGHz, distanceKm float64) float64 {
	if distanceKm < 1 {
		distanceKm = 1
	}
	fspl := 92.45 + 20*math.Log10(distanceKm) + 20*math.Log10(fGHz)
	return eirpDBW + rxGainDBi - fspl + 30
}
