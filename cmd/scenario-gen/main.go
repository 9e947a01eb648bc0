// scenario-gen writes a synthetic LEO sample dataset that handover-replay
// can load with -dataset. Satellites come from generated Walker shells, or
// from a published element-set file given with -tle, and are propagated over
// the requested window for a single ground observer.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/signalsfoundry/leo-handover/internal/simdata"
	"github.com/signalsfoundry/leo-handover/kb"
)

func main() {
	out := flag.String("out", "dataset.json", "output file; - writes to stdout")
	name := flag.String("name", "synthetic", "dataset name recorded in the file")
	tlePath := flag.String("tle", "", "two/three-line element file; replaces the built-in shells")
	tleConstellation := flag.String("constellation", "custom", "constellation label for -tle satellites")
	startFlag := flag.String("start", "", "window start as RFC 3339; empty uses the current time")
	duration := flag.Duration("duration", 30*time.Minute, "window duration")
	interval := flag.Duration("interval", 10*time.Second, "sample interval")
	lat := flag.Float64("lat", 40.0, "observer latitude in degrees")
	lon := flag.Float64("lon", -105.0, "observer longitude in degrees")
	minElev := flag.Float64("min-elevation", 0, "emission mask in degrees; samples at or below it are not written")
	rsrpDrop := flag.Float64("rsrp-drop", 0.02, "fraction of samples with RSRP withheld")
	sinrDrop := flag.Float64("sinr-drop", 0.02, "fraction of samples with SINR withheld")
	marginDrop := flag.Float64("margin-drop", 0.5, "fraction of samples with link margin withheld")
	seed := flag.Int64("seed", 1, "seed for measurement drops")
	flag.Parse()

	start := time.Now().UTC().Truncate(time.Second)
	if *startFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *startFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -start: %v\n", err)
			os.Exit(2)
		}
		start = parsed
	}

	params := simdata.Params{
		Start:           start,
		Duration:        *duration,
		SampleInterval:  *interval,
		Observer:        simdata.Observer{LatDeg: *lat, LonDeg: *lon},
		MinElevationDeg: *minElev,
		RSRPDropRate:    *rsrpDrop,
		SINRDropRate:    *sinrDrop,
		MarginDropRate:  *marginDrop,
		Seed:            *seed,
	}
	if *tlePath != "" {
		entries, err := readTLEFile(*tlePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		params.Constellations = []simdata.ConstellationSpec{{
			Name: *tleConstellation,
			TLE:  entries,
		}}
	}

	samples, err := simdata.Generate(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate: %v\n", err)
		os.Exit(1)
	}

	w := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := kb.SaveDataset(w, *name, time.Now().UTC(), samples); err != nil {
		fmt.Fprintf(os.Stderr, "write dataset: %v\n", err)
		os.Exit(1)
	}
	if *out != "-" {
		fmt.Printf("Wrote %d samples covering %s to %s\n", len(samples), *duration, *out)
	}
}

func readTLEFile(path string) ([]simdata.TLEEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	entries, err := simdata.ReadTLE(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}
