package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/signalsfoundry/leo-handover/core"
	"github.com/signalsfoundry/leo-handover/internal/config"
	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/internal/observability"
	"github.com/signalsfoundry/leo-handover/internal/pipeline"
	"github.com/signalsfoundry/leo-handover/internal/simdata"
	"github.com/signalsfoundry/leo-handover/internal/store"
	"github.com/signalsfoundry/leo-handover/kb"
	"github.com/signalsfoundry/leo-handover/model"
	"github.com/signalsfoundry/leo-handover/timectrl"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration; empty uses the built-in example")
	datasetPath := flag.String("dataset", "", "path to a JSON sample dataset; empty generates a synthetic one")
	synthDuration := flag.Duration("synth-duration", 30*time.Minute, "window covered by the synthetic dataset")
	synthSeed := flag.Int64("synth-seed", 1, "seed for the synthetic dataset's measurement drops")
	pace := flag.Float64("pace", 0, "replay speedup; 0 replays as fast as possible, 60 replays one dataset minute per wall second")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics during the replay; empty disables it")
	dbPath := flag.String("db", "", "SQLite file to persist the run into; empty skips persistence")
	list := flag.Bool("list", false, "list runs saved in -db and exit")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *list {
		if *dbPath == "" {
			fmt.Fprintln(os.Stderr, "-list requires -db")
			os.Exit(2)
		}
		listRuns(ctx, log, *dbPath)
		return
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("error", err.Error()))
		os.Exit(1)
	}

	tracks := kb.NewTrackStore()
	dataset, start, err := loadSamples(ctx, log, tracks, *datasetPath, *synthDuration, *synthSeed)
	if err != nil {
		log.Error(ctx, "failed to load samples", logging.String("error", err.Error()))
		os.Exit(1)
	}

	collector, err := observability.NewPipelineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise pipeline metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}
	runMetrics, err := observability.NewRunCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise run metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	runner, err := pipeline.New(cfg, tracks, pipeline.Options{
		Clock:      timectrl.NewClock(start, *pace),
		Metrics:    collector,
		RunMetrics: runMetrics,
		Log:        log,
	})
	if err != nil {
		log.Error(ctx, "failed to build pipeline", logging.String("error", err.Error()))
		os.Exit(1)
	}

	res, err := runner.Run(ctx)
	if err != nil {
		log.Error(ctx, "replay failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	printSummary(res)

	if *dbPath != "" {
		persistRun(ctx, log, *dbPath, dataset, cfg, res)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func loadConfig(path string) (*core.Config, error) {
	if path == "" {
		return config.Example(), nil
	}
	return config.Load(path)
}

// loadSamples fills the track store from a JSON dataset file or, when no path
// is given, from a freshly generated synthetic constellation pass. It returns
// the dataset name used for persistence and the replay start instant.
func loadSamples(ctx context.Context, log logging.Logger, tracks *kb.TrackStore, path string, duration time.Duration, seed int64) (string, time.Time, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("open dataset: %w", err)
		}
		defer f.Close()

		summary, err := kb.LoadDataset(tracks, f)
		if err != nil {
			return "", time.Time{}, err
		}
		log.Info(ctx, "dataset loaded",
			logging.String("path", path),
			logging.Any("constellations", summary.Constellations),
			logging.Int("satellites", summary.Satellites),
			logging.Int("samples", summary.Samples),
		)
		name := summary.Name
		if name == "" {
			name = filepath.Base(path)
		}
		return name, summary.Start, nil
	}

	start := time.Now().UTC().Truncate(time.Second)
	samples, err := simdata.Generate(simdata.Params{
		Start:    start,
		Duration: duration,
		Seed:     seed,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate synthetic dataset: %w", err)
	}
	for i := range samples {
		if err := tracks.AddSample(&samples[i]); err != nil {
			return "", time.Time{}, err
		}
	}
	log.Info(ctx, "synthetic dataset generated",
		logging.Int("samples", len(samples)),
		logging.String("window", duration.String()),
	)
	return "synthetic", start, nil
}

func serveMetrics(addr string, collector *observability.PipelineCollector, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func printSummary(res *pipeline.RunResult) {
	fmt.Printf("Run %s: %d samples, %d epochs, %d events, %d decisions in %s\n",
		res.RunID, res.Samples, res.Epochs, len(res.Events), len(res.Decisions),
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	fmt.Println("Thresholds:")
	for _, set := range res.Thresholds {
		fmt.Printf("  %-14s %-3s T1=%8.2f T2=%8.2f hys=%5.2f (%s, n=%d)\n",
			set.Constellation, set.EventType, set.Threshold1, set.Threshold2,
			set.Hysteresis, set.Method, set.SampleCount)
	}

	counts := res.Recommendations()
	recs := make([]model.Recommendation, 0, len(counts))
	for rec := range counts {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i] < recs[j] })
	fmt.Println("Recommendations:")
	for _, rec := range recs {
		fmt.Printf("  %-9s %d\n", rec, counts[rec])
	}

	for _, d := range res.Decisions {
		if d.Recommendation != model.RecommendHandover {
			continue
		}
		fmt.Printf("Handover at %s: %s -> %s (%s, confidence %.2f)\n",
			d.Timestamp.Format(time.RFC3339), d.ServingID, d.TargetID, d.RuleName, d.Confidence)
	}
}

func persistRun(ctx context.Context, log logging.Logger, path, dataset string, cfg *core.Config, res *pipeline.RunResult) {
	st, err := store.NewStore(path)
	if err != nil {
		log.Error(ctx, "failed to open run store", logging.String("db", path), logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	err = st.SaveRun(ctx, store.RunRecord{
		RunID:      res.RunID,
		Dataset:    dataset,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Epochs:     res.Epochs,
		Samples:    res.Samples,
		Config:     *cfg,
		Decisions:  res.Decisions,
		Events:     res.Events,
	})
	if err != nil {
		log.Error(ctx, "failed to persist run", logging.String("db", path), logging.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Printf("Saved run %s to %s\n", res.RunID, path)
}

func listRuns(ctx context.Context, log logging.Logger, path string) {
	st, err := store.NewStore(path)
	if err != nil {
		log.Error(ctx, "failed to open run store", logging.String("db", path), logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, 20)
	if err != nil {
		log.Error(ctx, "failed to list runs", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No saved runs.")
		return
	}

	fmt.Printf("%-36s %-16s %-20s %6s %7s %6s %9s\n",
		"RUN", "DATASET", "STARTED", "EPOCHS", "SAMPLES", "EVENTS", "HANDOVERS")
	for _, run := range runs {
		counts, err := st.CountRecommendations(ctx, run.RunID)
		if err != nil {
			log.Warn(ctx, "failed to count recommendations", logging.String("run_id", run.RunID), logging.String("error", err.Error()))
		}
		fmt.Printf("%-36s %-16s %-20s %6d %7d %6d %9d\n",
			run.RunID, run.Dataset, run.StartedAt.Format(time.RFC3339),
			run.Epochs, run.Samples, run.Events, counts[model.RecommendHandover])
	}
}
