package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"signal-trainer/internal/artifact"
	"signal-trainer/internal/cfg"
	"signal-trainer/internal/common"
	"signal-trainer/internal/dataset"
	"signal-trainer/internal/eval"
	"signal-trainer/internal/metrics"
	"signal-trainer/internal/ml"
	"signal-trainer/internal/storage"
	"signal-trainer/internal/train"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		datasetPath  = flag.String("dataset", "", "Path to the training dataset (overrides DATASET_PATH)")
		artifactPath = flag.String("output", "", "Artifact directory (overrides ARTIFACT_PATH)")
		showHistory  = flag.Bool("history", false, "List recorded runs from DATA_PATH and exit")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *datasetPath != "" {
		c.DatasetPath = *datasetPath
	}
	if *artifactPath != "" {
		c.ArtifactPath = *artifactPath
	}
	setupLogging(c.LogLevel)

	if *showHistory {
		if err := printHistory(c); err != nil {
			log.Fatal().Err(err).Msg("history failed")
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	if c.MetricsPort > 0 {
		startMetricsServer(ctx, c)
	}

	if err := run(c, m); err != nil {
		m.ErrorsTotal.Inc()
		log.Fatal().Err(err).Msg("training failed")
	}
	m.RunsTotal.Inc()
}

// setupLogging applies the configured level and a console writer.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// run executes load, fit, evaluate and save. Nothing is written to the
// artifact path unless every earlier stage succeeded.
func run(c cfg.Settings, m *metrics.Metrics) error {
	ds, err := dataset.Load(c.DatasetPath)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	sum := ds.Summary()
	m.SamplesLoaded.Set(float64(ds.Count))
	log.Info().
		Str("path", c.DatasetPath).
		Int("samples", ds.Count).
		Int("features", sum.FeatureLength).
		Float64("positive_ratio", sum.PositiveRatio).
		Float64("feature_mean", sum.FeatureMean).
		Float64("feature_stddev", sum.FeatureStdDev).
		Msg("Dataset loaded")

	controller := train.NewController(train.ConfigFromSettings(c)).
		WithMetrics(metrics.NewWrapper(m))
	res, err := controller.Fit(ds)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}

	score, err := eval.Evaluate(res.Model, res.Validation.X, res.Validation.Y)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	log.Info().
		Str("run_id", res.RunID).
		Float64("loss", score.Loss).
		Float64("accuracy", score.Accuracy).
		Int("samples", score.Samples).
		Float64("mean_score", score.MeanScore).
		Msg("Validation")

	meta := artifact.Metadata{
		RunID:       res.RunID,
		Epochs:      len(res.History.Epochs),
		BestEpoch:   res.History.BestEpoch,
		Samples:     ds.Count,
		ValLoss:     score.Loss,
		ValAccuracy: score.Accuracy,
	}
	if err := artifact.NewStore(c.ArtifactPath).Save(res.Model, meta); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	recordHistory(c, res, score)
	registerVersion(c, meta)

	log.Info().
		Str("source", c.ArtifactPath).
		Str("target", filepath.Join(filepath.Dir(c.ArtifactPath), common.InterchangeFile)).
		Msg("Artifact ready for conversion")
	return nil
}

// recordHistory stores the run in the history database if DATA_PATH is configured
func recordHistory(c cfg.Settings, res *train.Result, score eval.Result) {
	if c.DataPath == "" {
		return
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, run history not recorded")
		return
	}
	defer store.Close()

	run := storage.RunRecord{
		RunID:        res.RunID,
		StartedAt:    res.StartedAt,
		Duration:     res.Duration,
		DatasetPath:  c.DatasetPath,
		Samples:      res.Train.Len() + res.Validation.Len(),
		TrainSamples: res.Train.Len(),
		ValSamples:   res.Validation.Len(),
		Epochs:       len(res.History.Epochs),
		BestEpoch:    res.History.BestEpoch,
		StoppedEarly: res.History.StoppedEarly,
		LRReductions: res.History.LRReductions,
		ValLoss:      score.Loss,
		ValAccuracy:  score.Accuracy,
		ArtifactPath: c.ArtifactPath,
	}
	epochs := make([]storage.EpochRecord, 0, len(res.History.Epochs))
	for _, e := range res.History.Epochs {
		epochs = append(epochs, storage.EpochRecord{
			RunID:        res.RunID,
			Epoch:        e.Epoch,
			Loss:         e.Loss,
			Accuracy:     e.Accuracy,
			ValLoss:      e.ValLoss,
			ValAccuracy:  e.ValAccuracy,
			LearningRate: e.LearningRate,
		})
	}
	if err := store.StoreRun(run, epochs); err != nil {
		log.Warn().Err(err).Msg("failed to record run history")
	}
}

// registerVersion adds the artifact to the model registry if MODELS_DIR is configured
func registerVersion(c cfg.Settings, meta artifact.Metadata) {
	if c.ModelsDir == "" {
		return
	}
	manager, err := ml.NewModelManager(c.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Msg("model registry unavailable")
		return
	}

	path, err := filepath.Abs(c.ArtifactPath)
	if err != nil {
		path = c.ArtifactPath
	}
	version, err := manager.AddVersion(path, ml.ModelMetrics{
		RunID:           meta.RunID,
		ValLoss:         meta.ValLoss,
		ValAccuracy:     meta.ValAccuracy,
		BestEpoch:       meta.BestEpoch,
		TrainingSamples: meta.Samples,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to register model version")
		return
	}
	if err := manager.ActivateVersion(version.Version); err != nil {
		log.Warn().Err(err).Msg("failed to activate model version")
	}
}

// printHistory lists stored runs, most recent first.
func printHistory(c cfg.Settings) error {
	if c.DataPath == "" {
		return fmt.Errorf("%w: DATA_PATH is not set", common.ErrConfiguration)
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns()
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  epochs=%d best=%d val_loss=%.4f val_acc=%.4f early=%t\n",
			r.RunID, r.StartedAt.Format(time.RFC3339), r.Epochs, r.BestEpoch, r.ValLoss, r.ValAccuracy, r.StoppedEarly)
		epochs, err := store.GetEpochs(r.RunID)
		if err != nil {
			return err
		}
		for _, e := range epochs {
			fmt.Printf("    epoch %4d  loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f lr=%g\n",
				e.Epoch, e.Loss, e.Accuracy, e.ValLoss, e.ValAccuracy, e.LearningRate)
		}
	}
	return nil
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		log.Info().Int("port", c.MetricsPort).Msg("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
