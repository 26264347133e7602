package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"signal-trainer/internal/cfg"
	"signal-trainer/internal/common"
	"signal-trainer/internal/dataset"
	"signal-trainer/internal/metrics"
	"signal-trainer/internal/ml"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath = flag.String("model", "", "Artifact directory (defaults to ARTIFACT_PATH)")
		inputPath = flag.String("input", "", "File of feature lines, with or without labels (default stdin)")
		threshold = flag.Float64("threshold", ml.DefaultThreshold, "Approval threshold on the positive probability")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *modelPath == "" {
		*modelPath = c.ArtifactPath
	}

	predictor, err := ml.NewWithMetrics(*modelPath, metrics.NewWrapper(metrics.New()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model")
	}

	in := io.Reader(os.Stdin)
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open input")
		}
		defer f.Close()
		in = f
	}

	stats, err := score(predictor, in, os.Stdout, *threshold)
	if err != nil {
		log.Fatal().Err(err).Msg("prediction failed")
	}

	ev := log.Info().Int("samples", stats.Samples).Int("approved", stats.Approved)
	if stats.Labeled > 0 {
		ev = ev.Float64("accuracy", float64(stats.Correct)/float64(stats.Labeled))
	}
	ev.Msg("Prediction complete")
}

// scoreStats summarizes one scoring pass.
type scoreStats struct {
	Samples  int
	Approved int
	Labeled  int
	Correct  int
}

// score writes one "probability approved [label]" line per input sample.
// Lines carrying a label are also checked against it.
func score(p ml.PredictorInterface, in io.Reader, out io.Writer, threshold float64) (scoreStats, error) {
	var stats scoreStats
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var (
			features []float64
			label    float64
			err      error
		)
		labeled := strings.Contains(line, common.LabelSeparator)
		if labeled {
			features, label, err = dataset.ParseLine(line)
		} else {
			features, err = dataset.ParseFeatures(line)
		}
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}

		prob, err := p.Predict(features)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
		approved := prob >= threshold

		stats.Samples++
		if approved {
			stats.Approved++
		}
		if labeled {
			stats.Labeled++
			if approved == (label >= 0.5) {
				stats.Correct++
			}
			fmt.Fprintf(out, "%.6f %t %g\n", prob, approved, label)
		} else {
			fmt.Fprintf(out, "%.6f %t\n", prob, approved)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("%w: read input: %w", common.ErrIO, err)
	}
	return stats, nil
}
