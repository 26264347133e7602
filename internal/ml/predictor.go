package ml

import (
	"fmt"
	"sync"
	"time"

	"signal-trainer/internal/artifact"
	"signal-trainer/internal/common"
	"signal-trainer/internal/model"

	"github.com/rs/zerolog/log"
)

// DefaultThreshold matches rounding the sigmoid output to the nearest class.
const DefaultThreshold = 0.5

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	PredictionScoresObserve(float64)
}

// Predictor runs inference-mode forward passes over a loaded artifact.
type Predictor struct {
	mu       sync.Mutex
	model    *model.Model
	metadata artifact.Metadata
	path     string
	metrics  MetricsInterface
}

var _ PredictorInterface = (*Predictor)(nil)

func New(path string) (*Predictor, error) {
	return NewWithMetrics(path, nil)
}

func NewWithMetrics(path string, metrics MetricsInterface) (*Predictor, error) {
	loaded, err := artifact.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Str("run_id", loaded.Metadata.RunID).
		Float64("val_accuracy", loaded.Metadata.ValAccuracy).
		Msg("Model loaded")

	return &Predictor{
		model:    loaded.Model,
		metadata: loaded.Metadata,
		path:     path,
		metrics:  metrics,
	}, nil
}

// Metadata returns the run metadata stored with the artifact.
func (p *Predictor) Metadata() artifact.Metadata {
	return p.metadata
}

// Predict returns the positive-class probability for one flat feature vector.
func (p *Predictor) Predict(features []float64) (float64, error) {
	scores, err := p.PredictBatch([][]float64{features})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// PredictBatch scores several flat feature vectors in one forward pass.
func (p *Predictor) PredictBatch(batch [][]float64) ([]float64, error) {
	if p == nil {
		return nil, fmt.Errorf("predictor is nil")
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		}
	}()

	x, err := p.tensor(batch)
	if err != nil {
		p.fail()
		return nil, err
	}

	// layer caches are reused across forward passes
	p.mu.Lock()
	scores, err := p.model.Predict(x)
	p.mu.Unlock()
	if err != nil {
		p.fail()
		return nil, err
	}

	if p.metrics != nil {
		for _, s := range scores {
			p.metrics.PredictionsInc()
			p.metrics.PredictionScoresObserve(s)
		}
	}
	return scores, nil
}

// Approve reports whether the predicted probability reaches threshold.
func (p *Predictor) Approve(features []float64, threshold float64) bool {
	if p == nil {
		return false
	}
	score, err := p.Predict(features)
	if err != nil {
		log.Warn().Err(err).Msg("Prediction failed, signal rejected")
		return false
	}
	return score >= threshold
}

func (p *Predictor) tensor(batch [][]float64) (*model.Tensor, error) {
	in := p.model.InputShape()
	size := in.Size()
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty batch", common.ErrShape)
	}

	x := model.NewTensor(len(batch), in.Height, in.Width, in.Channels)
	for i, f := range batch {
		if len(f) != size {
			return nil, fmt.Errorf("%w: sample %d has %d features, want %d", common.ErrShape, i, len(f), size)
		}
		copy(x.Data[i*size:], f)
	}
	return x, nil
}

func (p *Predictor) fail() {
	if p.metrics != nil {
		p.metrics.PredictionFailuresInc()
	}
}
