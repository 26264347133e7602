// Package train owns the train/validation split and the fit loop of the
// classifier, including the early-stopping and learning-rate plateau policies.
package train

import (
	"fmt"
	"math/rand/v2"
	"time"

	"signal-trainer/internal/dataset"
	"signal-trainer/internal/eval"
	"signal-trainer/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the controller
type MetricsInterface interface {
	EpochsInc()
	EpochDurationObserve(float64)
	TrainLossSet(float64)
	TrainAccuracySet(float64)
	ValLossSet(float64)
	ValAccuracySet(float64)
	LearningRateSet(float64)
	LRReductionsInc()
	EarlyStopsInc()
}

// Builder constructs a ready-to-fit model for an input shape.
type Builder func(shape model.InputShape, opts model.Options) (*model.Model, error)

// History is the full per-epoch record of a run.
type History struct {
	Epochs       []EpochLogs
	BestEpoch    int
	BestValLoss  float64
	StoppedEarly bool
	StoppedEpoch int
	LRReductions int
}

// Result is the fitted model frozen at the best validation epoch, plus the
// data partitions it was fitted and validated on.
type Result struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Model      *model.Model
	History    History
	Train      Subset
	Validation Subset
}

type Controller struct {
	cfg       Config
	shape     model.InputShape
	build     Builder
	metrics   MetricsInterface
	observers []Observer
}

// NewController returns a controller fitting the default classifier on the
// 15x3x1 input layout.
func NewController(c Config) *Controller {
	return &Controller{cfg: c, shape: model.DefaultInputShape(), build: model.Build}
}

func (c *Controller) WithMetrics(m MetricsInterface) *Controller {
	c.metrics = m
	return c
}

func (c *Controller) WithBuilder(b Builder) *Controller {
	c.build = b
	return c
}

// WithObserver adds an observer invoked after the built-in policies.
func (c *Controller) WithObserver(o Observer) *Controller {
	c.observers = append(c.observers, o)
	return c
}

// Fit validates the configuration, reshapes and splits ds, then trains for up
// to MaxEpochs. Every failure happens before the first epoch.
func (c *Controller) Fit(ds *dataset.Dataset) (*Result, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	x, err := Reshape(ds.Features, c.shape)
	if err != nil {
		return nil, err
	}

	part, err := Split(ds.Count, c.cfg.ValidationSplit, c.cfg.Seed)
	if err != nil {
		return nil, err
	}
	trainSet := subset(x, ds.Labels, part.Train)
	valSet := subset(x, ds.Labels, part.Validation)

	m, err := c.build(c.shape, model.Options{Seed: c.cfg.Seed, LearningRate: c.cfg.LearningRate})
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}

	runID := newRunID()
	trainable, frozen := m.ParamCount()
	log.Info().
		Str("run_id", runID).
		Int("train_samples", trainSet.Len()).
		Int("val_samples", valSet.Len()).
		Int("trainable_params", trainable).
		Int("non_trainable_params", frozen).
		Int("max_epochs", c.cfg.MaxEpochs).
		Int("batch_size", c.cfg.BatchSize).
		Msg("Starting training")

	early := NewEarlyStopping(c.cfg.Patience)
	reduce := NewReduceLROnPlateau(c.cfg.LRFactor, c.cfg.Patience, c.cfg.MinLR)
	observers := append([]Observer{early, reduce}, c.observers...)

	res := &Result{RunID: runID, StartedAt: time.Now(), Model: m, Train: trainSet, Validation: valSet}
	rng := rand.New(rand.NewPCG(c.cfg.Seed, shuffleStream))

	for epoch := 1; epoch <= c.cfg.MaxEpochs; epoch++ {
		start := time.Now()

		logs, err := c.runEpoch(m, trainSet, valSet, rng)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		logs.Epoch = epoch
		res.History.Epochs = append(res.History.Epochs, logs)

		log.Info().
			Int("epoch", epoch).
			Float64("loss", logs.Loss).
			Float64("accuracy", logs.Accuracy).
			Float64("val_loss", logs.ValLoss).
			Float64("val_accuracy", logs.ValAccuracy).
			Float64("lr", logs.LearningRate).
			Msg("Epoch complete")

		for _, o := range observers {
			if err := o.OnEpochEnd(m, logs); err != nil {
				return nil, fmt.Errorf("epoch %d observer: %w", epoch, err)
			}
		}

		if m.LearningRate() != logs.LearningRate && c.metrics != nil {
			c.metrics.LRReductionsInc()
		}
		c.recordEpoch(logs, time.Since(start), m.LearningRate())

		if stopRequested(observers) {
			res.History.StoppedEarly = true
			res.History.StoppedEpoch = epoch
			log.Info().
				Int("epoch", epoch).
				Int("best_epoch", early.BestEpoch).
				Msg("Early stopping: validation loss stopped improving")
			if c.metrics != nil {
				c.metrics.EarlyStopsInc()
			}
			break
		}
	}

	for _, o := range observers {
		if err := o.OnTrainEnd(m); err != nil {
			return nil, fmt.Errorf("finish training: %w", err)
		}
	}

	res.History.BestEpoch = early.BestEpoch
	res.History.BestValLoss = early.BestValLoss()
	res.History.LRReductions = reduce.Reductions
	res.Duration = time.Since(res.StartedAt)

	return res, nil
}

// runEpoch makes one shuffled pass over the training subset, then scores the validation subset.
func (c *Controller) runEpoch(m *model.Model, trainSet, valSet Subset, rng *rand.Rand) (EpochLogs, error) {
	logs := EpochLogs{LearningRate: m.LearningRate()}

	n := trainSet.Len()
	order := rng.Perm(n)
	var lossSum float64
	correct := 0

	for lo := 0; lo < n; lo += c.cfg.BatchSize {
		hi := min(lo+c.cfg.BatchSize, n)
		idx := order[lo:hi]

		yb := make([]float64, len(idx))
		for i, k := range idx {
			yb[i] = trainSet.Y[k]
		}

		br, err := m.TrainOnBatch(trainSet.X.Gather(idx), yb)
		if err != nil {
			return logs, err
		}
		lossSum += br.Loss * float64(br.Size)
		correct += br.Correct
	}
	logs.Loss = lossSum / float64(n)
	logs.Accuracy = float64(correct) / float64(n)

	val, err := eval.Evaluate(m, valSet.X, valSet.Y)
	if err != nil {
		return logs, err
	}
	logs.ValLoss = val.Loss
	logs.ValAccuracy = val.Accuracy

	return logs, nil
}

func (c *Controller) recordEpoch(logs EpochLogs, d time.Duration, lr float64) {
	if c.metrics == nil {
		return
	}
	c.metrics.EpochsInc()
	c.metrics.EpochDurationObserve(d.Seconds())
	c.metrics.TrainLossSet(logs.Loss)
	c.metrics.TrainAccuracySet(logs.Accuracy)
	c.metrics.ValLossSet(logs.ValLoss)
	c.metrics.ValAccuracySet(logs.ValAccuracy)
	c.metrics.LearningRateSet(lr)
}

func stopRequested(observers []Observer) bool {
	for _, o := range observers {
		if s, ok := o.(Stopper); ok && s.ShouldStop() {
			return true
		}
	}
	return false
}

// newRunID uses UUIDv7 so run keys sort by creation time.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
