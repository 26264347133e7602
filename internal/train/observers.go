package train

import (
	"math"

	"signal-trainer/internal/model"

	"github.com/rs/zerolog/log"
)

// EpochLogs is the per-epoch history record. Epoch is 1-based and
// LearningRate is the rate the epoch was trained with.
type EpochLogs struct {
	Epoch        int     `json:"epoch"`
	Loss         float64 `json:"loss"`
	Accuracy     float64 `json:"accuracy"`
	ValLoss      float64 `json:"val_loss"`
	ValAccuracy  float64 `json:"val_accuracy"`
	LearningRate float64 `json:"learning_rate"`
}

// Observer reacts to validation results once per epoch.
type Observer interface {
	OnEpochEnd(m *model.Model, logs EpochLogs) error
	OnTrainEnd(m *model.Model) error
}

// Stopper is implemented by observers that can halt the fit loop.
type Stopper interface {
	ShouldStop() bool
}

// plateau tracks the best monitored value and the epochs since it last improved.
type plateau struct {
	minDelta float64
	best     float64
	wait     int
}

func newPlateau(minDelta float64) plateau {
	return plateau{minDelta: minDelta, best: math.Inf(1)}
}

// observe resets on improvement and otherwise increments the wait counter.
func (p *plateau) observe(v float64) bool {
	if v < p.best-p.minDelta {
		p.best = v
		p.wait = 0
		return true
	}
	p.wait++
	return false
}

// EarlyStopping halts training once val_loss has not improved for Patience
// epochs, and restores the weights of the best epoch when training ends.
type EarlyStopping struct {
	Patience     int
	MinDelta     float64
	StoppedEpoch int
	BestEpoch    int

	tracker     plateau
	bestWeights []model.Weight
	stop        bool
}

func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience, tracker: newPlateau(0)}
}

func (e *EarlyStopping) OnEpochEnd(m *model.Model, logs EpochLogs) error {
	e.tracker.minDelta = e.MinDelta
	if e.tracker.observe(logs.ValLoss) {
		e.bestWeights = m.Weights()
		e.BestEpoch = logs.Epoch
		return nil
	}
	if e.tracker.wait >= e.Patience {
		e.stop = true
		e.StoppedEpoch = logs.Epoch
	}
	return nil
}

func (e *EarlyStopping) OnTrainEnd(m *model.Model) error {
	if e.bestWeights == nil {
		return nil
	}
	log.Debug().Int("best_epoch", e.BestEpoch).Float64("best_val_loss", e.tracker.best).Msg("Restoring best weights")
	return m.SetWeights(e.bestWeights)
}

func (e *EarlyStopping) ShouldStop() bool {
	return e.stop
}

// BestValLoss is the lowest validation loss seen so far.
func (e *EarlyStopping) BestValLoss() float64 {
	return e.tracker.best
}

// ReduceLROnPlateau multiplies the learning rate by Factor once val_loss has
// not improved for Patience epochs, never going below MinLR.
type ReduceLROnPlateau struct {
	Factor     float64
	Patience   int
	MinLR      float64
	MinDelta   float64
	Reductions int

	tracker plateau
}

func NewReduceLROnPlateau(factor float64, patience int, minLR float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		Factor:   factor,
		Patience: patience,
		MinLR:    minLR,
		MinDelta: 1e-4,
		tracker:  newPlateau(1e-4),
	}
}

func (r *ReduceLROnPlateau) OnEpochEnd(m *model.Model, logs EpochLogs) error {
	r.tracker.minDelta = r.MinDelta
	if r.tracker.observe(logs.ValLoss) {
		return nil
	}
	if r.tracker.wait < r.Patience {
		return nil
	}

	old := m.LearningRate()
	if old > r.MinLR {
		lr := math.Max(old*r.Factor, r.MinLR)
		m.SetLearningRate(lr)
		r.Reductions++
		r.tracker.wait = 0
		log.Info().
			Int("epoch", logs.Epoch).
			Float64("old_lr", old).
			Float64("new_lr", lr).
			Msg("Reducing learning rate on plateau")
	}
	return nil
}

func (r *ReduceLROnPlateau) OnTrainEnd(m *model.Model) error {
	return nil
}
