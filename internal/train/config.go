package train

import (
	"fmt"

	"signal-trainer/internal/cfg"
	"signal-trainer/internal/common"
)

// Config is everything one training run needs, passed explicitly rather than
// read from ambient state.
type Config struct {
	ValidationSplit float64
	Seed            uint64
	MaxEpochs       int
	BatchSize       int
	Patience        int
	LearningRate    float64
	LRFactor        float64
	MinLR           float64
}

func DefaultConfig() Config {
	return Config{
		ValidationSplit: common.DefaultValidationSplit,
		Seed:            common.DefaultSeed,
		MaxEpochs:       common.DefaultMaxEpochs,
		BatchSize:       common.DefaultBatchSize,
		Patience:        common.DefaultPatience,
		LearningRate:    common.DefaultLearningRate,
		LRFactor:        common.DefaultLRFactor,
		MinLR:           common.DefaultMinLR,
	}
}

// ConfigFromSettings copies the training fields out of the loaded settings.
func ConfigFromSettings(s cfg.Settings) Config {
	return Config{
		ValidationSplit: s.ValidationSplit,
		Seed:            s.Seed,
		MaxEpochs:       s.MaxEpochs,
		BatchSize:       s.BatchSize,
		Patience:        s.Patience,
		LearningRate:    s.LearningRate,
		LRFactor:        s.LRFactor,
		MinLR:           s.MinLR,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ValidationSplit <= 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("%w: validation split %g outside (0, 1)", common.ErrConfiguration, c.ValidationSplit)
	case c.MaxEpochs < 1:
		return fmt.Errorf("%w: max epochs must be positive, got %d", common.ErrConfiguration, c.MaxEpochs)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be positive, got %d", common.ErrConfiguration, c.BatchSize)
	case c.Patience < 1:
		return fmt.Errorf("%w: patience must be positive, got %d", common.ErrConfiguration, c.Patience)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive, got %g", common.ErrConfiguration, c.LearningRate)
	case c.LRFactor <= 0 || c.LRFactor >= 1:
		return fmt.Errorf("%w: learning rate factor %g outside (0, 1)", common.ErrConfiguration, c.LRFactor)
	case c.MinLR <= 0:
		return fmt.Errorf("%w: min learning rate must be positive, got %g", common.ErrConfiguration, c.MinLR)
	}
	return nil
}
