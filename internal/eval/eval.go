// Package eval scores a fitted classifier on a holdout subset using the same
// loss and accuracy definitions as training.
package eval

import (
	"fmt"

	"signal-trainer/internal/common"
	"signal-trainer/internal/model"

	"github.com/montanaflynn/stats"
)

// Result holds holdout metrics. Loss includes the L2 penalty, as during fitting.
type Result struct {
	Loss        float64
	Accuracy    float64
	Samples     int
	MeanScore   float64
	ScoreStdDev float64
}

// Evaluate runs an inference-mode pass over x and compares against y. Weights,
// batch-norm statistics and optimizer state are left untouched; layer caches
// from the forward pass are overwritten.
func Evaluate(m *model.Model, x *model.Tensor, y []float64) (Result, error) {
	if x == nil || x.Batch() != len(y) {
		return Result{}, fmt.Errorf("%w: evaluation inputs and labels differ in length", common.ErrShape)
	}

	logits, err := m.Logits(x)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate: %w", err)
	}

	n := float64(len(y))
	res := Result{Samples: len(y), Loss: m.RegularizationLoss()}
	scores := make(stats.Float64Data, len(logits))
	correct := 0
	for i, z := range logits {
		res.Loss += model.BinaryCrossentropy(z, y[i]) / n
		scores[i] = model.Sigmoid(z)
		if model.BinaryAccuracy(scores[i], y[i]) {
			correct++
		}
	}
	res.Accuracy = float64(correct) / n

	res.MeanScore, _ = scores.Mean()
	res.ScoreStdDev, _ = scores.StandardDeviation()

	return res, nil
}
