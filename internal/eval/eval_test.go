package eval

import (
	"errors"
	"math"
	"testing"

	"signal-trainer/internal/common"
	"signal-trainer/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	m, err := model.Build(model.DefaultInputShape(), model.Options{Seed: 42})
	require.NoError(t, err)

	x := model.NewTensor(4, 15, 3, 1)
	for i := range x.Data {
		x.Data[i] = float64(i%7) - 3
	}
	y := []float64{0, 1, 1, 0}

	probs, err := m.Predict(x)
	require.NoError(t, err)

	res, err := Evaluate(m, x, y)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Samples)

	// recompute from probabilities to confirm the definitions line up
	want := m.RegularizationLoss()
	correct := 0
	for i, p := range probs {
		want += -(y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)) / 4
		if model.BinaryAccuracy(p, y[i]) {
			correct++
		}
	}
	assert.InDelta(t, want, res.Loss, 1e-9)
	assert.InDelta(t, float64(correct)/4, res.Accuracy, 1e-12)
	assert.GreaterOrEqual(t, res.MeanScore, 0.0)
	assert.LessOrEqual(t, res.MeanScore, 1.0)
}

func TestEvaluate_ReadOnly(t *testing.T) {
	m, err := model.Build(model.DefaultInputShape(), model.Options{Seed: 1})
	require.NoError(t, err)
	before := m.Weights()
	state := m.OptimizerState()

	x := model.NewTensor(3, 15, 3, 1)
	first, err := Evaluate(m, x, []float64{0, 1, 0})
	require.NoError(t, err)
	second, err := Evaluate(m, x, []float64{0, 1, 0})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, m.Weights())
	assert.Equal(t, state, m.OptimizerState())
}

func TestEvaluate_LengthMismatch(t *testing.T) {
	m, err := model.Build(model.DefaultInputShape(), model.Options{Seed: 1})
	require.NoError(t, err)

	_, err = Evaluate(m, model.NewTensor(3, 15, 3, 1), []float64{0, 1})
	assert.True(t, errors.Is(err, common.ErrShape))

	_, err = Evaluate(m, model.NewTensor(0, 15, 3, 1), nil)
	assert.True(t, errors.Is(err, common.ErrShape))
}
