package train

import (
	"testing"

	"signal-trainer/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Build(model.DefaultInputShape(), model.Options{Seed: 1})
	require.NoError(t, err)
	return m
}

// perturb shifts every weight so snapshots taken at different epochs differ.
func perturb(t *testing.T, m *model.Model, delta float64) {
	t.Helper()
	ws := m.Weights()
	for i := range ws {
		for j := range ws[i].Values {
			ws[i].Values[j] += delta
		}
	}
	require.NoError(t, m.SetWeights(ws))
}

func TestEarlyStopping_StopsAfterPatienceAndRestoresBest(t *testing.T) {
	m := newTestModel(t)
	es := NewEarlyStopping(3)

	losses := []float64{1.0, 0.8, 0.9, 0.85, 0.81, 0.95, 0.7}
	var bestWeights []model.Weight
	stoppedAt := 0
	for i, l := range losses {
		perturb(t, m, 0.01)
		if i == 1 {
			bestWeights = m.Weights()
		}
		require.NoError(t, es.OnEpochEnd(m, EpochLogs{Epoch: i + 1, ValLoss: l}))
		if es.ShouldStop() {
			stoppedAt = i + 1
			break
		}
	}

	assert.Equal(t, 5, stoppedAt, "best at epoch 2, three quiet epochs")
	assert.Equal(t, 5, es.StoppedEpoch)
	assert.Equal(t, 2, es.BestEpoch)
	assert.Equal(t, 0.8, es.BestValLoss())

	require.NoError(t, es.OnTrainEnd(m))
	assert.Equal(t, bestWeights, m.Weights())
}

func TestEarlyStopping_ImprovementResetsWait(t *testing.T) {
	m := newTestModel(t)
	es := NewEarlyStopping(2)

	for i, l := range []float64{1.0, 1.1, 0.9, 1.0, 0.8, 0.85} {
		require.NoError(t, es.OnEpochEnd(m, EpochLogs{Epoch: i + 1, ValLoss: l}))
		assert.False(t, es.ShouldStop(), "epoch %d", i+1)
	}
	require.NoError(t, es.OnEpochEnd(m, EpochLogs{Epoch: 7, ValLoss: 0.8}))
	assert.True(t, es.ShouldStop(), "equal loss is not an improvement")
}

func TestReduceLROnPlateau_HalvesAfterPatience(t *testing.T) {
	m := newTestModel(t)
	m.SetLearningRate(1e-3)
	r := NewReduceLROnPlateau(0.5, 2, 1e-6)

	steps := []struct {
		loss   float64
		wantLR float64
	}{
		{1.0, 1e-3},
		{1.0, 1e-3},
		{1.0, 5e-4}, // second quiet epoch
		{1.0, 5e-4}, // wait restarted after the reduction
		{1.0, 2.5e-4},
		{0.5, 2.5e-4},
		{0.49995, 2.5e-4}, // gain below min delta is not an improvement
		{0.5, 1.25e-4},
	}
	for i, s := range steps {
		require.NoError(t, r.OnEpochEnd(m, EpochLogs{Epoch: i + 1, ValLoss: s.loss}))
		assert.InDelta(t, s.wantLR, m.LearningRate(), 1e-15, "epoch %d", i+1)
	}
	assert.Equal(t, 3, r.Reductions)
}

func TestReduceLROnPlateau_Floor(t *testing.T) {
	m := newTestModel(t)
	m.SetLearningRate(1e-3)
	r := NewReduceLROnPlateau(0.5, 1, 1e-6)

	require.NoError(t, r.OnEpochEnd(m, EpochLogs{Epoch: 1, ValLoss: 1}))
	for epoch := 2; epoch < 100; epoch++ {
		require.NoError(t, r.OnEpochEnd(m, EpochLogs{Epoch: epoch, ValLoss: 1}))
		assert.GreaterOrEqual(t, m.LearningRate(), 1e-6)
	}
	assert.Equal(t, 1e-6, m.LearningRate())
	// nine halvings stay above the floor, the tenth is clamped to it
	assert.Equal(t, 10, r.Reductions)
}

func TestPolicies_AreIndependent(t *testing.T) {
	m := newTestModel(t)
	m.SetLearningRate(1e-3)
	es := NewEarlyStopping(3)
	r := NewReduceLROnPlateau(0.5, 3, 1e-6)

	for i, l := range []float64{1.0, 1.0, 1.0, 1.0} {
		logs := EpochLogs{Epoch: i + 1, ValLoss: l}
		require.NoError(t, es.OnEpochEnd(m, logs))
		require.NoError(t, r.OnEpochEnd(m, logs))
	}
	assert.True(t, es.ShouldStop())
	assert.Equal(t, 5e-4, m.LearningRate())
}
