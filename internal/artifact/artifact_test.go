package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"signal-trainer/internal/common"
	"signal-trainer/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Build(model.DefaultInputShape(), model.Options{Seed: 42})
	require.NoError(t, err)

	x := model.NewTensor(2, 15, 3, 1)
	for i := range x.Data {
		x.Data[i] = float64(i%5) - 2
	}
	for i := 0; i < 3; i++ {
		_, err := m.TrainOnBatch(x, []float64{0, 1})
		require.NoError(t, err)
	}
	m.SetLearningRate(5e-4)
	return m
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	m := trainedModel(t)
	path := filepath.Join(t.TempDir(), "saved_model")
	store := NewStore(path)

	meta := Metadata{RunID: "run-1", Epochs: 3, BestEpoch: 2, Samples: 10, ValLoss: 0.5, ValAccuracy: 0.75}
	require.NoError(t, store.Save(m, meta))

	assert.FileExists(t, filepath.Join(path, "model.json"))
	assert.FileExists(t, filepath.Join(path, "variables", "variables.db"))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, m.Spec(), loaded.Model.Spec())
	assert.Equal(t, m.Weights(), loaded.Model.Weights())
	assert.Equal(t, m.OptimizerState(), loaded.Model.OptimizerState())
	assert.Equal(t, 5e-4, loaded.Model.LearningRate())
	assert.Equal(t, "run-1", loaded.Metadata.RunID)
	assert.Equal(t, 2, loaded.Metadata.BestEpoch)
	assert.False(t, loaded.Metadata.CreatedAt.IsZero())

	x := model.NewTensor(3, 15, 3, 1)
	for i := range x.Data {
		x.Data[i] = float64(i%11) / 10
	}
	want, err := m.Predict(x)
	require.NoError(t, err)
	got, err := loaded.Model.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_model")
	require.NoError(t, os.MkdirAll(path, 0o755))
	stale := filepath.Join(path, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	store := NewStore(path)
	require.NoError(t, store.Save(trainedModel(t), Metadata{RunID: "a"}))
	assert.NoFileExists(t, stale)

	require.NoError(t, store.Save(trainedModel(t), Metadata{RunID: "b"}))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.Metadata.RunID)

	// no staging directories left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSave_TrailingSlash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved_model")
	require.NoError(t, NewStore(path).Save(trainedModel(t), Metadata{RunID: "first"}))

	store := NewStore(path + string(os.PathSeparator))
	assert.Equal(t, path, store.Path())
	require.NoError(t, store.Save(trainedModel(t), Metadata{RunID: "second"}))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Metadata.RunID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// fresh save through a slash-suffixed path
	fresh := filepath.Join(dir, "fresh")
	require.NoError(t, NewStore(fresh+string(os.PathSeparator)).Save(trainedModel(t), Metadata{RunID: "fresh"}))
	loaded, err = Load(fresh)
	require.NoError(t, err)
	assert.Equal(t, "fresh", loaded.Metadata.RunID)
}

func TestSave_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := NewStore(filepath.Join(blocker, "saved_model")).Save(trainedModel(t), Metadata{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrIO))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "saved_model"))
	assert.True(t, errors.Is(err, common.ErrIO))
}

func TestLoad_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(`{"format":"keras","version":3}`), 0o644))

	_, err := Load(dir)
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestLoad_MissingVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_model")
	require.NoError(t, NewStore(path).Save(trainedModel(t), Metadata{}))
	require.NoError(t, os.RemoveAll(filepath.Join(path, "variables")))

	_, err := Load(path)
	assert.True(t, errors.Is(err, common.ErrIO))
}
