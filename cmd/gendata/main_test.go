package main

import (
	"path/filepath"
	"testing"

	"signal-trainer/internal/common"
	"signal-trainer/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParams() marketParams {
	return marketParams{StartPrice: 50000, Volatility: 0.02, TrendStrength: 0.0001, MeanReversion: 0.05, Horizon: 5, Lookback: 20}
}

func TestGenerate_LoadableDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.txt")
	w := dataset.NewWriter(path)
	require.NoError(t, generate(w, defaultParams(), 30, 1))
	assert.Equal(t, 30, w.Captured)

	ds, err := dataset.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, ds.Count)
	assert.Equal(t, common.FeatureCount, ds.FeatureLength())
	for _, l := range ds.Labels {
		assert.Contains(t, []float64{0, 1}, l)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, generate(dataset.NewWriter(a), defaultParams(), 10, 9))
	require.NoError(t, generate(dataset.NewWriter(b), defaultParams(), 10, 9))

	da, err := dataset.Load(a)
	require.NoError(t, err)
	db, err := dataset.Load(b)
	require.NoError(t, err)
	assert.Equal(t, da.Features, db.Features)
	assert.Equal(t, da.Labels, db.Labels)
}

func TestGenerate_InvalidArguments(t *testing.T) {
	w := dataset.NewWriter(filepath.Join(t.TempDir(), "x.txt"))
	assert.ErrorIs(t, generate(w, defaultParams(), 0, 1), common.ErrConfiguration)

	p := defaultParams()
	p.Horizon = 0
	assert.ErrorIs(t, generate(w, p, 5, 1), common.ErrConfiguration)
}
