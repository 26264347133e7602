package ml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"signal-trainer/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelManager(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewModelManager(tempDir)
	require.NoError(t, err)
	assert.Nil(t, manager.GetCurrentVersion())

	v1, err := manager.AddVersion("/models/run-1", ModelMetrics{RunID: "run-1", ValLoss: 0.6, ValAccuracy: 0.7})
	require.NoError(t, err)
	require.NoError(t, manager.ActivateVersion(v1.Version))

	current := manager.GetCurrentVersion()
	require.NotNil(t, current)
	assert.Equal(t, "run-1", current.Version)

	v2, err := manager.AddVersion("/models/run-2", ModelMetrics{RunID: "run-2", ValLoss: 0.5, ValAccuracy: 0.8})
	require.NoError(t, err)

	versions := manager.ListVersions()
	require.Len(t, versions, 2)
	assert.Equal(t, "run-2", versions[0].Version, "newest first")

	// adding a version must not move the active one
	assert.Equal(t, "run-1", manager.GetCurrentVersion().Version)

	require.NoError(t, manager.ActivateVersion(v2.Version))
	require.NoError(t, manager.Rollback())
	assert.Equal(t, "run-1", manager.GetCurrentVersion().Version)

	err = manager.Rollback()
	assert.ErrorIs(t, err, common.ErrConfiguration)

	err = manager.ActivateVersion("nonexistent-version")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestModelManager_Persistence(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewModelManager(tempDir)
	require.NoError(t, err)
	_, err = manager.AddVersion("/models/a", ModelMetrics{RunID: "a", TrainingSamples: 40})
	require.NoError(t, err)
	require.NoError(t, manager.ActivateVersion("a"))
	assert.FileExists(t, filepath.Join(tempDir, "model_versions.json"))

	reloaded, err := NewModelManager(tempDir)
	require.NoError(t, err)
	current := reloaded.GetCurrentVersion()
	require.NotNil(t, current)
	assert.Equal(t, "a", current.Version)
	assert.Equal(t, 40, current.Metrics.TrainingSamples)
	assert.True(t, current.IsActive)
}

func TestModelManager_DuplicateVersion(t *testing.T) {
	manager, err := NewModelManager(t.TempDir())
	require.NoError(t, err)

	_, err = manager.AddVersion("/models/x", ModelMetrics{RunID: "x"})
	require.NoError(t, err)
	_, err = manager.AddVersion("/models/x", ModelMetrics{RunID: "x"})
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestModelManager_GeneratedVersionName(t *testing.T) {
	manager, err := NewModelManager(t.TempDir())
	require.NoError(t, err)

	v, err := manager.AddVersion("/models/anon", ModelMetrics{})
	require.NoError(t, err)
	assert.NotEmpty(t, v.Version)
}

func TestModelManager_CorruptVersionsFile(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "model_versions.json"), []byte("{not json"), 0o600))

	manager, err := NewModelManager(tempDir)
	require.NoError(t, err)
	assert.Empty(t, manager.ListVersions())
	assert.Nil(t, manager.GetCurrentVersion())
}
