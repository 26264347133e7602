package cfg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"signal-trainer/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so host settings do not leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		common.EnvConfigFile, common.EnvDatasetPath, common.EnvArtifactPath,
		common.EnvValidationSplit, common.EnvSeed, common.EnvMaxEpochs, common.EnvBatchSize,
		common.EnvPatience, common.EnvLearningRate, common.EnvLRFactor, common.EnvMinLR,
		common.EnvDataPath, common.EnvModelsDir, common.EnvMetricsPort, common.EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, s Settings) {
				assert.Equal(t, "dataset.txt", s.DatasetPath)
				assert.Equal(t, "saved_model", s.ArtifactPath)
				assert.Equal(t, 0.2, s.ValidationSplit)
				assert.Equal(t, uint64(42), s.Seed)
				assert.Equal(t, 100, s.MaxEpochs)
				assert.Equal(t, 2, s.BatchSize)
				assert.Equal(t, 15, s.Patience)
				assert.Equal(t, 1e-3, s.LearningRate)
				assert.Equal(t, 0.5, s.LRFactor)
				assert.Equal(t, 1e-6, s.MinLR)
				assert.Equal(t, 0, s.MetricsPort)
				assert.Empty(t, s.DataPath)
				assert.Empty(t, s.ModelsDir)
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				common.EnvDatasetPath:     "data/samples.txt",
				common.EnvSeed:            "7",
				common.EnvBatchSize:       "8",
				common.EnvPatience:        "5",
				common.EnvValidationSplit: "0.25",
				common.EnvMetricsPort:     "9090",
				common.EnvDataPath:        "/tmp/history",
			},
			validate: func(t *testing.T, s Settings) {
				assert.Equal(t, "data/samples.txt", s.DatasetPath)
				assert.Equal(t, uint64(7), s.Seed)
				assert.Equal(t, 8, s.BatchSize)
				assert.Equal(t, 5, s.Patience)
				assert.Equal(t, 0.25, s.ValidationSplit)
				assert.Equal(t, 9090, s.MetricsPort)
				assert.Equal(t, "/tmp/history", s.DataPath)
			},
		},
		{
			name:    "unparseable value falls back to default",
			envVars: map[string]string{common.EnvMaxEpochs: "many"},
			validate: func(t *testing.T, s Settings) {
				assert.Equal(t, 100, s.MaxEpochs)
			},
		},
		{
			name:    "split out of range",
			envVars: map[string]string{common.EnvValidationSplit: "1.5"},
			wantErr: true,
		},
		{
			name:    "min lr above learning rate",
			envVars: map[string]string{common.EnvMinLR: "0.01"},
			wantErr: true,
		},
		{
			name:    "privileged metrics port",
			envVars: map[string]string{common.EnvMetricsPort: "80"},
			wantErr: true,
		},
		{
			name:    "unknown log level",
			envVars: map[string]string{common.EnvLogLevel: "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := Load()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrConfiguration), "expected configuration error, got %v", err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, settings)
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name        string
		yamlContent string
		envVars     map[string]string
		wantErr     bool
		validate    func(t *testing.T, settings Settings)
	}{
		{
			name: "full file",
			yamlContent: `
dataset:
  path: "captures.txt"
  validationSplit: 0.3
  seed: 0
training:
  maxEpochs: 50
  batchSize: 4
  patience: 10
  learningRate: 0.01
  lrFactor: 0.2
  minLR: 0.0001
artifact:
  path: "out/saved_model"
  modelsDir: "models"
system:
  dataPath: "history"
  metricsPort: 9100
  logLevel: "debug"
`,
			validate: func(t *testing.T, s Settings) {
				assert.Equal(t, "captures.txt", s.DatasetPath)
				assert.Equal(t, 0.3, s.ValidationSplit)
				assert.Equal(t, uint64(0), s.Seed, "explicit zero seed must be kept")
				assert.Equal(t, 50, s.MaxEpochs)
				assert.Equal(t, 4, s.BatchSize)
				assert.Equal(t, 10, s.Patience)
				assert.Equal(t, 0.01, s.LearningRate)
				assert.Equal(t, 0.2, s.LRFactor)
				assert.Equal(t, 0.0001, s.MinLR)
				assert.Equal(t, "out/saved_model", s.ArtifactPath)
				assert.Equal(t, "models", s.ModelsDir)
				assert.Equal(t, "history", s.DataPath)
				assert.Equal(t, 9100, s.MetricsPort)
				assert.Equal(t, "debug", s.LogLevel)
			},
		},
		{
			name: "partial file uses defaults",
			yamlContent: `
training:
  patience: 3
`,
			validate: func(t *testing.T, s Settings) {
				assert.Equal(t, 3, s.Patience)
				assert.Equal(t, "dataset.txt", s.DatasetPath)
				assert.Equal(t, uint64(42), s.Seed)
				assert.Equal(t, 2, s.BatchSize)
			},
		},
		{
			name: "env overrides file",
			yamlContent: `
training:
  batchSize: 4
`,
			envVars: map[string]string{common.EnvBatchSize: "16"},
			validate: func(t *testing.T, s Settings) {
				assert.Equal(t, 16, s.BatchSize)
			},
		},
		{
			name:        "invalid yaml",
			yamlContent: "training: [unclosed",
			wantErr:     true,
		},
		{
			name: "invalid values",
			yamlContent: `
training:
  lrFactor: 1.5
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.yamlContent), 0o644))
			t.Setenv(common.EnvConfigFile, configPath)

			settings, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, settings)
		})
	}
}

func TestLoadFromYAML_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.ErrorIs(t, err, common.ErrIO)
}
