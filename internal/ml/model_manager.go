package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signal-trainer/internal/common"

	"github.com/rs/zerolog/log"
)

const versionsFileName = "model_versions.json"

// ModelVersion represents a saved model artifact produced by one training run.
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains the validation results recorded for a version.
type ModelMetrics struct {
	RunID           string  `json:"run_id"`
	ValLoss         float64 `json:"val_loss"`
	ValAccuracy     float64 `json:"val_accuracy"`
	BestEpoch       int     `json:"best_epoch"`
	TrainingSamples int     `json:"training_samples"`
}

// ModelManager handles model versioning and rollback
type ModelManager struct {
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	current      string
}

// NewModelManager creates a new model manager
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create models directory: %w", common.ErrIO, err)
	}

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, versionsFileName),
		versions:     make([]ModelVersion, 0),
	}

	// Load existing versions if available
	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load model versions, starting fresh")
		mm.versions = mm.versions[:0]
		mm.current = ""
	}

	return mm, nil
}

// AddVersion records a new model version. The run ID is used as the version
// name when present.
func (mm *ModelManager) AddVersion(modelPath string, metrics ModelMetrics) (ModelVersion, error) {
	now := time.Now().UTC()
	name := metrics.RunID
	if name == "" {
		name = now.Format("20060102-150405.000000000")
	}
	if mm.find(name) >= 0 {
		return ModelVersion{}, fmt.Errorf("%w: version %s already registered", common.ErrConfiguration, name)
	}

	version := ModelVersion{
		Version:   name,
		Path:      modelPath,
		CreatedAt: now,
		Metrics:   metrics,
	}
	// Newest first
	mm.versions = append([]ModelVersion{version}, mm.versions...)

	return version, mm.saveVersions()
}

// ActivateVersion activates a specific model version
func (mm *ModelManager) ActivateVersion(version string) error {
	if mm.find(version) < 0 {
		return fmt.Errorf("%w: version %s not found", common.ErrConfiguration, version)
	}
	for i := range mm.versions {
		mm.versions[i].IsActive = mm.versions[i].Version == version
	}
	mm.current = version

	log.Info().Str("version", version).Msg("Model version activated")
	return mm.saveVersions()
}

// Rollback activates the version registered just before the active one.
func (mm *ModelManager) Rollback() error {
	if len(mm.versions) < 2 {
		return fmt.Errorf("%w: no previous version available for rollback", common.ErrConfiguration)
	}

	currentIdx := mm.find(mm.current)
	if currentIdx == -1 {
		return fmt.Errorf("%w: no active version found", common.ErrConfiguration)
	}
	if currentIdx+1 >= len(mm.versions) {
		return fmt.Errorf("%w: no previous version available", common.ErrConfiguration)
	}

	return mm.ActivateVersion(mm.versions[currentIdx+1].Version)
}

// GetCurrentVersion returns the currently active version, or nil.
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	idx := mm.find(mm.current)
	if idx < 0 {
		return nil
	}
	v := mm.versions[idx]
	return &v
}

// ListVersions returns all model versions, newest first.
func (mm *ModelManager) ListVersions() []ModelVersion {
	return append([]ModelVersion(nil), mm.versions...)
}

func (mm *ModelManager) find(version string) int {
	if version == "" {
		return -1
	}
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			return i
		}
	}
	return -1
}

// loadVersions loads model versions from file
func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}

	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.current = mm.versions[i].Version
			break
		}
	}

	return nil
}

// saveVersions saves model versions to file
func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(mm.versionsFile, data, 0o600); err != nil {
		return fmt.Errorf("%w: write versions: %w", common.ErrIO, err)
	}
	return nil
}
