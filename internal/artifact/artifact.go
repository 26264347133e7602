// Package artifact persists a fitted model as a self-contained directory:
//
//	saved_model/
//	  model.json              architecture, compile policy and run metadata
//	  variables/variables.db  BoltDB file with weights and optimizer state
//
// This directory is the hand-off surface to the external ONNX converter.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signal-trainer/internal/common"
	"signal-trainer/internal/model"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	FormatName    = "signal-trainer/saved_model"
	FormatVersion = 1

	manifestFile  = "model.json"
	variablesDir  = "variables"
	variablesFile = "variables.db"

	weightsBucket   = "weights"
	optimizerBucket = "optimizer"
	metaBucket      = "meta"

	optimizerKey  = "state"
	paramOrderKey = "param_order"
)

// Metadata describes the run that produced an artifact.
type Metadata struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Epochs      int       `json:"epochs"`
	BestEpoch   int       `json:"best_epoch"`
	Samples     int       `json:"samples"`
	ValLoss     float64   `json:"val_loss"`
	ValAccuracy float64   `json:"val_accuracy"`
}

type manifest struct {
	Format   string     `json:"format"`
	Version  int        `json:"version"`
	Spec     model.Spec `json:"spec"`
	Metadata Metadata   `json:"metadata"`
}

// Loaded is a model reconstructed from disk.
type Loaded struct {
	Model    *model.Model
	Metadata Metadata
}

// Store writes artifacts to a fixed directory, replacing whatever is there.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: filepath.Clean(path)}
}

func (s *Store) Path() string {
	return s.path
}

// Save writes the artifact into a temporary sibling directory and swaps it in,
// so a failed save never leaves a half-written artifact at the store path.
func (s *Store) Save(m *model.Model, meta Metadata) error {
	parent := filepath.Dir(s.path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("%w: create artifact parent: %w", common.ErrIO, err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("%w: create staging directory: %w", common.ErrIO, err)
	}
	defer os.RemoveAll(tmp)

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	if err := writeManifest(tmp, m.Spec(), meta); err != nil {
		return err
	}
	if err := writeVariables(tmp, m); err != nil {
		return err
	}

	// previous artifact is moved aside and only removed once the new one is in place
	backup := tmp + ".old"
	hadPrevious := false
	if _, err := os.Lstat(s.path); err == nil {
		if err := os.Rename(s.path, backup); err != nil {
			return fmt.Errorf("%w: move previous artifact aside: %w", common.ErrIO, err)
		}
		hadPrevious = true
	}
	if err := os.Rename(tmp, s.path); err != nil {
		if hadPrevious {
			if rerr := os.Rename(backup, s.path); rerr != nil {
				log.Error().Err(rerr).Str("backup", backup).Msg("Failed to restore previous artifact")
			}
		}
		return fmt.Errorf("%w: move artifact into place: %w", common.ErrIO, err)
	}
	if hadPrevious {
		if err := os.RemoveAll(backup); err != nil {
			log.Warn().Err(err).Str("backup", backup).Msg("Failed to remove previous artifact")
		}
	}

	log.Info().
		Str("path", s.path).
		Str("run_id", meta.RunID).
		Msg("Artifact saved")

	return nil
}

func writeManifest(dir string, spec model.Spec, meta Metadata) error {
	data, err := json.MarshalIndent(manifest{
		Format:   FormatName,
		Version:  FormatVersion,
		Spec:     spec,
		Metadata: meta,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("%w: write manifest: %w", common.ErrIO, err)
	}
	return nil
}

func writeVariables(dir string, m *model.Model) error {
	vdir := filepath.Join(dir, variablesDir)
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		return fmt.Errorf("%w: create variables directory: %w", common.ErrIO, err)
	}

	db, err := bbolt.Open(filepath.Join(vdir, variablesFile), 0o644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("%w: open variables: %w", common.ErrIO, err)
	}
	defer db.Close()

	weights := m.Weights()
	order := make([]string, len(weights))
	for i, w := range weights {
		order[i] = w.Name
	}

	return db.Update(func(tx *bbolt.Tx) error {
		wb, err := tx.CreateBucketIfNotExists([]byte(weightsBucket))
		if err != nil {
			return fmt.Errorf("create weights bucket: %w", err)
		}
		for _, w := range weights {
			data, err := json.Marshal(w)
			if err != nil {
				return fmt.Errorf("marshal weight %s: %w", w.Name, err)
			}
			if err := wb.Put([]byte(w.Name), data); err != nil {
				return err
			}
		}

		ob, err := tx.CreateBucketIfNotExists([]byte(optimizerBucket))
		if err != nil {
			return fmt.Errorf("create optimizer bucket: %w", err)
		}
		data, err := json.Marshal(m.OptimizerState())
		if err != nil {
			return fmt.Errorf("marshal optimizer state: %w", err)
		}
		if err := ob.Put([]byte(optimizerKey), data); err != nil {
			return err
		}

		mb, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		data, err = json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal parameter order: %w", err)
		}
		return mb.Put([]byte(paramOrderKey), data)
	})
}

// Load reconstructs the model stored in dir, including its optimizer state.
func Load(dir string) (*Loaded, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", common.ErrIO, err)
	}

	var mf manifest
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %w", common.ErrConfiguration, err)
	}
	if mf.Format != FormatName || mf.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported artifact format %q v%d", common.ErrConfiguration, mf.Format, mf.Version)
	}

	m, err := model.FromSpec(mf.Spec, 0)
	if err != nil {
		return nil, fmt.Errorf("rebuild model: %w", err)
	}

	vpath := filepath.Join(dir, variablesDir, variablesFile)
	if _, err := os.Stat(vpath); err != nil {
		return nil, fmt.Errorf("%w: variables: %w", common.ErrIO, err)
	}
	db, err := bbolt.Open(vpath, 0o444, &bbolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open variables: %w", common.ErrIO, err)
	}
	defer db.Close()

	var (
		weights []model.Weight
		state   model.OptimizerState
	)
	err = db.View(func(tx *bbolt.Tx) error {
		wb := tx.Bucket([]byte(weightsBucket))
		if wb == nil {
			return fmt.Errorf("%w: weights bucket missing", common.ErrConfiguration)
		}
		if err := wb.ForEach(func(k, v []byte) error {
			var w model.Weight
			if err := json.Unmarshal(v, &w); err != nil {
				return fmt.Errorf("decode weight %s: %w", k, err)
			}
			weights = append(weights, w)
			return nil
		}); err != nil {
			return err
		}

		if ob := tx.Bucket([]byte(optimizerBucket)); ob != nil {
			if v := ob.Get([]byte(optimizerKey)); v != nil {
				if err := json.Unmarshal(v, &state); err != nil {
					return fmt.Errorf("decode optimizer state: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.SetWeights(weights); err != nil {
		return nil, fmt.Errorf("restore weights: %w", err)
	}
	m.SetOptimizerState(state)

	return &Loaded{Model: m, Metadata: mf.Metadata}, nil
}
