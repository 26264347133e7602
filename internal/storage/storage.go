// Package storage keeps a history of training runs in BoltDB: one summary
// record per run and one record per epoch, so runs can be compared after the
// artifact directory has been overwritten.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"signal-trainer/internal/common"

	"go.etcd.io/bbolt"
)

const (
	runsBucket   = "runs"   // Bucket name for run summaries
	epochsBucket = "epochs" // Bucket name for per-epoch history
)

// RunRecord summarizes one completed training run.
type RunRecord struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	DatasetPath  string        `json:"dataset_path"`
	Samples      int           `json:"samples"`
	TrainSamples int           `json:"train_samples"`
	ValSamples   int           `json:"val_samples"`
	Epochs       int           `json:"epochs"`
	BestEpoch    int           `json:"best_epoch"`
	StoppedEarly bool          `json:"stopped_early"`
	LRReductions int           `json:"lr_reductions"`
	ValLoss      float64       `json:"val_loss"`
	ValAccuracy  float64       `json:"val_accuracy"`
	ArtifactPath string        `json:"artifact_path"`
}

// EpochRecord is one row of a run's training history.
type EpochRecord struct {
	RunID        string  `json:"run_id"`
	Epoch        int     `json:"epoch"`
	Loss         float64 `json:"loss"`
	Accuracy     float64 `json:"accuracy"`
	ValLoss      float64 `json:"val_loss"`
	ValAccuracy  float64 `json:"val_accuracy"`
	LearningRate float64 `json:"learning_rate"`
}

// Store provides persistent storage for run history using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the history database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %w", common.ErrIO, err)
	}
	dbPath := filepath.Join(dataPath, "training-history.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(epochsBucket)); err != nil {
			return fmt.Errorf("create epochs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = fmt.Errorf("%w: history store is closed", common.ErrIO)

// StoreRun saves a run summary together with its epoch history in one transaction.
func (s *Store) StoreRun(run RunRecord, epochs []EpochRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		if err := tx.Bucket([]byte(runsBucket)).Put([]byte(run.RunID), data); err != nil {
			return err
		}

		b := tx.Bucket([]byte(epochsBucket))
		for _, e := range epochs {
			e.RunID = run.RunID
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal epoch: %w", err)
			}
			if err := b.Put(epochKey(run.RunID, e.Epoch), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun returns the summary stored for runID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	if s.db == nil {
		return RunRecord{}, ErrClosed
	}
	var run RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

// ListRuns returns every run summary, most recent first.
func (s *Store) ListRuns() ([]RunRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var runs []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(k, v []byte) error {
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return nil // Skip malformed records
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// GetEpochs returns the epoch history of a run in epoch order.
func (s *Store) GetEpochs(runID string) ([]EpochRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var epochs []EpochRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(epochsBucket)).Cursor()
		prefix := []byte(runID + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e EpochRecord
			if err := json.Unmarshal(v, &e); err != nil {
				continue // Skip malformed records
			}
			epochs = append(epochs, e)
		}
		return nil
	})

	return epochs, err
}

// epochKey zero-pads the epoch so lexical cursor order matches numeric order.
func epochKey(runID string, epoch int) []byte {
	return []byte(fmt.Sprintf("%s_%08d", runID, epoch))
}
