package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"signal-trainer/internal/artifact"
	"signal-trainer/internal/common"
	"signal-trainer/internal/model"
)

func saveArtifact(t *testing.T) (string, *model.Model) {
	t.Helper()
	m, err := model.Build(model.DefaultInputShape(), model.Options{Seed: 7})
	if err != nil {
		t.Fatalf("build model: %v", err)
	}
	path := filepath.Join(t.TempDir(), "saved_model")
	if err := artifact.NewStore(path).Save(m, artifact.Metadata{RunID: "run-7", Samples: 10}); err != nil {
		t.Fatalf("save artifact: %v", err)
	}
	return path, m
}

func features(offset float64) []float64 {
	f := make([]float64, common.FeatureCount)
	for i := range f {
		f[i] = float64(i%7)/7 + offset
	}
	return f
}

func TestPredictor_MatchesModel(t *testing.T) {
	path, m := saveArtifact(t)
	predictor, err := New(path)
	if err != nil {
		t.Fatalf("Failed to load predictor: %v", err)
	}
	if predictor.Metadata().RunID != "run-7" {
		t.Errorf("Expected run-7 metadata, got %q", predictor.Metadata().RunID)
	}

	x := model.NewTensor(1, 15, 3, 1)
	copy(x.Data, features(0.1))
	want, err := m.Predict(x)
	if err != nil {
		t.Fatalf("model predict: %v", err)
	}

	got, err := predictor.Predict(features(0.1))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got != want[0] {
		t.Errorf("Expected %v, got %v", want[0], got)
	}
	if got < 0 || got > 1 {
		t.Errorf("Probability out of range: %v", got)
	}
}

func TestPredictor_Approve(t *testing.T) {
	path, _ := saveArtifact(t)
	predictor, err := New(path)
	if err != nil {
		t.Fatalf("Failed to load predictor: %v", err)
	}

	score, err := predictor.Predict(features(0))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if !predictor.Approve(features(0), score) {
		t.Error("Expected approval when threshold equals the score")
	}
	if predictor.Approve(features(0), score+1e-9) {
		t.Error("Expected rejection when threshold exceeds the score")
	}
	if !predictor.Approve(features(0), 0) {
		t.Error("Expected approval at threshold 0")
	}
}

func TestPredictor_ValidateFeatures(t *testing.T) {
	path, _ := saveArtifact(t)
	metrics := &MockMetrics{}
	predictor, err := NewWithMetrics(path, metrics)
	if err != nil {
		t.Fatalf("Failed to load predictor: %v", err)
	}

	testCases := []struct {
		name     string
		features []float64
		valid    bool
	}{
		{"valid features", features(0), true},
		{"too few features", make([]float64, common.FeatureCount-1), false},
		{"too many features", make([]float64, common.FeatureCount+1), false},
		{"nil features", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := predictor.Predict(tc.features)
			if tc.valid && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if !tc.valid {
				if !errors.Is(err, common.ErrShape) {
					t.Errorf("Expected shape error, got %v", err)
				}
				if predictor.Approve(tc.features, 0) {
					t.Error("Expected invalid features to be rejected")
				}
			}
		})
	}

	if metrics.predictions != 1 {
		t.Errorf("Expected 1 counted prediction, got %d", metrics.predictions)
	}
	if metrics.failures != 6 {
		t.Errorf("Expected 6 failures, got %d", metrics.failures)
	}
	if metrics.latencyCount != 7 {
		t.Errorf("Expected 7 latency observations, got %d", metrics.latencyCount)
	}
}

func TestPredictor_PredictBatch(t *testing.T) {
	path, _ := saveArtifact(t)
	metrics := &MockMetrics{}
	predictor, err := NewWithMetrics(path, metrics)
	if err != nil {
		t.Fatalf("Failed to load predictor: %v", err)
	}

	batch := [][]float64{features(0), features(0.5), features(-0.5)}
	scores, err := predictor.PredictBatch(batch)
	if err != nil {
		t.Fatalf("PredictBatch failed: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("Expected 3 scores, got %d", len(scores))
	}
	for i, f := range batch {
		single, err := predictor.Predict(f)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if math.Abs(single-scores[i]) > 1e-12 {
			t.Errorf("sample %d: batch %v != single %v", i, scores[i], single)
		}
	}
	if len(metrics.predictionScores) != 6 {
		t.Errorf("Expected 6 observed scores, got %d", len(metrics.predictionScores))
	}

	if _, err := predictor.PredictBatch(nil); !errors.Is(err, common.ErrShape) {
		t.Errorf("Expected shape error for empty batch, got %v", err)
	}
}

func TestPredictor_MissingArtifact(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, common.ErrIO) {
		t.Errorf("Expected IO error, got %v", err)
	}
}

func TestPredictor_Nil(t *testing.T) {
	var p *Predictor
	if p.Approve(features(0), 0.5) {
		t.Error("nil predictor must not approve")
	}
	if _, err := p.Predict(features(0)); err == nil {
		t.Error("Expected error from nil predictor")
	}
}
