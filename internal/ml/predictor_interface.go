// Package ml serves inference from saved model artifacts and keeps a registry
// of the artifacts each training run produced.
package ml

// PredictorInterface defines the interface for signal classifiers.
type PredictorInterface interface {
	// Approve reports whether the positive-class probability for features
	// reaches threshold. Invalid input is never approved.
	Approve(features []float64, threshold float64) bool

	// Predict returns the positive-class probability for one feature vector.
	Predict(features []float64) (float64, error)
}
