// Package metrics provides Prometheus metrics for training runs and for
// inference over saved artifacts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trainer.
type Metrics struct {
	// Fit loop
	EpochsTotal   prometheus.Counter   // Total number of completed epochs
	EpochDuration prometheus.Histogram // Wall time of one epoch
	TrainLoss     prometheus.Gauge     // Training loss of the last epoch
	TrainAccuracy prometheus.Gauge     // Training accuracy of the last epoch
	ValLoss       prometheus.Gauge     // Validation loss of the last epoch
	ValAccuracy   prometheus.Gauge     // Validation accuracy of the last epoch
	LearningRate  prometheus.Gauge     // Learning rate after the last epoch

	// Control policies
	LRReductions prometheus.Counter // Learning-rate reductions on plateau
	EarlyStops   prometheus.Counter // Runs halted by early stopping

	// Pipeline
	SamplesLoaded prometheus.Gauge   // Samples in the last loaded dataset
	RunsTotal     prometheus.Counter // Completed training runs
	ErrorsTotal   prometheus.Counter // Runs that failed

	// Inference
	Predictions        prometheus.Counter   // Scored feature vectors
	PredictionFailures prometheus.Counter   // Rejected or failed inputs
	PredictionLatency  prometheus.Histogram // Latency of one predictor call
	PredictionScores   prometheus.Histogram // Distribution of output probabilities
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		EpochsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_epochs_total",
			Help: "Total number of completed training epochs",
		}),
		EpochDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_epoch_duration_seconds",
			Help:    "Wall time of one training epoch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		TrainLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_loss",
			Help: "Training loss of the most recent epoch",
		}),
		TrainAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_accuracy",
			Help: "Training accuracy of the most recent epoch",
		}),
		ValLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validation_loss",
			Help: "Validation loss of the most recent epoch",
		}),
		ValAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validation_accuracy",
			Help: "Validation accuracy of the most recent epoch",
		}),
		LearningRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_learning_rate",
			Help: "Optimizer learning rate after the most recent epoch",
		}),
		LRReductions: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_lr_reductions_total",
			Help: "Total number of learning-rate reductions on plateau",
		}),
		EarlyStops: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_early_stops_total",
			Help: "Total number of runs halted by early stopping",
		}),
		SamplesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dataset_samples_loaded",
			Help: "Number of samples in the most recently loaded dataset",
		}),
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of completed training runs",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_errors_total",
			Help: "Total number of failed training runs",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of scored feature vectors",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed prediction calls",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Latency of predictor calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of predicted positive-class probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}
