package metrics

// Wrapper adapts Metrics to the narrow interfaces of the training controller
// and the predictor, so neither imports Prometheus.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) EpochsInc()                     { w.m.EpochsTotal.Inc() }
func (w *Wrapper) EpochDurationObserve(v float64) { w.m.EpochDuration.Observe(v) }
func (w *Wrapper) TrainLossSet(v float64)         { w.m.TrainLoss.Set(v) }
func (w *Wrapper) TrainAccuracySet(v float64)     { w.m.TrainAccuracy.Set(v) }
func (w *Wrapper) ValLossSet(v float64)           { w.m.ValLoss.Set(v) }
func (w *Wrapper) ValAccuracySet(v float64)       { w.m.ValAccuracy.Set(v) }
func (w *Wrapper) LearningRateSet(v float64)      { w.m.LearningRate.Set(v) }
func (w *Wrapper) LRReductionsInc()               { w.m.LRReductions.Inc() }
func (w *Wrapper) EarlyStopsInc()                 { w.m.EarlyStops.Inc() }

func (w *Wrapper) PredictionsInc()                    { w.m.Predictions.Inc() }
func (w *Wrapper) PredictionFailuresInc()             { w.m.PredictionFailures.Inc() }
func (w *Wrapper) PredictionLatencyObserve(v float64) { w.m.PredictionLatency.Observe(v) }
func (w *Wrapper) PredictionScoresObserve(v float64)  { w.m.PredictionScores.Observe(v) }
