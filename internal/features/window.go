// Package features turns a stream of trades and book snapshots into the
// 15x3 sample layout: per tick, the tick imbalance, the depth imbalance and
// the price distance from VWAP in standard deviations.
package features

import "signal-trainer/internal/common"

// Tick is one observation of the market.
type Tick struct {
	Price    float64
	Volume   float64
	BidDepth float64
	AskDepth float64
}

// Window keeps the most recent rows and flattens them into one sample.
type Window struct {
	vwap  *VWAP
	ticks *TickImb
	rows  [][common.InputWidth]float64
	last  float64
	seen  bool
}

// NewWindow builds an extractor whose VWAP and tick imbalance look back over
// lookback trades.
func NewWindow(lookback int) *Window {
	return &Window{
		vwap:  NewVWAP(lookback),
		ticks: NewTickImb(lookback),
		rows:  make([][common.InputWidth]float64, 0, common.InputHeight),
	}
}

// Add ingests a tick and appends its feature row.
func (w *Window) Add(t Tick) {
	var sign int8
	if w.seen {
		switch {
		case t.Price > w.last:
			sign = 1
		case t.Price < w.last:
			sign = -1
		}
	}
	w.last, w.seen = t.Price, true

	w.ticks.Add(sign)
	w.vwap.Add(t.Price, t.Volume)

	vwap, std := w.vwap.Calc()
	dist := 0.0
	if std > 0 {
		dist = (t.Price - vwap) / std
	}

	if len(w.rows) == common.InputHeight {
		copy(w.rows, w.rows[1:])
		w.rows = w.rows[:common.InputHeight-1]
	}
	w.rows = append(w.rows, [common.InputWidth]float64{w.ticks.Ratio(), DepthImb(t.BidDepth, t.AskDepth), dist})
}

// Ready reports whether a full window of rows is available.
func (w *Window) Ready() bool {
	return len(w.rows) == common.InputHeight
}

// Features returns the current window in row-major order, oldest row first,
// or nil before the window is full.
func (w *Window) Features() []float64 {
	if !w.Ready() {
		return nil
	}
	out := make([]float64, 0, common.FeatureCount)
	for _, r := range w.rows {
		out = append(out, r[:]...)
	}
	return out
}
