package features

// DepthImb is the normalized order book imbalance in [-1, 1].
func DepthImb(bid, ask float64) float64 {
	if bid+ask == 0 {
		return 0
	}
	return (bid - ask) / (bid + ask)
}

// TickImb tracks the mean direction of the last n ticks.
type TickImb struct {
	buf []int8
	max int
}

func NewTickImb(n int) *TickImb {
	if n <= 0 {
		n = 1
	}
	return &TickImb{max: n}
}

// Add records an uptick (+1), downtick (-1) or unchanged tick (0).
func (t *TickImb) Add(sign int8) {
	if len(t.buf) == t.max {
		t.buf = t.buf[1:]
	}
	t.buf = append(t.buf, sign)
}

func (t *TickImb) Ratio() float64 {
	if len(t.buf) == 0 {
		return 0
	}
	var s int
	for _, v := range t.buf {
		s += int(v)
	}
	return float64(s) / float64(len(t.buf))
}
