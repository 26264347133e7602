package features

import (
	"container/ring"
	"math"
)

type sample struct {
	p, v float64
}

// VWAP is a volume-weighted average price over the last size trades.
type VWAP struct {
	ring  *ring.Ring
	count int
}

func NewVWAP(size int) *VWAP {
	if size <= 0 {
		size = 1
	}
	return &VWAP{ring: ring.New(size)}
}

func (v *VWAP) Add(price, volume float64) {
	v.ring.Value = sample{price, volume}
	v.ring = v.ring.Next()
	if v.count < v.ring.Len() {
		v.count++
	}
}

// Calc returns the VWAP and the unweighted standard deviation of prices in the
// window. Both are zero until a trade with positive volume is seen.
func (v *VWAP) Calc() (value, std float64) {
	var pv, vv, sum, sumSquared float64
	var count int

	v.ring.Do(func(x any) {
		if s, ok := x.(sample); ok {
			pv += s.p * s.v
			vv += s.v
			sum += s.p
			sumSquared += s.p * s.p
			count++
		}
	})

	if vv == 0 || count == 0 {
		return 0, 0
	}

	value = pv / vv
	mean := sum / float64(count)
	variance := (sumSquared / float64(count)) - (mean * mean)
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return
}

// Len reports how many trades are in the window.
func (v *VWAP) Len() int {
	return v.count
}
