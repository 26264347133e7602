package model

import (
	"fmt"

	"signal-trainer/internal/common"
)

// Tensor is a dense batch-first array in NHWC order.
type Tensor struct {
	Shape []int
	Data  []float64
}

func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, volume(shape))}
}

// Batch returns the leading dimension.
func (t *Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleSize is the number of values per sample.
func (t *Tensor) SampleSize() int {
	if len(t.Shape) < 2 {
		return 1
	}
	return volume(t.Shape[1:])
}

// Reshape returns a view over the same data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if volume(shape) != len(t.Data) {
		return nil, fmt.Errorf("%w: cannot reshape %v (%d values) to %v", common.ErrShape, t.Shape, len(t.Data), shape)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: t.Data}, nil
}

// Gather copies the samples at idx into a new tensor, preserving order.
func (t *Tensor) Gather(idx []int) *Tensor {
	size := t.SampleSize()
	shape := append([]int{len(idx)}, t.Shape[1:]...)
	out := NewTensor(shape...)
	for i, k := range idx {
		copy(out.Data[i*size:(i+1)*size], t.Data[k*size:(k+1)*size])
	}
	return out
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
