package train

import (
	"fmt"
	"math"
	"math/rand/v2"

	"signal-trainer/internal/common"
	"signal-trainer/internal/model"
)

// PCG stream selectors; the same seed drives independent sequences.
const (
	splitStream   = 0x5b11
	shuffleStream = 0x5407
)

// Partition holds disjoint sample indices. Order follows the seeded permutation.
type Partition struct {
	Train      []int
	Validation []int
}

// Subset is a materialized partition side.
type Subset struct {
	X       *model.Tensor
	Y       []float64
	Indices []int
}

func (s Subset) Len() int {
	return len(s.Y)
}

// Split permutes 0..n-1 with a PCG source seeded by seed and takes the first
// floor(fraction*n) indices for validation. Identical (n, fraction, seed)
// always yield the identical partition. An empty side is a configuration error.
func Split(n int, fraction float64, seed uint64) (Partition, error) {
	if fraction <= 0 || fraction >= 1 {
		return Partition{}, fmt.Errorf("%w: validation split %g outside (0, 1)", common.ErrConfiguration, fraction)
	}

	valCount := int(math.Floor(fraction*float64(n) + 1e-9))
	if valCount == 0 || n-valCount == 0 {
		return Partition{}, fmt.Errorf("%w: %d samples with split %g leave an empty partition (train %d, validation %d)",
			common.ErrConfiguration, n, fraction, n-valCount, valCount)
	}

	perm := rand.New(rand.NewPCG(seed, splitStream)).Perm(n)
	return Partition{
		Validation: perm[:valCount],
		Train:      perm[valCount:],
	}, nil
}

// Reshape lays flat feature vectors out as an (N, H, W, C) tensor. Every vector
// must hold exactly H*W*C values.
func Reshape(features [][]float64, shape model.InputShape) (*model.Tensor, error) {
	size := shape.Size()
	x := model.NewTensor(len(features), shape.Height, shape.Width, shape.Channels)
	for i, row := range features {
		if len(row) != size {
			return nil, fmt.Errorf("%w: sample %d has %d features, model input %s needs %d",
				common.ErrShape, i+1, len(row), shape, size)
		}
		copy(x.Data[i*size:], row)
	}
	return x, nil
}

func subset(x *model.Tensor, labels []float64, idx []int) Subset {
	y := make([]float64, len(idx))
	for i, k := range idx {
		y[i] = labels[k]
	}
	return Subset{X: x.Gather(idx), Y: y, Indices: idx}
}
