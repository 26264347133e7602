// Package model implements the small convolutional binary classifier: its
// architecture description, forward and backward passes, and the Adam
// optimizer that fits it.
package model

import (
	"fmt"
	"math/rand/v2"

	"signal-trainer/internal/common"

	"gonum.org/v1/gonum/stat/distuv"
)

// Options control construction. Seed fixes weight initialization and dropout masks.
type Options struct {
	Seed         uint64
	LearningRate float64
}

// Weight is a named snapshot of one parameter array.
type Weight struct {
	Name   string    `json:"name"`
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// BatchResult is the outcome of one optimizer step.
type BatchResult struct {
	Loss    float64 // mean cross-entropy plus the L2 penalty
	Correct int
	Size    int
}

type Model struct {
	spec   Spec
	layers []layer
	output *dense
	opt    *adam
	params []*Param
}

// Build returns a freshly initialized classifier for the given input shape.
func Build(shape InputShape, opts Options) (*Model, error) {
	return FromSpec(NewSpec(shape, opts.LearningRate), opts.Seed)
}

// FromSpec instantiates the layers a Spec describes.
func FromSpec(spec Spec, seed uint64) (*Model, error) {
	in := spec.Input
	if in.Height <= 0 || in.Width <= 0 || in.Channels <= 0 {
		return nil, fmt.Errorf("%w: invalid input shape %s", common.ErrShape, in)
	}

	uniform := distuv.Uniform{Src: rand.NewPCG(seed, 0x5eed)}
	drop := rand.NewPCG(seed, 0xd120)

	m := &Model{spec: spec, opt: newAdam(spec.Compile)}

	// shape of the activation flowing into the next layer
	h, w, c, flat := in.Height, in.Width, in.Channels, 0

	for _, ls := range spec.Layers {
		switch ls.Kind {
		case KindConv2D:
			if flat > 0 || len(ls.KernelSize) != 2 {
				return nil, fmt.Errorf("%w: layer %s needs a spatial input and a 2D kernel", common.ErrShape, ls.Name)
			}
			kh, kw := ls.KernelSize[0], ls.KernelSize[1]
			if kh > h || kw > w {
				return nil, fmt.Errorf("%w: kernel %dx%d larger than input %dx%d", common.ErrShape, kh, kw, h, w)
			}
			l := &conv2d{
				kh: kh, kw: kw, cin: c, filters: ls.Filters, activation: ls.Activation,
				kernel: newParam(ls.Name+"/kernel", []int{kh, kw, c, ls.Filters}, true),
				bias:   newParam(ls.Name+"/bias", []int{ls.Filters}, true),
			}
			l.kernel.L2 = ls.L2
			l.kernel.glorotUniform(kh*kw*c, kh*kw*ls.Filters, uniform)
			m.add(l)
			h, w, c = h-kh+1, w-kw+1, ls.Filters

		case KindBatchNorm:
			channels := c
			if flat > 0 {
				channels = flat
			}
			l := &batchNorm{
				channels: channels, momentum: ls.Momentum, epsilon: ls.Epsilon,
				gamma:      newParam(ls.Name+"/gamma", []int{channels}, true),
				beta:       newParam(ls.Name+"/beta", []int{channels}, true),
				movingMean: newParam(ls.Name+"/moving_mean", []int{channels}, false),
				movingVar:  newParam(ls.Name+"/moving_variance", []int{channels}, false),
			}
			l.gamma.fill(1)
			l.movingVar.fill(1)
			m.add(l)

		case KindFlatten:
			if flat == 0 {
				flat = h * w * c
			}
			m.add(&flatten{})

		case KindDense:
			if flat == 0 {
				return nil, fmt.Errorf("%w: layer %s needs a flattened input", common.ErrShape, ls.Name)
			}
			l := &dense{
				in: flat, units: ls.Units, activation: ls.Activation,
				kernel: newParam(ls.Name+"/kernel", []int{flat, ls.Units}, true),
				bias:   newParam(ls.Name+"/bias", []int{ls.Units}, true),
			}
			l.kernel.L2 = ls.L2
			l.kernel.glorotUniform(flat, ls.Units, uniform)
			m.add(l)
			flat = ls.Units

		case KindDropout:
			m.add(&dropout{rate: ls.Rate, src: distuv.Bernoulli{P: 1 - ls.Rate, Src: drop}})

		default:
			return nil, fmt.Errorf("%w: unknown layer kind %q", common.ErrConfiguration, ls.Kind)
		}
	}

	if len(m.layers) == 0 {
		return nil, fmt.Errorf("%w: model has no layers", common.ErrConfiguration)
	}
	out, ok := m.layers[len(m.layers)-1].(*dense)
	if !ok || out.units != 1 || out.activation != "sigmoid" {
		return nil, fmt.Errorf("%w: model must end in a single sigmoid unit", common.ErrConfiguration)
	}
	m.output = out

	return m, nil
}

func (m *Model) add(l layer) {
	m.layers = append(m.layers, l)
	m.params = append(m.params, l.params()...)
}

func (m *Model) Spec() Spec {
	return m.spec
}

func (m *Model) InputShape() InputShape {
	return m.spec.Input
}

func (m *Model) checkInput(x *Tensor) error {
	in := m.spec.Input
	if len(x.Shape) != 4 || x.Shape[1] != in.Height || x.Shape[2] != in.Width || x.Shape[3] != in.Channels {
		return fmt.Errorf("%w: input %v does not match (N, %d, %d, %d)", common.ErrShape, x.Shape, in.Height, in.Width, in.Channels)
	}
	if x.Batch() == 0 {
		return fmt.Errorf("%w: empty batch", common.ErrShape)
	}
	return nil
}

// forward runs every layer and returns the logits of the output unit.
func (m *Model) forward(x *Tensor, training bool) []float64 {
	for _, l := range m.layers {
		x = l.forward(x, training)
	}
	return m.output.z.Data
}

// Logits runs inference-mode forward and returns pre-sigmoid outputs.
func (m *Model) Logits(x *Tensor) ([]float64, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	return append([]float64(nil), m.forward(x, false)...), nil
}

// Predict returns the sigmoid output for each sample, always within [0, 1].
func (m *Model) Predict(x *Tensor) ([]float64, error) {
	logits, err := m.Logits(x)
	if err != nil {
		return nil, err
	}
	for i, z := range logits {
		logits[i] = Sigmoid(z)
	}
	return logits, nil
}

// TrainOnBatch runs one forward/backward pass in training mode and applies an
// optimizer step. The reported loss is taken before the update.
func (m *Model) TrainOnBatch(x *Tensor, y []float64) (BatchResult, error) {
	if err := m.checkInput(x); err != nil {
		return BatchResult{}, err
	}
	n := x.Batch()
	if len(y) != n {
		return BatchResult{}, fmt.Errorf("%w: %d labels for %d samples", common.ErrShape, len(y), n)
	}

	logits := m.forward(x, true)
	res := BatchResult{Size: n, Loss: m.RegularizationLoss()}

	dz := NewTensor(n, 1)
	for i, z := range logits {
		res.Loss += BinaryCrossentropy(z, y[i]) / float64(n)
		p := Sigmoid(z)
		if BinaryAccuracy(p, y[i]) {
			res.Correct++
		}
		dz.Data[i] = (p - y[i]) / float64(n)
	}

	grad := m.output.backwardLinear(dz)
	for i := len(m.layers) - 2; i >= 0; i-- {
		grad = m.layers[i].backward(grad)
	}
	m.opt.step(m.params)

	return res, nil
}

// RegularizationLoss is the sum of l2*w^2 over every regularized kernel.
func (m *Model) RegularizationLoss() float64 {
	var total float64
	for _, p := range m.params {
		if p.L2 == 0 {
			continue
		}
		for _, v := range p.Value {
			total += p.L2 * v * v
		}
	}
	return total
}

func (m *Model) LearningRate() float64 {
	return m.opt.learningRate
}

func (m *Model) SetLearningRate(lr float64) {
	m.opt.learningRate = lr
}

// Weights returns a deep copy of every parameter, trainable or not, in layer order.
func (m *Model) Weights() []Weight {
	out := make([]Weight, len(m.params))
	for i, p := range m.params {
		out[i] = Weight{
			Name:   p.Name,
			Shape:  append([]int(nil), p.Shape...),
			Values: append([]float64(nil), p.Value...),
		}
	}
	return out
}

// SetWeights overwrites parameters by name. Every parameter must be present with a matching size.
func (m *Model) SetWeights(weights []Weight) error {
	byName := make(map[string]Weight, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}
	for _, p := range m.params {
		w, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("%w: missing weight %s", common.ErrShape, p.Name)
		}
		if len(w.Values) != len(p.Value) {
			return fmt.Errorf("%w: weight %s has %d values, expected %d", common.ErrShape, p.Name, len(w.Values), len(p.Value))
		}
	}
	for _, p := range m.params {
		copy(p.Value, byName[p.Name].Values)
	}
	return nil
}

func (m *Model) OptimizerState() OptimizerState {
	return m.opt.state()
}

func (m *Model) SetOptimizerState(s OptimizerState) {
	m.opt.restore(s)
}

// ParamCount returns the number of trainable and non-trainable values.
func (m *Model) ParamCount() (trainable, frozen int) {
	for _, p := range m.params {
		if p.Trainable {
			trainable += len(p.Value)
		} else {
			frozen += len(p.Value)
		}
	}
	return trainable, frozen
}
