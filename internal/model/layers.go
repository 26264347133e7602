package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Param is one named weight array. Grad is overwritten by every backward pass.
type Param struct {
	Name      string
	Shape     []int
	Value     []float64
	Grad      []float64
	L2        float64
	Trainable bool
}

func newParam(name string, shape []int, trainable bool) *Param {
	n := volume(shape)
	p := &Param{Name: name, Shape: append([]int(nil), shape...), Value: make([]float64, n), Trainable: trainable}
	if trainable {
		p.Grad = make([]float64, n)
	}
	return p
}

func (p *Param) fill(v float64) {
	for i := range p.Value {
		p.Value[i] = v
	}
}

// glorotUniform draws from U(-limit, limit) with limit = sqrt(6 / (fanIn + fanOut)).
func (p *Param) glorotUniform(fanIn, fanOut int, src distuv.Uniform) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	src.Min, src.Max = -limit, limit
	for i := range p.Value {
		p.Value[i] = src.Rand()
	}
}

type layer interface {
	forward(x *Tensor, training bool) *Tensor
	backward(dy *Tensor) *Tensor
	params() []*Param
}

func activate(name string, z *Tensor) *Tensor {
	out := &Tensor{Shape: z.Shape, Data: make([]float64, len(z.Data))}
	for i, v := range z.Data {
		switch name {
		case "relu":
			out.Data[i] = math.Max(v, 0)
		case "sigmoid":
			out.Data[i] = Sigmoid(v)
		default:
			out.Data[i] = v
		}
	}
	return out
}

func activationGrad(name string, z, dy *Tensor) *Tensor {
	out := &Tensor{Shape: dy.Shape, Data: make([]float64, len(dy.Data))}
	for i, g := range dy.Data {
		switch name {
		case "relu":
			if z.Data[i] > 0 {
				out.Data[i] = g
			}
		case "sigmoid":
			s := Sigmoid(z.Data[i])
			out.Data[i] = g * s * (1 - s)
		default:
			out.Data[i] = g
		}
	}
	return out
}

// conv2d is a stride-1 valid-padding convolution over NHWC input.
type conv2d struct {
	kh, kw, cin, filters int
	activation           string
	kernel, bias         *Param
	x, z                 *Tensor
}

func (l *conv2d) forward(x *Tensor, training bool) *Tensor {
	n, h, w := x.Shape[0], x.Shape[1], x.Shape[2]
	oh, ow := h-l.kh+1, w-l.kw+1
	z := NewTensor(n, oh, ow, l.filters)
	for b := 0; b < n; b++ {
		for i := 0; i < oh; i++ {
			for j := 0; j < ow; j++ {
				for f := 0; f < l.filters; f++ {
					sum := l.bias.Value[f]
					for di := 0; di < l.kh; di++ {
						for dj := 0; dj < l.kw; dj++ {
							for c := 0; c < l.cin; c++ {
								sum += x.Data[((b*h+i+di)*w+j+dj)*l.cin+c] * l.kernel.Value[((di*l.kw+dj)*l.cin+c)*l.filters+f]
							}
						}
					}
					z.Data[((b*oh+i)*ow+j)*l.filters+f] = sum
				}
			}
		}
	}
	l.x, l.z = x, z
	return activate(l.activation, z)
}

func (l *conv2d) backward(dy *Tensor) *Tensor {
	dz := activationGrad(l.activation, l.z, dy)
	x := l.x
	n, h, w := x.Shape[0], x.Shape[1], x.Shape[2]
	oh, ow := l.z.Shape[1], l.z.Shape[2]

	for i := range l.kernel.Grad {
		l.kernel.Grad[i] = 0
	}
	for i := range l.bias.Grad {
		l.bias.Grad[i] = 0
	}
	dx := NewTensor(x.Shape...)

	for b := 0; b < n; b++ {
		for i := 0; i < oh; i++ {
			for j := 0; j < ow; j++ {
				for f := 0; f < l.filters; f++ {
					g := dz.Data[((b*oh+i)*ow+j)*l.filters+f]
					if g == 0 {
						continue
					}
					l.bias.Grad[f] += g
					for di := 0; di < l.kh; di++ {
						for dj := 0; dj < l.kw; dj++ {
							for c := 0; c < l.cin; c++ {
								xi := ((b*h+i+di)*w+j+dj)*l.cin + c
								ki := ((di*l.kw+dj)*l.cin+c)*l.filters + f
								l.kernel.Grad[ki] += x.Data[xi] * g
								dx.Data[xi] += l.kernel.Value[ki] * g
							}
						}
					}
				}
			}
		}
	}
	return dx
}

func (l *conv2d) params() []*Param {
	return []*Param{l.kernel, l.bias}
}

// batchNorm normalizes over every axis but the last (channel) one.
type batchNorm struct {
	channels              int
	momentum, epsilon     float64
	gamma, beta           *Param
	movingMean, movingVar *Param
	xhat                  []float64
	invStd                []float64
}

func (l *batchNorm) forward(x *Tensor, training bool) *Tensor {
	c := l.channels
	m := len(x.Data) / c
	out := &Tensor{Shape: x.Shape, Data: make([]float64, len(x.Data))}

	if !training {
		for i, v := range x.Data {
			k := i % c
			inv := 1 / math.Sqrt(l.movingVar.Value[k]+l.epsilon)
			out.Data[i] = l.gamma.Value[k]*(v-l.movingMean.Value[k])*inv + l.beta.Value[k]
		}
		return out
	}

	mean := make([]float64, c)
	variance := make([]float64, c)
	for i, v := range x.Data {
		mean[i%c] += v
	}
	for k := range mean {
		mean[k] /= float64(m)
	}
	for i, v := range x.Data {
		d := v - mean[i%c]
		variance[i%c] += d * d
	}
	l.invStd = make([]float64, c)
	for k := range variance {
		variance[k] /= float64(m)
		l.invStd[k] = 1 / math.Sqrt(variance[k]+l.epsilon)

		l.movingMean.Value[k] = l.momentum*l.movingMean.Value[k] + (1-l.momentum)*mean[k]
		l.movingVar.Value[k] = l.momentum*l.movingVar.Value[k] + (1-l.momentum)*variance[k]
	}

	l.xhat = make([]float64, len(x.Data))
	for i, v := range x.Data {
		k := i % c
		l.xhat[i] = (v - mean[k]) * l.invStd[k]
		out.Data[i] = l.gamma.Value[k]*l.xhat[i] + l.beta.Value[k]
	}
	return out
}

func (l *batchNorm) backward(dy *Tensor) *Tensor {
	c := l.channels
	m := float64(len(dy.Data) / c)

	sumDy := make([]float64, c)
	sumDyXhat := make([]float64, c)
	for i, g := range dy.Data {
		sumDy[i%c] += g
		sumDyXhat[i%c] += g * l.xhat[i]
	}
	copy(l.beta.Grad, sumDy)
	copy(l.gamma.Grad, sumDyXhat)

	dx := &Tensor{Shape: dy.Shape, Data: make([]float64, len(dy.Data))}
	for i, g := range dy.Data {
		k := i % c
		dx.Data[i] = l.gamma.Value[k] * l.invStd[k] / m * (m*g - sumDy[k] - l.xhat[i]*sumDyXhat[k])
	}
	return dx
}

func (l *batchNorm) params() []*Param {
	return []*Param{l.gamma, l.beta, l.movingMean, l.movingVar}
}

type flatten struct {
	inShape []int
}

func (l *flatten) forward(x *Tensor, training bool) *Tensor {
	l.inShape = x.Shape
	return &Tensor{Shape: []int{x.Batch(), x.SampleSize()}, Data: x.Data}
}

func (l *flatten) backward(dy *Tensor) *Tensor {
	return &Tensor{Shape: l.inShape, Data: dy.Data}
}

func (l *flatten) params() []*Param { return nil }

// dense is a fully connected layer on (batch, in) input.
type dense struct {
	in, units    int
	activation   string
	kernel, bias *Param
	x, z         *Tensor
}

func (l *dense) forward(x *Tensor, training bool) *Tensor {
	n := x.Batch()
	X := mat.NewDense(n, l.in, x.Data)
	W := mat.NewDense(l.in, l.units, l.kernel.Value)

	z := NewTensor(n, l.units)
	Z := mat.NewDense(n, l.units, z.Data)
	Z.Mul(X, W)
	for b := 0; b < n; b++ {
		for u := 0; u < l.units; u++ {
			z.Data[b*l.units+u] += l.bias.Value[u]
		}
	}

	l.x, l.z = x, z
	return activate(l.activation, z)
}

func (l *dense) backward(dy *Tensor) *Tensor {
	return l.backwardLinear(activationGrad(l.activation, l.z, dy))
}

// backwardLinear propagates a gradient taken with respect to the pre-activation output.
func (l *dense) backwardLinear(dz *Tensor) *Tensor {
	n := dz.Batch()
	X := mat.NewDense(n, l.in, l.x.Data)
	W := mat.NewDense(l.in, l.units, l.kernel.Value)
	DZ := mat.NewDense(n, l.units, dz.Data)

	DW := mat.NewDense(l.in, l.units, l.kernel.Grad)
	DW.Mul(X.T(), DZ)

	for u := range l.bias.Grad {
		l.bias.Grad[u] = 0
	}
	for b := 0; b < n; b++ {
		for u := 0; u < l.units; u++ {
			l.bias.Grad[u] += dz.Data[b*l.units+u]
		}
	}

	dx := NewTensor(n, l.in)
	DX := mat.NewDense(n, l.in, dx.Data)
	DX.Mul(DZ, W.T())
	return dx
}

func (l *dense) params() []*Param {
	return []*Param{l.kernel, l.bias}
}

// dropout zeroes inputs with probability rate while training and rescales the rest.
type dropout struct {
	rate float64
	mask []float64
	src  distuv.Bernoulli
}

func (l *dropout) forward(x *Tensor, training bool) *Tensor {
	if !training || l.rate == 0 {
		l.mask = nil
		return x
	}
	keep := 1 - l.rate
	l.mask = make([]float64, len(x.Data))
	out := &Tensor{Shape: x.Shape, Data: make([]float64, len(x.Data))}
	for i, v := range x.Data {
		l.mask[i] = l.src.Rand() / keep
		out.Data[i] = v * l.mask[i]
	}
	return out
}

func (l *dropout) backward(dy *Tensor) *Tensor {
	if l.mask == nil {
		return dy
	}
	dx := &Tensor{Shape: dy.Shape, Data: make([]float64, len(dy.Data))}
	for i, g := range dy.Data {
		dx.Data[i] = g * l.mask[i]
	}
	return dx
}

func (l *dropout) params() []*Param { return nil }
