package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// OptimizerState is the persisted part of Adam: the step counter, the current
// learning rate and both moment estimates keyed by parameter name.
type OptimizerState struct {
	Name         string               `json:"name"`
	Iterations   int                  `json:"iterations"`
	LearningRate float64              `json:"learning_rate"`
	M            map[string][]float64 `json:"m"`
	V            map[string][]float64 `json:"v"`
}

type adam struct {
	learningRate      float64
	beta1, beta2, eps float64
	iterations        int
	m, v              map[string][]float64
}

func newAdam(c CompileSpec) *adam {
	return &adam{
		learningRate: c.LearningRate,
		beta1:        c.Beta1,
		beta2:        c.Beta2,
		eps:          c.Epsilon,
		m:            make(map[string][]float64),
		v:            make(map[string][]float64),
	}
}

// step applies one update to every trainable parameter. The L2 penalty
// gradient 2*l2*w is folded into the gradient first.
func (a *adam) step(params []*Param) {
	a.iterations++
	t := float64(a.iterations)
	lr := a.learningRate * math.Sqrt(1-math.Pow(a.beta2, t)) / (1 - math.Pow(a.beta1, t))

	for _, p := range params {
		if !p.Trainable {
			continue
		}
		if p.L2 > 0 {
			floats.AddScaled(p.Grad, 2*p.L2, p.Value)
		}

		m, ok := a.m[p.Name]
		if !ok {
			m = make([]float64, len(p.Value))
			a.m[p.Name] = m
		}
		v, ok := a.v[p.Name]
		if !ok {
			v = make([]float64, len(p.Value))
			a.v[p.Name] = v
		}

		floats.Scale(a.beta1, m)
		floats.AddScaled(m, 1-a.beta1, p.Grad)
		for i, g := range p.Grad {
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			p.Value[i] -= lr * m[i] / (math.Sqrt(v[i]) + a.eps)
		}
	}
}

func (a *adam) state() OptimizerState {
	s := OptimizerState{
		Name:         "adam",
		Iterations:   a.iterations,
		LearningRate: a.learningRate,
		M:            make(map[string][]float64, len(a.m)),
		V:            make(map[string][]float64, len(a.v)),
	}
	for k, m := range a.m {
		s.M[k] = append([]float64(nil), m...)
	}
	for k, v := range a.v {
		s.V[k] = append([]float64(nil), v...)
	}
	return s
}

func (a *adam) restore(s OptimizerState) {
	a.iterations = s.Iterations
	if s.LearningRate > 0 {
		a.learningRate = s.LearningRate
	}
	a.m = make(map[string][]float64, len(s.M))
	a.v = make(map[string][]float64, len(s.V))
	for k, m := range s.M {
		a.m[k] = append([]float64(nil), m...)
	}
	for k, v := range s.V {
		a.v[k] = append([]float64(nil), v...)
	}
}
