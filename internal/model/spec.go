package model

import (
	"fmt"

	"signal-trainer/internal/common"
)

// Layer kinds understood by FromSpec
const (
	KindConv2D    = "Conv2D"
	KindBatchNorm = "BatchNormalization"
	KindFlatten   = "Flatten"
	KindDense     = "Dense"
	KindDropout   = "Dropout"
)

// Hyperparameters of the fixed classifier topology
const (
	ConvFilters     = 1
	ConvKernel      = 2
	HiddenUnits     = 4
	L2Strength      = 1e-4
	DropoutRate     = 0.3
	BatchNormMoment = 0.99
	BatchNormEps    = 1e-3

	DefaultLearningRate = 1e-3
	AdamBeta1           = 0.9
	AdamBeta2           = 0.999
	AdamEpsilon         = 1e-7
)

type InputShape struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

func (s InputShape) Size() int {
	return s.Height * s.Width * s.Channels
}

func (s InputShape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, s.Channels)
}

// DefaultInputShape is the 15x3 single-channel grid the features are laid out in.
func DefaultInputShape() InputShape {
	return InputShape{Height: common.InputHeight, Width: common.InputWidth, Channels: common.InputChannels}
}

type LayerSpec struct {
	Kind       string  `json:"class_name"`
	Name       string  `json:"name"`
	Filters    int     `json:"filters,omitempty"`
	KernelSize []int   `json:"kernel_size,omitempty"`
	Units      int     `json:"units,omitempty"`
	Activation string  `json:"activation,omitempty"`
	L2         float64 `json:"l2,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	Momentum   float64 `json:"momentum,omitempty"`
	Epsilon    float64 `json:"epsilon,omitempty"`
}

type CompileSpec struct {
	Optimizer    string   `json:"optimizer"`
	LearningRate float64  `json:"learning_rate"`
	Beta1        float64  `json:"beta_1"`
	Beta2        float64  `json:"beta_2"`
	Epsilon      float64  `json:"epsilon"`
	Loss         string   `json:"loss"`
	Metrics      []string `json:"metrics"`
}

// Spec is the serializable architecture and compilation policy of a model.
type Spec struct {
	Input   InputShape  `json:"input_shape"`
	Layers  []LayerSpec `json:"layers"`
	Compile CompileSpec `json:"compile"`
}

// NewSpec describes the classifier for the given input shape: a minimal
// convolution, batch normalization, a 4-unit hidden layer with dropout and a
// single sigmoid output, trained with Adam on binary cross-entropy.
func NewSpec(shape InputShape, learningRate float64) Spec {
	if learningRate <= 0 {
		learningRate = DefaultLearningRate
	}
	return Spec{
		Input: shape,
		Layers: []LayerSpec{
			{Kind: KindConv2D, Name: "conv2d", Filters: ConvFilters, KernelSize: []int{ConvKernel, ConvKernel}, Activation: "relu", L2: L2Strength},
			{Kind: KindBatchNorm, Name: "batch_normalization", Momentum: BatchNormMoment, Epsilon: BatchNormEps},
			{Kind: KindFlatten, Name: "flatten"},
			{Kind: KindDense, Name: "dense", Units: HiddenUnits, Activation: "relu", L2: L2Strength},
			{Kind: KindDropout, Name: "dropout", Rate: DropoutRate},
			{Kind: KindDense, Name: "dense_1", Units: 1, Activation: "sigmoid"},
		},
		Compile: CompileSpec{
			Optimizer:    "adam",
			LearningRate: learningRate,
			Beta1:        AdamBeta1,
			Beta2:        AdamBeta2,
			Epsilon:      AdamEpsilon,
			Loss:         "binary_crossentropy",
			Metrics:      []string{"accuracy"},
		},
	}
}
