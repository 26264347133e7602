package model

import "math"

// Sigmoid is the logistic function, evaluated without overflow for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// BinaryCrossentropy is the cross-entropy of label y against sigmoid(z),
// computed from the logit so saturated outputs stay finite.
func BinaryCrossentropy(z, y float64) float64 {
	return math.Max(z, 0) - z*y + math.Log1p(math.Exp(-math.Abs(z)))
}

// BinaryAccuracy reports whether the thresholded probability equals the label.
func BinaryAccuracy(p, y float64) bool {
	pred := 0.0
	if p > 0.5 {
		pred = 1
	}
	return pred == y
}
