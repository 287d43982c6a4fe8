package model

import (
	"errors"
)

var (
	// ErrEmptyInput is returned when Predict is called without samples.
	ErrEmptyInput = errors.New("no samples to predict")
)

// FeatureVector is a samples x features matrix.
type FeatureVector [][]float64

// NewFeatureVector returns a single sample, single feature vector.
func NewFeatureVector(v float64) FeatureVector {
	return FeatureVector{{v}}
}

// Model scores feature vectors. Implementations are immutable once loaded
// and safe for concurrent use.
type Model interface {
	Predict(x FeatureVector) ([]float64, error)
}

// Func adapts a plain function to the Model interface.
type Func func(x FeatureVector) ([]float64, error)

func (f Func) Predict(x FeatureVector) ([]float64, error) {
	return f(x)
}
