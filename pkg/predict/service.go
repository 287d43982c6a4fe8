package predict

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/model"
)

const (
	// PredictionDecimals is the number of decimals kept in a served prediction.
	PredictionDecimals = 2
)

var (
	ErrNoModel = errors.New("model is required")

	// ErrModelOutput is returned when the model result cannot be served.
	ErrModelOutput = errors.New("invalid model output")
)

// ModelLoader resolves a model identifier to a loaded model.
type ModelLoader interface {
	LoadModel(ctx context.Context, uri string) (model.Model, error)
}

// Service scores single level requests against one model.
type Service struct {
	model model.Model
}

// NewService returns a service bound to m for its lifetime.
func NewService(m model.Model) (*Service, error) {
	if m == nil {
		return nil, ErrNoModel
	}
	return &Service{model: m}, nil
}

// Predict returns the unrounded model output for level.
func (s *Service) Predict(level float64) (float64, error) {
	out, err := s.model.Predict(model.NewFeatureVector(level))
	if err != nil {
		return 0, fmt.Errorf("scoring level %v: %w", level, err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("%w: empty result", ErrModelOutput)
	}
	v := out[0]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrModelOutput, v)
	}
	return v, nil
}

// Handle validates req, scores it, and rounds the result.
func (s *Service) Handle(req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	v, err := s.Predict(float64(*req.Level))
	if err != nil {
		return nil, err
	}

	return &Response{Prediction: Round(v, PredictionDecimals)}, nil
}

// Round rounds v half away from zero to the given number of decimals.
// Values too large to scale are returned unchanged.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	scaled := v * p
	if math.IsInf(scaled, 0) {
		return v
	}
	return math.Round(scaled) / p
}

// PredictSalary loads the model identified by uri and scores level with it.
func PredictSalary(ctx context.Context, loader ModelLoader, uri string, level float64) (float64, error) {
	if loader == nil {
		return 0, errors.New("model loader is required")
	}

	m, err := loader.LoadModel(ctx, uri)
	if err != nil {
		return 0, fmt.Errorf("loading model %s: %w", uri, err)
	}

	s, err := NewService(m)
	if err != nil {
		return 0, err
	}
	return s.Predict(level)
}
