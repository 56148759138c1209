package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// DensityEstimator is an unsupervised model that learns a probability
// density from samples.
type DensityEstimator interface {
	// Fit learns the density from X (n_samples x n_features).
	Fit(ctx context.Context, X mat.Matrix) error

	// ScoreSamples returns the log-density of each row of X.
	ScoreSamples(X mat.Matrix) ([]float64, error)
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the total negative log-likelihood of X.
	Score(X mat.Matrix) (float64, error)
}

// Clusterer assigns samples to mixture components.
type Clusterer interface {
	// Predict returns the most responsible component of each row.
	Predict(X mat.Matrix) ([]int, error)

	// PredictProba returns per-row component responsibilities.
	PredictProba(X mat.Matrix) (*mat.Dense, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}
