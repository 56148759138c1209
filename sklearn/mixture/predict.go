package mixture

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

// PredictProba returns the N x K matrix of component responsibilities.
func (g *SGDGMM) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	s, err := g.snapshotFor("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return responsibilities(s.params, X, g.cfg.Workers)
}

// Predict returns the most responsible component of every row.
func (g *SGDGMM) Predict(X mat.Matrix) ([]int, error) {
	resp, err := g.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := resp.Dims()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = floats.MaxIdx(resp.RawRowView(i))
	}
	return labels, nil
}

// nFreeParams is the number of free parameters of a full-covariance mixture.
func nFreeParams(k, d int) int {
	return (k - 1) + k*d + k*d*(d+1)/2
}

// BIC returns the Bayesian information criterion on X. Lower is better.
func (g *SGDGMM) BIC(X mat.Matrix) (float64, error) {
	nll, err := g.Score(X)
	if err != nil {
		return 0, err
	}
	n, _ := X.Dims()
	return 2*nll + float64(nFreeParams(g.cfg.Components, g.cfg.Dimensions))*math.Log(float64(n)), nil
}

// AIC returns the Akaike information criterion on X. Lower is better.
func (g *SGDGMM) AIC(X mat.Matrix) (float64, error) {
	nll, err := g.Score(X)
	if err != nil {
		return 0, err
	}
	return 2*nll + 2*float64(nFreeParams(g.cfg.Components, g.cfg.Dimensions)), nil
}

// Sample draws n points from the fitted mixture and returns them with the
// component each was drawn from.
func (g *SGDGMM) Sample(n int, seed uint64) (*mat.Dense, []int, error) {
	if n < 1 {
		return nil, nil, errors.NewValidationError("n_samples", "must be at least 1", n)
	}
	s, err := g.snapshot("Sample")
	if err != nil {
		return nil, nil, err
	}
	p := s.params
	src := rand.NewPCG(seed, seed+1)

	components := make([]*distmv.Normal, p.K)
	for k, cov := range Covariances(p) {
		normal, ok := distmv.NewNormal(p.Mean(k), cov, src)
		if !ok {
			return nil, nil, errors.NewNumericalInstabilityError("Sample", p.logDiag(k), 0)
		}
		components[k] = normal
	}
	choose := distuv.NewCategorical(p.Weights(), src)

	X := mat.NewDense(n, p.D, nil)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		k := int(choose.Rand())
		labels[i] = k
		components[k].Rand(X.RawRowView(i))
	}
	return X, labels, nil
}
