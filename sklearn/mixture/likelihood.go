package mixture

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/core/parallel"
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

var log2Pi = math.Log(2 * math.Pi)

// evaluator caches the per-component quantities shared by every point of a
// batch: Cholesky factors, log normalizers and log weights. It is read-only
// once built and may be shared by workers.
type evaluator struct {
	p       *Params
	chol    [][]float64 // K row-major D x D lower factors
	logNorm []float64   // −½D·log2π − Σ_d LogDiag[k,d]
	logW    []float64
}

func newEvaluator(p *Params) *evaluator {
	e := &evaluator{
		p:       p,
		chol:    make([][]float64, p.K),
		logNorm: make([]float64, p.K),
		logW:    make([]float64, p.K),
	}
	for k := 0; k < p.K; k++ {
		e.chol[k] = make([]float64, p.D*p.D)
		p.cholesky(k, e.chol[k])
		e.logNorm[k] = -0.5*float64(p.D)*log2Pi - floats.Sum(p.logDiag(k))
	}
	p.logWeights(e.logW)
	return e
}

// pointScratch holds per-worker buffers for one point.
type pointScratch struct {
	a []float64   // K joint log terms log w_k + log N_k(x)
	z [][]float64 // K whitened residuals L_k⁻¹(x − μ_k)
	u []float64   // D, L_k⁻ᵀ z_k
}

func (e *evaluator) newScratch() *pointScratch {
	s := &pointScratch{
		a: make([]float64, e.p.K),
		z: make([][]float64, e.p.K),
		u: make([]float64, e.p.D),
	}
	for k := range s.z {
		s.z[k] = make([]float64, e.p.D)
	}
	return s
}

// joint fills s.a and s.z for point x and returns log p(x).
func (e *evaluator) joint(x []float64, s *pointScratch) float64 {
	d := e.p.D
	for k := 0; k < e.p.K; k++ {
		z := s.z[k]
		floats.SubTo(z, x, e.p.Mean(k))
		blas64.Trsv(blas.NoTrans, triangular(d, e.chol[k]), blas64.Vector{N: d, Inc: 1, Data: z})
		s.a[k] = e.logW[k] + e.logNorm[k] - 0.5*floats.Dot(z, z)
	}
	return floats.LogSumExp(s.a)
}

// logMixtureDensity returns log p(x_n) for every row of X. Rows are split
// across workers; the result does not depend on the worker count.
func logMixtureDensity(p *Params, X mat.Matrix, workers int) ([]float64, error) {
	n, d := X.Dims()
	if d != p.D {
		return nil, errors.NewDimensionError("logMixtureDensity", p.D, d, 1)
	}
	e := newEvaluator(p)
	out := make([]float64, n)

	parallel.Parallelize(n, workers, func(c parallel.Chunk) {
		s := e.newScratch()
		x := make([]float64, d)
		for i := c.Start; i < c.End; i++ {
			mat.Row(x, i, X)
			out[i] = e.joint(x, s)
		}
	})

	if err := errors.CheckNumericalStability("log_likelihood", out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// negLogLikelihood returns −Σ_n log p(x_n). Per-point terms are summed in
// row order.
func negLogLikelihood(p *Params, X mat.Matrix, workers int) (float64, error) {
	logp, err := logMixtureDensity(p, X, workers)
	if err != nil {
		return 0, err
	}
	return -floats.Sum(logp), nil
}

// responsibilities returns the N x K posterior component probabilities.
func responsibilities(p *Params, X mat.Matrix, workers int) (*mat.Dense, error) {
	n, d := X.Dims()
	if d != p.D {
		return nil, errors.NewDimensionError("responsibilities", p.D, d, 1)
	}
	e := newEvaluator(p)
	resp := mat.NewDense(n, p.K, nil)

	parallel.Parallelize(n, workers, func(c parallel.Chunk) {
		s := e.newScratch()
		x := make([]float64, d)
		for i := c.Start; i < c.End; i++ {
			mat.Row(x, i, X)
			lse := e.joint(x, s)
			row := resp.RawRowView(i)
			for k, a := range s.a {
				row[k] = math.Exp(a - lse)
			}
		}
	})

	if err := errors.CheckMatrix("responsibilities", resp, n, p.K, 0); err != nil {
		return nil, err
	}
	return resp, nil
}
