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

// Objective evaluates the training loss of a batch and its gradient.
//
// Evaluate returns the batch negative log-likelihood and the covariance
// penalty for a dataset of nTotal points, and overwrites grad with
// d(nll+penalty)/dθ for all four parameter arrays of p.
type Objective interface {
	Evaluate(X mat.Matrix, p *Params, nTotal int, grad *Params) (nll, penalty float64, err error)
}

// gaussianObjective is the mixture negative log-likelihood plus the
// diagonal-variance penalty, differentiated in closed form.
//
// For a point x with r_k = p(k|x) and z_k = L_k⁻¹(x−μ_k), u_k = L_k⁻ᵀz_k:
//
//	∂/∂logits_j = w_j − r_j
//	∂/∂μ_k      = −r_k u_k
//	∂/∂s_kd     = r_k (1 − u_kd z_kd L_k[d,d])
//	∂/∂L_k[i,j] = −r_k u_ki z_kj   (i > j)
type gaussianObjective struct {
	lambda  float64
	workers int
}

// NewObjective returns the closed-form gradient objective with penalty
// weight lambda, splitting each batch across workers goroutines.
func NewObjective(lambda float64, workers int) Objective {
	return &gaussianObjective{lambda: lambda, workers: workers}
}

func (o *gaussianObjective) Evaluate(X mat.Matrix, p *Params, nTotal int, grad *Params) (float64, float64, error) {
	n, d := X.Dims()
	if d != p.D {
		return 0, 0, errors.NewDimensionError("Objective.Evaluate", p.D, d, 1)
	}
	if grad.K != p.K || grad.D != p.D {
		return 0, 0, errors.NewDimensionError("Objective.Evaluate", p.K, grad.K, 0)
	}

	e := newEvaluator(p)
	logp := make([]float64, n)
	chunks := parallel.Chunks(n, o.workers)
	partial := make([]*Params, len(chunks))

	parallel.Parallelize(n, o.workers, func(c parallel.Chunk) {
		g := NewParams(p.K, p.D)
		s := e.newScratch()
		x := make([]float64, d)
		for i := c.Start; i < c.End; i++ {
			mat.Row(x, i, X)
			logp[i] = e.accumulate(x, s, g)
		}
		partial[c.Index] = g
	})

	if err := errors.CheckNumericalStability("loss_calculation", logp, 0); err != nil {
		return 0, 0, err
	}

	grad.Zero()
	for _, g := range partial {
		grad.add(g)
	}
	// Σ_n w_j over the batch completes the logits gradient.
	w := p.Weights()
	floats.AddScaled(grad.WeightLogits, float64(n), w)

	penalty := regularization(p, n, nTotal, o.lambda)
	addRegularizationGrad(p, n, nTotal, o.lambda, grad)

	nll := -floats.Sum(logp)
	if err := errors.CheckScalar("loss_calculation", nll+penalty, 0); err != nil {
		return 0, 0, err
	}
	for _, gs := range grad.Slices() {
		if err := errors.CheckNumericalStability("gradient", gs, 0); err != nil {
			return 0, 0, err
		}
	}
	return nll, penalty, nil
}

// accumulate adds the gradient of −log p(x), excluding the Σ w_j term of the
// logits gradient, into g and returns log p(x).
func (e *evaluator) accumulate(x []float64, s *pointScratch, g *Params) float64 {
	lse := e.joint(x, s)
	d := e.p.D
	for k := 0; k < e.p.K; k++ {
		r := math.Exp(s.a[k] - lse)
		g.WeightLogits[k] -= r
		if r == 0 {
			continue
		}

		z, u := s.z[k], s.u
		copy(u, z)
		blas64.Trsv(blas.Trans, triangular(d, e.chol[k]), blas64.Vector{N: d, Inc: 1, Data: u})

		floats.AddScaled(g.Mean(k), -r, u)

		gs := g.logDiag(k)
		glow := g.lower(k)
		L := e.chol[k]
		for i := 0; i < d; i++ {
			gs[i] += r * (1 - u[i]*z[i]*L[i*d+i])
			for j := 0; j < i; j++ {
				glow[trilIndex(i, j)] -= r * u[i] * z[j]
			}
		}
	}
	return lse
}
