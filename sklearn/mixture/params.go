package mixture

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

// Params is the complete trainable state of a K-component, D-dimensional
// mixture. All four slices are row-major and owned by the Params value.
//
// Component k has weight softmax(WeightLogits)[k], mean Means[k*D:(k+1)*D]
// and covariance L_k L_kᵀ, where L_k is lower triangular with diagonal
// exp(LogDiag[k*D+d]) and strictly-lower entries taken from LowerOffDiag in
// the order (1,0), (2,0), (2,1), (3,0), ...
type Params struct {
	K, D int

	WeightLogits []float64
	Means        []float64
	LogDiag      []float64
	LowerOffDiag []float64
}

// NewParams returns zero-valued parameters: uniform weights, zero means and
// identity covariances.
func NewParams(k, d int) *Params {
	return &Params{
		K:            k,
		D:            d,
		WeightLogits: make([]float64, k),
		Means:        make([]float64, k*d),
		LogDiag:      make([]float64, k*d),
		LowerOffDiag: make([]float64, k*nTril(d)),
	}
}

// nTril is the number of strictly-lower entries of a d x d matrix.
func nTril(d int) int { return d * (d - 1) / 2 }

// trilIndex is the position of entry (i, j), i > j, in a component's block
// of LowerOffDiag.
func trilIndex(i, j int) int { return i*(i-1)/2 + j }

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	return &Params{
		K:            p.K,
		D:            p.D,
		WeightLogits: append([]float64(nil), p.WeightLogits...),
		Means:        append([]float64(nil), p.Means...),
		LogDiag:      append([]float64(nil), p.LogDiag...),
		LowerOffDiag: append([]float64(nil), p.LowerOffDiag...),
	}
}

// Slices exposes the parameter storage in a fixed order for optimizers.
func (p *Params) Slices() [][]float64 {
	return [][]float64{p.WeightLogits, p.Means, p.LogDiag, p.LowerOffDiag}
}

// Zero sets every parameter to zero.
func (p *Params) Zero() {
	for _, s := range p.Slices() {
		for i := range s {
			s[i] = 0
		}
	}
}

// add accumulates q into p elementwise.
func (p *Params) add(q *Params) {
	ps, qs := p.Slices(), q.Slices()
	for i := range ps {
		floats.Add(ps[i], qs[i])
	}
}

// Mean returns a view of component k's mean.
func (p *Params) Mean(k int) []float64 {
	return p.Means[k*p.D : (k+1)*p.D]
}

func (p *Params) logDiag(k int) []float64 {
	return p.LogDiag[k*p.D : (k+1)*p.D]
}

func (p *Params) lower(k int) []float64 {
	n := nTril(p.D)
	return p.LowerOffDiag[k*n : (k+1)*n]
}

// cholesky writes L_k into dst as a row-major D x D matrix with zeros above
// the diagonal.
func (p *Params) cholesky(k int, dst []float64) {
	d := p.D
	s, low := p.logDiag(k), p.lower(k)
	for i := 0; i < d; i++ {
		row := dst[i*d : (i+1)*d]
		for j := range row {
			switch {
			case j == i:
				row[j] = math.Exp(s[i])
			case j < i:
				row[j] = low[trilIndex(i, j)]
			default:
				row[j] = 0
			}
		}
	}
}

// triangular wraps a row-major lower factor for blas64 calls.
func triangular(d int, data []float64) blas64.Triangular {
	return blas64.Triangular{
		Uplo:   blas.Lower,
		Diag:   blas.NonUnit,
		N:      d,
		Stride: d,
		Data:   data,
	}
}

// CholeskyFactors returns the lower Cholesky factor of every component.
func CholeskyFactors(p *Params) []*mat.TriDense {
	out := make([]*mat.TriDense, p.K)
	for k := range out {
		data := make([]float64, p.D*p.D)
		p.cholesky(k, data)
		out[k] = mat.NewTriDense(p.D, mat.Lower, data)
	}
	return out
}

// Covariances returns L_k L_kᵀ for every component.
func Covariances(p *Params) []*mat.SymDense {
	out := make([]*mat.SymDense, p.K)
	for k, L := range CholeskyFactors(p) {
		cov := mat.NewSymDense(p.D, nil)
		cov.SymOuterK(1, L)
		out[k] = cov
	}
	return out
}

// logWeights writes log softmax(WeightLogits) into dst.
func (p *Params) logWeights(dst []float64) {
	lse := floats.LogSumExp(p.WeightLogits)
	for k, a := range p.WeightLogits {
		dst[k] = a - lse
	}
}

// Weights returns softmax(WeightLogits). The result sums to 1.
func (p *Params) Weights() []float64 {
	w := make([]float64, p.K)
	p.logWeights(w)
	for k := range w {
		w[k] = math.Exp(w[k])
	}
	return w
}

// MeansMatrix returns the means as a K x D matrix.
func (p *Params) MeansMatrix() *mat.Dense {
	return mat.NewDense(p.K, p.D, append([]float64(nil), p.Means...))
}

// setFromKMeans seeds the mixture from k-means output: log-proportional
// weights, centroid means and identity covariances.
func (p *Params) setFromKMeans(counts []float64, centroids mat.Matrix) error {
	r, c := centroids.Dims()
	if len(counts) != p.K || r != p.K {
		return errors.NewDimensionError("setFromKMeans", p.K, r, 0)
	}
	if c != p.D {
		return errors.NewDimensionError("setFromKMeans", p.D, c, 1)
	}

	total := floats.Sum(counts)
	for k, n := range counts {
		p.WeightLogits[k] = math.Log(n / total)
		for d := 0; d < p.D; d++ {
			p.Means[k*p.D+d] = centroids.At(k, d)
		}
	}
	for i := range p.LogDiag {
		p.LogDiag[i] = 0
	}
	for i := range p.LowerOffDiag {
		p.LowerOffDiag[i] = 0
	}
	return nil
}
