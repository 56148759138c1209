package mixture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

func flatten(p *Params) []float64 {
	var out []float64
	for _, s := range p.Slices() {
		out = append(out, s...)
	}
	return out
}

func unflatten(p *Params, theta []float64) {
	off := 0
	for _, s := range p.Slices() {
		copy(s, theta[off:off+len(s)])
		off += len(s)
	}
}

func TestObjectiveGradientMatchesFiniteDifferences(t *testing.T) {
	tests := []struct {
		name    string
		k, d    int
		lambda  float64
		workers int
	}{
		{"1d single component", 1, 1, 0, 1},
		{"2d mixture with penalty", 2, 2, 0.5, 1},
		{"3d mixture parallel", 3, 3, 0.2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := randomParams(tt.k, tt.d, 21)
			X := randomPoints(15, tt.d, 2.5, 3)
			const nTotal = 60
			obj := NewObjective(tt.lambda, tt.workers)

			grad := NewParams(tt.k, tt.d)
			_, _, err := obj.Evaluate(X, p, nTotal, grad)
			require.NoError(t, err)

			probe := p.Clone()
			scratch := NewParams(tt.k, tt.d)
			loss := func(theta []float64) float64 {
				unflatten(probe, theta)
				nll, pen, err := obj.Evaluate(X, probe, nTotal, scratch)
				require.NoError(t, err)
				return nll + pen
			}

			numeric := fd.Gradient(nil, loss, flatten(p), &fd.Settings{
				Formula: fd.Central,
				Step:    1e-6,
			})
			analytic := flatten(grad)
			require.Len(t, numeric, len(analytic))
			for i := range analytic {
				tol := 1e-4 * math.Max(1, math.Abs(numeric[i]))
				assert.InDelta(t, numeric[i], analytic[i], tol, "parameter %d", i)
			}
		})
	}
}

func TestObjectiveLossMatchesLikelihood(t *testing.T) {
	p := randomParams(3, 2, 8)
	X := randomPoints(50, 2, 3, 1)

	nll, pen, err := NewObjective(0.1, 2).Evaluate(X, p, 200, NewParams(3, 2))
	require.NoError(t, err)

	want, err := negLogLikelihood(p, X, 1)
	require.NoError(t, err)
	assert.InDelta(t, want, nll, 1e-9)
	assert.InDelta(t, regularization(p, 50, 200, 0.1), pen, 1e-12)
}

func TestObjectiveWorkerCountDoesNotChangeResult(t *testing.T) {
	p := randomParams(2, 3, 5)
	X := randomPoints(101, 3, 2, 2)

	g1, g4 := NewParams(2, 3), NewParams(2, 3)
	nll1, _, err := NewObjective(1e-3, 1).Evaluate(X, p, 101, g1)
	require.NoError(t, err)
	nll4, _, err := NewObjective(1e-3, 4).Evaluate(X, p, 101, g4)
	require.NoError(t, err)

	assert.Equal(t, nll1, nll4)
	assert.InDeltaSlice(t, flatten(g1), flatten(g4), 1e-9)
}

func TestObjectiveReportsDegeneracy(t *testing.T) {
	p := NewParams(1, 2)
	p.LogDiag[0] = -1000 // variance underflows to zero
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	_, _, err := NewObjective(1e-3, 1).Evaluate(X, p, 2, NewParams(1, 2))
	require.Error(t, err)
	assert.True(t, errors.IsNumericDegeneracy(err))

	_, _, err = NewObjective(1e-3, 1).Evaluate(mat.NewDense(2, 3, nil), NewParams(1, 2), 2, NewParams(1, 2))
	assert.False(t, errors.IsNumericDegeneracy(err))
	assert.Error(t, err)
}
