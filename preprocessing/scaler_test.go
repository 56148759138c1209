package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

func TestStandardScalerFitTransform(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		1, 10, 7,
		2, 20, 7,
		3, 30, 7,
		4, 40, 7,
	})
	s := NewStandardScalerDefault()
	Xs, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{2.5, 25, 7}, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[2], "constant feature keeps unit scale")

	for j := 0; j < 2; j++ {
		col := mat.Col(nil, j, Xs)
		mean, std := stat.PopMeanStdDev(col, nil)
		assert.InDelta(t, 0, mean, 1e-12)
		assert.InDelta(t, 1, std, 1e-12)
	}

	back, err := s.InverseTransform(Xs)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))
}

func TestStandardScalerWithoutMean(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{2, 6})
	s := NewStandardScaler(false, true)
	Xs, err := s.FitTransform(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, s.Mean)
	assert.InDelta(t, 1.0, Xs.At(0, 0), 1e-12)
	assert.InDelta(t, 3.0, Xs.At(1, 0), 1e-12)
}

func TestInverseTransformCovariance(t *testing.T) {
	s := NewStandardScalerDefault()
	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{0, 0, 2, 6})))
	// Scales are 1 and 3.
	cov := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2})
	got, err := s.InverseTransformCovariance(cov)
	require.NoError(t, err)
	want := mat.NewSymDense(2, []float64{1, 1.5, 1.5, 18})
	assert.True(t, mat.EqualApprox(got, want, 1e-12))
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScalerDefault()

	_, err := s.Transform(mat.NewDense(1, 1, nil))
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	assert.True(t, errors.Is(s.Fit(&mat.Dense{}), errors.ErrEmptyData))

	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
	assert.Contains(t, s.String(), "n_features=2")
}
