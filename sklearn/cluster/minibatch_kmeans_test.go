package cluster

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/core/data"
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
)

func twoBlobs(n int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		center := 0.0
		if i%2 == 1 {
			center = 10
		}
		X.Set(i, 0, center+0.5*rng.NormFloat64())
		X.Set(i, 1, center+0.5*rng.NormFloat64())
	}
	return X
}

func newLoader(X mat.Matrix, batch int, seed uint64) *data.Loader {
	return &data.Loader{
		Dataset:   data.NewMatrixDataset(X),
		BatchSize: batch,
		Shuffle:   true,
		Prefetch:  2,
		Rand:      rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func TestInitFromBatchesFindsBlobs(t *testing.T) {
	X := twoBlobs(1000, 1)
	res, err := InitFromBatches(context.Background(), newLoader(X, 200, 3), 2,
		WithKMeansIterations(5),
		WithKMeansTrials(3),
		WithKMeansRand(rand.New(rand.NewPCG(5, 5))),
		WithKMeansLogger(log.NewTestLogger(log.LevelDebug)),
	)
	require.NoError(t, err)

	rows, cols := res.Centroids.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)

	firsts := []float64{res.Centroids.At(0, 0), res.Centroids.At(1, 0)}
	order := []int{0, 1}
	if firsts[0] > firsts[1] {
		order = []int{1, 0}
	}
	for i, want := range []float64{0, 10} {
		c := res.Centroids.RawRowView(order[i])
		assert.InDelta(t, want, c[0], 0.5)
		assert.InDelta(t, want, c[1], 0.5)
	}

	// Counts start at 1 and accumulate one per point per pass.
	assert.InDelta(t, 2+5*1000, floats.Sum(res.Counts), 1e-9)
	for _, c := range res.Counts {
		assert.InDelta(t, 0.5, c/floats.Sum(res.Counts), 0.05)
	}
	assert.Less(t, res.Inertia, 1000.0)
}

func TestInitFromBatchesDeterministic(t *testing.T) {
	X := twoBlobs(300, 2)
	run := func() *InitResult {
		res, err := InitFromBatches(context.Background(), newLoader(X, 32, 9), 3,
			WithKMeansIterations(2),
			WithKMeansTrials(2),
			WithKMeansRand(rand.New(rand.NewPCG(4, 4))),
		)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.True(t, mat.Equal(a.Centroids, b.Centroids))
	assert.Equal(t, a.Counts, b.Counts)
	assert.Equal(t, a.Trial, b.Trial)
}

func TestInitFromBatchesMoreClustersThanPoints(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{1, 1})
	res, err := InitFromBatches(context.Background(), newLoader(X, 4, 1), 3,
		WithKMeansRand(rand.New(rand.NewPCG(1, 1))),
	)
	require.NoError(t, err)

	for c := 0; c < 3; c++ {
		assert.Equal(t, 1.0, res.Centroids.At(c, 0))
		assert.GreaterOrEqual(t, res.Counts[c], 1.0)
	}
	for _, c := range res.Counts {
		assert.False(t, math.IsInf(math.Log(c), 0))
	}
}

func TestInitFromBatchesErrors(t *testing.T) {
	empty := &data.Loader{Dataset: data.NewMatrixDataset(&mat.Dense{}), BatchSize: 8}
	_, err := InitFromBatches(context.Background(), empty, 2)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	X := twoBlobs(10, 1)
	var valErr *errors.ValidationError
	_, err = InitFromBatches(context.Background(), newLoader(X, 4, 1), 0)
	assert.True(t, errors.As(err, &valErr))
	_, err = InitFromBatches(context.Background(), newLoader(X, 4, 1), 2, WithKMeansIterations(0))
	assert.True(t, errors.As(err, &valErr))
}

func TestFindNearestCluster(t *testing.T) {
	centers := [][]float64{{0, 0}, {5, 5}, {5, 5}}
	tests := []struct {
		x    []float64
		want int
	}{
		{[]float64{1, 1}, 0},
		{[]float64{4, 6}, 1}, // tie between equal centers goes to the lower index
		{[]float64{2.5, 2.5}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, findNearestCluster(tt.x, centers), "x=%v", tt.x)
	}

	assert.InDelta(t, 25, squaredDistance([]float64{0, 0}, []float64{3, 4}), 1e-12)
}
