// Package cluster provides the streaming minibatch k-means used to seed
// mixture models.
package cluster

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/core/data"
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
)

// InitResult is the outcome of minibatch k-means initialization.
type InitResult struct {
	// Counts holds the number of points assigned to each centroid plus one.
	// Counts start at 1, so every entry is positive.
	Counts []float64

	// Centroids is K x D.
	Centroids *mat.Dense

	// Inertia is the within-cluster sum of squares of the winning trial,
	// measured on a final pass over the data.
	Inertia float64

	// Trial is the index of the winning trial.
	Trial int
}

type minibatchKMeans struct {
	nClusters  int
	iterations int
	trials     int
	rng        *rand.Rand
	logger     log.Logger
}

// KMeansOption configures InitFromBatches.
type KMeansOption func(*minibatchKMeans)

// WithKMeansIterations sets the number of streaming passes per trial.
func WithKMeansIterations(n int) KMeansOption {
	return func(km *minibatchKMeans) {
		km.iterations = n
	}
}

// WithKMeansTrials sets the number of independent trials.
func WithKMeansTrials(n int) KMeansOption {
	return func(km *minibatchKMeans) {
		km.trials = n
	}
}

// WithKMeansRand sets the random source used for k-means++ seeding.
// Shuffling is controlled by the loader's own source.
func WithKMeansRand(rng *rand.Rand) KMeansOption {
	return func(km *minibatchKMeans) {
		km.rng = rng
	}
}

// WithKMeansLogger sets the logger.
func WithKMeansLogger(logger log.Logger) KMeansOption {
	return func(km *minibatchKMeans) {
		km.logger = logger
	}
}

// errFirstBatch stops a pass after the first batch has been captured.
var errFirstBatch = errors.New("first batch captured")

// InitFromBatches runs minibatch k-means over the batches delivered by
// loader and returns per-cluster counts and centroids.
//
// Each trial seeds k centroids with k-means++ on the first batch, then for
// every configured pass assigns each point to its nearest centroid and
// moves that centroid by the running mean c += (x-c)/count. The trial with
// the lowest inertia wins. There is no convergence check.
func InitFromBatches(ctx context.Context, loader *data.Loader, k int, options ...KMeansOption) (*InitResult, error) {
	km := &minibatchKMeans{
		nClusters:  k,
		iterations: 10,
		trials:     1,
		logger:     log.GetLoggerWithName("cluster.minibatch_kmeans"),
	}
	for _, opt := range options {
		opt(km)
	}
	if km.rng == nil {
		km.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if err := km.validate(); err != nil {
		return nil, err
	}
	if loader.Dataset.Len() == 0 {
		return nil, errors.NewModelError("InitFromBatches", "empty dataset", errors.ErrEmptyData)
	}

	var best *InitResult
	for trial := 0; trial < km.trials; trial++ {
		res, err := km.fitTrial(ctx, loader)
		if err != nil {
			return nil, err
		}
		res.Trial = trial
		km.logger.Debug("k-means trial finished",
			"trial", trial,
			"inertia", res.Inertia,
		)
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func (km *minibatchKMeans) validate() error {
	if km.nClusters < 1 {
		return errors.NewValidationError("n_clusters", "must be at least 1", km.nClusters)
	}
	if km.iterations < 1 {
		return errors.NewValidationError("k_means_iters", "must be at least 1", km.iterations)
	}
	if km.trials < 1 {
		return errors.NewValidationError("k_means_trials", "must be at least 1", km.trials)
	}
	return nil
}

func (km *minibatchKMeans) fitTrial(ctx context.Context, loader *data.Loader) (*InitResult, error) {
	var first *mat.Dense
	err := loader.ForEach(ctx, func(batch *mat.Dense) error {
		first = batch
		return errFirstBatch
	})
	if err != nil && !errors.Is(err, errFirstBatch) {
		return nil, err
	}

	centers := km.initKMeansPlusPlus(first)
	counts := make([]float64, km.nClusters)
	for i := range counts {
		counts[i] = 1
	}

	dim := loader.Dataset.Dim()
	diff := make([]float64, dim)
	for it := 0; it < km.iterations; it++ {
		err := loader.ForEach(ctx, func(batch *mat.Dense) error {
			rows, _ := batch.Dims()
			for i := 0; i < rows; i++ {
				x := batch.RawRowView(i)
				c := findNearestCluster(x, centers)
				counts[c]++
				floats.SubTo(diff, x, centers[c])
				floats.AddScaled(centers[c], 1/counts[c], diff)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	inertia, err := computeInertia(ctx, loader, centers)
	if err != nil {
		return nil, err
	}

	centroids := mat.NewDense(km.nClusters, dim, nil)
	for c, center := range centers {
		centroids.SetRow(c, center)
	}
	return &InitResult{Counts: counts, Centroids: centroids, Inertia: inertia}, nil
}

// initKMeansPlusPlus picks centers from X with probability proportional to
// the squared distance to the nearest center chosen so far. When X has fewer
// distinct points than clusters the remaining centers duplicate existing
// points.
func (km *minibatchKMeans) initKMeansPlusPlus(X *mat.Dense) [][]float64 {
	rows, cols := X.Dims()
	centers := make([][]float64, km.nClusters)

	centers[0] = make([]float64, cols)
	copy(centers[0], X.RawRowView(km.rng.IntN(rows)))

	distances := make([]float64, rows)
	for c := 1; c < km.nClusters; c++ {
		totalDistance := 0.0
		for i := 0; i < rows; i++ {
			sample := X.RawRowView(i)
			minDist := math.Inf(1)
			for j := 0; j < c; j++ {
				if d := squaredDistance(sample, centers[j]); d < minDist {
					minDist = d
				}
			}
			distances[i] = minDist
			totalDistance += minDist
		}

		target := km.rng.Float64() * totalDistance
		cumSum := 0.0
		selectedIdx := 0
		for i := 0; i < rows; i++ {
			cumSum += distances[i]
			if cumSum >= target && distances[i] > 0 {
				selectedIdx = i
				break
			}
		}

		centers[c] = make([]float64, cols)
		copy(centers[c], X.RawRowView(selectedIdx))
	}
	return centers
}

func computeInertia(ctx context.Context, loader *data.Loader, centers [][]float64) (float64, error) {
	inertia := 0.0
	err := loader.ForEach(ctx, func(batch *mat.Dense) error {
		rows, _ := batch.Dims()
		for i := 0; i < rows; i++ {
			x := batch.RawRowView(i)
			inertia += squaredDistance(x, centers[findNearestCluster(x, centers)])
		}
		return nil
	})
	return inertia, err
}

// findNearestCluster returns the index of the closest center; ties go to
// the lower index.
func findNearestCluster(sample []float64, centers [][]float64) int {
	minDist := math.Inf(1)
	nearestCluster := 0
	for c, center := range centers {
		if dist := squaredDistance(sample, center); dist < minDist {
			minDist = dist
			nearestCluster = c
		}
	}
	return nearestCluster
}

func squaredDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
