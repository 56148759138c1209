package mixture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/core/data"
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
)

// scriptedObjective returns loss(call) with zero gradients. failFirst calls
// fail with a numerical instability.
type scriptedObjective struct {
	loss      func(call int) float64
	failFirst int
	calls     int
}

func (o *scriptedObjective) Evaluate(_ mat.Matrix, _ *Params, _ int, grad *Params) (float64, float64, error) {
	o.calls++
	grad.Zero()
	if o.calls <= o.failFirst {
		return 0, 0, errors.NewNumericalInstabilityError("loss_calculation", []float64{0}, o.calls)
	}
	return o.loss(o.calls), 0, nil
}

func increasingLoss(call int) float64 { return float64(call) }

// testConfig trains a 1-component, 1-D model with one batch per epoch.
func testConfig(n int) Config {
	cfg := DefaultConfig(1, 1)
	cfg.BatchSize = n
	cfg.KMeansInitBatchMultiplier = 1
	cfg.KMeansIterations = 1
	cfg.KMeansTrials = 1
	cfg.Restarts = 1
	cfg.Epochs = 100
	cfg.RandomState = 0
	cfg.Prefetch = 0
	return cfg
}

func lineDataset(n int) data.Dataset {
	X := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
	}
	return data.NewMatrixDataset(X)
}

func TestEarlyStoppingHaltsAfterPatience(t *testing.T) {
	for _, patience := range []int{0, 2, 5} {
		cfg := testConfig(16)
		cfg.EarlyStoppingPatience = patience

		tr := newTrainer(cfg, &scriptedObjective{loss: increasingLoss}, nil, log.NewTestLogger(log.LevelWarn))
		// Improves during epochs 0-2, flat afterwards.
		valLosses := []float64{10, 9, 8}
		epoch := 0
		tr.score = func(context.Context, *Params, data.Dataset) (float64, error) {
			v := 8.0
			if epoch < len(valLosses) {
				v = valLosses[epoch]
			}
			epoch++
			return v, nil
		}

		best, summaries, err := tr.fit(context.Background(), lineDataset(16), lineDataset(4))
		require.NoError(t, err)

		assert.Equal(t, EarlyStopped, best.termination, "patience %d", patience)
		// Stops at 0-based epoch 3+patience.
		assert.Len(t, best.valCurve, 3+patience+1, "patience %d", patience)
		assert.Len(t, best.trainCurve, 3+patience+1)
		assert.Equal(t, 8.0, best.score)
		assert.Equal(t, 3+patience+1, summaries[0].Epochs)
	}
}

func TestConstantLossConvergesAtFirstComparison(t *testing.T) {
	cfg := testConfig(8)
	tr := newTrainer(cfg, &scriptedObjective{loss: func(int) float64 { return 5 }}, nil, log.NewTestLogger(log.LevelWarn))

	best, _, err := tr.fit(context.Background(), lineDataset(8), nil)
	require.NoError(t, err)
	assert.Equal(t, Converged, best.termination)
	assert.Equal(t, []float64{5, 5}, best.trainCurve)
	assert.Nil(t, best.valCurve)
}

func TestEpochLimitReached(t *testing.T) {
	cfg := testConfig(8)
	cfg.Epochs = 7
	tr := newTrainer(cfg, &scriptedObjective{loss: increasingLoss}, nil, log.NewTestLogger(log.LevelWarn))

	best, _, err := tr.fit(context.Background(), lineDataset(8), nil)
	require.NoError(t, err)
	assert.Equal(t, EpochLimitReached, best.termination)
	assert.Len(t, best.trainCurve, 7)
	assert.Equal(t, 7.0, best.score)
}

func TestNormalizeLossDividesByDatasetSize(t *testing.T) {
	cfg := testConfig(4)
	cfg.Epochs = 1
	cfg.NormalizeLoss = true
	tr := newTrainer(cfg, &scriptedObjective{loss: func(int) float64 { return 8 }}, nil, log.NewTestLogger(log.LevelWarn))
	tr.score = func(context.Context, *Params, data.Dataset) (float64, error) { return 6, nil }

	best, _, err := tr.fit(context.Background(), lineDataset(4), lineDataset(3))
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, best.trainCurve)
	assert.Equal(t, []float64{2}, best.valCurve)
}

func TestReporterIntervalAndLearningRate(t *testing.T) {
	cfg := testConfig(8)
	cfg.Epochs = 6
	cfg.LearningRate = 0.1
	cfg.LRMilestones = []int{2}
	cfg.LRDecayFactor = 0.5
	cfg.ReportInterval = 2

	var reports []EpochReport
	tr := newTrainer(cfg, &scriptedObjective{loss: increasingLoss}, func(r EpochReport) {
		reports = append(reports, r)
	}, log.NewTestLogger(log.LevelWarn))

	_, _, err := tr.fit(context.Background(), lineDataset(8), nil)
	require.NoError(t, err)

	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, 2*i, r.Epoch)
		assert.False(t, r.HasVal)
	}
	assert.InDelta(t, 0.1, reports[0].LearningRate, 1e-15)
	assert.InDelta(t, 0.05, reports[1].LearningRate, 1e-15)
}

func TestDegeneracyIsFatalByDefault(t *testing.T) {
	cfg := testConfig(8)
	cfg.Restarts = 3
	tr := newTrainer(cfg, &scriptedObjective{loss: increasingLoss, failFirst: 1}, nil, log.NewTestLogger(log.LevelWarn))

	_, _, err := tr.fit(context.Background(), lineDataset(8), nil)
	require.Error(t, err)
	assert.True(t, errors.IsNumericDegeneracy(err))
}

func TestContinueOnDegeneracy(t *testing.T) {
	cfg := testConfig(8)
	cfg.Restarts = 3
	cfg.Epochs = 3
	cfg.ContinueOnDegeneracy = true
	logger := log.NewTestLogger(log.LevelWarn)
	tr := newTrainer(cfg, &scriptedObjective{loss: increasingLoss, failFirst: 1}, nil, logger)

	best, summaries, err := tr.fit(context.Background(), lineDataset(8), nil)
	require.NoError(t, err)

	require.Len(t, summaries, 3)
	assert.Equal(t, Failed, summaries[0].Termination)
	assert.True(t, errors.IsNumericDegeneracy(summaries[0].Err))
	assert.Equal(t, EpochLimitReached, summaries[1].Termination)
	// Call 1 fails restart 0. Restart 1 ends on loss 4, restart 2 on loss 7.
	assert.Equal(t, 1, best.restart)
	assert.True(t, logger.ContainsField(log.TerminationKey, "failed"))

	tr = newTrainer(cfg, &scriptedObjective{loss: increasingLoss, failFirst: 1 << 30}, nil, logger)
	_, _, err = tr.fit(context.Background(), lineDataset(8), nil)
	assert.True(t, errors.Is(err, errors.ErrAllRestartsFailed))
}

func TestRestartSelectionPrefersLowerIndexOnTies(t *testing.T) {
	cfg := testConfig(8)
	cfg.Restarts = 3
	cfg.Epochs = 2
	tr := newTrainer(cfg, &scriptedObjective{loss: func(call int) float64 { return float64(call % 2) }}, nil, log.NewTestLogger(log.LevelWarn))

	best, summaries, err := tr.fit(context.Background(), lineDataset(8), nil)
	require.NoError(t, err)
	for _, s := range summaries {
		assert.Equal(t, summaries[0].Score, s.Score)
	}
	assert.Equal(t, 0, best.restart)
}
