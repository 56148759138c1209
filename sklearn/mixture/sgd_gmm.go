package mixture

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/core/data"
	"github.com/YuminosukeSato/gmmsgd/core/model"
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
)

const modelName = "SGDGMM"

// SGDGMM is a full-covariance Gaussian mixture fitted by minibatch Adam on
// the negative log-likelihood, with k-means initialization and restarts.
//
// Example:
//
//	gmm := mixture.NewSGDGMM(2, 2, mixture.WithRandomState(42))
//	if err := gmm.Fit(ctx, X); err != nil {
//	    return err
//	}
//	means, _ := gmm.Means()
type SGDGMM struct {
	state *model.StateManager

	cfg       Config
	reporter  Reporter
	logger    log.Logger
	objective Objective

	mu       sync.RWMutex
	best     *snapshot
	restarts []RestartSummary
}

var (
	_ model.DensityEstimator = (*SGDGMM)(nil)
	_ model.Scorer           = (*SGDGMM)(nil)
	_ model.Clusterer        = (*SGDGMM)(nil)
	_ model.ParameterGetter  = (*SGDGMM)(nil)
)

// NewSGDGMM creates an unfitted mixture of components Gaussians in
// dimensions dimensions. Hyperparameters are validated by Fit.
func NewSGDGMM(components, dimensions int, options ...Option) *SGDGMM {
	g := &SGDGMM{
		state: model.NewStateManager(),
		cfg:   DefaultConfig(components, dimensions),
	}
	for _, opt := range options {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("mixture.sgd_gmm")
	}
	g.logger = g.logger.With(
		log.ModelNameKey, modelName,
		log.ComponentsKey, components,
	)
	return g
}

// Config returns a copy of the hyperparameters.
func (g *SGDGMM) Config() Config {
	cfg := g.cfg
	cfg.LRMilestones = append([]int(nil), g.cfg.LRMilestones...)
	return cfg
}

// Fit fits the mixture to the rows of X.
func (g *SGDGMM) Fit(ctx context.Context, X mat.Matrix) error {
	return g.FitDataset(ctx, data.NewMatrixDataset(X), nil)
}

// FitWithValidation fits to X, scoring val after each epoch for early
// stopping and restart selection.
func (g *SGDGMM) FitWithValidation(ctx context.Context, X, val mat.Matrix) error {
	return g.FitDataset(ctx, data.NewMatrixDataset(X), data.NewMatrixDataset(val))
}

// FitDataset fits to train. val may be nil.
//
// On success the best restart becomes the model. On failure the previously
// fitted state, if any, is kept.
func (g *SGDGMM) FitDataset(ctx context.Context, train, val data.Dataset) (err error) {
	defer errors.Recover(&err, "SGDGMM.Fit")

	if err := g.cfg.Validate(); err != nil {
		return err
	}
	if train.Len() == 0 {
		return errors.NewModelError("Fit", "empty dataset", errors.ErrEmptyData)
	}
	if train.Dim() != g.cfg.Dimensions {
		return errors.NewDimensionError("Fit", g.cfg.Dimensions, train.Dim(), 1)
	}
	if val != nil {
		if val.Len() == 0 {
			return errors.NewModelError("Fit", "empty validation dataset", errors.ErrEmptyData)
		}
		if val.Dim() != g.cfg.Dimensions {
			return errors.NewDimensionError("Fit", g.cfg.Dimensions, val.Dim(), 1)
		}
	}

	objective := g.objective
	if objective == nil {
		objective = NewObjective(g.cfg.RegularizationWeight, g.cfg.Workers)
	}

	g.logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, train.Len(),
		log.FeaturesKey, train.Dim(),
		log.BatchSizeKey, g.cfg.BatchSize,
		log.LearningRateKey, g.cfg.LearningRate,
		log.RegularizationKey, g.cfg.RegularizationWeight,
		log.RandomSeedKey, g.cfg.RandomState,
	)
	start := time.Now()

	best, summaries, err := newTrainer(g.cfg, objective, g.reporter, g.logger).fit(ctx, train, val)
	if err != nil {
		g.logger.Error("Training failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	g.mu.Lock()
	g.best = best
	g.restarts = summaries
	g.mu.Unlock()
	g.state.SetFitted(train.Dim(), train.Len())

	g.logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.RestartKey, best.restart,
		log.ScoreKey, best.score,
		log.TerminationKey, best.termination.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if best.termination == EpochLimitReached {
		errors.Warn(errors.NewConvergenceWarning(modelName, len(best.trainCurve),
			"epoch limit reached before the loss converged"))
	}
	return nil
}

// IsFitted reports whether Fit has succeeded.
func (g *SGDGMM) IsFitted() bool { return g.state.IsFitted() }

func (g *SGDGMM) snapshot(method string) (*snapshot, error) {
	if err := g.state.RequireFitted(modelName, method); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.best, nil
}

func (g *SGDGMM) snapshotFor(method string, X mat.Matrix) (*snapshot, error) {
	_, d := X.Dims()
	if err := g.state.RequireFeatures(modelName, method, d); err != nil {
		return nil, err
	}
	return g.snapshot(method)
}

// Params returns a deep copy of the fitted parameters.
func (g *SGDGMM) Params() (*Params, error) {
	s, err := g.snapshot("Params")
	if err != nil {
		return nil, err
	}
	return s.params.Clone(), nil
}

// Means returns the K x D component means.
func (g *SGDGMM) Means() (*mat.Dense, error) {
	s, err := g.snapshot("Means")
	if err != nil {
		return nil, err
	}
	return s.params.MeansMatrix(), nil
}

// Covariances returns the component covariance matrices.
func (g *SGDGMM) Covariances() ([]*mat.SymDense, error) {
	s, err := g.snapshot("Covariances")
	if err != nil {
		return nil, err
	}
	return Covariances(s.params), nil
}

// CholeskyFactors returns the lower Cholesky factors of the covariances.
func (g *SGDGMM) CholeskyFactors() ([]*mat.TriDense, error) {
	s, err := g.snapshot("CholeskyFactors")
	if err != nil {
		return nil, err
	}
	return CholeskyFactors(s.params), nil
}

// Weights returns the mixture weights.
func (g *SGDGMM) Weights() ([]float64, error) {
	s, err := g.snapshot("Weights")
	if err != nil {
		return nil, err
	}
	return s.params.Weights(), nil
}

// TrainLossCurve returns the per-epoch training loss of the committed
// restart.
func (g *SGDGMM) TrainLossCurve() []float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.best == nil {
		return nil
	}
	return append([]float64(nil), g.best.trainCurve...)
}

// ValLossCurve returns the per-epoch validation loss of the committed
// restart, or nil when no validation data was given.
func (g *SGDGMM) ValLossCurve() []float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.best == nil || len(g.best.valCurve) == 0 {
		return nil
	}
	return append([]float64(nil), g.best.valCurve...)
}

// Restarts summarizes every restart of the last successful Fit.
func (g *SGDGMM) Restarts() []RestartSummary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]RestartSummary(nil), g.restarts...)
}

// BestRestart returns the index of the committed restart.
func (g *SGDGMM) BestRestart() (int, error) {
	s, err := g.snapshot("BestRestart")
	if err != nil {
		return 0, err
	}
	return s.restart, nil
}

// Score returns the total negative log-likelihood of X. It does not modify
// the model.
func (g *SGDGMM) Score(X mat.Matrix) (float64, error) {
	s, err := g.snapshotFor("Score", X)
	if err != nil {
		return 0, err
	}
	return negLogLikelihood(s.params, X, g.cfg.Workers)
}

// ScoreDataset returns the total negative log-likelihood of ds, visiting it
// in unshuffled batches of BatchSize.
func (g *SGDGMM) ScoreDataset(ctx context.Context, ds data.Dataset) (float64, error) {
	if err := g.state.RequireFeatures(modelName, "ScoreDataset", ds.Dim()); err != nil {
		return 0, err
	}
	s, err := g.snapshot("ScoreDataset")
	if err != nil {
		return 0, err
	}
	return scoreDataset(ctx, s.params, ds, g.cfg.BatchSize, g.cfg.Prefetch, g.cfg.Workers)
}

// ScoreSamples returns log p(x) for every row of X.
func (g *SGDGMM) ScoreSamples(X mat.Matrix) ([]float64, error) {
	s, err := g.snapshotFor("ScoreSamples", X)
	if err != nil {
		return nil, err
	}
	return logMixtureDensity(s.params, X, g.cfg.Workers)
}

// GetParams returns the hyperparameters.
func (g *SGDGMM) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"components":             g.cfg.Components,
		"dimensions":             g.cfg.Dimensions,
		"epochs":                 g.cfg.Epochs,
		"lr":                     g.cfg.LearningRate,
		"batch_size":             g.cfg.BatchSize,
		"tol":                    g.cfg.ConvergenceTolerance,
		"restarts":               g.cfg.Restarts,
		"max_no_improvement":     g.cfg.EarlyStoppingPatience,
		"k_means_factor":         g.cfg.KMeansInitBatchMultiplier,
		"k_means_iters":          g.cfg.KMeansIterations,
		"k_means_trials":         g.cfg.KMeansTrials,
		"w":                      g.cfg.RegularizationWeight,
		"lr_milestones":          g.cfg.Milestones(),
		"lr_gamma":               g.cfg.LRDecayFactor,
		"random_state":           g.cfg.RandomState,
		"n_jobs":                 g.cfg.NJobs,
		"workers":                g.cfg.Workers,
		"continue_on_degeneracy": g.cfg.ContinueOnDegeneracy,
		"normalize_loss":         g.cfg.NormalizeLoss,
	}
}
