package mixture

import (
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
)

const (
	// DefaultRegularizationWeight is the penalty weight used by SGDGMM.
	DefaultRegularizationWeight = 1e-3

	// BaseRegularizationWeight is the weaker penalty weight of the generic
	// estimator; pass it to WithRegularizationWeight to opt in.
	BaseRegularizationWeight = 1e-6
)

// Config holds the hyperparameters of SGDGMM. The JSON form is accepted by
// cmd/gmmfit -config.
type Config struct {
	Components int `json:"components"`
	Dimensions int `json:"dimensions"`

	Epochs                int     `json:"epochs"`
	LearningRate          float64 `json:"lr"`
	BatchSize             int     `json:"batch_size"`
	ConvergenceTolerance  float64 `json:"tol"`
	Restarts              int     `json:"restarts"`
	EarlyStoppingPatience int     `json:"max_no_improvement"`

	KMeansInitBatchMultiplier int `json:"k_means_factor"`
	KMeansIterations          int `json:"k_means_iters"`
	KMeansTrials              int `json:"k_means_trials"`

	RegularizationWeight float64 `json:"w"`

	LRDecayMilestoneEpoch int     `json:"lr_step"`
	LRMilestones          []int   `json:"lr_milestones,omitempty"`
	LRDecayFactor         float64 `json:"lr_gamma"`

	RandomState int64 `json:"random_state"`
	NJobs       int   `json:"n_jobs"`
	Workers     int   `json:"workers"`
	Prefetch    int   `json:"prefetch"`

	ContinueOnDegeneracy bool `json:"continue_on_degeneracy"`
	NormalizeLoss        bool `json:"normalize_loss"`

	ReportInterval int `json:"report_interval"`
}

// DefaultConfig returns the default hyperparameters for k components in d
// dimensions.
func DefaultConfig(k, d int) Config {
	return Config{
		Components:                k,
		Dimensions:                d,
		Epochs:                    10000,
		LearningRate:              1e-3,
		BatchSize:                 64,
		ConvergenceTolerance:      1e-6,
		Restarts:                  5,
		EarlyStoppingPatience:     20,
		KMeansInitBatchMultiplier: 100,
		KMeansIterations:          10,
		KMeansTrials:              3,
		RegularizationWeight:      DefaultRegularizationWeight,
		LRDecayMilestoneEpoch:     5,
		LRDecayFactor:             0.1,
		RandomState:               -1,
		NJobs:                     1,
		Workers:                   1,
		Prefetch:                  2,
		ReportInterval:            1,
	}
}

// Milestones returns the epochs at which the learning rate decays:
// LRMilestones when set, otherwise [m, m+5] for m = LRDecayMilestoneEpoch.
func (c Config) Milestones() []int {
	if len(c.LRMilestones) > 0 {
		return append([]int(nil), c.LRMilestones...)
	}
	return []int{c.LRDecayMilestoneEpoch, c.LRDecayMilestoneEpoch + 5}
}

// Validate checks every field and returns the first violation as a
// ValidationError.
func (c Config) Validate() error {
	checks := []struct {
		bad    bool
		param  string
		reason string
		value  interface{}
	}{
		{c.Components < 1, "components", "must be at least 1", c.Components},
		{c.Dimensions < 1, "dimensions", "must be at least 1", c.Dimensions},
		{c.Epochs <= 0, "epochs", "must be positive", c.Epochs},
		{c.LearningRate <= 0, "lr", "must be positive", c.LearningRate},
		{c.BatchSize <= 0, "batch_size", "must be positive", c.BatchSize},
		{c.ConvergenceTolerance < 0, "tol", "must be non-negative", c.ConvergenceTolerance},
		{c.Restarts <= 0, "restarts", "must be positive", c.Restarts},
		{c.EarlyStoppingPatience < 0, "max_no_improvement", "must be non-negative", c.EarlyStoppingPatience},
		{c.KMeansInitBatchMultiplier < 1, "k_means_factor", "must be at least 1", c.KMeansInitBatchMultiplier},
		{c.KMeansIterations < 1, "k_means_iters", "must be at least 1", c.KMeansIterations},
		{c.KMeansTrials < 1, "k_means_trials", "must be at least 1", c.KMeansTrials},
		{c.RegularizationWeight < 0, "w", "must be non-negative", c.RegularizationWeight},
		{c.LRDecayMilestoneEpoch < 0, "lr_step", "must be non-negative", c.LRDecayMilestoneEpoch},
		{c.LRDecayFactor <= 0, "lr_gamma", "must be positive", c.LRDecayFactor},
		{c.NJobs < 1, "n_jobs", "must be at least 1", c.NJobs},
		{c.Workers < 0, "workers", "must be non-negative", c.Workers},
		{c.Prefetch < 0, "prefetch", "must be non-negative", c.Prefetch},
		{c.ReportInterval < 1, "report_interval", "must be at least 1", c.ReportInterval},
	}
	for _, chk := range checks {
		if chk.bad {
			return errors.NewValidationError(chk.param, chk.reason, chk.value)
		}
	}
	for _, m := range c.LRMilestones {
		if m < 0 {
			return errors.NewValidationError("lr_milestones", "must be non-negative", m)
		}
	}
	return nil
}

// Option configures an SGDGMM.
type Option func(*SGDGMM)

// WithConfig replaces every hyperparameter except Components and
// Dimensions, which stay as passed to NewSGDGMM.
func WithConfig(cfg Config) Option {
	return func(g *SGDGMM) {
		k, d := g.cfg.Components, g.cfg.Dimensions
		g.cfg = cfg
		g.cfg.Components, g.cfg.Dimensions = k, d
	}
}

// WithEpochs sets the maximum number of epochs per restart.
func WithEpochs(n int) Option {
	return func(g *SGDGMM) { g.cfg.Epochs = n }
}

// WithLearningRate sets the initial Adam learning rate.
func WithLearningRate(lr float64) Option {
	return func(g *SGDGMM) { g.cfg.LearningRate = lr }
}

// WithBatchSize sets the minibatch size.
func WithBatchSize(n int) Option {
	return func(g *SGDGMM) { g.cfg.BatchSize = n }
}

// WithTol sets the convergence tolerance on the epoch training loss.
func WithTol(tol float64) Option {
	return func(g *SGDGMM) { g.cfg.ConvergenceTolerance = tol }
}

// WithRestarts sets the number of independent restarts.
func WithRestarts(n int) Option {
	return func(g *SGDGMM) { g.cfg.Restarts = n }
}

// WithEarlyStoppingPatience sets how many non-improving validation epochs
// are tolerated.
func WithEarlyStoppingPatience(n int) Option {
	return func(g *SGDGMM) { g.cfg.EarlyStoppingPatience = n }
}

// WithKMeansInitBatchMultiplier sets the initializer batch size as a
// multiple of the training batch size.
func WithKMeansInitBatchMultiplier(n int) Option {
	return func(g *SGDGMM) { g.cfg.KMeansInitBatchMultiplier = n }
}

// WithRegularizationWeight sets the covariance penalty weight.
func WithRegularizationWeight(w float64) Option {
	return func(g *SGDGMM) { g.cfg.RegularizationWeight = w }
}

// WithKMeansIterations sets the number of k-means passes.
func WithKMeansIterations(n int) Option {
	return func(g *SGDGMM) { g.cfg.KMeansIterations = n }
}

// WithKMeansTrials sets the number of k-means trials per restart.
func WithKMeansTrials(n int) Option {
	return func(g *SGDGMM) { g.cfg.KMeansTrials = n }
}

// WithLRDecayMilestone sets m for the default milestones [m, m+5].
func WithLRDecayMilestone(m int) Option {
	return func(g *SGDGMM) { g.cfg.LRDecayMilestoneEpoch = m }
}

// WithLRMilestones sets explicit decay epochs.
func WithLRMilestones(milestones ...int) Option {
	return func(g *SGDGMM) { g.cfg.LRMilestones = append([]int(nil), milestones...) }
}

// WithLRDecayFactor sets the multiplicative decay applied at each milestone.
func WithLRDecayFactor(gamma float64) Option {
	return func(g *SGDGMM) { g.cfg.LRDecayFactor = gamma }
}

// WithRandomState sets the seed. Negative values seed from the runtime.
func WithRandomState(seed int64) Option {
	return func(g *SGDGMM) { g.cfg.RandomState = seed }
}

// WithNJobs sets how many restarts may run concurrently.
func WithNJobs(n int) Option {
	return func(g *SGDGMM) { g.cfg.NJobs = n }
}

// WithWorkers sets how many goroutines share the work of one batch.
// 0 means runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(g *SGDGMM) { g.cfg.Workers = n }
}

// WithPrefetch sets how many batches the loader assembles ahead.
func WithPrefetch(n int) Option {
	return func(g *SGDGMM) { g.cfg.Prefetch = n }
}

// WithContinueOnDegeneracy lets a numerically degenerate restart fail on
// its own instead of aborting the fit.
func WithContinueOnDegeneracy(enabled bool) Option {
	return func(g *SGDGMM) { g.cfg.ContinueOnDegeneracy = enabled }
}

// WithNormalizeLoss divides tracked losses by the dataset size.
func WithNormalizeLoss(enabled bool) Option {
	return func(g *SGDGMM) { g.cfg.NormalizeLoss = enabled }
}

// WithReporter installs an observer called after epochs.
func WithReporter(r Reporter) Option {
	return func(g *SGDGMM) { g.reporter = r }
}

// WithReportInterval calls the reporter every n epochs.
func WithReportInterval(n int) Option {
	return func(g *SGDGMM) { g.cfg.ReportInterval = n }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(g *SGDGMM) { g.logger = logger }
}

// WithObjective replaces the loss/gradient engine.
func WithObjective(obj Objective) Option {
	return func(g *SGDGMM) { g.objective = obj }
}
