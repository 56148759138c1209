package mixture

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/core/data"
	"github.com/YuminosukeSato/gmmsgd/core/optim"
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
	"github.com/YuminosukeSato/gmmsgd/sklearn/cluster"
)

// snapshot is an immutable copy of the best restart so far.
type snapshot struct {
	params      *Params
	trainCurve  []float64
	valCurve    []float64
	restart     int
	score       float64
	termination TerminationReason
}

// runState is the mutable state of a single restart.
type runState struct {
	params     *Params
	grad       *Params
	opt        *optim.Adam
	sched      *optim.MultiStepLR
	trainCurve []float64
	valCurve   []float64

	bestValLoss   float64
	noImprovement int
	prevLoss      float64
	termination   TerminationReason
}

type restartOutcome struct {
	summary RestartSummary
	state   *runState
}

// trainer runs the multi-restart fitting procedure.
type trainer struct {
	cfg       Config
	objective Objective
	reporter  Reporter
	logger    log.Logger

	// score is the validation scorer; replaced in tests.
	score func(ctx context.Context, p *Params, ds data.Dataset) (float64, error)

	baseSeed uint64
}

func newTrainer(cfg Config, objective Objective, reporter Reporter, logger log.Logger) *trainer {
	t := &trainer{
		cfg:       cfg,
		objective: objective,
		reporter:  reporter,
		logger:    logger,
	}
	t.score = func(ctx context.Context, p *Params, ds data.Dataset) (float64, error) {
		return scoreDataset(ctx, p, ds, cfg.BatchSize, cfg.Prefetch, cfg.Workers)
	}
	if cfg.RandomState >= 0 {
		t.baseSeed = uint64(cfg.RandomState)
	} else {
		t.baseSeed = uint64(time.Now().UnixNano())
	}
	return t
}

// fit runs every restart and returns the best one. val may be nil.
func (t *trainer) fit(ctx context.Context, train, val data.Dataset) (*snapshot, []RestartSummary, error) {
	outcomes := make([]*restartOutcome, t.cfg.Restarts)

	run := func(ctx context.Context, i int) error {
		out, err := t.runRestart(ctx, i, train, val)
		if err == nil {
			outcomes[i] = out
			return nil
		}
		if errors.IsNumericDegeneracy(err) && t.cfg.ContinueOnDegeneracy {
			t.logger.Warn("Restart failed, continuing",
				log.RestartKey, i,
				log.TerminationKey, Failed.String(),
				log.ErrAttrKey, err,
			)
			outcomes[i] = &restartOutcome{summary: RestartSummary{
				Index:       i,
				Score:       math.Inf(1),
				Termination: Failed,
				Err:         err,
			}}
			return nil
		}
		return errors.Wrapf(err, "restart %d", i)
	}

	if t.cfg.NJobs <= 1 {
		for i := 0; i < t.cfg.Restarts; i++ {
			if err := run(ctx, i); err != nil {
				return nil, nil, err
			}
		}
	} else {
		p := pool.New().
			WithMaxGoroutines(t.cfg.NJobs).
			WithErrors().
			WithContext(ctx).
			WithFirstError().
			WithCancelOnError()
		for i := 0; i < t.cfg.Restarts; i++ {
			p.Go(func(ctx context.Context) error {
				return run(ctx, i)
			})
		}
		if err := p.Wait(); err != nil {
			return nil, nil, err
		}
	}

	// Lowest score wins; ties go to the lower restart index, matching a
	// sequential run.
	var best *snapshot
	summaries := make([]RestartSummary, len(outcomes))
	for i, out := range outcomes {
		summaries[i] = out.summary
		if out.state == nil {
			continue
		}
		if best == nil || out.summary.Score < best.score {
			best = &snapshot{
				params:      out.state.params.Clone(),
				trainCurve:  append([]float64(nil), out.state.trainCurve...),
				valCurve:    append([]float64(nil), out.state.valCurve...),
				restart:     i,
				score:       out.summary.Score,
				termination: out.summary.Termination,
			}
		}
	}
	if best == nil {
		return nil, summaries, errors.ErrAllRestartsFailed
	}
	return best, summaries, nil
}

func (t *trainer) newRand(restart int) *rand.Rand {
	seed := t.baseSeed + uint64(restart)
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// runRestart trains one restart from a fresh initialization.
func (t *trainer) runRestart(ctx context.Context, idx int, train, val data.Dataset) (*restartOutcome, error) {
	cfg := t.cfg
	rng := t.newRand(idx)
	logger := t.logger.With(log.RestartKey, idx)

	st := &runState{
		params:      NewParams(cfg.Components, cfg.Dimensions),
		grad:        NewParams(cfg.Components, cfg.Dimensions),
		opt:         optim.NewAdam(optim.AdamConfig{LR: cfg.LearningRate}),
		sched:       optim.NewMultiStepLR(cfg.LearningRate, cfg.Milestones(), cfg.LRDecayFactor),
		bestValLoss: math.Inf(1),
		prevLoss:    math.Inf(1),
		termination: EpochLimitReached,
	}

	initLoader := &data.Loader{
		Dataset:   train,
		BatchSize: cfg.BatchSize * cfg.KMeansInitBatchMultiplier,
		Shuffle:   true,
		Prefetch:  cfg.Prefetch,
		Rand:      rng,
	}
	km, err := cluster.InitFromBatches(ctx, initLoader, cfg.Components,
		cluster.WithKMeansIterations(cfg.KMeansIterations),
		cluster.WithKMeansTrials(cfg.KMeansTrials),
		cluster.WithKMeansRand(rng),
		cluster.WithKMeansLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := st.params.setFromKMeans(km.Counts, km.Centroids); err != nil {
		return nil, err
	}
	logger.Debug("Initialized from k-means",
		log.PhaseKey, log.PhaseInitialization,
		"inertia", km.Inertia,
	)

	loader := &data.Loader{
		Dataset:   train,
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		Prefetch:  cfg.Prefetch,
		Rand:      rng,
	}
	nTotal := train.Len()

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		st.opt.SetLearningRate(st.sched.LearningRate())

		trainLoss := 0.0
		err := loader.ForEach(ctx, func(batch *mat.Dense) error {
			nll, _, err := t.objective.Evaluate(batch, st.params, nTotal, st.grad)
			if err != nil {
				return err
			}
			trainLoss += nll
			return st.opt.Step(st.params.Slices(), st.grad.Slices())
		})
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d", epoch)
		}
		if cfg.NormalizeLoss {
			trainLoss /= float64(nTotal)
		}
		st.trainCurve = append(st.trainCurve, trainLoss)

		var valLoss float64
		if val != nil {
			valLoss, err = t.score(ctx, st.params, val)
			if err != nil {
				return nil, errors.Wrapf(err, "validation at epoch %d", epoch)
			}
			if cfg.NormalizeLoss {
				valLoss /= float64(val.Len())
			}
			st.valCurve = append(st.valCurve, valLoss)
		}

		lr := st.sched.LearningRate()
		st.sched.Step()

		if t.reporter != nil && epoch%cfg.ReportInterval == 0 {
			t.reporter(EpochReport{
				Restart:      idx,
				Epoch:        epoch,
				TrainLoss:    trainLoss,
				ValLoss:      valLoss,
				HasVal:       val != nil,
				LearningRate: lr,
			})
		}

		if val != nil {
			if valLoss < st.bestValLoss {
				st.noImprovement = 0
				st.bestValLoss = valLoss
			} else {
				st.noImprovement++
			}
			if st.noImprovement > cfg.EarlyStoppingPatience {
				st.termination = EarlyStopped
				break
			}
		}

		if math.Abs(trainLoss-st.prevLoss) < cfg.ConvergenceTolerance {
			st.termination = Converged
			break
		}
		st.prevLoss = trainLoss
	}

	score := st.trainCurve[len(st.trainCurve)-1]
	if val != nil {
		score = st.valCurve[len(st.valCurve)-1]
	}

	logger.Info("Restart finished",
		log.PhaseKey, log.PhaseTraining,
		log.TerminationKey, st.termination.String(),
		log.ScoreKey, score,
		log.EpochKey, len(st.trainCurve),
	)

	return &restartOutcome{
		summary: RestartSummary{
			Index:       idx,
			Score:       score,
			Epochs:      len(st.trainCurve),
			Termination: st.termination,
		},
		state: st,
	}, nil
}
