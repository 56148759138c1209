package mixture

import (
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
)

// EpochReport describes one finished epoch of one restart.
type EpochReport struct {
	Restart      int
	Epoch        int
	TrainLoss    float64
	ValLoss      float64
	HasVal       bool
	LearningRate float64
}

// Reporter observes training progress. It must not modify the model. With
// NJobs > 1 it may be called from several goroutines.
type Reporter func(EpochReport)

// LogReporter writes one info record per report.
func LogReporter(logger log.Logger) Reporter {
	return func(r EpochReport) {
		fields := []any{
			log.RestartKey, r.Restart,
			log.EpochKey, r.Epoch,
			log.LossKey, r.TrainLoss,
			log.LearningRateKey, r.LearningRate,
		}
		if r.HasVal {
			fields = append(fields, log.ValLossKey, r.ValLoss)
		}
		logger.Info("Epoch finished", fields...)
	}
}

// TerminationReason says why a restart stopped.
type TerminationReason int

const (
	EpochLimitReached TerminationReason = iota
	EarlyStopped
	Converged
	Failed
)

func (r TerminationReason) String() string {
	switch r {
	case EarlyStopped:
		return "early_stopped"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	default:
		return "epoch_limit"
	}
}

// RestartSummary records the outcome of one restart.
type RestartSummary struct {
	Index       int
	Score       float64
	Epochs      int
	Termination TerminationReason
	Err         error
}
