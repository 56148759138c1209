// Package log defines standard attribute keys for training and scoring.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so that logs can be filtered consistently.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model, e.g. "SGDGMM".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "score", "predict", "sample"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// BatchSizeKey indicates the minibatch size.
	BatchSizeKey = "data.batch_size"
)

// Mixture model shape
const (
	// ComponentsKey records the number of mixture components.
	ComponentsKey = "mixture.components"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// LossKey records the training loss.
	LossKey = "metrics.loss"

	// ValLossKey records the validation loss.
	ValLossKey = "metrics.val_loss"

	// ScoreKey records the score used to compare restarts.
	ScoreKey = "metrics.score"

	// EpochKey records the current epoch number during training.
	EpochKey = "training.epoch"

	// RestartKey records the index of the current training restart.
	RestartKey = "training.restart"

	// TerminationKey records why a restart stopped.
	// Values: "early_stopped", "converged", "epoch_limit", "failed"
	TerminationKey = "training.termination"
)

// Error Context
const (
	// ErrorTypeKey categorizes the error.
	ErrorTypeKey = "error.type"
)

// Hyperparameters and Configuration
const (
	// LearningRateKey records the learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// RegularizationKey records the covariance regularization weight.
	RegularizationKey = "hyperparams.regularization"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationScore   = "score"
	OperationPredict = "predict"
	OperationSample  = "sample"

	PhaseInitialization = "initialization"
	PhaseTraining       = "training"
	PhaseValidation     = "validation"
)
