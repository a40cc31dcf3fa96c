// Package log defines standard attribute keys for adversarial texture training.
//
// Using these keys keeps the training controller, checkpoint store and
// command line tooling consistent, so logs can be filtered by run, phase
// and global step.
//
// The keys follow a hierarchical naming convention (e.g. "train.global_step",
// "data.object").

package log

// Run and Operation Context
const (
	// RunIDKey identifies one training run. Generated once per process.
	RunIDKey = "run.id"

	// ArchKey is the simulator architecture identifier ("SimpleNet", "MLPNet").
	ArchKey = "model.arch"

	// ComponentKey identifies which package is emitting the record.
	// Examples: "training", "dataset", "checkpoint"
	ComponentKey = "component"

	// PhaseKey is the current training phase.
	PhaseKey = "train.phase"

	// OperationKey specifies the operation being performed.
	OperationKey = "operation"
)

// Training Progress
const (
	// GlobalStepKey is the cycle counter persisted in checkpoints.
	GlobalStepKey = "train.global_step"

	// WarmupStepKey counts simulator-only steps before the main loop.
	WarmupStepKey = "train.warmup_step"

	// LearningRateKey records the decayed learning rate of an optimizer.
	LearningRateKey = "train.learning_rate"

	// LossKey records a loss value.
	LossKey = "metrics.loss"

	// AccuracyKey records simulator agreement with the oracle.
	AccuracyKey = "metrics.accuracy"

	// PenaltyKey records the generator's perceptual penalty.
	PenaltyKey = "metrics.penalty"

	// TFRKey records the targeted fool rate.
	TFRKey = "metrics.tfr"

	// UFRKey records the untargeted fool rate.
	UFRKey = "metrics.ufr"
)

// Data and I/O
const (
	// ObjectKey is a dataset object name (its directory name).
	ObjectKey = "data.object"

	// ObjectsKey is the number of objects in a dataset.
	ObjectsKey = "data.objects"

	// BatchSizeKey indicates the mini-batch size.
	BatchSizeKey = "data.batch_size"

	// PathKey is a filesystem path (dataset root, checkpoint directory).
	PathKey = "io.path"

	// BytesKey is a human readable byte count.
	BytesKey = "io.bytes"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides a hint for resolving the issue.
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationLoad       = "load"
	OperationSave       = "save"
	OperationResume     = "resume"
	OperationWarmup     = "warmup"
	OperationSimulator  = "simulator_step"
	OperationGenerator  = "generator_step"
	OperationValidation = "validation"
)
