// Standard attribute keys for training and decoding operations.
//
// Using these keys everywhere keeps training logs filterable: one query
// over "training.loglik" follows an objective across learners and runs.
package log

// Model and operation context.
const (
	// ModelNameKey identifies the model type, e.g. "HiddenMarkovModel".
	ModelNameKey = "model.name"

	// AlgorithmKey names the training algorithm, e.g. "baum-welch",
	// "viterbi", "lbfgs".
	AlgorithmKey = "ml.algorithm"

	// OperationKey names the operation: "learn", "decode", "evaluate".
	OperationKey = "ml.operation"
)

// Data shape.
const (
	// SequencesKey is the number of training sequences in the batch.
	SequencesKey = "data.sequences"

	// ObservationsKey is the total number of observations across the batch.
	ObservationsKey = "data.observations"

	// StatesKey is the number of hidden states.
	StatesKey = "model.states"
)

// Training progress.
const (
	// IterationKey is the current outer-loop iteration.
	IterationKey = "training.iteration"

	// LogLikelihoodKey is the mean per-sequence log-likelihood objective.
	LogLikelihoodKey = "training.loglik"

	// DeltaKey is the objective change used for the convergence check.
	DeltaKey = "training.delta"

	// StatusKey is the convergence status at loop exit.
	StatusKey = "training.status"

	// DurationMsKey records the execution time of an operation in
	// milliseconds.
	DurationMsKey = "perf.duration_ms"
)
