package hmm

import (
	"context"
	"log/slog"
	"math"

	coremodel "github.com/seqlearn/seqlearn/core/model"
	"github.com/seqlearn/seqlearn/core/parallel"
	"github.com/seqlearn/seqlearn/pkg/errors"
	seqlog "github.com/seqlearn/seqlearn/pkg/log"
)

// ProgressInfo is passed to the progress callback after every completed
// training iteration.
type ProgressInfo struct {
	Iteration     int
	LogLikelihood float64
	Delta         float64
}

// BaumWelch fits a hidden Markov model to a set of observation sequences
// with the expectation-maximization (forward-backward) algorithm.
//
// The expectation step is parallelized across sequences; within one
// sequence the trellis recurrences are inherently serial. Each worker
// owns its scratch buffers and writes per-sequence statistics into
// disjoint slots, so no locking is needed until the maximization step
// reduces them.
type BaumWelch struct {
	coremodel.BaseEstimator

	nStates  int
	topology Topology
	factory  EmissionFactory

	tolerance      float64
	maxIterations  int
	requiredChecks int
	workers        int

	logger   *slog.Logger
	progress func(ProgressInfo)

	hmm     *Model
	history []float64
	status  Status
}

// BaumWelchOption configures a BaumWelch learner.
type BaumWelchOption func(*BaumWelch)

// WithTopology sets the topology used when the learner constructs a fresh
// model. Defaults to Ergodic.
func WithTopology(t Topology) BaumWelchOption {
	return func(bw *BaumWelch) { bw.topology = t }
}

// WithTolerance sets the relative objective-change tolerance.
func WithTolerance(tol float64) BaumWelchOption {
	return func(bw *BaumWelch) { bw.tolerance = tol }
}

// WithMaxIterations sets the iteration budget. Zero disables the budget
// and training runs until the tolerance triggers.
func WithMaxIterations(n int) BaumWelchOption {
	return func(bw *BaumWelch) { bw.maxIterations = n }
}

// WithRequiredChecks sets how many consecutive in-tolerance iterations
// are needed before the learner reports convergence.
func WithRequiredChecks(n int) BaumWelchOption {
	return func(bw *BaumWelch) { bw.requiredChecks = n }
}

// WithWorkers caps the number of parallel workers for the batch
// expectation step. Values below 2 force sequential processing.
func WithWorkers(n int) BaumWelchOption {
	return func(bw *BaumWelch) { bw.workers = n }
}

// WithLogger sets the structured logger used for progress output.
func WithLogger(l *slog.Logger) BaumWelchOption {
	return func(bw *BaumWelch) { bw.logger = l }
}

// WithProgress installs a callback invoked after every iteration.
func WithProgress(fn func(ProgressInfo)) BaumWelchOption {
	return func(bw *BaumWelch) { bw.progress = fn }
}

// WithInitialModel supplies a pre-built model to continue training
// instead of constructing one from the topology.
func WithInitialModel(m *Model) BaumWelchOption {
	return func(bw *BaumWelch) { bw.hmm = m }
}

// NewBaumWelch creates a Baum-Welch learner for a model with nStates
// hidden states whose per-state emissions come from factory.
func NewBaumWelch(nStates int, factory EmissionFactory, opts ...BaumWelchOption) *BaumWelch {
	bw := &BaumWelch{
		nStates:        nStates,
		topology:       Ergodic{},
		factory:        factory,
		tolerance:      1e-5,
		maxIterations:  100,
		requiredChecks: 1,
	}
	for _, opt := range opts {
		opt(bw)
	}
	return bw
}

// Model returns the model being trained, or nil before the first Learn.
func (bw *BaumWelch) Model() *Model { return bw.hmm }

// History returns the per-iteration mean log-likelihood values of the
// last Learn call.
func (bw *BaumWelch) History() []float64 { return bw.history }

// Status returns the stopping condition that ended the last Learn call.
func (bw *BaumWelch) Status() Status { return bw.status }

// PartialFit is not supported: Baum-Welch needs the full batch of
// sequences to compute expectation statistics.
func (bw *BaumWelch) PartialFit(seq [][]float64) error {
	return errors.NewNotSupportedError("online learning",
		"Baum-Welch re-estimates from batch statistics; use Learn with the full training set")
}

// validateTrainingSet applies the fail-fast input checks shared by all
// learners: a non-empty batch, no zero-length sequence, and weights (when
// given) matching the batch size. It returns the per-sequence log
// weights, nil when every weight is one.
func validateTrainingSet(sequences [][][]float64, weights []float64) ([]float64, error) {
	if len(sequences) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyTrainingSet)
	}
	for i, seq := range sequences {
		if err := validateSequence(seq, i); err != nil {
			return nil, err
		}
	}
	if weights == nil {
		return nil, nil
	}
	if len(weights) != len(sequences) {
		return nil, errors.NewDimensionError("Learn", len(sequences), len(weights))
	}
	logWeights := make([]float64, len(weights))
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, errors.NewValidationError("weights", "must be non-negative", w)
		}
		logWeights[i] = math.Log(w)
	}
	return logWeights, nil
}

// Learn fits the model to the sequences and returns it.
//
// The loop runs expectation over the batch, checks convergence on the
// mean per-sequence log-likelihood, and only then re-estimates
// parameters. When a stopping condition triggers, the returned model
// reflects the last fully completed maximization step; the final
// expectation pass is used solely to measure convergence.
//
// Cancelling ctx stops training between iterations and returns the model
// obtained so far without error. A nil weights slice trains every
// sequence with weight one.
func (bw *BaumWelch) Learn(ctx context.Context, sequences [][][]float64, weights []float64) (*Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logWeights, err := validateTrainingSet(sequences, weights)
	if err != nil {
		return nil, err
	}

	if bw.hmm == nil {
		m, err := NewModel(bw.nStates, bw.topology, bw.factory)
		if err != nil {
			return nil, err
		}
		bw.hmm = m
	}

	logger := bw.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		seqlog.ModelNameKey, "HiddenMarkovModel",
		seqlog.AlgorithmKey, "baum-welch",
		seqlog.StatesKey, bw.hmm.nStates,
		seqlog.SequencesKey, len(sequences),
	)

	monitor := NewConvergenceMonitor(bw.tolerance, bw.maxIterations)
	monitor.RequiredChecks = bw.requiredChecks
	bw.history = bw.history[:0]

	stats := make([]*sequenceStats, len(sequences))

	for {
		if ctx.Err() != nil {
			monitor.Cancel()
			break
		}

		bw.expectationBatch(sequences, logWeights, stats)

		objective := 0.0
		for _, st := range stats {
			objective += st.logLik
		}
		objective /= float64(len(stats))
		bw.history = append(bw.history, objective)

		status := monitor.Observe(objective)
		logger.Debug("iteration finished",
			seqlog.IterationKey, monitor.Iteration(),
			seqlog.LogLikelihoodKey, objective,
			seqlog.DeltaKey, monitor.Delta(),
		)
		if bw.progress != nil {
			bw.progress(ProgressInfo{
				Iteration:     monitor.Iteration(),
				LogLikelihood: objective,
				Delta:         monitor.Delta(),
			})
		}
		if status != Running {
			break
		}

		if err := bw.hmm.maximization(stats, sequences, monitor.Iteration()); err != nil {
			return nil, err
		}
	}

	bw.status = monitor.Status()
	if bw.status == MaxIterationsReached {
		errors.Warn(errors.NewConvergenceWarning("BaumWelch", monitor.Iteration(), ""))
	}
	logger.Info("training finished",
		seqlog.IterationKey, monitor.Iteration(),
		seqlog.LogLikelihoodKey, monitor.Objective(),
		seqlog.StatusKey, bw.status.String(),
	)

	bw.SetFitted()
	return bw.hmm, nil
}

// expectationBatch runs the expectation step for every sequence,
// parallelized across sequences. Workers write into disjoint stats slots;
// each chunk allocates one trellis sized for its longest sequence.
func (bw *BaumWelch) expectationBatch(sequences [][][]float64, logWeights []float64, stats []*sequenceStats) {
	run := func(start, end int) {
		maxT := 0
		for i := start; i < end; i++ {
			if len(sequences[i]) > maxT {
				maxT = len(sequences[i])
			}
		}
		tr := newTrellis(maxT, bw.hmm.nStates)
		for i := start; i < end; i++ {
			lw := 0.0
			if logWeights != nil {
				lw = logWeights[i]
			}
			stats[i] = bw.hmm.expectation(sequences[i], lw, tr)
		}
	}

	if bw.workers > 0 {
		parallel.ParallelizeN(bw.workers, len(sequences), run)
	} else {
		parallel.Parallelize(len(sequences), run)
	}
}
