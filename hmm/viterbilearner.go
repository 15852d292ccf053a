package hmm

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	coremodel "github.com/seqlearn/seqlearn/core/model"
	"github.com/seqlearn/seqlearn/core/parallel"
	"github.com/seqlearn/seqlearn/pkg/errors"
	seqlog "github.com/seqlearn/seqlearn/pkg/log"
)

// ViterbiLearner fits a hidden Markov model by segmental training: each
// iteration decodes the single best state path per sequence and
// re-estimates parameters from the resulting hard state and transition
// counts, instead of the soft occupations Baum-Welch uses.
//
// With WithViterbiBatches(b) the training set is partitioned into b
// random groups per iteration and the groups are processed sequentially,
// each with its own parameter update. Early iterations then stabilize on
// subsets before the whole set is used.
type ViterbiLearner struct {
	coremodel.BaseEstimator

	nStates  int
	topology Topology
	factory  EmissionFactory

	tolerance     float64
	maxIterations int
	batches       int
	workers       int
	randomState   int64

	logger   *slog.Logger
	progress func(ProgressInfo)

	hmm     *Model
	history []float64
	status  Status
	rng     *rand.Rand
}

// ViterbiOption configures a ViterbiLearner.
type ViterbiOption func(*ViterbiLearner)

// WithViterbiTopology sets the topology for freshly constructed models.
func WithViterbiTopology(t Topology) ViterbiOption {
	return func(v *ViterbiLearner) { v.topology = t }
}

// WithViterbiTolerance sets the relative objective-change tolerance.
func WithViterbiTolerance(tol float64) ViterbiOption {
	return func(v *ViterbiLearner) { v.tolerance = tol }
}

// WithViterbiMaxIterations sets the iteration budget (0 disables it).
func WithViterbiMaxIterations(n int) ViterbiOption {
	return func(v *ViterbiLearner) { v.maxIterations = n }
}

// WithViterbiBatches partitions each iteration's training set into b
// random groups processed sequentially.
func WithViterbiBatches(b int) ViterbiOption {
	return func(v *ViterbiLearner) { v.batches = b }
}

// WithViterbiWorkers caps the parallel workers used for batch decoding.
func WithViterbiWorkers(n int) ViterbiOption {
	return func(v *ViterbiLearner) { v.workers = n }
}

// WithViterbiRandomState seeds the mini-batch partitioner for
// reproducible runs.
func WithViterbiRandomState(seed int64) ViterbiOption {
	return func(v *ViterbiLearner) { v.randomState = seed }
}

// WithViterbiLogger sets the structured logger used for progress output.
func WithViterbiLogger(l *slog.Logger) ViterbiOption {
	return func(v *ViterbiLearner) { v.logger = l }
}

// WithViterbiProgress installs a callback invoked after every iteration.
func WithViterbiProgress(fn func(ProgressInfo)) ViterbiOption {
	return func(v *ViterbiLearner) { v.progress = fn }
}

// WithViterbiInitialModel supplies a pre-built model to continue training.
func WithViterbiInitialModel(m *Model) ViterbiOption {
	return func(v *ViterbiLearner) { v.hmm = m }
}

// NewViterbiLearner creates a Viterbi learner for a model with nStates
// hidden states whose per-state emissions come from factory.
func NewViterbiLearner(nStates int, factory EmissionFactory, opts ...ViterbiOption) *ViterbiLearner {
	v := &ViterbiLearner{
		nStates:       nStates,
		topology:      Ergodic{},
		factory:       factory,
		tolerance:     1e-5,
		maxIterations: 100,
		batches:       1,
		randomState:   -1,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.randomState >= 0 {
		v.rng = rand.New(rand.NewSource(v.randomState))
	} else {
		v.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return v
}

// Model returns the model being trained, or nil before the first Learn.
func (v *ViterbiLearner) Model() *Model { return v.hmm }

// History returns the per-iteration mean path log-probabilities of the
// last Learn call.
func (v *ViterbiLearner) History() []float64 { return v.history }

// Status returns the stopping condition that ended the last Learn call.
func (v *ViterbiLearner) Status() Status { return v.status }

// PartialFit is not supported: segmental training re-estimates from the
// decoded paths of a full batch.
func (v *ViterbiLearner) PartialFit(seq [][]float64) error {
	return errors.NewNotSupportedError("online learning",
		"Viterbi learning re-estimates from batch path counts; use Learn with the full training set")
}

// Learn fits the model to the sequences and returns it.
//
// The monitored objective is the mean Viterbi path log-probability over
// the batch. Cancelling ctx stops training between iterations and
// returns the model obtained so far without error.
func (v *ViterbiLearner) Learn(ctx context.Context, sequences [][][]float64, weights []float64) (*Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := validateTrainingSet(sequences, weights); err != nil {
		return nil, err
	}

	if v.hmm == nil {
		m, err := NewModel(v.nStates, v.topology, v.factory)
		if err != nil {
			return nil, err
		}
		v.hmm = m
	}

	logger := v.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		seqlog.ModelNameKey, "HiddenMarkovModel",
		seqlog.AlgorithmKey, "viterbi",
		seqlog.StatesKey, v.hmm.nStates,
		seqlog.SequencesKey, len(sequences),
	)

	monitor := NewConvergenceMonitor(v.tolerance, v.maxIterations)
	v.history = v.history[:0]

	paths := make([][]int, len(sequences))
	scores := make([]float64, len(sequences))

	for {
		if ctx.Err() != nil {
			monitor.Cancel()
			break
		}

		for _, group := range v.partition(len(sequences)) {
			v.decodeGroup(sequences, group, paths, scores)
			if err := v.reestimateFromPaths(sequences, weights, group, paths); err != nil {
				return nil, err
			}
		}

		objective := 0.0
		for _, s := range scores {
			objective += s
		}
		objective /= float64(len(scores))
		v.history = append(v.history, objective)

		status := monitor.Observe(objective)
		logger.Debug("iteration finished",
			seqlog.IterationKey, monitor.Iteration(),
			seqlog.LogLikelihoodKey, objective,
			seqlog.DeltaKey, monitor.Delta(),
		)
		if v.progress != nil {
			v.progress(ProgressInfo{
				Iteration:     monitor.Iteration(),
				LogLikelihood: objective,
				Delta:         monitor.Delta(),
			})
		}
		if status != Running {
			break
		}
	}

	v.status = monitor.Status()
	if v.status == MaxIterationsReached {
		errors.Warn(errors.NewConvergenceWarning("ViterbiLearner", monitor.Iteration(), ""))
	}
	logger.Info("training finished",
		seqlog.IterationKey, monitor.Iteration(),
		seqlog.LogLikelihoodKey, monitor.Objective(),
		seqlog.StatusKey, v.status.String(),
	)

	v.SetFitted()
	return v.hmm, nil
}

// partition shuffles the sequence indices and splits them into the
// configured number of groups. With one batch the whole set forms a
// single group in natural order.
func (v *ViterbiLearner) partition(n int) [][]int {
	b := v.batches
	if b < 1 {
		b = 1
	}
	if b > n {
		b = n
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if b == 1 {
		return [][]int{indices}
	}

	v.rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	groups := make([][]int, 0, b)
	size := (n + b - 1) / b
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		groups = append(groups, indices[start:end])
	}
	return groups
}

// decodeGroup runs Viterbi decoding for one group of sequences in
// parallel, filling the shared paths and scores slices at disjoint
// indices.
func (v *ViterbiLearner) decodeGroup(sequences [][][]float64, group []int, paths [][]int, scores []float64) {
	run := func(start, end int) {
		for g := start; g < end; g++ {
			idx := group[g]
			// Sequences were validated up front, so Decode cannot fail.
			path, score, _ := v.hmm.Decode(sequences[idx])
			paths[idx] = path
			scores[idx] = score
		}
	}

	if v.workers > 0 {
		parallel.ParallelizeN(v.workers, len(group), run)
	} else {
		parallel.Parallelize(len(group), run)
	}
}

// reestimateFromPaths replaces the model parameters with normalized
// frequency counts from the decoded state paths of one group. States
// without any outgoing transition in the group keep their previous row,
// and emissions of unvisited states are untouched (their weighted fit is
// a no-op).
func (v *ViterbiLearner) reestimateFromPaths(sequences [][][]float64, weights []float64, group []int, paths [][]int) error {
	K := v.hmm.nStates

	initCounts := make([]float64, K)
	transCounts := make([][]float64, K)
	for i := range transCounts {
		transCounts[i] = make([]float64, K)
	}

	totalInit := 0.0
	for _, idx := range group {
		w := 1.0
		if weights != nil {
			w = weights[idx]
		}
		path := paths[idx]
		initCounts[path[0]] += w
		totalInit += w
		for t := 1; t < len(path); t++ {
			transCounts[path[t-1]][path[t]] += w
		}
	}

	if totalInit > 0 {
		for i := 0; i < K; i++ {
			v.hmm.logInitial[i] = math.Log(initCounts[i] / totalInit)
		}
	}

	for i := 0; i < K; i++ {
		rowTotal := 0.0
		for j := 0; j < K; j++ {
			rowTotal += transCounts[i][j]
		}
		if rowTotal == 0 {
			continue
		}
		for j := 0; j < K; j++ {
			if math.IsInf(v.hmm.logTransitions.At(i, j), 1) {
				continue
			}
			v.hmm.logTransitions.Set(i, j, math.Log(transCounts[i][j]/rowTotal))
		}
	}

	// Emission refit against the group's pooled samples with hard
	// indicator weights.
	total := 0
	for _, idx := range group {
		total += len(sequences[idx])
	}
	samples := make([][]float64, 0, total)
	for _, idx := range group {
		samples = append(samples, sequences[idx]...)
	}

	indicator := make([]float64, total)
	for state := 0; state < K; state++ {
		p := 0
		for _, idx := range group {
			w := 1.0
			if weights != nil {
				w = weights[idx]
			}
			for _, s := range paths[idx] {
				if s == state {
					indicator[p] = w
				} else {
					indicator[p] = 0
				}
				p++
			}
		}
		// Decode only scores observations, it does not validate them, so
		// a distribution can still reject its samples here.
		if err := v.hmm.emissions[state].Fit(samples, indicator); err != nil {
			return errors.Wrapf(err, "refitting emission for state %d", state)
		}
	}
	return nil
}
