package hmm

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqlearn/seqlearn/pkg/errors"
	"github.com/seqlearn/seqlearn/pkg/logmath"
)

// Model is a hidden Markov model.
//
// All parameters are stored in the log domain: logInitial[i] is the log
// probability of starting in state i, logTransitions.At(i, j) the log
// probability of moving from state i to state j, and emissions[i] the
// observation distribution of state i. Rows of the transition matrix and
// the initial vector sum to one in probability space.
//
// A Model is exclusively owned and mutated by the learner currently
// fitting it; it is safe for concurrent reads once training finished.
type Model struct {
	nStates        int
	logInitial     []float64
	logTransitions *mat.Dense
	emissions      []Emission
}

// NewModel creates a model with the given number of states. The topology
// supplies the initial parameters and the factory one emission
// distribution per state.
func NewModel(nStates int, topology Topology, factory EmissionFactory) (*Model, error) {
	if factory == nil {
		return nil, errors.NewValidationError("factory", "emission factory must not be nil", nil)
	}
	if topology == nil {
		topology = Ergodic{}
	}

	logInitial, logTransitions, err := topology.Init(nStates)
	if err != nil {
		return nil, err
	}

	emissions := make([]Emission, nStates)
	for i := range emissions {
		emissions[i] = factory(i)
		if emissions[i] == nil {
			return nil, errors.NewValidationError("factory", "emission factory returned nil", i)
		}
	}

	return &Model{
		nStates:        nStates,
		logInitial:     logInitial,
		logTransitions: logTransitions,
		emissions:      emissions,
	}, nil
}

// NStates returns the number of hidden states.
func (m *Model) NStates() int { return m.nStates }

// LogInitial returns a copy of the log-domain initial state distribution.
func (m *Model) LogInitial() []float64 {
	out := make([]float64, m.nStates)
	copy(out, m.logInitial)
	return out
}

// TransitionMatrix returns a copy of the log-domain transition matrix.
func (m *Model) TransitionMatrix() *mat.Dense {
	return mat.DenseCopyOf(m.logTransitions)
}

// Emission returns the observation distribution of a state.
func (m *Model) Emission(state int) Emission {
	return m.emissions[state]
}

// validateSequence rejects zero-length sequences before any computation.
func validateSequence(seq [][]float64, position int) error {
	if len(seq) == 0 {
		return errors.NewValidationError("sequences",
			fmt.Sprintf("observation at position %d has zero length", position), position)
	}
	return nil
}

// LogProbability returns the log-likelihood of the sequence under the
// model, computed with the forward algorithm.
func (m *Model) LogProbability(seq [][]float64) (float64, error) {
	if err := validateSequence(seq, 0); err != nil {
		return 0, err
	}
	tr := newTrellis(len(seq), m.nStates)
	m.fillForward(seq, tr.logFwd)
	return logmath.LogSumExp(tr.logFwd[len(seq)-1]), nil
}

// Posteriors returns the posterior state-occupation probabilities for the
// sequence as a T×K matrix in probability space (posterior decoding).
func (m *Model) Posteriors(seq [][]float64) (*mat.Dense, error) {
	if err := validateSequence(seq, 0); err != nil {
		return nil, err
	}
	tr := newTrellis(len(seq), m.nStates)
	stats := m.expectation(seq, 0, tr)

	T := len(seq)
	out := mat.NewDense(T, m.nStates, nil)
	for t := 0; t < T; t++ {
		for k := 0; k < m.nStates; k++ {
			out.Set(t, k, logmath.SafeExp(stats.gamma[t][k]))
		}
	}
	return out, nil
}

// Sample generates an observation sequence of the given length together
// with the hidden state path that produced it. Every emission must
// implement Sampler.
func (m *Model) Sample(rng *rand.Rand, length int) ([][]float64, []int, error) {
	if length < 1 {
		return nil, nil, errors.NewValidationError("length", "must be positive", length)
	}

	samplers := make([]Sampler, m.nStates)
	for i, e := range m.emissions {
		s, ok := e.(Sampler)
		if !ok {
			return nil, nil, errors.NewNotSupportedError("Sample",
				fmt.Sprintf("emission for state %d does not implement Sampler", i))
		}
		samplers[i] = s
	}

	seq := make([][]float64, length)
	states := make([]int, length)

	state := sampleIndex(rng, m.logInitial)
	for t := 0; t < length; t++ {
		states[t] = state
		seq[t] = samplers[state].Sample(rng)
		if t < length-1 {
			state = sampleIndex(rng, m.logTransitions.RawRowView(state))
		}
	}
	return seq, states, nil
}

// sampleIndex draws an index from a log-domain distribution.
func sampleIndex(rng *rand.Rand, logProbs []float64) int {
	target := rng.Float64()
	cum := 0.0
	for i, lp := range logProbs {
		cum += math.Exp(lp)
		if target < cum {
			return i
		}
	}
	return len(logProbs) - 1
}
