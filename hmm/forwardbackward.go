package hmm

import (
	"github.com/seqlearn/seqlearn/pkg/logmath"
)

// trellis holds the per-call scratch buffers for one sequence. Buffers are
// sized once for the longest sequence a worker will see and only the first
// T rows are touched for shorter ones. Each worker owns its trellis; no
// scratch is ever shared across concurrently processed sequences.
type trellis struct {
	logFwd [][]float64 // maxT x K
	logBwd [][]float64 // maxT x K
	emis   []float64   // K, emission log-probs for one time step
}

func newTrellis(maxT, nStates int) *trellis {
	t := &trellis{
		logFwd: make([][]float64, maxT),
		logBwd: make([][]float64, maxT),
		emis:   make([]float64, nStates),
	}
	for i := 0; i < maxT; i++ {
		t.logFwd[i] = make([]float64, nStates)
		t.logBwd[i] = make([]float64, nStates)
	}
	return t
}

// fillForward computes the log-domain forward trellis.
//
// logFwd[0][k] = logInitial[k] + b_k(o_0)
// logFwd[t][k] = logsumexp_i(logFwd[t-1][i] + a_{ik}) + b_k(o_t)
//
// The recurrence is sequential in t; parallelism happens across
// sequences, never across time steps. The caller guarantees len(seq) >= 1
// and len(logFwd) >= len(seq).
func (m *Model) fillForward(seq [][]float64, logFwd [][]float64) {
	K := m.nStates
	T := len(seq)

	for k := 0; k < K; k++ {
		logFwd[0][k] = m.logInitial[k] + m.emissions[k].LogProb(seq[0])
	}

	for t := 1; t < T; t++ {
		prev := logFwd[t-1]
		for k := 0; k < K; k++ {
			sum := logmath.LogZero
			for i := 0; i < K; i++ {
				sum = logmath.LogSum(sum, prev[i]+m.logTransitions.At(i, k))
			}
			logFwd[t][k] = sum + m.emissions[k].LogProb(seq[t])
		}
	}
}

// fillBackward computes the log-domain backward trellis.
//
// logBwd[T-1][k] = 0
// logBwd[t][k]   = logsumexp_j(a_{kj} + b_j(o_{t+1}) + logBwd[t+1][j])
//
// emis is scratch for the emission log-probs of one time step.
func (m *Model) fillBackward(seq [][]float64, logBwd [][]float64, emis []float64) {
	K := m.nStates
	T := len(seq)

	for k := 0; k < K; k++ {
		logBwd[T-1][k] = 0
	}

	for t := T - 2; t >= 0; t-- {
		for j := 0; j < K; j++ {
			emis[j] = m.emissions[j].LogProb(seq[t+1])
		}
		next := logBwd[t+1]
		for k := 0; k < K; k++ {
			row := m.logTransitions.RawRowView(k)
			sum := logmath.LogZero
			for j := 0; j < K; j++ {
				sum = logmath.LogSum(sum, row[j]+emis[j]+next[j])
			}
			logBwd[t][k] = sum
		}
	}
}

// Forward computes the forward log-probability trellis for the sequence
// and returns it as a freshly allocated T×K matrix.
func (m *Model) Forward(seq [][]float64) ([][]float64, error) {
	if err := validateSequence(seq, 0); err != nil {
		return nil, err
	}
	tr := newTrellis(len(seq), m.nStates)
	m.fillForward(seq, tr.logFwd)
	return tr.logFwd[:len(seq)], nil
}

// Backward computes the backward log-probability trellis for the sequence
// and returns it as a freshly allocated T×K matrix.
func (m *Model) Backward(seq [][]float64) ([][]float64, error) {
	if err := validateSequence(seq, 0); err != nil {
		return nil, err
	}
	tr := newTrellis(len(seq), m.nStates)
	m.fillBackward(seq, tr.logBwd, tr.emis)
	return tr.logBwd[:len(seq)], nil
}
