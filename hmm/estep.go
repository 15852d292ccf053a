package hmm

import (
	"math"

	"github.com/seqlearn/seqlearn/pkg/logmath"
)

// sequenceStats holds the expectation statistics of one sequence. The
// trellis buffers used to compute it may be reused for the next sequence
// once expectation returns; the stats own their storage.
type sequenceStats struct {
	// gamma[t][k] = log P(state k at time t | sequence, model),
	// normalized so each time step sums to one in probability space.
	gamma [][]float64 // T x K

	// ksi[t][i][j] = log P(state i at t, state j at t+1 | sequence, model),
	// normalized per time step over all (i, j).
	ksi [][][]float64 // (T-1) x K x K

	// logLik is the terminal forward log-likelihood of the sequence.
	logLik float64
}

// expectation runs the forward-backward pass on one sequence and computes
// its gamma and ksi statistics. logWeight is the sequence's log training
// weight (0 for weight one); it shifts the statistics so the sequence
// contributes proportionally to the M-step.
//
// Rows whose log-sum is -Inf (no reachable state) are left unnormalized:
// they decay to zero weight instead of producing NaN.
func (m *Model) expectation(seq [][]float64, logWeight float64, tr *trellis) *sequenceStats {
	K := m.nStates
	T := len(seq)

	m.fillForward(seq, tr.logFwd)
	m.fillBackward(seq, tr.logBwd, tr.emis)

	stats := &sequenceStats{
		gamma:  make([][]float64, T),
		logLik: logmath.LogSumExp(tr.logFwd[T-1][:K]),
	}

	// Gamma: occupation posteriors, normalized per time step.
	for t := 0; t < T; t++ {
		row := make([]float64, K)
		for k := 0; k < K; k++ {
			row[k] = tr.logFwd[t][k] + tr.logBwd[t][k]
		}
		lnSum := logmath.LogSumExp(row)
		if !math.IsInf(lnSum, -1) {
			for k := 0; k < K; k++ {
				row[k] += logWeight - lnSum
			}
		}
		stats.gamma[t] = row
	}

	// Ksi: transition posteriors, normalized per time step over all pairs.
	if T > 1 {
		stats.ksi = make([][][]float64, T-1)
	}
	for t := 0; t < T-1; t++ {
		for j := 0; j < K; j++ {
			tr.emis[j] = m.emissions[j].LogProb(seq[t+1])
		}
		cell := make([][]float64, K)
		for i := 0; i < K; i++ {
			cell[i] = make([]float64, K)
			for j := 0; j < K; j++ {
				cell[i][j] = tr.logFwd[t][i] +
					m.logTransitions.At(i, j) +
					tr.emis[j] +
					tr.logBwd[t+1][j]
			}
		}
		lnSum := logmath.LogSumExp2(cell)
		if !math.IsInf(lnSum, -1) {
			for i := 0; i < K; i++ {
				for j := 0; j < K; j++ {
					cell[i][j] += logWeight - lnSum
				}
			}
		}
		stats.ksi[t] = cell
	}

	return stats
}
