package hmm

import (
	"math"

	"github.com/seqlearn/seqlearn/pkg/errors"
	"github.com/seqlearn/seqlearn/pkg/logmath"
)

// maximization re-estimates the model parameters in place from the
// accumulated per-sequence statistics.
//
// Initial distribution: logsumexp of gamma at t=0 across sequences,
// normalized over states so weighted sequences still yield a distribution.
//
// Transitions: logsumexp of ksi over sequences and time, minus logsumexp of
// gamma over the same range. When numerator and denominator are exactly
// equal the entry is set to log(1) = 0 instead of computing Inf - Inf.
// Entries that are +Inf in the current matrix are left untouched.
//
// Emissions: each state's distribution is refitted against all samples
// pooled across sequences in order, weighted by the exponentiated gamma
// statistics. NaN/Inf weights clamp to zero.
func (m *Model) maximization(stats []*sequenceStats, sequences [][][]float64, iteration int) error {
	K := m.nStates

	// Initial state distribution.
	for i := 0; i < K; i++ {
		sum := logmath.LogZero
		for _, st := range stats {
			sum = logmath.LogSum(sum, st.gamma[0][i])
		}
		m.logInitial[i] = sum
	}
	logTotal := logmath.LogSumExp(m.logInitial)
	for i := 0; i < K; i++ {
		m.logInitial[i] -= logTotal
	}

	// Transition matrix.
	for i := 0; i < K; i++ {
		lnDen := logmath.LogZero
		for _, st := range stats {
			// Occupation over t in [0, T-2], matching the ksi range.
			for t := 0; t < len(st.ksi); t++ {
				lnDen = logmath.LogSum(lnDen, st.gamma[t][i])
			}
		}

		for j := 0; j < K; j++ {
			if math.IsInf(m.logTransitions.At(i, j), 1) {
				// Guard: never overwrite an already-degenerate entry.
				continue
			}

			lnNum := logmath.LogZero
			for _, st := range stats {
				for t := 0; t < len(st.ksi); t++ {
					lnNum = logmath.LogSum(lnNum, st.ksi[t][i][j])
				}
			}

			if lnNum == lnDen {
				m.logTransitions.Set(i, j, 0)
			} else {
				m.logTransitions.Set(i, j, lnNum-lnDen)
			}
		}
	}

	// Emission distributions over the pooled sample set.
	total := 0
	for _, seq := range sequences {
		total += len(seq)
	}
	allSamples := make([][]float64, 0, total)
	for _, seq := range sequences {
		allSamples = append(allSamples, seq...)
	}

	weights := make([]float64, total)
	for i := 0; i < K; i++ {
		// Normalizer keeps exp() in range; any constant shift cancels in
		// the weighted maximum-likelihood fit.
		norm := logmath.LogZero
		for _, st := range stats {
			for t := range st.gamma {
				if st.gamma[t][i] > norm {
					norm = st.gamma[t][i]
				}
			}
		}
		if math.IsInf(norm, -1) {
			norm = 0
		}

		p := 0
		for _, st := range stats {
			for t := range st.gamma {
				weights[p] = errors.ClampWeight(logmath.SafeExp(st.gamma[t][i] - norm))
				p++
			}
		}

		if err := m.emissions[i].Fit(allSamples, weights); err != nil {
			return errors.Wrapf(err, "refitting emission for state %d", i)
		}
	}

	// Debug-time invariant: re-estimation must never produce NaN.
	if err := checkNoNaN("maximization: initial", m.logInitial, iteration); err != nil {
		return err
	}
	for i := 0; i < K; i++ {
		if err := checkNoNaN("maximization: transitions", m.logTransitions.RawRowView(i), iteration); err != nil {
			return err
		}
	}
	return nil
}

// checkNoNaN flags NaN parameters. -Inf is a legitimate log-domain zero
// and passes.
func checkNoNaN(op string, values []float64, iteration int) error {
	for _, v := range values {
		if math.IsNaN(v) {
			return errors.NewNumericalInstabilityError(op, values, iteration)
		}
	}
	return nil
}
