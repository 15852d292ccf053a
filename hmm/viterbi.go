package hmm

// Decode computes the single most likely hidden state path for the
// sequence (Viterbi algorithm) and its joint log-probability.
//
// The dynamic program runs in the log domain:
//
//	delta[0][k] = logInitial[k] + b_k(o_0)
//	delta[t][k] = max_i(delta[t-1][i] + a_{ik}) + b_k(o_t)
//
// Ties between predecessor states are broken deterministically in favor
// of the lower state index, so repeated decodes of the same input always
// return the identical path.
func (m *Model) Decode(seq [][]float64) ([]int, float64, error) {
	if err := validateSequence(seq, 0); err != nil {
		return nil, 0, err
	}

	K := m.nStates
	T := len(seq)

	delta := make([][]float64, T)
	backptr := make([][]int, T)
	for t := 0; t < T; t++ {
		delta[t] = make([]float64, K)
		backptr[t] = make([]int, K)
	}

	for k := 0; k < K; k++ {
		delta[0][k] = m.logInitial[k] + m.emissions[k].LogProb(seq[0])
	}

	for t := 1; t < T; t++ {
		for k := 0; k < K; k++ {
			b := m.emissions[k].LogProb(seq[t])

			// Strict comparison keeps the lowest index on ties.
			best := delta[t-1][0] + m.logTransitions.At(0, k)
			argBest := 0
			for i := 1; i < K; i++ {
				score := delta[t-1][i] + m.logTransitions.At(i, k)
				if score > best {
					best = score
					argBest = i
				}
			}
			delta[t][k] = best + b
			backptr[t][k] = argBest
		}
	}

	best := delta[T-1][0]
	argBest := 0
	for k := 1; k < K; k++ {
		if delta[T-1][k] > best {
			best = delta[T-1][k]
			argBest = k
		}
	}

	path := make([]int, T)
	path[T-1] = argBest
	for t := T - 2; t >= 0; t-- {
		path[t] = backptr[t+1][path[t+1]]
	}
	return path, best, nil
}
