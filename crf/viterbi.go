package crf

import "math"

// viterbi finds the best label path for the given score matrices with
// dynamic programming. Ties resolve to the lower label ID through the
// strict comparisons.
func viterbi(stateScores, transScores [][]float64) ([]int, float64) {
	T := len(stateScores)
	L := len(stateScores[0])

	delta := make([][]float64, T)
	psi := make([][]int, T)

	delta[0] = make([]float64, L)
	psi[0] = make([]int, L)
	copy(delta[0], stateScores[0])

	for t := 1; t < T; t++ {
		delta[t] = make([]float64, L)
		psi[t] = make([]int, L)
		for y := 0; y < L; y++ {
			best := math.Inf(-1)
			bestPrev := 0
			for yp := 0; yp < L; yp++ {
				score := delta[t-1][yp] + transScores[yp][y]
				if score > best {
					best = score
					bestPrev = yp
				}
			}
			delta[t][y] = best + stateScores[t][y]
			psi[t][y] = bestPrev
		}
	}

	best := math.Inf(-1)
	bestLabel := 0
	for y := 0; y < L; y++ {
		if delta[T-1][y] > best {
			best = delta[T-1][y]
			bestLabel = y
		}
	}

	path := make([]int, T)
	path[T-1] = bestLabel
	for t := T - 2; t >= 0; t-- {
		path[t] = psi[t+1][path[t+1]]
	}
	return path, best
}

// Predict returns the most likely label sequence for the features.
func (m *Model) Predict(features []map[string]float64) ([]string, error) {
	if len(features) == 0 {
		return nil, errZeroLength("features")
	}

	state := m.stateScores(m.weights, features)
	trans := m.transScores(m.weights)
	path, _ := viterbi(state, trans)

	labels := make([]string, len(path))
	for t, y := range path {
		labels[t] = m.labels.Name(y)
	}
	return labels, nil
}
