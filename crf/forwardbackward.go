package crf

import "math"

// fbResult は前向き後向きアルゴリズムの計算結果
type fbResult struct {
	logZ      float64     // 対数分配関数
	marginals [][]float64 // [T][L] 周辺確率 P(y_t=j|x)
	alpha     [][]float64 // スケーリング済み前向き変数
	beta      [][]float64 // スケーリング済み後向き変数
	scale     []float64   // 各時刻のスケーリング係数
}

// forwardBackward はスケーリング付き前向き後向きアルゴリズムを実行する
// 対数領域ではなく確率領域で計算し、桁あふれは時刻ごとの正規化で防ぐ
func forwardBackward(stateScores, transScores [][]float64) fbResult {
	T := len(stateScores)
	L := len(stateScores[0])

	expState := make([][]float64, T)
	for t := 0; t < T; t++ {
		expState[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			expState[t][y] = math.Exp(stateScores[t][y])
		}
	}
	expTrans := make([][]float64, L)
	for i := 0; i < L; i++ {
		expTrans[i] = make([]float64, L)
		for j := 0; j < L; j++ {
			expTrans[i][j] = math.Exp(transScores[i][j])
		}
	}

	alpha := make([][]float64, T)
	scale := make([]float64, T)

	alpha[0] = make([]float64, L)
	sum := 0.0
	for y := 0; y < L; y++ {
		alpha[0][y] = expState[0][y]
		sum += alpha[0][y]
	}
	if sum == 0 {
		scale[0] = 1
	} else {
		scale[0] = 1 / sum
	}
	for y := 0; y < L; y++ {
		alpha[0][y] *= scale[0]
	}

	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, L)
		sum = 0
		for y := 0; y < L; y++ {
			s := 0.0
			for yp := 0; yp < L; yp++ {
				s += alpha[t-1][yp] * expTrans[yp][y]
			}
			alpha[t][y] = s * expState[t][y]
			sum += alpha[t][y]
		}
		if sum == 0 {
			scale[t] = 1
		} else {
			scale[t] = 1 / sum
		}
		for y := 0; y < L; y++ {
			alpha[t][y] *= scale[t]
		}
	}

	// 後向きパスは前向きと同じスケーリング係数を使う
	beta := make([][]float64, T)
	beta[T-1] = make([]float64, L)
	for y := 0; y < L; y++ {
		beta[T-1][y] = scale[T-1]
	}
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			s := 0.0
			for yn := 0; yn < L; yn++ {
				s += expTrans[y][yn] * expState[t+1][yn] * beta[t+1][yn]
			}
			beta[t][y] = s * scale[t]
		}
	}

	// logZ = -Σ log(scale_t)
	logZ := 0.0
	for t := 0; t < T; t++ {
		logZ -= math.Log(scale[t])
	}

	// P(y_t=j|x) = alpha[t][j] * beta[t][j] / scale[t]
	marginals := make([][]float64, T)
	for t := 0; t < T; t++ {
		marginals[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			marginals[t][y] = alpha[t][y] * beta[t][y] / scale[t]
		}
	}

	return fbResult{
		logZ:      logZ,
		marginals: marginals,
		alpha:     alpha,
		beta:      beta,
		scale:     scale,
	}
}

// transitionMarginals は P(y_t=i, y_{t+1}=j | x) を [T-1][L][L] で返す
func transitionMarginals(fb fbResult, stateScores, transScores [][]float64) [][][]float64 {
	T := len(stateScores)
	if T <= 1 {
		return nil
	}
	L := len(stateScores[0])

	out := make([][][]float64, T-1)
	for t := 0; t < T-1; t++ {
		out[t] = make([][]float64, L)
		for i := 0; i < L; i++ {
			out[t][i] = make([]float64, L)
			for j := 0; j < L; j++ {
				out[t][i][j] = fb.alpha[t][i] *
					math.Exp(transScores[i][j]+stateScores[t+1][j]) *
					fb.beta[t+1][j]
			}
		}
	}
	return out
}

// Marginals returns the per-position posterior label probabilities
// P(y_t = label | features) as string-keyed maps.
func (m *Model) Marginals(features []map[string]float64) ([]map[string]float64, error) {
	if len(features) == 0 {
		return nil, errZeroLength("features")
	}

	state := m.stateScores(m.weights, features)
	trans := m.transScores(m.weights)
	fb := forwardBackward(state, trans)

	out := make([]map[string]float64, len(features))
	for t := range features {
		out[t] = make(map[string]float64, m.numLabels())
		for y := 0; y < m.numLabels(); y++ {
			out[t][m.labels.Name(y)] = fb.marginals[t][y]
		}
	}
	return out, nil
}
