package hmm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/seqlearn/seqlearn/pkg/errors"
)

// Topology は新しいモデルの初期状態分布と遷移行列を生成する
// モデル作成時に一度だけ使用され、学習中は参照されない
type Topology interface {
	// Init は nStates 個の状態に対する対数初期分布と対数遷移行列を返す
	Init(nStates int) (logInitial []float64, logTransitions *mat.Dense, err error)
}

// Ergodic は全結合トポロジー
// すべての状態間の遷移を許可し、一様分布で初期化する
type Ergodic struct{}

// Init は一様なエルゴードモデルを生成する
func (Ergodic) Init(nStates int) ([]float64, *mat.Dense, error) {
	if nStates < 1 {
		return nil, nil, errors.NewValidationError("nStates", "must be positive", nStates)
	}

	logUniform := -math.Log(float64(nStates))

	logInitial := make([]float64, nStates)
	logTransitions := mat.NewDense(nStates, nStates, nil)
	for i := 0; i < nStates; i++ {
		logInitial[i] = logUniform
		for j := 0; j < nStates; j++ {
			logTransitions.Set(i, j, logUniform)
		}
	}
	return logInitial, logTransitions, nil
}

// Forward は left-to-right トポロジー
// 状態 i からは i 以上の状態のみへ遷移できる（後戻りなし）
// Bandwidth は一度に進める状態数の上限（0 以下は無制限）
type Forward struct {
	Bandwidth int
}

// Init は left-to-right モデルを生成する
// 初期状態は必ず状態 0 になる
func (f Forward) Init(nStates int) ([]float64, *mat.Dense, error) {
	if nStates < 1 {
		return nil, nil, errors.NewValidationError("nStates", "must be positive", nStates)
	}

	logInitial := make([]float64, nStates)
	for i := range logInitial {
		logInitial[i] = math.Inf(-1)
	}
	logInitial[0] = 0 // log(1)

	bw := f.Bandwidth
	if bw <= 0 {
		bw = nStates
	}

	logTransitions := mat.NewDense(nStates, nStates, nil)
	for i := 0; i < nStates; i++ {
		// 到達可能な状態数（行末で打ち切り）
		reach := nStates - i
		if reach > bw+1 {
			reach = bw + 1
		}
		logP := -math.Log(float64(reach))
		for j := 0; j < nStates; j++ {
			if j >= i && j <= i+bw {
				logTransitions.Set(i, j, logP)
			} else {
				logTransitions.Set(i, j, math.Inf(-1))
			}
		}
	}
	return logInitial, logTransitions, nil
}
