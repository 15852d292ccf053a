package hmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// fixedTopology builds models from explicit probability-space parameters
// so tests can pin down exact model behavior.
type fixedTopology struct {
	initial     []float64
	transitions [][]float64
}

func (f fixedTopology) Init(n int) ([]float64, *mat.Dense, error) {
	logInit := make([]float64, n)
	for i := 0; i < n; i++ {
		logInit[i] = math.Log(f.initial[i])
	}
	logTrans := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			logTrans.Set(i, j, math.Log(f.transitions[i][j]))
		}
	}
	return logInit, logTrans, nil
}

// discreteFactory returns an EmissionFactory producing categorical
// emissions with the given per-state symbol probabilities.
func discreteFactory(probs [][]float64) EmissionFactory {
	return func(state int) Emission {
		return NewDiscreteEmissionFromProbs(probs[state])
	}
}

// uniformDiscreteFactory produces uniform categorical emissions over the
// given alphabet size for every state.
func uniformDiscreteFactory(symbols int) EmissionFactory {
	return func(state int) Emission {
		return NewDiscreteEmission(symbols)
	}
}

// newSwitchingModel builds the 2-state, 2-symbol model used across the
// decoding tests: sticky states, state 0 prefers symbol 0 and state 1
// prefers symbol 1.
func newSwitchingModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(2,
		fixedTopology{
			initial:     []float64{0.6, 0.4},
			transitions: [][]float64{{0.8, 0.2}, {0.2, 0.8}},
		},
		discreteFactory([][]float64{{0.9, 0.1}, {0.1, 0.9}}),
	)
	require.NoError(t, err)
	return m
}

// trainingSymbols is the two-symbol training corpus from the end-to-end
// scenario.
func trainingSymbols() [][][]float64 {
	return [][][]float64{
		DiscreteSequence([]int{0, 0, 1, 1}),
		DiscreteSequence([]int{0, 1, 1, 1}),
		DiscreteSequence([]int{1, 1, 0, 0}),
	}
}
