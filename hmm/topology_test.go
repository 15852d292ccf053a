package hmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logRowSum(row []float64) float64 {
	sum := 0.0
	for _, lp := range row {
		sum += math.Exp(lp)
	}
	return sum
}

func TestErgodicInit(t *testing.T) {
	logInitial, logTransitions, err := Ergodic{}.Init(3)
	require.NoError(t, err)

	assert.InDelta(t, 1, logRowSum(logInitial), 1e-12)
	for i := 0; i < 3; i++ {
		row := make([]float64, 3)
		for j := 0; j < 3; j++ {
			row[j] = logTransitions.At(i, j)
			assert.InDelta(t, math.Log(1.0/3.0), row[j], 1e-12)
		}
		assert.InDelta(t, 1, logRowSum(row), 1e-12)
	}
}

func TestErgodicInitRejectsNonPositiveStates(t *testing.T) {
	_, _, err := Ergodic{}.Init(0)
	assert.Error(t, err)
	_, _, err = Ergodic{}.Init(-2)
	assert.Error(t, err)
}

func TestForwardInitStartsInFirstState(t *testing.T) {
	logInitial, _, err := Forward{}.Init(4)
	require.NoError(t, err)

	assert.Equal(t, 0.0, logInitial[0])
	for i := 1; i < 4; i++ {
		assert.True(t, math.IsInf(logInitial[i], -1))
	}
}

func TestForwardInitNoBackwardTransitions(t *testing.T) {
	_, logTransitions, err := Forward{}.Init(4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		row := make([]float64, 4)
		for j := 0; j < 4; j++ {
			row[j] = logTransitions.At(i, j)
			if j < i {
				assert.True(t, math.IsInf(row[j], -1), "transition %d->%d must be forbidden", i, j)
			} else {
				assert.False(t, math.IsInf(row[j], -1), "transition %d->%d must be allowed", i, j)
			}
		}
		assert.InDelta(t, 1, logRowSum(row), 1e-12)
	}
}

func TestForwardInitBandwidth(t *testing.T) {
	_, logTransitions, err := Forward{Bandwidth: 1}.Init(4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		row := make([]float64, 4)
		for j := 0; j < 4; j++ {
			row[j] = logTransitions.At(i, j)
			allowed := j == i || j == i+1
			if allowed {
				assert.False(t, math.IsInf(row[j], -1), "transition %d->%d must be allowed", i, j)
			} else {
				assert.True(t, math.IsInf(row[j], -1), "transition %d->%d must be forbidden", i, j)
			}
		}
		assert.InDelta(t, 1, logRowSum(row), 1e-12)
	}

	// Last state can only self-loop.
	assert.Equal(t, 0.0, logTransitions.At(3, 3))
}
