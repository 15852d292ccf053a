package hmm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seqerr "github.com/seqlearn/seqlearn/pkg/errors"
)

func TestNewModelNilFactory(t *testing.T) {
	_, err := NewModel(2, Ergodic{}, nil)
	require.Error(t, err)

	var verr *seqerr.ValidationError
	assert.True(t, seqerr.As(err, &verr))
}

func TestNewModelNilTopologyDefaultsToErgodic(t *testing.T) {
	m, err := NewModel(3, nil, uniformDiscreteFactory(2))
	require.NoError(t, err)

	for _, lp := range m.LogInitial() {
		assert.InDelta(t, math.Log(1.0/3.0), lp, 1e-12)
	}
}

func TestNewModelFactoryReturningNil(t *testing.T) {
	factory := func(state int) Emission {
		if state == 1 {
			return nil
		}
		return NewDiscreteEmission(2)
	}
	_, err := NewModel(2, Ergodic{}, factory)
	require.Error(t, err)
}

func TestModelAccessorsReturnCopies(t *testing.T) {
	m := newSwitchingModel(t)

	init := m.LogInitial()
	init[0] = 123
	assert.NotEqual(t, 123.0, m.LogInitial()[0])

	trans := m.TransitionMatrix()
	trans.Set(0, 0, 123)
	assert.NotEqual(t, 123.0, m.TransitionMatrix().At(0, 0))
}

func TestModelLogProbabilitySingleObservation(t *testing.T) {
	m := newSwitchingModel(t)

	// P(obs=0) = 0.6*0.9 + 0.4*0.1 = 0.58
	ll, err := m.LogProbability(DiscreteSequence([]int{0}))
	require.NoError(t, err)
	assert.InDelta(t, math.Log(0.58), ll, 1e-12)
}

func TestModelLogProbabilityEmptySequence(t *testing.T) {
	m := newSwitchingModel(t)
	_, err := m.LogProbability(nil)
	require.Error(t, err)
}

func TestModelSampleStatistics(t *testing.T) {
	m := newSwitchingModel(t)
	rng := rand.New(rand.NewSource(3))

	const runs = 3000
	startState0 := 0
	symbolMatches := 0
	observations := 0
	for i := 0; i < runs; i++ {
		seq, states, err := m.Sample(rng, 5)
		require.NoError(t, err)
		require.Len(t, seq, 5)
		require.Len(t, states, 5)

		if states[0] == 0 {
			startState0++
		}
		for t2, obs := range seq {
			require.Len(t, obs, 1)
			if int(obs[0]) == states[t2] {
				symbolMatches++
			}
			observations++
		}
	}

	// Initial distribution is (0.6, 0.4); each state emits its own symbol
	// with probability 0.9.
	assert.InDelta(t, 0.6, float64(startState0)/runs, 0.03)
	assert.InDelta(t, 0.9, float64(symbolMatches)/float64(observations), 0.02)
}

func TestModelSampleDeterministicWithSeed(t *testing.T) {
	m := newSwitchingModel(t)

	seq1, states1, err := m.Sample(rand.New(rand.NewSource(9)), 8)
	require.NoError(t, err)
	seq2, states2, err := m.Sample(rand.New(rand.NewSource(9)), 8)
	require.NoError(t, err)

	assert.Equal(t, seq1, seq2)
	assert.Equal(t, states1, states2)
}

func TestModelSampleInvalidLength(t *testing.T) {
	m := newSwitchingModel(t)
	_, _, err := m.Sample(rand.New(rand.NewSource(1)), 0)
	require.Error(t, err)
}

type noSampleEmission struct{ *DiscreteEmission }

func (noSampleEmission) Sample() {} // hides the embedded Sample method

func TestModelSampleRequiresSamplerEmissions(t *testing.T) {
	factory := func(state int) Emission {
		return noSampleEmission{NewDiscreteEmission(2)}
	}
	m, err := NewModel(2, Ergodic{}, factory)
	require.NoError(t, err)

	_, _, err = m.Sample(rand.New(rand.NewSource(1)), 3)
	require.Error(t, err)

	var nserr *seqerr.NotSupportedError
	assert.True(t, seqerr.As(err, &nserr))
}
