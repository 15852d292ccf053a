package hmm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seqerr "github.com/seqlearn/seqlearn/pkg/errors"
)

// meanLogLik is the objective Baum-Welch optimizes, recomputed directly.
func meanLogLik(t *testing.T, m *Model, sequences [][][]float64) float64 {
	t.Helper()
	sum := 0.0
	for _, seq := range sequences {
		ll, err := m.LogProbability(seq)
		require.NoError(t, err)
		sum += ll
	}
	return sum / float64(len(sequences))
}

// assertStochastic checks that the log-domain parameters still describe
// proper distributions after re-estimation.
func assertStochastic(t *testing.T, m *Model) {
	t.Helper()

	sum := 0.0
	for _, lp := range m.LogInitial() {
		require.False(t, math.IsNaN(lp))
		sum += math.Exp(lp)
	}
	assert.InDelta(t, 1, sum, 1e-6, "initial distribution must sum to 1")

	trans := m.TransitionMatrix()
	for i := 0; i < m.NStates(); i++ {
		rowSum := 0.0
		for j := 0; j < m.NStates(); j++ {
			lp := trans.At(i, j)
			require.False(t, math.IsNaN(lp), "transition %d->%d is NaN", i, j)
			rowSum += math.Exp(lp)
		}
		assert.InDelta(t, 1, rowSum, 1e-6, "transition row %d must sum to 1", i)
	}
}

func TestBaumWelchImprovesLikelihood(t *testing.T) {
	sequences := trainingSymbols()

	baseline, err := NewModel(2, Ergodic{}, uniformDiscreteFactory(2))
	require.NoError(t, err)
	before := meanLogLik(t, baseline, sequences)

	learner := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithTolerance(1e-5),
		WithMaxIterations(100),
	)
	model, err := learner.Learn(context.Background(), sequences, nil)
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.True(t, learner.IsFitted())

	after := meanLogLik(t, model, sequences)
	assert.Greater(t, after, before, "training must improve the mean log-likelihood")

	// The model generalizes to a held-out sequence of the same regime.
	ll, err := model.LogProbability(DiscreteSequence([]int{0, 0, 1, 1}))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll))
	assert.False(t, math.IsInf(ll, 0))

	assertStochastic(t, model)
}

func TestBaumWelchMonotoneHistory(t *testing.T) {
	learner := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithMaxIterations(50),
	)
	_, err := learner.Learn(context.Background(), trainingSymbols(), nil)
	require.NoError(t, err)

	history := learner.History()
	require.NotEmpty(t, history)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1]-1e-9,
			"log-likelihood decreased at iteration %d", i)
	}
}

func TestBaumWelchReturnsLastMaximizedModel(t *testing.T) {
	sequences := trainingSymbols()

	// With a budget of one iteration only the convergence measurement runs,
	// so the returned model carries the untouched initial parameters.
	learner := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithMaxIterations(1),
	)
	model, err := learner.Learn(context.Background(), sequences, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxIterationsReached, learner.Status())

	fresh, err := NewModel(2, Ergodic{}, uniformDiscreteFactory(2))
	require.NoError(t, err)
	assert.InDelta(t, meanLogLik(t, fresh, sequences), meanLogLik(t, model, sequences), 1e-12)
}

func TestBaumWelchStatusConverged(t *testing.T) {
	learner := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithTolerance(1e-4),
		WithMaxIterations(1000),
	)
	_, err := learner.Learn(context.Background(), trainingSymbols(), nil)
	require.NoError(t, err)
	assert.Equal(t, Converged, learner.Status())
}

func TestBaumWelchEmptyTrainingSet(t *testing.T) {
	learner := NewBaumWelch(2, uniformDiscreteFactory(2))
	_, err := learner.Learn(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, seqerr.Is(err, seqerr.ErrEmptyTrainingSet))
	assert.False(t, learner.IsFitted())
}

func TestBaumWelchRejectsZeroLengthSequence(t *testing.T) {
	sequences := [][][]float64{
		DiscreteSequence([]int{0, 1}),
		{}, // zero-length
	}
	learner := NewBaumWelch(2, uniformDiscreteFactory(2))
	_, err := learner.Learn(context.Background(), sequences, nil)
	require.Error(t, err)

	var verr *seqerr.ValidationError
	assert.True(t, seqerr.As(err, &verr))
	assert.Contains(t, err.Error(), "position 1")

	// Validation failure leaves the learner untouched.
	assert.Nil(t, learner.Model())
	assert.False(t, learner.IsFitted())
}

func TestBaumWelchWeightLengthMismatch(t *testing.T) {
	learner := NewBaumWelch(2, uniformDiscreteFactory(2))
	_, err := learner.Learn(context.Background(), trainingSymbols(), []float64{1, 2})
	require.Error(t, err)

	var derr *seqerr.DimensionError
	assert.True(t, seqerr.As(err, &derr))
}

func TestBaumWelchNegativeWeight(t *testing.T) {
	learner := NewBaumWelch(2, uniformDiscreteFactory(2))
	_, err := learner.Learn(context.Background(), trainingSymbols(), []float64{1, -1, 1})
	require.Error(t, err)

	var verr *seqerr.ValidationError
	assert.True(t, seqerr.As(err, &verr))
}

func TestBaumWelchEmissionRefitError(t *testing.T) {
	// A symbol outside the emission alphabet only shows up when the
	// maximization refits the distributions.
	learner := NewBaumWelch(2, uniformDiscreteFactory(2))
	_, err := learner.Learn(context.Background(),
		[][][]float64{DiscreteSequence([]int{0, 9, 1})}, nil)
	require.Error(t, err)

	var verr *seqerr.ValidationError
	assert.True(t, seqerr.As(err, &verr))
	assert.False(t, learner.IsFitted())
}

func TestBaumWelchWeightedEquivalentToRepetition(t *testing.T) {
	// Training with weight 2 on a sequence must match training with the
	// sequence duplicated.
	seqA := DiscreteSequence([]int{0, 0, 1, 1})
	seqB := DiscreteSequence([]int{1, 0, 1, 0})

	weighted := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithTolerance(0), WithMaxIterations(10))
	mw, err := weighted.Learn(context.Background(),
		[][][]float64{seqA, seqB}, []float64{2, 1})
	require.NoError(t, err)

	repeated := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithTolerance(0), WithMaxIterations(10))
	mr, err := repeated.Learn(context.Background(),
		[][][]float64{seqA, seqA, seqB}, nil)
	require.NoError(t, err)

	wTrans := mw.TransitionMatrix()
	rTrans := mr.TransitionMatrix()
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, rTrans.At(i, j), wTrans.At(i, j), 1e-9)
		}
	}
}

func TestBaumWelchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	learner := NewBaumWelch(2, uniformDiscreteFactory(2))
	model, err := learner.Learn(ctx, trainingSymbols(), nil)
	require.NoError(t, err, "cancellation is not an error")
	require.NotNil(t, model)
	assert.Equal(t, Cancelled, learner.Status())
	assert.Empty(t, learner.History())
}

func TestBaumWelchCancelMidTraining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	learner := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithTolerance(0), // never converge on tolerance
		WithMaxIterations(0),
		WithProgress(func(p ProgressInfo) {
			if p.Iteration == 3 {
				cancel()
			}
		}),
	)
	model, err := learner.Learn(ctx, trainingSymbols(), nil)
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, Cancelled, learner.Status())
	assert.Len(t, learner.History(), 3)
}

func TestBaumWelchProgressCallback(t *testing.T) {
	var infos []ProgressInfo
	learner := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithMaxIterations(5),
		WithProgress(func(p ProgressInfo) { infos = append(infos, p) }),
	)
	_, err := learner.Learn(context.Background(), trainingSymbols(), nil)
	require.NoError(t, err)

	require.NotEmpty(t, infos)
	for i, p := range infos {
		assert.Equal(t, i+1, p.Iteration)
		assert.Equal(t, learner.History()[i], p.LogLikelihood)
	}
}

func TestBaumWelchInitialModelContinuesTraining(t *testing.T) {
	sequences := trainingSymbols()

	first := NewBaumWelch(2, uniformDiscreteFactory(2), WithMaxIterations(2))
	warm, err := first.Learn(context.Background(), sequences, nil)
	require.NoError(t, err)
	warmLL := meanLogLik(t, warm, sequences)

	second := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithInitialModel(warm),
		WithMaxIterations(100),
	)
	model, err := second.Learn(context.Background(), sequences, nil)
	require.NoError(t, err)
	assert.Same(t, warm, model)
	assert.GreaterOrEqual(t, meanLogLik(t, model, sequences), warmLL-1e-9)
}

func TestBaumWelchForwardTopologyKeepsStructure(t *testing.T) {
	sequences := [][][]float64{
		DiscreteSequence([]int{0, 0, 1, 1}),
		DiscreteSequence([]int{0, 1, 1, 1}),
	}
	learner := NewBaumWelch(3, uniformDiscreteFactory(2),
		WithTopology(Forward{}),
		WithMaxIterations(20),
	)
	model, err := learner.Learn(context.Background(), sequences, nil)
	require.NoError(t, err)

	// Forbidden backward transitions stay at probability zero.
	trans := model.TransitionMatrix()
	for i := 0; i < 3; i++ {
		for j := 0; j < i; j++ {
			assert.True(t, math.IsInf(trans.At(i, j), -1),
				"transition %d->%d must remain forbidden", i, j)
		}
	}
	assert.True(t, math.IsInf(model.LogInitial()[1], -1))
	assert.True(t, math.IsInf(model.LogInitial()[2], -1))
}

func TestBaumWelchWorkersMatchSequential(t *testing.T) {
	sequences := trainingSymbols()

	seq := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithWorkers(1), WithMaxIterations(10))
	ms, err := seq.Learn(context.Background(), sequences, nil)
	require.NoError(t, err)

	par := NewBaumWelch(2, uniformDiscreteFactory(2),
		WithWorkers(4), WithMaxIterations(10))
	mp, err := par.Learn(context.Background(), sequences, nil)
	require.NoError(t, err)

	assert.Equal(t, seq.History(), par.History())
	sTrans := ms.TransitionMatrix()
	pTrans := mp.TransitionMatrix()
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, sTrans.At(i, j), pTrans.At(i, j), 1e-12)
		}
	}
}

func TestBaumWelchPartialFitNotSupported(t *testing.T) {
	learner := NewBaumWelch(2, uniformDiscreteFactory(2))
	err := learner.PartialFit(DiscreteSequence([]int{0, 1}))
	require.Error(t, err)

	var nserr *seqerr.NotSupportedError
	assert.True(t, seqerr.As(err, &nserr))
}
