package errors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFittedError(t *testing.T) {
	err := NewNotFittedError("HiddenMarkovModel", "Decode")
	assert.Contains(t, err.Error(), "HiddenMarkovModel")
	assert.Contains(t, err.Error(), "Decode")

	var nf *NotFittedError
	assert.True(t, As(err, &nf))
	assert.Equal(t, "HiddenMarkovModel", nf.ModelName)
}

func TestDimensionError(t *testing.T) {
	err := NewDimensionError("Learn", 3, 2)
	assert.Contains(t, err.Error(), "Expected 3, got 2")

	var de *DimensionError
	assert.True(t, As(err, &de))
	assert.Equal(t, "Learn", de.Op)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("sequences", "observation at position 1 has zero length", 0)
	var ve *ValidationError
	assert.True(t, As(err, &ve))
	assert.Equal(t, "sequences", ve.ParamName)
}

func TestNotSupportedError(t *testing.T) {
	err := NewNotSupportedError("online learning", "Baum-Welch requires full sequences")
	var ns *NotSupportedError
	assert.True(t, As(err, &ns))
	assert.Contains(t, err.Error(), "not supported")
}

func TestWarningHandler(t *testing.T) {
	var captured error
	SetWarningHandler(func(w error) { captured = w })
	defer SetWarningHandler(nil)

	w := NewConvergenceWarning("BaumWelch", 100, "")
	Warn(w)

	assert.Equal(t, w, captured)
	assert.Contains(t, w.Error(), "100 iterations")
}

func TestCheckNumericalStability(t *testing.T) {
	assert.NoError(t, CheckNumericalStability("m-step", []float64{0.1, -3.5}, 1))
	assert.Error(t, CheckNumericalStability("m-step", []float64{0.1, math.NaN()}, 1))
	assert.Error(t, CheckScalar("objective", math.Inf(1), 2))
	assert.NoError(t, CheckScalar("objective", -12.5, 2))
}

func TestClampWeight(t *testing.T) {
	assert.Equal(t, 0.5, ClampWeight(0.5))
	assert.Equal(t, 0.0, ClampWeight(math.NaN()))
	assert.Equal(t, 0.0, ClampWeight(math.Inf(1)))
	assert.Equal(t, 0.0, ClampWeight(-1e-9))
}
