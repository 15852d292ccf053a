// Package logmath provides numerically stable arithmetic on log-domain
// probabilities.
//
// Probabilities over long observation sequences underflow float64 quickly,
// so the training code stores every probability as its natural logarithm
// and replaces products with sums. The one operation that needs care is
// adding two probabilities given only their logs; LogSum and LogSumExp
// implement it without leaving the log domain.
//
// The value math.Inf(-1) represents probability zero throughout.
package logmath

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogZero is the log-domain representation of probability zero.
var LogZero = math.Inf(-1)

// LogSum returns log(exp(a) + exp(b)) without overflow or underflow.
//
// Either argument may be -Inf (probability zero), in which case the other
// argument is returned unchanged; LogSum(-Inf, -Inf) is -Inf. The result
// is symmetric in a and b.
func LogSum(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	// a >= b, so exp(b-a) <= 1 and cannot overflow.
	return a + math.Log1p(math.Exp(b-a))
}

// LogSumExp returns log(sum(exp(v))) for a slice of log-domain values.
//
// An empty slice and a slice of all -Inf both return -Inf. For slices of
// two or more finite values this delegates to gonum's max-shifted
// implementation.
func LogSumExp(v []float64) float64 {
	if len(v) == 0 {
		return LogZero
	}
	max := floats.Max(v)
	if math.IsInf(max, -1) {
		return LogZero
	}
	return floats.LogSumExp(v)
}

// LogSumExp2 returns log(sum over both dimensions of exp(m[i][j])) for a
// rectangular log-domain matrix stored as rows.
func LogSumExp2(m [][]float64) float64 {
	sum := LogZero
	for _, row := range m {
		sum = LogSum(sum, LogSumExp(row))
	}
	return sum
}

// SafeExp returns exp(v), clamping NaN and +Inf results to zero.
//
// Re-estimation turns log-domain statistics back into probability-space
// weights; a degenerate statistic must become weight zero rather than
// poison downstream parameter fits.
func SafeExp(v float64) float64 {
	r := math.Exp(v)
	if math.IsNaN(r) || math.IsInf(r, 1) {
		return 0
	}
	return r
}
