package hmm

import (
	"math"
)

// Status is the state of a training loop's stopping condition.
type Status int

const (
	// Running means no stopping condition has triggered yet.
	Running Status = iota
	// Converged means the objective change stayed within tolerance.
	Converged
	// MaxIterationsReached means the iteration budget was exhausted.
	MaxIterationsReached
	// Cancelled means the caller's context was cancelled.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max-iterations-reached"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ConvergenceMonitor tracks a scalar objective across iterations and
// decides when an iterative learner should stop.
//
// The change between consecutive objective values is compared against
// Tolerance, relatively when Relative is set and the previous value is
// finite and nonzero, absolutely otherwise. The monitor reports Converged
// after RequiredChecks consecutive in-tolerance observations. All three
// terminal states are sticky: once reached, further Observe calls return
// the same status without side effects.
type ConvergenceMonitor struct {
	Tolerance      float64
	MaxIterations  int // 0 disables the iteration budget
	Relative       bool
	RequiredChecks int

	iteration int
	previous  float64
	current   float64
	hits      int
	status    Status
}

// NewConvergenceMonitor creates a monitor with relative tolerance checking
// and a single required in-tolerance check.
func NewConvergenceMonitor(tolerance float64, maxIterations int) *ConvergenceMonitor {
	return &ConvergenceMonitor{
		Tolerance:      tolerance,
		MaxIterations:  maxIterations,
		Relative:       true,
		RequiredChecks: 1,
		previous:       math.Inf(-1),
		current:        math.Inf(-1),
	}
}

// Observe feeds the next objective value and returns the resulting status.
func (c *ConvergenceMonitor) Observe(objective float64) Status {
	if c.status != Running {
		return c.status
	}

	c.iteration++
	c.previous = c.current
	c.current = objective

	if !math.IsInf(c.previous, -1) {
		if c.Delta() <= c.Tolerance {
			c.hits++
			checks := c.RequiredChecks
			if checks < 1 {
				checks = 1
			}
			if c.hits >= checks {
				c.status = Converged
				return c.status
			}
		} else {
			c.hits = 0
		}
	}

	if c.MaxIterations > 0 && c.iteration >= c.MaxIterations {
		c.status = MaxIterationsReached
	}
	return c.status
}

// Cancel moves a running monitor to the Cancelled state.
func (c *ConvergenceMonitor) Cancel() {
	if c.status == Running {
		c.status = Cancelled
	}
}

// Status returns the current stopping state.
func (c *ConvergenceMonitor) Status() Status { return c.status }

// HasConverged reports whether the objective settled within tolerance, as
// opposed to stopping for budget or cancellation reasons.
func (c *ConvergenceMonitor) HasConverged() bool { return c.status == Converged }

// Iteration returns the number of objective values observed.
func (c *ConvergenceMonitor) Iteration() int { return c.iteration }

// Objective returns the most recent objective value.
func (c *ConvergenceMonitor) Objective() float64 { return c.current }

// Delta returns the (relative) change between the last two objectives.
func (c *ConvergenceMonitor) Delta() float64 {
	if math.IsInf(c.previous, -1) {
		return math.Inf(1)
	}
	delta := math.Abs(c.current - c.previous)
	if c.Relative && c.previous != 0 && !math.IsInf(c.previous, 0) {
		delta /= math.Abs(c.previous)
	}
	return delta
}
