package crf

import (
	"context"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"

	coremodel "github.com/seqlearn/seqlearn/core/model"
	"github.com/seqlearn/seqlearn/pkg/errors"
	seqlog "github.com/seqlearn/seqlearn/pkg/log"
)

// Option configures a trainer.
type Option func(*options)

type options struct {
	l2            float64
	maxIterations int
	tolerance     float64
	workers       int
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		l2:            1e-4,
		maxIterations: 100,
		tolerance:     1e-5,
	}
}

// WithL2 sets the ridge penalty coefficient.
func WithL2(c float64) Option {
	return func(o *options) { o.l2 = c }
}

// WithMaxIterations sets the optimizer iteration budget.
func WithMaxIterations(n int) Option {
	return func(o *options) { o.maxIterations = n }
}

// WithTolerance sets the gradient-norm threshold that ends training.
func WithTolerance(tol float64) Option {
	return func(o *options) { o.tolerance = tol }
}

// WithWorkers caps the parallel workers used for objective and gradient
// evaluation.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the structured logger used for progress output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// gradientTrainer drives a gonum optimize.Method over a Problem. The
// concrete trainers below only choose the method.
type gradientTrainer struct {
	coremodel.BaseEstimator

	name   string
	method func() optimize.Method
	opts   options
	model  *Model
}

// Model returns the trained model, or nil before Train.
func (g *gradientTrainer) Model() *Model { return g.model }

// Train fits a model to the labeled sequences and returns it.
//
// Optimizer failures such as a stalled line search are not propagated:
// the best weights found so far are kept and the failure is logged.
// Cancelling ctx stops the optimizer at the next iteration boundary.
func (g *gradientTrainer) Train(ctx context.Context, sequences []TrainingSequence) (*Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := NewProblem(sequences, g.opts.l2, g.opts.workers)
	if err != nil {
		return nil, err
	}
	g.model = p.Model()

	logger := g.opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		seqlog.ModelNameKey, "ConditionalRandomField",
		seqlog.AlgorithmKey, g.name,
		seqlog.SequencesKey, len(sequences),
	)

	problem := optimize.Problem{
		Func: p.Objective,
		Grad: p.Gradient,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   g.opts.maxIterations,
		GradientThreshold: g.opts.tolerance,
	}

	result, optErr := optimize.Minimize(problem, g.model.weights, settings, g.method())
	if result != nil && len(result.X) == p.Dim() {
		copy(g.model.weights, result.X)
	}

	switch {
	case optErr != nil && ctx.Err() != nil:
		logger.Info("training cancelled", seqlog.StatusKey, "cancelled")
	case optErr != nil:
		// Line-search and similar optimizer failures degrade to the best
		// weights reached, they do not fail the training run.
		logger.Warn("optimizer stopped early, keeping best weights", seqlog.ErrAttr(optErr))
	case result.Status == optimize.IterationLimit:
		errors.Warn(errors.NewConvergenceWarning(g.name, result.Stats.MajorIterations, ""))
	}

	if result != nil {
		logger.Info("training finished",
			seqlog.IterationKey, result.Stats.MajorIterations,
			seqlog.LogLikelihoodKey, -result.F,
			seqlog.StatusKey, result.Status.String(),
		)
	}

	g.SetFitted()
	return g.model, nil
}

// QuasiNewtonTrainer trains a CRF with the L-BFGS method.
type QuasiNewtonTrainer struct{ gradientTrainer }

// NewQuasiNewtonTrainer creates an L-BFGS trainer.
func NewQuasiNewtonTrainer(opts ...Option) *QuasiNewtonTrainer {
	t := &QuasiNewtonTrainer{gradientTrainer{
		name:   "lbfgs",
		method: func() optimize.Method { return &optimize.LBFGS{} },
		opts:   defaultOptions(),
	}}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// ConjugateGradientTrainer trains a CRF with nonlinear conjugate
// gradient.
type ConjugateGradientTrainer struct{ gradientTrainer }

// NewConjugateGradientTrainer creates a conjugate-gradient trainer.
func NewConjugateGradientTrainer(opts ...Option) *ConjugateGradientTrainer {
	t := &ConjugateGradientTrainer{gradientTrainer{
		name:   "conjugate-gradient",
		method: func() optimize.Method { return &optimize.CG{} },
		opts:   defaultOptions(),
	}}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// GradientDescentTrainer trains a CRF with steepest descent.
type GradientDescentTrainer struct{ gradientTrainer }

// NewGradientDescentTrainer creates a gradient-descent trainer.
func NewGradientDescentTrainer(opts ...Option) *GradientDescentTrainer {
	t := &GradientDescentTrainer{gradientTrainer{
		name:   "gradient-descent",
		method: func() optimize.Method { return &optimize.GradientDescent{} },
		opts:   defaultOptions(),
	}}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// ResilientTrainer trains a CRF with resilient backpropagation: per
// weight adaptive step sizes driven only by the sign of the gradient.
// gonum has no RProp method, so the update loop lives here, on the same
// Problem contract as the other trainers.
type ResilientTrainer struct {
	coremodel.BaseEstimator

	opts  options
	model *Model
}

// RProp step-size constants.
const (
	rpropEtaPlus   = 1.2
	rpropEtaMinus  = 0.5
	rpropDeltaInit = 0.0125
	rpropDeltaMin  = 1e-9
	rpropDeltaMax  = 50
)

// NewResilientTrainer creates an RProp trainer.
func NewResilientTrainer(opts ...Option) *ResilientTrainer {
	t := &ResilientTrainer{opts: defaultOptions()}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// Model returns the trained model, or nil before Train.
func (r *ResilientTrainer) Model() *Model { return r.model }

// Train fits a model to the labeled sequences and returns it. The loop
// keeps the best weights seen, so a diverging step never makes the
// returned model worse than an earlier iterate.
func (r *ResilientTrainer) Train(ctx context.Context, sequences []TrainingSequence) (*Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := NewProblem(sequences, r.opts.l2, r.opts.workers)
	if err != nil {
		return nil, err
	}
	r.model = p.Model()

	logger := r.opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		seqlog.ModelNameKey, "ConditionalRandomField",
		seqlog.AlgorithmKey, "rprop",
		seqlog.SequencesKey, len(sequences),
	)

	n := p.Dim()
	w := r.model.weights
	grad := make([]float64, n)
	prevGrad := make([]float64, n)
	delta := make([]float64, n)
	for i := range delta {
		delta[i] = rpropDeltaInit
	}

	bestW := make([]float64, n)
	copy(bestW, w)
	bestF := p.Objective(w)
	prevF := bestF

	status := "max-iterations-reached"
	for iter := 1; iter <= r.opts.maxIterations; iter++ {
		if ctx.Err() != nil {
			status = "cancelled"
			break
		}

		p.Gradient(grad, w)

		maxGrad := 0.0
		for i := 0; i < n; i++ {
			sign := grad[i] * prevGrad[i]
			switch {
			case sign > 0:
				delta[i] = math.Min(delta[i]*rpropEtaPlus, rpropDeltaMax)
			case sign < 0:
				delta[i] = math.Max(delta[i]*rpropEtaMinus, rpropDeltaMin)
				// iRProp-: forget the gradient after a sign flip so the
				// next step is not reversed again.
				grad[i] = 0
			}
			switch {
			case grad[i] > 0:
				w[i] -= delta[i]
			case grad[i] < 0:
				w[i] += delta[i]
			}
			prevGrad[i] = grad[i]
			if a := math.Abs(grad[i]); a > maxGrad {
				maxGrad = a
			}
		}

		f := p.Objective(w)
		if f < bestF {
			bestF = f
			copy(bestW, w)
		}

		logger.Debug("iteration finished",
			seqlog.IterationKey, iter,
			seqlog.LogLikelihoodKey, -f,
			seqlog.DeltaKey, math.Abs(f-prevF),
		)

		if maxGrad <= r.opts.tolerance || math.Abs(f-prevF) <= r.opts.tolerance*math.Abs(prevF) {
			status = "converged"
			break
		}
		prevF = f
	}

	copy(w, bestW)
	if status == "max-iterations-reached" {
		errors.Warn(errors.NewConvergenceWarning("rprop", r.opts.maxIterations, ""))
	}
	logger.Info("training finished",
		seqlog.LogLikelihoodKey, -bestF,
		seqlog.StatusKey, status,
	)

	r.SetFitted()
	return r.model, nil
}
