package crf

import (
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/seqlearn/seqlearn/core/parallel"
)

// Problem is the training objective shared by all trainers: the
// negative mean conditional log-likelihood of the training set plus an
// L2 penalty, with its analytic gradient.
//
// Both methods are pure functions of the weight vector, so one Problem
// can be handed to any optimizer. Per-sequence terms are computed in
// parallel; each worker accumulates into a private buffer that is folded
// into the result under a mutex.
type Problem struct {
	model     *Model
	sequences []internalSequence
	l2        float64
	workers   int
}

// NewProblem builds the alphabets from the training data and returns
// the objective over the resolved sequences. l2 is the ridge penalty
// coefficient; workers caps the parallelism (0 uses all CPUs).
func NewProblem(sequences []TrainingSequence, l2 float64, workers int) (*Problem, error) {
	model, internals, err := newModel(sequences)
	if err != nil {
		return nil, err
	}
	return &Problem{
		model:     model,
		sequences: internals,
		l2:        l2,
		workers:   workers,
	}, nil
}

// Model returns the zero-weight model whose alphabets the problem was
// resolved against. Its weights are not touched by Objective or
// Gradient; trainers install the optimized vector when they finish.
func (p *Problem) Model() *Model { return p.model }

// Dim returns the length of the weight vector.
func (p *Problem) Dim() int { return p.model.numWeights() }

// sequenceNLL returns -log P(labels | features) for one resolved
// sequence under w.
func (p *Problem) sequenceNLL(w []float64, is internalSequence) float64 {
	state := p.stateScoresOf(w, is)
	trans := p.model.transScores(w)
	fb := forwardBackward(state, trans)

	gold := 0.0
	for t, y := range is.labels {
		gold += state[t][y]
		if t > 0 {
			gold += trans[is.labels[t-1]][y]
		}
	}
	return fb.logZ - gold
}

// stateScoresOf computes state scores from pre-resolved feature refs.
func (p *Problem) stateScoresOf(w []float64, is internalSequence) [][]float64 {
	L := p.model.numLabels()
	scores := make([][]float64, len(is.features))
	for t := range is.features {
		scores[t] = make([]float64, L)
		for _, fr := range is.features[t] {
			base := fr.attrID * L
			for y := 0; y < L; y++ {
				scores[t][y] += w[base+y] * fr.value
			}
		}
	}
	return scores
}

// Objective evaluates the regularized negative mean log-likelihood.
func (p *Problem) Objective(w []float64) float64 {
	var mu sync.Mutex
	nll := 0.0

	run := func(start, end int) {
		local := 0.0
		for i := start; i < end; i++ {
			local += p.sequenceNLL(w, p.sequences[i])
		}
		mu.Lock()
		nll += local
		mu.Unlock()
	}
	if p.workers > 0 {
		parallel.ParallelizeN(p.workers, len(p.sequences), run)
	} else {
		parallel.Parallelize(len(p.sequences), run)
	}

	nll /= float64(len(p.sequences))
	return nll + 0.5*p.l2*floats.Dot(w, w)
}

// Gradient writes the analytic gradient of Objective at w into dst.
// dst must have length Dim.
func (p *Problem) Gradient(dst, w []float64) {
	for i := range dst {
		dst[i] = 0
	}

	L := p.model.numLabels()
	off := p.model.transOffset()
	var mu sync.Mutex

	run := func(start, end int) {
		local := make([]float64, len(dst))
		trans := p.model.transScores(w)
		for i := start; i < end; i++ {
			is := p.sequences[i]
			state := p.stateScoresOf(w, is)
			fb := forwardBackward(state, trans)

			// State features: model expectation minus empirical count.
			for t := range is.features {
				gold := is.labels[t]
				for _, fr := range is.features[t] {
					base := fr.attrID * L
					local[base+gold] -= fr.value
					for y := 0; y < L; y++ {
						local[base+y] += fb.marginals[t][y] * fr.value
					}
				}
			}

			// Transition features.
			if len(is.labels) > 1 {
				tm := transitionMarginals(fb, state, trans)
				for t := 0; t < len(is.labels)-1; t++ {
					local[off+is.labels[t]*L+is.labels[t+1]] -= 1
					for a := 0; a < L; a++ {
						for b := 0; b < L; b++ {
							local[off+a*L+b] += tm[t][a][b]
						}
					}
				}
			}
		}
		mu.Lock()
		floats.Add(dst, local)
		mu.Unlock()
	}
	if p.workers > 0 {
		parallel.ParallelizeN(p.workers, len(p.sequences), run)
	} else {
		parallel.Parallelize(len(p.sequences), run)
	}

	floats.Scale(1/float64(len(p.sequences)), dst)
	floats.AddScaled(dst, p.l2, w)
}
