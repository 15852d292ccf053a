package crf

import (
	"github.com/seqlearn/seqlearn/pkg/errors"
)

// TrainingSequence is one labeled observation sequence. Features holds a
// sparse attribute->value map per position; Labels the gold label per
// position, aligned with Features.
type TrainingSequence struct {
	Features []map[string]float64
	Labels   []string
}

// Model is a trained linear-chain conditional random field.
//
// All parameters live in one flat weight vector. State features come
// first, indexed attrID*L + labelID; transition features follow at
// transOffset, indexed fromID*L + toID, where L is the label count.
type Model struct {
	labels     *Alphabet
	attributes *Alphabet
	weights    []float64
}

// Labels returns the label alphabet.
func (m *Model) Labels() *Alphabet { return m.labels }

// Attributes returns the attribute alphabet.
func (m *Model) Attributes() *Alphabet { return m.attributes }

// Weights returns a copy of the weight vector.
func (m *Model) Weights() []float64 {
	out := make([]float64, len(m.weights))
	copy(out, m.weights)
	return out
}

func (m *Model) numLabels() int   { return m.labels.Len() }
func (m *Model) transOffset() int { return m.attributes.Len() * m.numLabels() }
func (m *Model) numWeights() int  { return m.transOffset() + m.numLabels()*m.numLabels() }

func (m *Model) stateIndex(attrID, labelID int) int {
	return attrID*m.numLabels() + labelID
}

func (m *Model) transIndex(fromID, toID int) int {
	return m.transOffset() + fromID*m.numLabels() + toID
}

// stateScores computes the T×L state score matrix for a feature
// sequence under the weight vector w. Attributes unseen during training
// are ignored.
func (m *Model) stateScores(w []float64, features []map[string]float64) [][]float64 {
	L := m.numLabels()
	scores := make([][]float64, len(features))
	for t := range features {
		scores[t] = make([]float64, L)
		for attr, val := range features[t] {
			attrID := m.attributes.Lookup(attr)
			if attrID < 0 {
				continue
			}
			base := attrID * L
			for y := 0; y < L; y++ {
				scores[t][y] += w[base+y] * val
			}
		}
	}
	return scores
}

// transScores extracts the L×L transition score matrix from w.
func (m *Model) transScores(w []float64) [][]float64 {
	L := m.numLabels()
	off := m.transOffset()
	scores := make([][]float64, L)
	for i := 0; i < L; i++ {
		scores[i] = make([]float64, L)
		for j := 0; j < L; j++ {
			scores[i][j] = w[off+i*L+j]
		}
	}
	return scores
}

// internalSequence is a training sequence resolved against the model's
// alphabets: sparse (attrID, value) lists and integer label IDs.
type internalSequence struct {
	features [][]featureRef
	labels   []int
}

type featureRef struct {
	attrID int
	value  float64
}

// newModel builds the alphabets from the training data and returns the
// zero-weight model together with the resolved sequences.
func newModel(sequences []TrainingSequence) (*Model, []internalSequence, error) {
	if len(sequences) == 0 {
		return nil, nil, errors.WithStack(errors.ErrEmptyTrainingSet)
	}

	m := &Model{
		labels:     NewAlphabet(),
		attributes: NewAlphabet(),
	}
	for i, seq := range sequences {
		if len(seq.Features) == 0 {
			return nil, nil, errors.NewValidationError("sequences",
				"sequence has zero length", i)
		}
		if len(seq.Features) != len(seq.Labels) {
			return nil, nil, errors.NewDimensionError("Train", len(seq.Features), len(seq.Labels))
		}
		for _, l := range seq.Labels {
			m.labels.Add(l)
		}
		for _, feats := range seq.Features {
			for attr := range feats {
				m.attributes.Add(attr)
			}
		}
	}
	m.weights = make([]float64, m.numWeights())

	internals := make([]internalSequence, len(sequences))
	for i, seq := range sequences {
		is := internalSequence{
			features: make([][]featureRef, len(seq.Features)),
			labels:   make([]int, len(seq.Labels)),
		}
		for t, feats := range seq.Features {
			for attr, val := range feats {
				is.features[t] = append(is.features[t], featureRef{m.attributes.Lookup(attr), val})
			}
			is.labels[t] = m.labels.Lookup(seq.Labels[t])
		}
		internals[i] = is
	}
	return m, internals, nil
}

// errZeroLength flags an empty sequence before any computation.
func errZeroLength(param string) error {
	return errors.NewValidationError(param, "sequence has zero length", 0)
}

// LogLikelihood returns the conditional log-likelihood log P(labels |
// features) of one labeled sequence under the model.
func (m *Model) LogLikelihood(features []map[string]float64, labels []string) (float64, error) {
	if len(features) == 0 {
		return 0, errZeroLength("features")
	}
	if len(features) != len(labels) {
		return 0, errors.NewDimensionError("LogLikelihood", len(features), len(labels))
	}

	state := m.stateScores(m.weights, features)
	trans := m.transScores(m.weights)
	fb := forwardBackward(state, trans)

	score := 0.0
	prev := -1
	for t, l := range labels {
		y := m.labels.Lookup(l)
		if y < 0 {
			return 0, errors.NewValidationError("labels", "unknown label", l)
		}
		score += state[t][y]
		if prev >= 0 {
			score += trans[prev][y]
		}
		prev = y
	}
	return score - fb.logZ, nil
}
