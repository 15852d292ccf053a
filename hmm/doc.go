// Package hmm implements hidden Markov models and their training
// algorithms.
//
// A Model holds the initial-state distribution, the state-transition
// matrix and one emission distribution per state, all probabilities stored
// in the log domain. Models are created from a Topology (ergodic or
// left-to-right) and an EmissionFactory, then fitted with one of two
// learners:
//
//   - BaumWelch: unsupervised expectation-maximization using the
//     forward-backward algorithm (soft state occupations).
//   - ViterbiLearner: segmental k-means style training that decodes the
//     single best state path per sequence and re-estimates parameters from
//     hard counts, with optional random mini-batches.
//
// Observations are [][]float64 sequences of feature vectors. Discrete
// symbols are represented as one-element vectors; DiscreteSequence
// converts from []int.
//
// Both learners parallelize the per-sequence computations across CPU
// cores and stop on tolerance, iteration budget, or context cancellation.
package hmm
