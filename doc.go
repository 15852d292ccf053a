// Package seqlearn is a sequence-learning library for Go.
//
// The library centers on hidden Markov models and their training
// algorithms: Baum-Welch (forward-backward expectation-maximization),
// Viterbi learning with mini-batch support, and gradient-based training
// for linear-chain conditional random fields.
//
// All probability computations run in the log domain so that long
// observation sequences do not underflow. Emission distributions plug in
// through a narrow interface, so discrete, Gaussian, or user-supplied
// observation models can back every state.
//
// Package layout:
//
//   - hmm:          hidden Markov models, Baum-Welch and Viterbi learners
//   - crf:          linear-chain conditional random fields and gradient trainers
//   - pkg/logmath:  numerically stable log-domain arithmetic
//   - pkg/errors:   structured errors and the warning system
//   - pkg/log:      structured logging helpers
//   - core/model:   shared estimator state
//   - core/parallel: batch parallelization helpers
package seqlearn
