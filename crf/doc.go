// Package crf implements a linear-chain conditional random field with
// gradient-based training.
//
// A model scores a label sequence with per-position state features and
// label-pair transition features over a single flat weight vector. The
// training objective, the regularized negative mean log-likelihood, and
// its analytic gradient are exposed through Problem so several
// optimizers can share them: quasi-Newton (L-BFGS), conjugate gradient
// and plain gradient descent via gonum's optimize package, and
// resilient backpropagation implemented in this package.
package crf
