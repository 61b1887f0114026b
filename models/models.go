// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package models defines the Target interface through which the sampler sees
// an unnormalized posterior — a log-prior gradient plus per-observation
// log-likelihood gradients — and a few ready-made targets used in tests and
// demos.
//
// Only gradients of log-densities are ever needed: the normalizing constant
// cancels out of the score function.
package models

import "github.com/gomlx/exceptions"

// Target is an unnormalized posterior density p(x|D) ∝ p(x)·Π_j p(D_j|x),
// known through the gradients of its log terms.
//
// Implementations must be safe for concurrent gradient evaluations: the
// sampler evaluates different particles in parallel.
type Target interface {
	// Dim is the dimensionality of the parameter space.
	Dim() int

	// NumObservations is the dataset size K. It may be 0, in which case the
	// target is the prior alone and GradLogLikelihood is never called.
	NumObservations() int

	// GradLogPrior writes ∇_x log p(x) into grad. Both slices have length
	// Dim().
	GradLogPrior(x, grad []float64)

	// GradLogLikelihood writes ∇_x log p(D_obs|x) into grad, for a single
	// observation index obs in [0, NumObservations()).
	GradLogLikelihood(obs int, x, grad []float64)
}

// TargetFuncs adapts plain functions supplied by the caller into a Target.
type TargetFuncs struct {
	// NumDims is the parameter dimensionality D.
	NumDims int

	// NumObs is the dataset size K; 0 means prior-only.
	NumObs int

	// LogPriorGrad computes ∇_x log p(x) into grad.
	LogPriorGrad func(x, grad []float64)

	// LogLikelihoodGrad computes ∇_x log p(D_obs|x) into grad. It may be nil
	// when NumObs is 0.
	LogLikelihoodGrad func(obs int, x, grad []float64)
}

// Dim implements Target.
func (t TargetFuncs) Dim() int { return t.NumDims }

// NumObservations implements Target.
func (t TargetFuncs) NumObservations() int { return t.NumObs }

// GradLogPrior implements Target.
func (t TargetFuncs) GradLogPrior(x, grad []float64) {
	t.LogPriorGrad(x, grad)
}

// GradLogLikelihood implements Target.
func (t TargetFuncs) GradLogLikelihood(obs int, x, grad []float64) {
	if t.LogLikelihoodGrad == nil {
		exceptions.Panicf("TargetFuncs has %d observations but no LogLikelihoodGrad function", t.NumObs)
	}
	t.LogLikelihoodGrad(obs, x, grad)
}
