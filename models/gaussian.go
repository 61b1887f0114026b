// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Gaussian is a multivariate normal N(μ, Σ) used as a prior-only target
// (NumObservations is 0): the score is exact, there is no likelihood term and
// no minibatching.
type Gaussian struct {
	mean []float64
	chol mat.Cholesky
}

// NewGaussian builds a Gaussian target with the given mean and covariance.
// It fails if the covariance is not positive definite.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	if cov.SymmetricDim() != len(mean) {
		return nil, errors.Errorf("mean has dimension %d but covariance is %d×%d",
			len(mean), cov.SymmetricDim(), cov.SymmetricDim())
	}
	g := &Gaussian{mean: append([]float64{}, mean...)}
	if ok := g.chol.Factorize(cov); !ok {
		return nil, errors.Errorf("covariance matrix is not positive definite")
	}
	return g, nil
}

// NewStandardGaussian builds a standard normal N(0, I) target of the given
// dimension.
func NewStandardGaussian(dim int) *Gaussian {
	cov := mat.NewSymDense(dim, nil)
	for d := 0; d < dim; d++ {
		cov.SetSym(d, d, 1)
	}
	g, err := NewGaussian(make([]float64, dim), cov)
	if err != nil {
		panic(err) // Identity covariance always factorizes.
	}
	return g
}

// Dim implements Target.
func (g *Gaussian) Dim() int { return len(g.mean) }

// NumObservations implements Target: a Gaussian target is prior-only.
func (g *Gaussian) NumObservations() int { return 0 }

// Mean returns a copy of μ.
func (g *Gaussian) Mean() []float64 { return append([]float64{}, g.mean...) }

// GradLogPrior implements Target: ∇_x log N(x; μ, Σ) = -Σ⁻¹(x-μ).
func (g *Gaussian) GradLogPrior(x, grad []float64) {
	dim := len(g.mean)
	diff := mat.NewVecDense(dim, nil)
	for d := 0; d < dim; d++ {
		diff.SetVec(d, x[d]-g.mean[d])
	}
	var solved mat.VecDense
	if err := g.chol.SolveVecTo(&solved, diff); err != nil {
		panic(err) // Factorization succeeded at construction.
	}
	for d := 0; d < dim; d++ {
		grad[d] = -solved.AtVec(d)
	}
}

// GradLogLikelihood implements Target; it is never called since
// NumObservations is 0.
func (g *Gaussian) GradLogLikelihood(obs int, x, grad []float64) {
	for d := range grad {
		grad[d] = 0
	}
}

// Rand samples one point from the Gaussian into dst and returns it,
// convenient for initializing particle sets.
func (g *Gaussian) Rand(dst []float64, rng *rand.Rand) []float64 {
	dim := len(g.mean)
	if dst == nil {
		dst = make([]float64, dim)
	}
	z := mat.NewVecDense(dim, nil)
	for d := 0; d < dim; d++ {
		z.SetVec(d, rng.NormFloat64())
	}
	// x = μ + L z, with Σ = L Lᵀ.
	var lower mat.TriDense
	g.chol.LTo(&lower)
	var sample mat.VecDense
	sample.MulVec(&lower, z)
	for d := 0; d < dim; d++ {
		dst[d] = g.mean[d] + sample.AtVec(d)
	}
	return dst
}
