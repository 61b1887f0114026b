// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearRegression is a Bayesian linear regression target with known noise:
//
//	θ ~ N(0, τ² I)
//	y_j | θ ~ N(θᵀz_j, σ²)
//
// The posterior is a known Gaussian (see PosteriorMean and
// PosteriorCovariance), which makes this the ground-truth target of the
// convergence tests.
type LinearRegression struct {
	features   *mat.Dense // K×D design matrix Z.
	targets    []float64  // K responses y.
	noiseVar   float64    // σ².
	priorVar   float64    // τ².
	numObs     int
	dimensions int
}

// NewLinearRegression builds the target from a K×D design matrix, K
// responses, the noise standard deviation σ and the prior standard
// deviation τ.
func NewLinearRegression(features *mat.Dense, targets []float64, noiseStdDev, priorStdDev float64) (*LinearRegression, error) {
	numObs, dim := features.Dims()
	if numObs != len(targets) {
		return nil, errors.Errorf("features have %d rows but there are %d targets", numObs, len(targets))
	}
	if noiseStdDev <= 0 || priorStdDev <= 0 {
		return nil, errors.Errorf("noise (%g) and prior (%g) standard deviations must be positive",
			noiseStdDev, priorStdDev)
	}
	return &LinearRegression{
		features:   features,
		targets:    targets,
		noiseVar:   noiseStdDev * noiseStdDev,
		priorVar:   priorStdDev * priorStdDev,
		numObs:     numObs,
		dimensions: dim,
	}, nil
}

// SyntheticLinearRegression generates numObs observations from a known weight
// vector: z_j ~ N(0, I), y_j = θᵀz_j + σξ_j. Useful for tests and demos.
func SyntheticLinearRegression(numObs int, trueWeights []float64, noiseStdDev, priorStdDev float64, rng *rand.Rand) *LinearRegression {
	dim := len(trueWeights)
	features := mat.NewDense(numObs, dim, nil)
	targets := make([]float64, numObs)
	for j := 0; j < numObs; j++ {
		row := features.RawRowView(j)
		for d := range row {
			row[d] = rng.NormFloat64()
		}
		targets[j] = floats.Dot(row, trueWeights) + noiseStdDev*rng.NormFloat64()
	}
	lr, err := NewLinearRegression(features, targets, noiseStdDev, priorStdDev)
	if err != nil {
		panic(err) // Dimensions are consistent by construction.
	}
	return lr
}

// Dim implements Target.
func (lr *LinearRegression) Dim() int { return lr.dimensions }

// NumObservations implements Target.
func (lr *LinearRegression) NumObservations() int { return lr.numObs }

// GradLogPrior implements Target: ∇_θ log N(θ; 0, τ²I) = -θ/τ².
func (lr *LinearRegression) GradLogPrior(x, grad []float64) {
	for d := range grad {
		grad[d] = -x[d] / lr.priorVar
	}
}

// GradLogLikelihood implements Target:
// ∇_θ log N(y_j; θᵀz_j, σ²) = z_j (y_j - θᵀz_j)/σ².
func (lr *LinearRegression) GradLogLikelihood(obs int, x, grad []float64) {
	row := lr.features.RawRowView(obs)
	residual := (lr.targets[obs] - floats.Dot(row, x)) / lr.noiseVar
	for d := range grad {
		grad[d] = row[d] * residual
	}
}

// posteriorPrecision returns A = ZᵀZ/σ² + I/τ².
func (lr *LinearRegression) posteriorPrecision() *mat.SymDense {
	prec := mat.NewSymDense(lr.dimensions, nil)
	for i := 0; i < lr.dimensions; i++ {
		for j := i; j < lr.dimensions; j++ {
			var sum float64
			for obs := 0; obs < lr.numObs; obs++ {
				sum += lr.features.At(obs, i) * lr.features.At(obs, j)
			}
			v := sum / lr.noiseVar
			if i == j {
				v += 1 / lr.priorVar
			}
			prec.SetSym(i, j, v)
		}
	}
	return prec
}

// PosteriorMean returns the exact posterior mean A⁻¹ Zᵀy/σ², with
// A = ZᵀZ/σ² + I/τ².
func (lr *LinearRegression) PosteriorMean() []float64 {
	rhs := mat.NewVecDense(lr.dimensions, nil)
	for d := 0; d < lr.dimensions; d++ {
		var sum float64
		for obs := 0; obs < lr.numObs; obs++ {
			sum += lr.features.At(obs, d) * lr.targets[obs]
		}
		rhs.SetVec(d, sum/lr.noiseVar)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(lr.posteriorPrecision()); !ok {
		panic("posterior precision matrix is not positive definite")
	}
	var solved mat.VecDense
	if err := chol.SolveVecTo(&solved, rhs); err != nil {
		panic(err)
	}
	mean := make([]float64, lr.dimensions)
	for d := range mean {
		mean[d] = solved.AtVec(d)
	}
	return mean
}

// PosteriorCovariance returns the exact posterior covariance A⁻¹.
func (lr *LinearRegression) PosteriorCovariance() *mat.SymDense {
	var chol mat.Cholesky
	if ok := chol.Factorize(lr.posteriorPrecision()); !ok {
		panic("posterior precision matrix is not positive definite")
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		panic(err)
	}
	return &cov
}
