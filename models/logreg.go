// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is a hierarchical Bayesian logistic regression target
// over the state x = (log α, w):
//
//	α ~ Gamma(1, 1)
//	w | α ~ N(0, I/α)
//	t_j | w, z_j ~ sigmoid(t_j · wᵀz_j),  t_j ∈ {-1, +1}
//
// The precision α is carried in log space so particles move over an
// unconstrained state. The prior density is evaluated at α (no Jacobian
// correction), with the chain rule through α = exp(log α) applied to the
// gradient.
type LogisticRegression struct {
	features *mat.Dense // K×d design matrix Z.
	labels   []float64  // K labels in {-1, +1}.
	numObs   int
	weights  int // d, so Dim() is d+1.
}

// NewLogisticRegression builds the target from a K×d design matrix and K
// labels in {-1, +1}.
func NewLogisticRegression(features *mat.Dense, labels []float64) (*LogisticRegression, error) {
	numObs, dim := features.Dims()
	if numObs != len(labels) {
		return nil, errors.Errorf("features have %d rows but there are %d labels", numObs, len(labels))
	}
	for j, label := range labels {
		if label != 1 && label != -1 {
			return nil, errors.Errorf("label %d is %g, must be -1 or +1", j, label)
		}
	}
	return &LogisticRegression{
		features: features,
		labels:   labels,
		numObs:   numObs,
		weights:  dim,
	}, nil
}

// SyntheticLogisticRegression generates numObs observations from a known
// weight vector: z_j ~ N(0, I), t_j = +1 with probability sigmoid(wᵀz_j).
func SyntheticLogisticRegression(numObs int, trueWeights []float64, rng *rand.Rand) *LogisticRegression {
	dim := len(trueWeights)
	features := mat.NewDense(numObs, dim, nil)
	labels := make([]float64, numObs)
	for j := 0; j < numObs; j++ {
		row := features.RawRowView(j)
		for d := range row {
			row[d] = rng.NormFloat64()
		}
		pPositive := sigmoid(floats.Dot(row, trueWeights))
		if rng.Float64() < pPositive {
			labels[j] = 1
		} else {
			labels[j] = -1
		}
	}
	lr, err := NewLogisticRegression(features, labels)
	if err != nil {
		panic(err) // Labels are ±1 by construction.
	}
	return lr
}

// Dim implements Target: one slot for log α plus d weights.
func (lr *LogisticRegression) Dim() int { return lr.weights + 1 }

// NumObservations implements Target.
func (lr *LogisticRegression) NumObservations() int { return lr.numObs }

// GradLogPrior implements Target. With a = log α:
//
//	∂/∂a [log Gamma(α; 1, 1) + log N(w; 0, I/α)] = -α + d/2 - α‖w‖²/2
//	∇_w = -α w
func (lr *LogisticRegression) GradLogPrior(x, grad []float64) {
	alpha := math.Exp(x[0])
	w := x[1:]
	grad[0] = -alpha + float64(lr.weights)/2 - alpha*floats.Dot(w, w)/2
	for d, wd := range w {
		grad[1+d] = -alpha * wd
	}
}

// GradLogLikelihood implements Target:
//
//	∇_w log sigmoid(t_j wᵀz_j) = t_j z_j sigmoid(-t_j wᵀz_j)
//
// and the likelihood does not depend on α, so the log α slot gets 0.
func (lr *LogisticRegression) GradLogLikelihood(obs int, x, grad []float64) {
	row := lr.features.RawRowView(obs)
	label := lr.labels[obs]
	w := x[1:]
	weight := label * sigmoid(-label*floats.Dot(row, w))
	grad[0] = 0
	for d := range row {
		grad[1+d] = weight * row[d]
	}
}

// LogPosterior evaluates the unnormalized log posterior at x. The sampler
// never needs it, but tests use it to check the gradients and demos use it to
// report progress.
func (lr *LogisticRegression) LogPosterior(x []float64) float64 {
	alpha := math.Exp(x[0])
	w := x[1:]
	// log Gamma(α; 1, 1) = -α; log N(w; 0, I/α) up to constants.
	logp := -alpha + float64(lr.weights)/2*math.Log(alpha) - alpha*floats.Dot(w, w)/2
	for obs := 0; obs < lr.numObs; obs++ {
		row := lr.features.RawRowView(obs)
		logp += -math.Log1p(math.Exp(-lr.labels[obs] * floats.Dot(row, w)))
	}
	return logp
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
