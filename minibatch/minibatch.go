// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package minibatch draws random index subsets of a fixed-size dataset, used
// to estimate the likelihood part of the posterior score from b of the K
// observations.
//
// Whether drawing with or without replacement gives the better
// variance/bias tradeoff is an open question; both policies are supported and
// the choice is left to the caller.
package minibatch

import (
	"math/rand"

	"github.com/pkg/errors"
)

// ErrInvalidBatchSize is returned when the requested batch size is outside
// [1, K].
var ErrInvalidBatchSize = errors.New("invalid batch size")

// Policy selects how observation indices are drawn.
type Policy int

const (
	// WithReplacement draws b i.i.d. uniform indices from [0, K); an index
	// may repeat within one batch.
	WithReplacement Policy = iota

	// WithoutReplacement draws a uniform b-subset of [0, K).
	WithoutReplacement
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	switch p {
	case WithReplacement:
		return "with-replacement"
	case WithoutReplacement:
		return "without-replacement"
	}
	return "invalid-policy"
}

// Sampler produces one index subset per Draw call, each drawn independently
// and uniformly at random from the K observation indices.
//
// A Sampler is deterministic given the rand.Rand it was built with, and is
// not safe for concurrent use (rand.Rand isn't).
type Sampler struct {
	numObs, batchSize int
	policy            Policy
	rng               *rand.Rand

	// scratch holds a permutation of [0, K) for without-replacement draws.
	scratch []int
}

// New returns a Sampler drawing batches of batchSize indices from
// [0, numObs) under the given policy, using rng as the source of randomness.
//
// It fails fast with ErrInvalidBatchSize if batchSize is outside
// [1, numObs].
func New(numObs, batchSize int, policy Policy, rng *rand.Rand) (*Sampler, error) {
	if numObs <= 0 {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "dataset has %d observations", numObs)
	}
	if batchSize < 1 || batchSize > numObs {
		return nil, errors.Wrapf(ErrInvalidBatchSize,
			"batch size %d must be in [1, %d] (%s)", batchSize, numObs, policy)
	}
	s := &Sampler{
		numObs:    numObs,
		batchSize: batchSize,
		policy:    policy,
		rng:       rng,
	}
	if policy == WithoutReplacement {
		s.scratch = make([]int, numObs)
		for i := range s.scratch {
			s.scratch[i] = i
		}
	}
	return s, nil
}

// BatchSize returns the configured batch size b.
func (s *Sampler) BatchSize() int { return s.batchSize }

// NumObservations returns the dataset size K.
func (s *Sampler) NumObservations() int { return s.numObs }

// Draw fills dst with the next batch of observation indices and returns it.
// If dst is nil or too small a new slice is allocated; its lifetime is the
// caller's, the sampler keeps no reference to it.
func (s *Sampler) Draw(dst []int) []int {
	if cap(dst) < s.batchSize {
		dst = make([]int, s.batchSize)
	}
	dst = dst[:s.batchSize]
	switch s.policy {
	case WithReplacement:
		for i := range dst {
			dst[i] = s.rng.Intn(s.numObs)
		}
	case WithoutReplacement:
		// Partial Fisher-Yates: after b swaps the prefix is a uniform
		// b-subset in uniform order.
		for i := 0; i < s.batchSize; i++ {
			j := i + s.rng.Intn(s.numObs-i)
			s.scratch[i], s.scratch[j] = s.scratch[j], s.scratch[i]
		}
		copy(dst, s.scratch[:s.batchSize])
	}
	return dst
}
