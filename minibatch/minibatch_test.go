// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package minibatch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidBatchSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, policy := range []Policy{WithReplacement, WithoutReplacement} {
		for _, test := range []struct{ numObs, batchSize int }{
			{10, 0},
			{10, -1},
			{10, 11},
			{0, 1},
		} {
			_, err := New(test.numObs, test.batchSize, policy, rng)
			require.ErrorIsf(t, err, ErrInvalidBatchSize,
				"K=%d, b=%d, %s", test.numObs, test.batchSize, policy)
		}
	}
}

func TestDrawRangesAndSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, policy := range []Policy{WithReplacement, WithoutReplacement} {
		s, err := New(20, 7, policy, rng)
		require.NoError(t, err)
		var batch []int
		for trial := 0; trial < 100; trial++ {
			batch = s.Draw(batch)
			require.Len(t, batch, 7)
			for _, idx := range batch {
				require.GreaterOrEqual(t, idx, 0)
				require.Less(t, idx, 20)
			}
		}
	}
}

func TestWithoutReplacementHasNoDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s, err := New(30, 12, WithoutReplacement, rng)
	require.NoError(t, err)
	for trial := 0; trial < 200; trial++ {
		batch := s.Draw(nil)
		seen := make(map[int]bool, len(batch))
		for _, idx := range batch {
			require.Falsef(t, seen[idx], "duplicate index %d in batch %v", idx, batch)
			seen[idx] = true
		}
	}
}

func TestFullBatchWithoutReplacementIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	const numObs = 15
	s, err := New(numObs, numObs, WithoutReplacement, rng)
	require.NoError(t, err)
	batch := s.Draw(nil)
	seen := make([]bool, numObs)
	for _, idx := range batch {
		seen[idx] = true
	}
	for i, ok := range seen {
		assert.Truef(t, ok, "index %d missing from full batch", i)
	}
}

func TestDeterministicGivenSeed(t *testing.T) {
	for _, policy := range []Policy{WithReplacement, WithoutReplacement} {
		a, err := New(50, 10, policy, rand.New(rand.NewSource(42)))
		require.NoError(t, err)
		b, err := New(50, 10, policy, rand.New(rand.NewSource(42)))
		require.NoError(t, err)
		for trial := 0; trial < 20; trial++ {
			assert.Equal(t, a.Draw(nil), b.Draw(nil))
		}
	}
}

func TestDrawsAreRoughlyUniform(t *testing.T) {
	const (
		numObs    = 10
		batchSize = 3
		numTrials = 30000
	)
	for _, policy := range []Policy{WithReplacement, WithoutReplacement} {
		rng := rand.New(rand.NewSource(5))
		s, err := New(numObs, batchSize, policy, rng)
		require.NoError(t, err)
		counts := make([]float64, numObs)
		var batch []int
		for trial := 0; trial < numTrials; trial++ {
			batch = s.Draw(batch)
			for _, idx := range batch {
				counts[idx]++
			}
		}
		want := float64(numTrials) * batchSize / numObs
		for idx, count := range counts {
			assert.InDeltaf(t, want, count, 0.05*want+5*math.Sqrt(want),
				"%s: index %d drawn %v times, want ≈%v", policy, idx, count, want)
		}
	}
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "with-replacement", WithReplacement.String())
	assert.Equal(t, "without-replacement", WithoutReplacement.String())
	assert.Equal(t, "invalid-policy", Policy(99).String())
}
