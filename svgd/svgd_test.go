// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package svgd

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/stein/kernels"
	"github.com/gomlx/stein/minibatch"
	"github.com/gomlx/stein/models"
)

func newTestRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func TestConfigValidation(t *testing.T) {
	target := models.NewStandardGaussian(2)

	_, err := New(nil, mat.NewDense(3, 2, nil)).Done()
	require.Error(t, err)

	_, err = New(target, nil).Done()
	require.ErrorIs(t, err, ErrInvalidParticleCount)

	_, err = New(target, mat.NewDense(3, 1, nil)).Done()
	require.ErrorIs(t, err, ErrDimensionMismatch)

	rng := newTestRand(1)
	lr := models.SyntheticLinearRegression(10, []float64{1}, 0.5, 10, rng)
	_, err = New(lr, mat.NewDense(3, 1, nil)).BatchSize(11).Done()
	require.ErrorIs(t, err, ErrInvalidBatchSize)
	_, err = New(lr, mat.NewDense(3, 1, nil)).BatchSize(-1).Done()
	require.ErrorIs(t, err, ErrInvalidBatchSize)

	// Full-batch default is valid.
	s, err := New(lr, mat.NewDense(3, 1, nil)).Done()
	require.NoError(t, err)
	assert.Equal(t, 3, s.NumParticles())
	assert.Equal(t, 1, s.Dim())
}

// A single particle on a Gaussian target reduces to gradient ascent on
// log p: the kernel self-gradient vanishes for the RBF kernel, k(x,x)=1 and
// 1/N = 1.
func TestSingleParticleClosedForm(t *testing.T) {
	target := models.NewStandardGaussian(1)
	init := mat.NewDense(1, 1, []float64{2})
	s, err := New(target, init).
		Kernel(kernels.NewRBF().WithBandwidth(1)).
		StepSize(0.1).
		Parallelism(0).
		Done()
	require.NoError(t, err)

	stats, err := s.Step()
	require.NoError(t, err)
	// x ← x + ε·∇log p(x) = 2 + 0.1·(-2).
	assert.InDelta(t, 1.8, s.Particles().At(0, 0), 1e-12)
	assert.InDelta(t, 0.2, stats.MeanDisplacement, 1e-12)
	assert.InDelta(t, 2.0, stats.MaxAbsDirection, 1e-12)
	assert.Equal(t, 0, stats.Step)
	assert.Equal(t, 1, s.StepCount())
}

// With b = K the rescaling factor is 1 and one step must match the exact
// full-data computation, assembled independently here.
func TestFullBatchMatchesExactScore(t *testing.T) {
	rng := newTestRand(2)
	lr := models.SyntheticLinearRegression(6, []float64{1, -2}, 0.5, 5, rng)

	const numParticles, dim = 3, 2
	const eps = 0.05
	init := mat.NewDense(numParticles, dim, []float64{
		0.5, 0.1,
		-0.3, 0.7,
		1.1, -0.9,
	})
	kernel := kernels.NewRBF().WithBandwidth(2)

	// Exact per-particle scores: prior gradient plus the unscaled sum over
	// all K observations.
	exactScores := mat.NewDense(numParticles, dim, nil)
	grad := make([]float64, dim)
	for i := 0; i < numParticles; i++ {
		row := exactScores.RawRowView(i)
		lr.GradLogPrior(init.RawRowView(i), row)
		for obs := 0; obs < lr.NumObservations(); obs++ {
			lr.GradLogLikelihood(obs, init.RawRowView(i), grad)
			floats.Add(row, grad)
		}
	}
	want := mat.DenseCopyOf(init)
	for i := 0; i < numParticles; i++ {
		direction := make([]float64, dim)
		for m := 0; m < numParticles; m++ {
			xm, xi := init.RawRowView(m), init.RawRowView(i)
			floats.AddScaled(direction, kernel.Eval(xm, xi), exactScores.RawRowView(m))
			kernel.GradX(xm, xi, grad)
			floats.Add(direction, grad)
		}
		floats.AddScaled(want.RawRowView(i), eps/numParticles, direction)
	}

	s, err := New(lr, init).
		Kernel(kernel).
		Replacement(minibatch.WithoutReplacement).
		StepSize(eps).
		Parallelism(0).
		Done()
	require.NoError(t, err)
	_, err = s.Step()
	require.NoError(t, err)

	got := s.Particles()
	for i := 0; i < numParticles; i++ {
		for d := 0; d < dim; d++ {
			assert.InDeltaf(t, want.At(i, d), got.At(i, d), 1e-9, "particle %d dimension %d", i, d)
		}
	}
}

// Averaged over many draws, the (K/b)-rescaled subsampled likelihood score
// converges to the exact full-data score, under both replacement policies.
func TestMinibatchEstimatorUnbiased(t *testing.T) {
	rng := newTestRand(3)
	lr := models.SyntheticLinearRegression(40, []float64{2}, 0.5, 10, rng)

	position := []float64{0.7}
	exact := make([]float64, 1)
	lr.GradLogPrior(position, exact)
	grad := make([]float64, 1)
	for obs := 0; obs < lr.NumObservations(); obs++ {
		lr.GradLogLikelihood(obs, position, grad)
		floats.Add(exact, grad)
	}

	for _, policy := range []minibatch.Policy{minibatch.WithReplacement, minibatch.WithoutReplacement} {
		s, err := New(lr, mat.NewDense(1, 1, position)).
			BatchSize(8).
			Replacement(policy).
			Seed(9).
			Parallelism(0).
			Done()
		require.NoError(t, err)

		s.snapshot.Copy(s.particles)
		const numTrials = 40000
		var sum float64
		for trial := 0; trial < numTrials; trial++ {
			s.batches[0] = s.batchSampler.Draw(s.batches[0])
			s.estimateScore(0)
			sum += s.scores.At(0, 0)
		}
		avg := sum / numTrials
		assert.InDeltaf(t, exact[0], avg, 0.03*math.Abs(exact[0]),
			"%s: averaged estimate %v, exact %v", policy, avg, exact[0])
	}
}

// Permuting the particle indexing must produce the same set of positions:
// every direction is computed against the same frozen snapshot.
func TestOrderInvariance(t *testing.T) {
	target := models.NewStandardGaussian(2)
	positions := [][]float64{
		{2, 1}, {-1, 0.5}, {0.3, -2}, {1.5, 1.5}, {-0.7, -0.2},
	}
	permutation := []int{3, 0, 4, 1, 2}

	run := func(order []int) *mat.Dense {
		init := mat.NewDense(len(order), 2, nil)
		for i, idx := range order {
			init.SetRow(i, positions[idx])
		}
		s, err := New(target, init).
			Kernel(kernels.NewRBF().WithBandwidth(1.5)).
			StepSize(0.1).
			Parallelism(0).
			Done()
		require.NoError(t, err)
		_, err = s.Step()
		require.NoError(t, err)
		return s.Particles()
	}

	identity := []int{0, 1, 2, 3, 4}
	sortedRows := func(m *mat.Dense) [][]float64 {
		n, _ := m.Dims()
		rows := make([][]float64, n)
		for i := range rows {
			rows[i] = m.RawRowView(i)
		}
		sort.Slice(rows, func(a, b int) bool {
			if rows[a][0] != rows[b][0] {
				return rows[a][0] < rows[b][0]
			}
			return rows[a][1] < rows[b][1]
		})
		return rows
	}

	got := sortedRows(run(permutation))
	want := sortedRows(run(identity))
	for i := range want {
		for d := range want[i] {
			assert.InDeltaf(t, want[i][d], got[i][d], 1e-9, "sorted particle %d dimension %d", i, d)
		}
	}
}

func TestNumericalDivergenceSurfaced(t *testing.T) {
	target := models.TargetFuncs{
		NumDims: 1,
		LogPriorGrad: func(x, grad []float64) {
			grad[0] = math.NaN()
		},
	}
	init := mat.NewDense(2, 1, []float64{0.5, -0.5})
	s, err := New(target, init).Parallelism(0).Done()
	require.NoError(t, err)

	_, err = s.Step()
	require.ErrorIs(t, err, ErrNumericalDivergence)

	// Particles must be left untouched.
	got := s.Particles()
	assert.Equal(t, 0.5, got.At(0, 0))
	assert.Equal(t, -0.5, got.At(1, 0))
}

func TestRunCancellation(t *testing.T) {
	target := models.NewStandardGaussian(1)
	s, err := New(target, mat.NewDense(2, 1, []float64{1, -1})).Done()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trace, err := s.Run(ctx, 100)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, trace)
}

func TestRunToleranceStopsEarly(t *testing.T) {
	target := models.NewStandardGaussian(1)
	s, err := New(target, mat.NewDense(2, 1, []float64{1, -1})).
		StepSize(0.1).
		Tolerance(1e6).
		Done()
	require.NoError(t, err)

	trace, err := s.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, trace, 1)
}

// With a shared minibatch, one step must evaluate every particle — not just
// the first — against the identical sequence of observation indices.
func TestSharedMinibatch(t *testing.T) {
	const numObs, batchSize, numParticles = 30, 5, 4
	drawn := make(map[float64][]int)
	target := models.TargetFuncs{
		NumDims: 1,
		NumObs:  numObs,
		LogPriorGrad: func(x, grad []float64) {
			grad[0] = -x[0]
		},
		LogLikelihoodGrad: func(obs int, x, grad []float64) {
			// Particles have distinct positions, so x[0] identifies the
			// particle whose score is being estimated.
			drawn[x[0]] = append(drawn[x[0]], obs)
			grad[0] = 0
		},
	}
	positions := []float64{0, 0.5, -0.5, 1}
	s, err := New(target, mat.NewDense(numParticles, 1, positions)).
		BatchSize(batchSize).
		SharedMinibatch(true).
		Parallelism(0).
		Done()
	require.NoError(t, err)
	require.Len(t, s.batches, 1)

	_, err = s.Step()
	require.NoError(t, err)

	require.Len(t, drawn, numParticles)
	reference := drawn[positions[0]]
	require.Len(t, reference, batchSize)
	for _, position := range positions {
		assert.Equalf(t, reference, drawn[position],
			"particle at %g saw a different minibatch", position)
	}
}

func TestParticlesReturnsACopy(t *testing.T) {
	target := models.NewStandardGaussian(1)
	s, err := New(target, mat.NewDense(1, 1, []float64{3})).Done()
	require.NoError(t, err)
	p := s.Particles()
	p.Set(0, 0, -100)
	assert.Equal(t, 3.0, s.Particles().At(0, 0))
}
