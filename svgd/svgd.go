// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package svgd implements Stein Variational Gradient Descent: a fixed-size
// set of particles is moved along the kernel-smoothed steepest-descent
// direction for KL(q || p), where q is the particle empirical distribution
// and p an unnormalized posterior known through score gradients.
//
// The likelihood part of the score can be estimated from minibatches of the
// observations; the prior part is always exact. One step moves every particle
// against a frozen snapshot of the current positions, so results do not
// depend on particle ordering.
//
// Build a sampler with New and the chained options, then call Done:
//
//	sampler, err := svgd.New(target, initialParticles).
//		Kernel(kernels.NewRBF().WithMedianTrick()).
//		BatchSize(50).
//		Replacement(minibatch.WithoutReplacement).
//		AdaGrad(0.05).
//		Done()
package svgd

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/stein/internal/parallel"
	"github.com/gomlx/stein/kernels"
	"github.com/gomlx/stein/minibatch"
	"github.com/gomlx/stein/models"
)

var (
	// ErrInvalidParticleCount is returned by Config.Done when the initial
	// particle set is empty.
	ErrInvalidParticleCount = errors.New("invalid particle count")

	// ErrDimensionMismatch is returned by Config.Done when the particle
	// dimensionality disagrees with the target's.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidBatchSize is returned by Config.Done when the batch size is
	// outside [1, K]. It aliases the minibatch package's sentinel so callers
	// can check either.
	ErrInvalidBatchSize = minibatch.ErrInvalidBatchSize

	// ErrNumericalDivergence is returned by Sampler.Step when a non-finite
	// (NaN or Inf) value shows up in the update direction, usually from a
	// user-supplied gradient function blowing up.
	ErrNumericalDivergence = errors.New("numerical divergence")
)

// DefaultStepSize is the constant step size used when no step size, schedule
// or AdaGrad option is given.
const DefaultStepSize = 0.01

// DefaultSeed is the random seed used when Seed is not called. The whole
// procedure is deterministic given the seed.
const DefaultSeed = 42

// Config collects the sampler options. Create it with New, configure with
// the chained methods and call Done to validate everything and build the
// Sampler.
type Config struct {
	target models.Target
	init   mat.Matrix

	kernel      kernels.Kernel
	batchSize   int // 0 means full batch.
	policy      minibatch.Policy
	sharedBatch bool

	schedule   Schedule
	useAdaGrad bool
	masterStep float64

	tolerance   float64
	seed        int64
	parallelism int
	hasParallel bool
}

// New starts the configuration of a sampler for the given target, with the
// initial particle set given as an N×D matrix (one particle per row).
//
// Defaults: RBF kernel with median-trick bandwidth, full-batch scores,
// with-replacement policy, constant step size DefaultStepSize, no convergence
// tolerance, seed DefaultSeed and parallelism runtime.NumCPU().
func New(target models.Target, initialParticles mat.Matrix) *Config {
	return &Config{
		target:   target,
		init:     initialParticles,
		kernel:   kernels.NewRBF().WithMedianTrick(),
		schedule: Constant(DefaultStepSize),
		seed:     DefaultSeed,
	}
}

// Kernel sets the smoothing kernel. It returns the Config to allow chaining.
func (c *Config) Kernel(k kernels.Kernel) *Config {
	c.kernel = k
	return c
}

// BatchSize sets the minibatch size b used to estimate the likelihood part of
// the score; 0 (the default) uses all K observations. It returns the Config
// to allow chaining.
func (c *Config) BatchSize(b int) *Config {
	c.batchSize = b
	return c
}

// Replacement sets the minibatch sampling policy. It returns the Config to
// allow chaining.
func (c *Config) Replacement(policy minibatch.Policy) *Config {
	c.policy = policy
	return c
}

// SharedMinibatch makes every particle reuse one minibatch drawn per
// iteration, instead of drawing independently per particle. It returns the
// Config to allow chaining.
func (c *Config) SharedMinibatch(shared bool) *Config {
	c.sharedBatch = shared
	return c
}

// StepSize sets a constant step size ε. It returns the Config to allow
// chaining.
func (c *Config) StepSize(eps float64) *Config {
	c.schedule = Constant(eps)
	c.useAdaGrad = false
	return c
}

// StepSchedule sets a per-iteration step size schedule. It returns the
// Config to allow chaining.
func (c *Config) StepSchedule(schedule Schedule) *Config {
	c.schedule = schedule
	c.useAdaGrad = false
	return c
}

// AdaGrad switches to AdaGrad-with-momentum per-coordinate step sizing with
// the given master step size. It returns the Config to allow chaining.
func (c *Config) AdaGrad(masterStep float64) *Config {
	c.useAdaGrad = true
	c.masterStep = masterStep
	return c
}

// Tolerance makes Run stop early once the mean particle displacement of a
// step falls below tol; tol <= 0 (the default) disables the check. It
// returns the Config to allow chaining.
func (c *Config) Tolerance(tol float64) *Config {
	c.tolerance = tol
	return c
}

// Seed sets the random seed for the minibatch draws. It returns the Config
// to allow chaining.
func (c *Config) Seed(seed int64) *Config {
	c.seed = seed
	return c
}

// Parallelism bounds the number of particles whose scores and directions are
// computed concurrently: 0 runs serially, -1 is unlimited, the default is
// runtime.NumCPU(). It returns the Config to allow chaining.
func (c *Config) Parallelism(n int) *Config {
	c.parallelism = n
	c.hasParallel = true
	return c
}

// Done validates the configuration and returns the Sampler.
//
// It fails fast with ErrInvalidParticleCount, ErrDimensionMismatch or
// ErrInvalidBatchSize: these are run invariants, so they are checked here
// once rather than inside the iteration loop.
func (c *Config) Done() (*Sampler, error) {
	if c.target == nil {
		return nil, errors.New("sampler requires a target, got nil")
	}
	if c.init == nil {
		return nil, errors.Wrap(ErrInvalidParticleCount, "initial particles matrix is nil")
	}
	numParticles, dim := c.init.Dims()
	if numParticles <= 0 {
		return nil, errors.Wrapf(ErrInvalidParticleCount, "got %d particles", numParticles)
	}
	if dim != c.target.Dim() {
		return nil, errors.Wrapf(ErrDimensionMismatch,
			"particles have dimension %d but target has dimension %d", dim, c.target.Dim())
	}

	s := &Sampler{
		target:       c.target,
		kernel:       c.kernel,
		schedule:     c.schedule,
		tolerance:    c.tolerance,
		sharedBatch:  c.sharedBatch,
		numParticles: numParticles,
		dim:          dim,
		numObs:       c.target.NumObservations(),
		rng:          rand.New(rand.NewSource(c.seed)),
		pool:         parallel.New(),
		particles:    mat.DenseCopyOf(c.init),
		snapshot:     mat.NewDense(numParticles, dim, nil),
		scores:       mat.NewDense(numParticles, dim, nil),
		directions:   mat.NewDense(numParticles, dim, nil),
		scratch:      mat.NewDense(numParticles, dim, nil),
	}
	if c.hasParallel {
		s.pool.SetMaxParallelism(c.parallelism)
	}

	if s.numObs > 0 {
		batchSize := c.batchSize
		if batchSize == 0 {
			batchSize = s.numObs
		}
		var err error
		s.batchSampler, err = minibatch.New(s.numObs, batchSize, c.policy, s.rng)
		if err != nil {
			return nil, err
		}
		s.scale = float64(s.numObs) / float64(batchSize)
		numBatches := numParticles
		if c.sharedBatch {
			numBatches = 1
		}
		s.batches = make([][]int, numBatches)
		for i := range s.batches {
			s.batches[i] = make([]int, batchSize)
		}
		s.likGrad = mat.NewDense(numParticles, dim, nil)
	}

	if c.useAdaGrad {
		s.ada = newAdaGrad(c.masterStep, numParticles*dim)
	}
	return s, nil
}
