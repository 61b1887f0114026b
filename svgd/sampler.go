// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package svgd

import (
	"context"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/gomlx/stein/internal/parallel"
	"github.com/gomlx/stein/kernels"
	"github.com/gomlx/stein/minibatch"
	"github.com/gomlx/stein/models"
)

// Sampler holds the particle set and performs the SVGD updates. Build it
// with New(...).Done().
//
// A Sampler is not safe for concurrent use; one Step at a time. Within a
// Step, per-particle work is parallelized internally.
type Sampler struct {
	target models.Target
	kernel kernels.Kernel
	pool   *parallel.Pool
	rng    *rand.Rand

	batchSampler *minibatch.Sampler // nil for prior-only targets.
	sharedBatch  bool
	scale        float64 // K/b rescaling of the subsampled likelihood sum.

	schedule  Schedule
	ada       *adaGrad // nil unless AdaGrad was configured.
	tolerance float64

	numParticles, dim, numObs int
	stepCount                 int

	// particles is the live N×D particle matrix; snapshot is the frozen copy
	// all of one step's evaluations read from. scores, directions, scratch
	// and likGrad are preallocated N×D work matrices: row i belongs to the
	// goroutine computing particle i, and phases are separated by barriers.
	particles  *mat.Dense
	snapshot   *mat.Dense
	scores     *mat.Dense
	directions *mat.Dense
	scratch    *mat.Dense
	likGrad    *mat.Dense

	batches [][]int
}

// StepStats summarizes one iteration for diagnostics.
type StepStats struct {
	// Step is the 0-based iteration number.
	Step int

	// StepSize is the scalar ε used (the master step size under AdaGrad).
	StepSize float64

	// MeanDisplacement is the mean Euclidean distance the particles moved.
	MeanDisplacement float64

	// MaxAbsDirection is the largest |φ| coordinate before step sizing.
	MaxAbsDirection float64

	// Bandwidth is the kernel bandwidth in effect, 0 if the kernel has no
	// scalar bandwidth.
	Bandwidth float64
}

// NumParticles returns N.
func (s *Sampler) NumParticles() int { return s.numParticles }

// Dim returns the particle dimensionality D.
func (s *Sampler) Dim() int { return s.dim }

// StepCount returns the number of completed steps.
func (s *Sampler) StepCount() int { return s.stepCount }

// Particles returns a copy of the current N×D particle matrix.
func (s *Sampler) Particles() *mat.Dense {
	return mat.DenseCopyOf(s.particles)
}

// Step runs one SVGD iteration: it freezes a snapshot of the particle
// positions, estimates every particle's posterior score from a minibatch of
// observations, computes the kernel-smoothed update direction
//
//	φ(x_i) = (1/N) Σ_m [ k(x_m, x_i)·ŝ_m + ∇_{x_m} k(x_m, x_i) ]
//
// against the snapshot, and only then moves the particles.
//
// It returns ErrNumericalDivergence if any direction coordinate is NaN or
// ±Inf; the particle positions are left untouched in that case.
func (s *Sampler) Step() (StepStats, error) {
	s.snapshot.Copy(s.particles)
	if adaptive, ok := s.kernel.(kernels.Adaptive); ok {
		adaptive.Adapt(s.snapshot)
	}

	// Minibatch draws use the sampler's rand.Rand and must stay serial.
	if s.batchSampler != nil {
		for i := range s.batches {
			s.batches[i] = s.batchSampler.Draw(s.batches[i])
		}
	}

	// ŝ_m = (K/b)·Σ_{j∈batch_m} ∇log p(D_j|x_m) + ∇log p(x_m), all read from
	// the snapshot.
	s.pool.For(s.numParticles, s.estimateScore)

	// φ(x_i), still against the snapshot: no particle may move before every
	// direction is known.
	s.pool.For(s.numParticles, s.computeDirection)

	if c := s.firstNonFinite(); c >= 0 {
		err := errors.Wrapf(ErrNumericalDivergence,
			"non-finite update direction for particle %d (dimension %d) at step %d",
			c/s.dim, c%s.dim, s.stepCount)
		klog.Warningf("svgd: %v", err)
		return StepStats{}, err
	}

	stats := s.apply()
	s.stepCount++
	return stats, nil
}

// estimateScore fills scores row m for particle m of the snapshot.
func (s *Sampler) estimateScore(m int) {
	position := s.snapshot.RawRowView(m)
	score := s.scores.RawRowView(m)
	s.target.GradLogPrior(position, score)
	if s.batchSampler == nil {
		return
	}
	// Under a shared minibatch only one batch slot exists.
	batch := s.batches[0]
	if !s.sharedBatch {
		batch = s.batches[m]
	}
	grad := s.likGrad.RawRowView(m)
	for _, obs := range batch {
		s.target.GradLogLikelihood(obs, position, grad)
		floats.AddScaled(score, s.scale, grad)
	}
}

// computeDirection fills directions row i with φ(x_i).
func (s *Sampler) computeDirection(i int) {
	xi := s.snapshot.RawRowView(i)
	direction := s.directions.RawRowView(i)
	for d := range direction {
		direction[d] = 0
	}
	kernelGrad := s.scratch.RawRowView(i)
	for m := 0; m < s.numParticles; m++ {
		xm := s.snapshot.RawRowView(m)
		floats.AddScaled(direction, s.kernel.Eval(xm, xi), s.scores.RawRowView(m))
		s.kernel.GradX(xm, xi, kernelGrad)
		floats.Add(direction, kernelGrad)
	}
	floats.Scale(1/float64(s.numParticles), direction)
}

// apply moves the particles along the directions and collects the step
// statistics.
func (s *Sampler) apply() StepStats {
	eps := s.schedule(s.stepCount)
	stats := StepStats{Step: s.stepCount, StepSize: eps}
	if s.ada != nil {
		stats.StepSize = s.ada.masterStep
	}
	if b, ok := s.kernel.(kernels.Bandwidther); ok {
		stats.Bandwidth = b.Bandwidth()
	}

	var totalDisplacement float64
	for i := 0; i < s.numParticles; i++ {
		position := s.particles.RawRowView(i)
		direction := s.directions.RawRowView(i)
		var sqDisplacement float64
		for d, phi := range direction {
			if abs := math.Abs(phi); abs > stats.MaxAbsDirection {
				stats.MaxAbsDirection = abs
			}
			delta := eps * phi
			if s.ada != nil {
				delta = s.ada.delta(i*s.dim+d, phi)
			}
			position[d] += delta
			sqDisplacement += delta * delta
		}
		totalDisplacement += math.Sqrt(sqDisplacement)
	}
	if s.ada != nil {
		s.ada.finishStep()
	}
	stats.MeanDisplacement = totalDisplacement / float64(s.numParticles)
	return stats
}

// firstNonFinite returns the flat index of the first NaN/Inf direction
// coordinate, or -1 if all are finite.
func (s *Sampler) firstNonFinite() int {
	raw := s.directions.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for d, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return i*s.dim + d
			}
		}
	}
	return -1
}

// Run performs up to maxSteps iterations, returning the per-step diagnostics
// trace. It stops early when the context is canceled (checked once per
// iteration boundary), when a step fails, or when the mean particle
// displacement falls below the configured tolerance.
func (s *Sampler) Run(ctx context.Context, maxSteps int) ([]StepStats, error) {
	trace := make([]StepStats, 0, maxSteps)
	for i := 0; i < maxSteps; i++ {
		select {
		case <-ctx.Done():
			return trace, ctx.Err()
		default:
		}
		stats, err := s.Step()
		if err != nil {
			return trace, err
		}
		trace = append(trace, stats)
		klog.V(2).Infof("svgd step %d: mean displacement %.3g, max |φ| %.3g, bandwidth %.3g",
			stats.Step, stats.MeanDisplacement, stats.MaxAbsDirection, stats.Bandwidth)
		if s.tolerance > 0 && stats.MeanDisplacement < s.tolerance {
			klog.V(1).Infof("svgd converged after %d steps: mean displacement %.3g < tolerance %.3g",
				stats.Step+1, stats.MeanDisplacement, s.tolerance)
			break
		}
	}
	return trace, nil
}
