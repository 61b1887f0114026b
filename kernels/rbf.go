// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// RBFDefaultBandwidth is used by RBF kernels until configured otherwise (or
// until the first Adapt call when the median trick is enabled).
const RBFDefaultBandwidth = 1.0

// RBF is the radial basis (squared exponential) kernel
//
//	k(x, y) = exp(-||x-y||² / h)
//
// with bandwidth h > 0. The bandwidth is either fixed or re-estimated every
// step from the particle snapshot with the median trick
//
//	h = med² / log(N+1)
//
// where med² is the median pairwise squared distance between particles. With
// the median trick, Σ_m k(x_m, x_i) ≈ N·exp(-log(N+1)) ≈ 1, so the repulsive
// and driving terms stay balanced as particles spread.
type RBF struct {
	h           float64
	medianTrick bool
}

// NewRBF returns an RBF kernel with a fixed bandwidth of RBFDefaultBandwidth.
// Use WithBandwidth or WithMedianTrick to configure it.
func NewRBF() *RBF {
	return &RBF{h: RBFDefaultBandwidth}
}

// WithBandwidth sets a fixed bandwidth h > 0 and disables the median trick.
// It returns the kernel to allow chaining.
func (k *RBF) WithBandwidth(h float64) *RBF {
	k.h = h
	k.medianTrick = false
	return k
}

// WithMedianTrick enables per-step bandwidth selection from the median
// pairwise squared distance of the particle snapshot.
// It returns the kernel to allow chaining.
func (k *RBF) WithMedianTrick() *RBF {
	k.medianTrick = true
	return k
}

// Name implements Kernel.
func (k *RBF) Name() string { return "rbf" }

// Bandwidth returns the bandwidth currently in effect.
func (k *RBF) Bandwidth() float64 { return k.h }

// Eval implements Kernel.
func (k *RBF) Eval(x, y []float64) float64 {
	checkLens(x, y)
	return math.Exp(-sqDist(x, y) / k.h)
}

// GradX implements Kernel: ∇_x k(x, y) = -2(x-y)/h · k(x, y).
func (k *RBF) GradX(x, y, grad []float64) {
	checkLens(x, y)
	checkLens(x, grad)
	kv := math.Exp(-sqDist(x, y) / k.h)
	scale := -2.0 / k.h * kv
	for d := range grad {
		grad[d] = scale * (x[d] - y[d])
	}
}

// Adapt implements Adaptive: if the median trick is enabled, re-estimates the
// bandwidth from the snapshot. A degenerate snapshot (all particles at the
// same point, median distance 0) keeps the previous bandwidth.
func (k *RBF) Adapt(snapshot *mat.Dense) {
	if !k.medianTrick {
		return
	}
	numParticles, _ := snapshot.Dims()
	if numParticles < 2 {
		return
	}
	dists := make([]float64, 0, numParticles*(numParticles-1)/2)
	for i := 0; i < numParticles; i++ {
		xi := snapshot.RawRowView(i)
		for j := i + 1; j < numParticles; j++ {
			dists = append(dists, sqDist(xi, snapshot.RawRowView(j)))
		}
	}
	sort.Float64s(dists)
	med := median(dists)
	if med <= 0 {
		return
	}
	k.h = med / math.Log(float64(numParticles)+1)
}

// median of a sorted, non-empty slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
