// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels implements the symmetric positive-definite kernels that
// smooth the Stein variational update direction. They all implement
// kernels.Kernel.
package kernels

import (
	"github.com/gomlx/exceptions"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/mat"
)

// Kernel is a symmetric positive-definite function k(x, y) over particle
// positions, differentiable in its first argument.
//
// Implementations must satisfy k(x, y) = k(y, x) for all x, y. Positive
// definiteness is required for the RKHS derivation of the update direction
// to hold.
type Kernel interface {
	// Name identifies the kernel in diagnostics and in KnownKernels.
	Name() string

	// Eval returns k(x, y). x and y must have the same length; mismatched
	// lengths are a caller bug and panic.
	Eval(x, y []float64) float64

	// GradX writes ∇_x k(x, y) — the gradient with respect to the first
	// argument, with y held fixed — into grad. All three slices must have the
	// same length.
	GradX(x, y, grad []float64)
}

// Adaptive is implemented by kernels whose parameters depend on the current
// particle positions (e.g. the median-trick bandwidth). The sampler calls
// Adapt once per step with the frozen snapshot, before any kernel evaluation.
type Adaptive interface {
	Adapt(snapshot *mat.Dense)
}

// Bandwidther is implemented by kernels with a scalar bandwidth, so the
// sampler can report it in the per-step trace.
type Bandwidther interface {
	Bandwidth() float64
}

// KnownKernels is a map of known kernels by name to their default
// constructors. This provides an easy quick start point; the defaults can be
// tuned through each kernel's own options.
var KnownKernels = map[string]func() Kernel{
	"rbf": func() Kernel { return NewRBF().WithMedianTrick() },
	"imq": func() Kernel { return NewIMQ() },
}

// ByName returns a kernel given the name, or panics if one does not exist.
// It uses KnownKernels -- in case one wants to better handle invalid values.
func ByName(name string) Kernel {
	builder, found := KnownKernels[name]
	if !found {
		exceptions.Panicf("unknown kernel %q, valid values are %v", name, maps.Keys(KnownKernels))
	}
	return builder()
}

// checkLens panics if x and y have different lengths. Kernel inputs come from
// rows of the same particle matrix, so a mismatch is always a caller bug.
func checkLens(x, y []float64) {
	if len(x) != len(y) {
		exceptions.Panicf("kernel arguments have mismatching dimensions %d and %d", len(x), len(y))
	}
}

// sqDist returns ||x-y||².
func sqDist(x, y []float64) float64 {
	var sum float64
	for d, xd := range x {
		diff := xd - y[d]
		sum += diff * diff
	}
	return sum
}
