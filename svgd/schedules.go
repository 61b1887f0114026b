// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package svgd

import "math"

// This file implements step size schedules and the AdaGrad per-coordinate
// step sizing.

// Schedule maps the 0-based iteration number to the step size ε used for
// that iteration.
type Schedule func(step int) float64

// Constant returns a schedule with a fixed step size.
func Constant(eps float64) Schedule {
	return func(int) float64 { return eps }
}

// InverseDecay returns the schedule ε_t = ε₀ / (1+t)^κ. κ in (0.5, 1] gives
// the classic Robbins-Monro conditions Σε_t = ∞, Σε_t² < ∞.
func InverseDecay(eps0, kappa float64) Schedule {
	return func(step int) float64 {
		return eps0 / math.Pow(1+float64(step), kappa)
	}
}

const (
	adaGradMomentum = 0.9
	adaGradFudge    = 1e-6
)

// adaGrad keeps an exponential moving average of the squared update
// directions and scales each coordinate's step by the inverse root of its
// accumulator, so flat coordinates move as fast as steep ones.
type adaGrad struct {
	masterStep  float64
	accumulator []float64
	initialized bool
}

func newAdaGrad(masterStep float64, size int) *adaGrad {
	return &adaGrad{
		masterStep:  masterStep,
		accumulator: make([]float64, size),
	}
}

// delta returns the position increment for coordinate c given its direction
// value phi, updating the accumulator.
func (a *adaGrad) delta(c int, phi float64) float64 {
	if a.initialized {
		a.accumulator[c] = adaGradMomentum*a.accumulator[c] + (1-adaGradMomentum)*phi*phi
	} else {
		a.accumulator[c] = phi * phi
	}
	return a.masterStep * phi / (adaGradFudge + math.Sqrt(a.accumulator[c]))
}

// finishStep marks the first-step initialization as done; call once after
// all coordinates of a step were processed.
func (a *adaGrad) finishStep() { a.initialized = true }
