// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import "math"

const (
	// IMQDefaultOffset is the default c² offset of the IMQ kernel.
	IMQDefaultOffset = 1.0

	// IMQDefaultExponent is the default exponent β of the IMQ kernel.
	IMQDefaultExponent = -0.5
)

// IMQ is the inverse multiquadric kernel
//
//	k(x, y) = (c² + ||x-y||²)^β,  c² > 0, β ∈ (-1, 0)
//
// Its heavier tail keeps the repulsive term effective for distant particles,
// where the RBF kernel decays to zero.
type IMQ struct {
	c2   float64
	beta float64
}

// NewIMQ returns an IMQ kernel with c² = IMQDefaultOffset and
// β = IMQDefaultExponent. Use WithOffset and WithExponent to configure it.
func NewIMQ() *IMQ {
	return &IMQ{c2: IMQDefaultOffset, beta: IMQDefaultExponent}
}

// WithOffset sets the c² offset. It returns the kernel to allow chaining.
func (k *IMQ) WithOffset(c2 float64) *IMQ {
	k.c2 = c2
	return k
}

// WithExponent sets the exponent β. It returns the kernel to allow chaining.
func (k *IMQ) WithExponent(beta float64) *IMQ {
	k.beta = beta
	return k
}

// Name implements Kernel.
func (k *IMQ) Name() string { return "imq" }

// Eval implements Kernel.
func (k *IMQ) Eval(x, y []float64) float64 {
	checkLens(x, y)
	return math.Pow(k.c2+sqDist(x, y), k.beta)
}

// GradX implements Kernel: ∇_x k(x, y) = 2β(x-y)·(c² + ||x-y||²)^(β-1).
func (k *IMQ) GradX(x, y, grad []float64) {
	checkLens(x, y)
	checkLens(x, grad)
	scale := 2 * k.beta * math.Pow(k.c2+sqDist(x, y), k.beta-1)
	for d := range grad {
		grad[d] = scale * (x[d] - y[d])
	}
}
