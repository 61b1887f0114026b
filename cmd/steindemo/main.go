// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// steindemo runs SVGD on one of the built-in targets and reports the
// empirical moments of the final particle set.
//
// Examples:
//
//	steindemo -target=gaussian -particles=100 -steps=2000 -plot=/tmp/particles.png
//	steindemo -target=logreg -batch=50 -replacement=without
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"github.com/gomlx/stein/kernels"
	"github.com/gomlx/stein/minibatch"
	"github.com/gomlx/stein/models"
	"github.com/gomlx/stein/svgd"
)

var (
	flagTarget = flag.String("target", "gaussian",
		"Target posterior to sample: \"gaussian\" (standard 2D normal) or \"logreg\" "+
			"(hierarchical Bayesian logistic regression on synthetic data).")
	flagParticles = flag.Int("particles", 50, "Number of particles N.")
	flagSteps     = flag.Int("steps", 2000, "Number of SVGD iterations.")
	flagBatch     = flag.Int("batch", 0, "Minibatch size b; 0 uses the full dataset.")
	flagReplace   = flag.String("replacement", "with",
		"Minibatch sampling policy: \"with\" or \"without\" replacement.")
	flagKernel = flag.String("kernel", "rbf",
		fmt.Sprintf("Smoothing kernel, options: %q.", maps.Keys(kernels.KnownKernels)))
	flagStepSize  = flag.Float64("step_size", 0.05, "AdaGrad master step size.")
	flagTolerance = flag.Float64("tolerance", 0,
		"Stop early when the mean particle displacement falls below this; 0 disables.")
	flagObs  = flag.Int("observations", 1000, "Synthetic dataset size K (logreg target only).")
	flagSeed = flag.Int64("seed", 42, "Random seed for data, initialization and minibatches.")
	flagPlot = flag.String("plot", "", "If set, save a scatter plot of the first two particle dimensions to this PNG file.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	err := exceptions.TryCatch[error](run)
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func run() {
	var target models.Target
	rng := rand.New(rand.NewSource(*flagSeed))
	switch *flagTarget {
	case "gaussian":
		target = models.NewStandardGaussian(2)
	case "logreg":
		target = models.SyntheticLogisticRegression(*flagObs, []float64{1.2, -0.8}, rng)
	default:
		exceptions.Panicf("unknown -target=%q, options are \"gaussian\" and \"logreg\"", *flagTarget)
	}

	var policy minibatch.Policy
	switch *flagReplace {
	case "with":
		policy = minibatch.WithReplacement
	case "without":
		policy = minibatch.WithoutReplacement
	default:
		exceptions.Panicf("unknown -replacement=%q, options are \"with\" and \"without\"", *flagReplace)
	}

	// Particles start from a far-off spherical Gaussian, so the demo shows
	// actual transport and not just local polishing.
	initMean := make([]float64, target.Dim())
	initCov := mat.NewSymDense(target.Dim(), nil)
	for d := range initMean {
		initMean[d] = 3
		initCov.SetSym(d, d, 0.5)
	}
	initDist := must.M1(models.NewGaussian(initMean, initCov))
	init := mat.NewDense(*flagParticles, target.Dim(), nil)
	for i := 0; i < *flagParticles; i++ {
		initDist.Rand(init.RawRowView(i), rng)
	}

	sampler := must.M1(svgd.New(target, init).
		Kernel(kernels.ByName(*flagKernel)).
		BatchSize(*flagBatch).
		Replacement(policy).
		AdaGrad(*flagStepSize).
		Tolerance(*flagTolerance).
		Seed(*flagSeed).
		Done())

	fmt.Printf("SVGD on %q: N=%d particles, D=%d, K=%d observations, kernel=%s\n",
		*flagTarget, sampler.NumParticles(), sampler.Dim(), target.NumObservations(), *flagKernel)
	bar := progressbar.Default(int64(*flagSteps))
	var last svgd.StepStats
	for i := 0; i < *flagSteps; i++ {
		last = must.M1(sampler.Step())
		must.M(bar.Add(1))
		if *flagTolerance > 0 && last.MeanDisplacement < *flagTolerance {
			fmt.Printf("\nConverged after %d steps.\n", i+1)
			break
		}
	}
	fmt.Printf("Last step: mean displacement %.4g, max |φ| %.4g, bandwidth %.4g\n",
		last.MeanDisplacement, last.MaxAbsDirection, last.Bandwidth)

	report(sampler.Particles())
	if *flagPlot != "" {
		savePlot(sampler.Particles(), *flagPlot)
		fmt.Printf("Particle scatter plot saved to %s\n", *flagPlot)
	}
}

// report prints the empirical mean and standard deviation per dimension.
func report(particles *mat.Dense) {
	numParticles, dim := particles.Dims()
	col := make([]float64, numParticles)
	var sb strings.Builder
	sb.WriteString("Empirical moments:\n")
	for d := 0; d < dim; d++ {
		mat.Col(col, d, particles)
		mean, variance := stat.MeanVariance(col, nil)
		fmt.Fprintf(&sb, "  dim %d: mean %+.4f, stddev %.4f\n", d, mean, math.Sqrt(variance))
	}
	fmt.Print(sb.String())
}

// savePlot writes a scatter plot of the first two particle dimensions.
func savePlot(particles *mat.Dense, path string) {
	numParticles, dim := particles.Dims()
	if dim < 2 {
		klog.Warningf("plotting needs at least 2 dimensions, target has %d", dim)
		return
	}
	xys := make(plotter.XYs, numParticles)
	for i := range xys {
		xys[i].X = particles.At(i, 0)
		xys[i].Y = particles.At(i, 1)
	}
	p := plot.New()
	p.Title.Text = "SVGD particles"
	p.X.Label.Text = "x[0]"
	p.Y.Label.Text = "x[1]"
	scatter := must.M1(plotter.NewScatter(xys))
	p.Add(scatter)
	must.M(p.Save(6*vg.Inch, 6*vg.Inch, path))
}
