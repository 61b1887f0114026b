// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package parallel provides the bounded worker pool used to fan out the
// per-particle score and direction computations of one update step.
//
// All tasks submitted between two barriers read the same immutable snapshot,
// so they can run in any order and on any number of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool runs independent tasks with a soft limit on parallelism.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	// 0 disables parallelism (everything runs inline), -1 makes it unlimited.
	maxParallelism int
}

// New returns a new Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return &Pool{maxParallelism: runtime.NumCPU()}
}

// MaxParallelism returns the current soft parallelism target.
func (p *Pool) MaxParallelism() int { return p.maxParallelism }

// SetMaxParallelism sets the parallelism target.
// Set to 0 to run everything inline, or -1 for unlimited parallelism.
//
// Only change this before submitting work; changing it while tasks run is
// undefined.
func (p *Pool) SetMaxParallelism(maxParallelism int) {
	p.maxParallelism = maxParallelism
}

// IsSerial returns whether parallelism is disabled.
func (p *Pool) IsSerial() bool { return p.maxParallelism == 0 }

// For calls task(i) for every i in [0, n) and returns after all calls
// completed. Tasks may run concurrently, up to the pool's parallelism target.
//
// task must not mutate state shared with other indices without its own
// synchronization.
func (p *Pool) For(n int, task func(i int)) {
	if n <= 0 {
		return
	}
	if p.maxParallelism == 0 {
		for i := 0; i < n; i++ {
			task(i)
		}
		return
	}

	numWorkers := p.maxParallelism
	if numWorkers < 0 || numWorkers > n {
		numWorkers = n
	}
	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= n {
					return
				}
				task(i)
			}
		}()
	}
	wg.Wait()
}
