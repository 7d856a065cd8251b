// Package kernel computes mesh/point-cloud quality metrics over the
// accumulated point set in one fused data-parallel pass. The pass is
// expressed as work items over point groups and dispatched through an
// Accelerator so wall-clock time scales down with available parallelism.
package kernel

import (
	"context"
	"runtime"
	"sync"

	"github.com/scalpscan/scancore/internal/scan"
)

// DefaultGroupSize is the number of points per work item. Small enough
// to balance load across workers, large enough to amortise dispatch.
const DefaultGroupSize = 256

// Job is one data-parallel computation: Items elements processed in
// groups of GroupSize by Run(start, end) calls. Run must be safe to call
// concurrently for disjoint ranges.
type Job struct {
	Items     int
	GroupSize int
	Run       func(start, end int) error
}

// Accelerator executes data-parallel jobs. Dispatch blocks until every
// work item has completed (the join point), so callers may read results
// immediately afterwards. Cancellation is cooperative: workers observe
// ctx between groups, never mid-group.
type Accelerator interface {
	Dispatch(ctx context.Context, job Job) error
	// Workers reports the degree of parallelism, 1 for the sequential
	// fallback.
	Workers() int
}

// ParallelAccelerator fans work items out over a fixed worker pool.
type ParallelAccelerator struct {
	workers int
}

// NewParallelAccelerator creates an accelerator with the given worker
// count; workers <= 0 selects one worker per CPU. A host reporting no
// usable parallelism yields AcceleratorUnavailable rather than a
// silently degraded instance.
func NewParallelAccelerator(workers int) (*ParallelAccelerator, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		return nil, scan.NewScanError(scan.AcceleratorUnavailable, "no workers available for parallel dispatch")
	}
	return &ParallelAccelerator{workers: workers}, nil
}

// Workers returns the configured worker count.
func (a *ParallelAccelerator) Workers() int { return a.workers }

// Dispatch runs the job across the worker pool and joins before
// returning. The first worker error wins; remaining groups are skipped.
func (a *ParallelAccelerator) Dispatch(ctx context.Context, job Job) error {
	if job.Items == 0 {
		return nil
	}
	groupSize := job.GroupSize
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}

	groups := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for w := 0; w < a.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range groups {
				if failed() {
					continue
				}
				if err := ctx.Err(); err != nil {
					setErr(err)
					continue
				}
				end := start + groupSize
				if end > job.Items {
					end = job.Items
				}
				if err := job.Run(start, end); err != nil {
					setErr(err)
				}
			}
		}()
	}

	for start := 0; start < job.Items; start += groupSize {
		groups <- start
	}
	close(groups)
	wg.Wait()

	return firstErr
}

// SequentialFallback runs jobs on the calling goroutine. It exists only
// as a degraded mode under reduced processing quality; the kernel never
// falls back to it silently.
type SequentialFallback struct{}

// Workers always reports 1.
func (SequentialFallback) Workers() int { return 1 }

// Dispatch runs every group in order, checking ctx between groups.
func (SequentialFallback) Dispatch(ctx context.Context, job Job) error {
	groupSize := job.GroupSize
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	for start := 0; start < job.Items; start += groupSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + groupSize
		if end > job.Items {
			end = job.Items
		}
		if err := job.Run(start, end); err != nil {
			return err
		}
	}
	return nil
}
