package async

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc computes one result. It must not share mutable state with other tasks.
type TaskFunc[T, R any] func(ctx context.Context, item T) R

// Outcome is the result slot for one input item.
type Outcome[R any] struct {
	Value R
	// Done is false when the item was never dispatched because the context ended.
	Done bool
}

// PoolMetrics tracks worker pool activity
type PoolMetrics struct {
	Submitted int64
	Completed int64
	Skipped   int64
	Busy      int64
	// TotalLatency is the summed task wall time in nanoseconds
	TotalLatency int64
}

// AverageLatency returns mean task latency
func (m *PoolMetrics) AverageLatency() time.Duration {
	n := atomic.LoadInt64(&m.Completed)
	if n == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&m.TotalLatency) / n)
}

// WorkerPool fans items out to a fixed number of workers and collects their
// results on the calling goroutine, in input order.
type WorkerPool[T, R any] struct {
	workers int
	fn      TaskFunc[T, R]
	metrics *PoolMetrics

	// OnResult, if set, is called on the collecting goroutine after each result.
	OnResult func(index int, value R)
}

// NewWorkerPool creates a worker pool. workers <= 0 uses the number of CPUs.
func NewWorkerPool[T, R any](workers int, fn TaskFunc[T, R]) *WorkerPool[T, R] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool[T, R]{workers: workers, fn: fn, metrics: &PoolMetrics{}}
}

// Workers returns the configured worker count
func (wp *WorkerPool[T, R]) Workers() int { return wp.workers }

// Metrics returns the live metrics
func (wp *WorkerPool[T, R]) Metrics() *PoolMetrics { return wp.metrics }

type indexed[R any] struct {
	index int
	value R
}

// Run processes every item. Cancellation is honoured between items: tasks
// already running finish and keep their results, undispatched items are
// reported with Done=false, and ctx.Err() is returned.
func (wp *WorkerPool[T, R]) Run(ctx context.Context, items []T) ([]Outcome[R], error) {
	out := make([]Outcome[R], len(items))
	if len(items) == 0 {
		return out, ctx.Err()
	}

	jobs := make(chan int)
	results := make(chan indexed[R], wp.workers)

	var wg sync.WaitGroup
	for w := 0; w < min(wp.workers, len(items)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				atomic.AddInt64(&wp.metrics.Busy, 1)
				start := time.Now()
				v := wp.fn(ctx, items[i])
				atomic.AddInt64(&wp.metrics.TotalLatency, int64(time.Since(start)))
				atomic.AddInt64(&wp.metrics.Busy, -1)
				results <- indexed[R]{index: i, value: v}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range items {
			select {
			case <-ctx.Done():
				atomic.AddInt64(&wp.metrics.Skipped, int64(len(items)-i))
				return
			default:
			}
			select {
			case jobs <- i:
				atomic.AddInt64(&wp.metrics.Submitted, 1)
			case <-ctx.Done():
				atomic.AddInt64(&wp.metrics.Skipped, int64(len(items)-i))
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		out[r.index] = Outcome[R]{Value: r.value, Done: true}
		atomic.AddInt64(&wp.metrics.Completed, 1)
		if wp.OnResult != nil {
			wp.OnResult(r.index, r.value)
		}
	}
	return out, ctx.Err()
}
