package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolPreservesOrder(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	pool := NewWorkerPool[int, int](4, func(_ context.Context, n int) int {
		// later items finish first
		time.Sleep(time.Duration(50-n) * 100 * time.Microsecond)
		return n * n
	})

	out, err := pool.Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, out, 50)
	for i, o := range out {
		assert.True(t, o.Done)
		assert.Equal(t, i*i, o.Value)
	}
	assert.Equal(t, int64(50), pool.Metrics().Completed)
	assert.Equal(t, int64(0), pool.Metrics().Busy)
}

func TestWorkerPoolCancelBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started int64
	pool := NewWorkerPool[int, int](1, func(_ context.Context, n int) int {
		if atomic.AddInt64(&started, 1) == 3 {
			cancel()
		}
		return n + 1
	})

	out, err := pool.Run(ctx, []int{0, 1, 2, 3, 4, 5, 6, 7})
	assert.ErrorIs(t, err, context.Canceled)

	done := 0
	for i, o := range out {
		if o.Done {
			done++
			assert.Equal(t, i+1, o.Value)
		}
	}
	assert.GreaterOrEqual(t, done, 3)
	assert.Less(t, done, 8)
}

func TestWorkerPoolOnResultIsSerial(t *testing.T) {
	var calls int
	pool := NewWorkerPool[int, int](8, func(_ context.Context, n int) int { return n })
	pool.OnResult = func(int, int) { calls++ }

	_, err := pool.Run(context.Background(), make([]int, 100))
	require.NoError(t, err)
	assert.Equal(t, 100, calls)
}

func TestWorkerPoolEmpty(t *testing.T) {
	pool := NewWorkerPool[int, int](0, func(_ context.Context, n int) int { return n })
	out, err := pool.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Greater(t, pool.Workers(), 0)
}
