package breakers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New("export", Settings{ConsecutiveFailures: 2, Interval: time.Minute, Timeout: time.Minute})
	boom := errors.New("boom")
	calls := 0
	fail := func(context.Context) error { calls++; return boom }

	assert.ErrorIs(t, b.Do(context.Background(), fail), boom)
	assert.ErrorIs(t, b.Do(context.Background(), fail), boom)
	assert.Equal(t, "open", b.State())

	err := b.Do(context.Background(), fail)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, calls, "open breaker must not call through")
}

func TestBreaker_CancelledContextNotCounted(t *testing.T) {
	b := New("export", Settings{ConsecutiveFailures: 1, Interval: time.Minute, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_Success(t *testing.T) {
	b := New("export", DefaultSettings())
	assert.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, "closed", b.State())
}
