// Package breakers wraps sony/gobreaker for calls to optional external sinks.
package breakers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects calls
var ErrOpen = cb.ErrOpenState

// Settings tune when the breaker trips
type Settings struct {
	ConsecutiveFailures uint32
	Interval            time.Duration
	Timeout             time.Duration
}

// DefaultSettings trips after three consecutive failures and retries after a minute
func DefaultSettings() Settings {
	return Settings{ConsecutiveFailures: 3, Interval: 60 * time.Second, Timeout: 60 * time.Second}
}

type Breaker struct{ cb *cb.CircuitBreaker }

func New(name string, s Settings) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = s.Interval
	st.Timeout = s.Timeout
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= s.ConsecutiveFailures {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Do runs fn through the breaker. A cancelled context is not counted as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	})
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// State returns "closed", "half-open" or "open"
func (b *Breaker) State() string { return b.cb.State().String() }
