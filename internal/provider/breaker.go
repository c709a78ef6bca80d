package provider

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors the three-state machine described for the provider
// wrapper, kept distinct from gobreaker.State so the rest of the core
// never imports gobreaker directly.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Status is a point-in-time snapshot of the breaker, consumed by the
// watchdog's provider-circuit check.
type Status struct {
	State    State
	Failures uint32
}

// CircuitBreaker wraps a Provider, failing fast once consecutive failures
// reach a threshold and probing recovery after a cooldown.
type CircuitBreaker struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitBreaker wraps inner with a breaker that opens after threshold
// consecutive failures and waits cooldown before probing again with a
// single half-open request.
func NewCircuitBreaker(inner Provider, threshold uint32, cooldown time.Duration) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "provider",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	return &CircuitBreaker{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Chat calls through the breaker. When the breaker is open, it returns
// gobreaker.ErrOpenState without invoking inner at all.
func (c *CircuitBreaker) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.inner.Chat(ctx, req)
	})
	if err != nil {
		return ChatReply{}, err
	}
	return result.(ChatReply), nil
}

// GetStatus reports the breaker's current state and consecutive-failure
// count. gobreaker clears its counts on every state change, so the count
// is 0 while the breaker is OPEN.
func (c *CircuitBreaker) GetStatus() Status {
	counts := c.cb.Counts()
	return Status{
		State:    mapState(c.cb.State()),
		Failures: counts.ConsecutiveFailures,
	}
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
