// Package resilience wraps calls to external collaborators (push
// notifications, map-tile serving) so an outage degrades gracefully instead
// of blocking the request pipeline (SPEC_FULL.md §7).
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Config configures a single named circuit breaker.
type Config struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultConfig trips after 3 consecutive failures out of at least 5
// requests, matching the teacher's collaborator-call defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.ConsecutiveFailures >= 3
		},
	}
}

// Breaker wraps gobreaker.CircuitBreaker with a context-aware Execute.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker, aborting early if ctx is already done.
func (b *Breaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	return b.cb.Execute(func() (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return fn()
		}
	})
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }
func (b *Breaker) Name() string           { return b.cb.Name() }
