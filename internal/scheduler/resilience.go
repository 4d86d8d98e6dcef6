package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// RetryPolicy configures the delay before a failed task is re-enqueued.
type RetryPolicy struct {
	Base time.Duration // Delay after the first failure (default 30s)
	Max  time.Duration // Upper bound (default 5m)
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base: 30 * time.Second,
		Max:  300 * time.Second,
	}
}

// Delay returns min(Max, Base*2^retryCount) for a task that has already been
// retried retryCount times.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if p.Base <= 0 {
		p.Base = DefaultRetryPolicy().Base
	}
	if p.Max <= 0 {
		p.Max = DefaultRetryPolicy().Max
	}
	if retryCount < 0 {
		retryCount = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < retryCount && d < p.Max; i++ {
		d = b.NextBackOff()
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

// BreakerSettings configures the per-kind circuit breakers.
type BreakerSettings struct {
	TripFailures int           // Consecutive failures before opening; <0 disables
	Cooldown     time.Duration // Time spent open before probing again
}

// DefaultBreakerSettings trips after 5 consecutive failures and stays open 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{TripFailures: 5, Cooldown: 30 * time.Second}
}

// CircuitBreakerRegistry manages one circuit breaker per task kind, so a
// failing external API stops being hammered by every retry.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	settings BreakerSettings
	breakers map[Kind]*gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(settings BreakerSettings, log zerolog.Logger) *CircuitBreakerRegistry {
	if settings.TripFailures == 0 {
		settings.TripFailures = DefaultBreakerSettings().TripFailures
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = DefaultBreakerSettings().Cooldown
	}
	return &CircuitBreakerRegistry{
		settings: settings,
		breakers: make(map[Kind]*gobreaker.CircuitBreaker),
		log:      log,
	}
}

// Enabled reports whether breakers wrap handler calls at all.
func (r *CircuitBreakerRegistry) Enabled() bool {
	return r != nil && r.settings.TripFailures > 0
}

// Get returns the circuit breaker for the given kind, creating it on first use.
func (r *CircuitBreakerRegistry) Get(kind Kind) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[kind]; ok {
		return cb
	}

	trip := uint32(r.settings.TripFailures)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        kind.String(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     r.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.log.Warn().Str("kind", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker.state_changed")
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation and bad input say nothing about downstream health.
			return err == nil || isCancellation(err) || IsPermanent(err)
		},
	})

	r.breakers[kind] = cb
	return cb
}

// State returns the breaker state for kind, or closed if none exists yet.
func (r *CircuitBreakerRegistry) State(kind Kind) gobreaker.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[kind]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// isBreakerRejection reports whether the breaker refused to run the handler.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
