package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

func TestRetryPolicy_Delay(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 300 * time.Second},
		{10, 300 * time.Second},
		{-1, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.retryCount); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestRetryPolicy_CustomBounds(t *testing.T) {
	policy := RetryPolicy{Base: time.Second, Max: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for n, w := range want {
		if got := policy.Delay(n); got != w {
			t.Errorf("Delay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	registry := NewCircuitBreakerRegistry(BreakerSettings{TripFailures: 3, Cooldown: time.Minute}, zerolog.Nop())
	cb := registry.Get(KindDiscovery)

	boom := errors.New("youtube 503")
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, boom })
	}

	if registry.State(KindDiscovery) != gobreaker.StateOpen {
		t.Fatalf("expected breaker open, got %s", registry.State(KindDiscovery))
	}
	_, err := cb.Execute(func() (any, error) { return nil, nil })
	if !isBreakerRejection(err) {
		t.Errorf("expected open-state rejection, got %v", err)
	}

	if registry.State(KindAnalysis) != gobreaker.StateClosed {
		t.Error("breakers must be independent per kind")
	}
}

func TestCircuitBreaker_IgnoresPermanentAndCancellation(t *testing.T) {
	registry := NewCircuitBreakerRegistry(BreakerSettings{TripFailures: 2, Cooldown: time.Minute}, zerolog.Nop())
	cb := registry.Get(KindBatchProcessing)

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, Permanent(errors.New("bad input")) })
		_, _ = cb.Execute(func() (any, error) { return nil, context.Canceled })
	}

	if registry.State(KindBatchProcessing) != gobreaker.StateClosed {
		t.Errorf("permanent and cancellation errors must not trip the breaker, state %s", registry.State(KindBatchProcessing))
	}
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	registry := NewCircuitBreakerRegistry(BreakerSettings{TripFailures: -1}, zerolog.Nop())
	if registry.Enabled() {
		t.Error("negative trip count should disable breakers")
	}
	var nilRegistry *CircuitBreakerRegistry
	if nilRegistry.Enabled() {
		t.Error("nil registry should report disabled")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"nil", nil, false},
		{"plain error is transient", errors.New("timeout"), false},
		{"transient wrapper", Transient(errors.New("429")), false},
		{"permanent wrapper", Permanent(errors.New("video removed")), true},
		{"unknown task type", ErrUnknownTaskType, true},
		{"resource declaration", ErrResourceDeclaration, true},
		{"dependency never satisfied", ErrDependencyNeverSatisfied, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.permanent {
				t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.permanent)
			}
		})
	}

	inner := errors.New("quota")
	if !errors.Is(Transient(inner), inner) || !errors.Is(Permanent(inner), inner) {
		t.Error("wrappers must unwrap to the original error")
	}
	if Transient(nil) != nil || Permanent(nil) != nil {
		t.Error("wrapping nil must return nil")
	}
}
