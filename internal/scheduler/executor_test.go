package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockHandler returns a fixed result or error and counts calls.
type mockHandler struct {
	result    Result
	err       error
	delay     time.Duration
	callCount atomic.Int32
	lastReq   atomic.Pointer[Request]
}

func (m *mockHandler) Handle(ctx context.Context, req Request) (Result, error) {
	m.callCount.Add(1)
	m.lastReq.Store(&req)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.result, m.err
}

func TestExecutor_SuccessfulExecution(t *testing.T) {
	exec := NewExecutor(nil, 0, zerolog.Nop())
	h := &mockHandler{result: Result{"videos": 5}}
	exec.RegisterHandler(KindDiscovery, h)

	out := exec.Execute(context.Background(), Request{TaskID: "t1", Kind: KindDiscovery, Attempt: 1})
	if out.Err != nil {
		t.Fatalf("expected no error, got %v", out.Err)
	}
	if out.Result["videos"] != 5 {
		t.Errorf("expected result to be passed through, got %v", out.Result)
	}
	if h.callCount.Load() != 1 {
		t.Errorf("expected 1 call, got %d", h.callCount.Load())
	}
	if got := h.lastReq.Load(); got.TaskID != "t1" || got.Attempt != 1 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestExecutor_UnknownKindIsPermanent(t *testing.T) {
	exec := NewExecutor(nil, 0, zerolog.Nop())

	out := exec.Execute(context.Background(), Request{TaskID: "t1", Kind: KindAnalysis})
	if !errors.Is(out.Err, ErrUnknownTaskType) {
		t.Fatalf("expected ErrUnknownTaskType, got %v", out.Err)
	}
	if !IsPermanent(out.Err) {
		t.Error("missing handler must be a permanent failure")
	}
	if exec.HasHandler(KindAnalysis) {
		t.Error("HasHandler should be false")
	}
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	exec := NewExecutor(nil, 0, zerolog.Nop())
	exec.RegisterHandler(KindBatchProcessing, HandlerFunc(func(ctx context.Context, req Request) (Result, error) {
		panic("ffmpeg exploded")
	}))

	out := exec.Execute(context.Background(), Request{TaskID: "t1", Kind: KindBatchProcessing})
	if out.Err == nil {
		t.Fatal("expected panic to surface as an error")
	}
	var te *TransientError
	if !errors.As(out.Err, &te) {
		t.Errorf("expected a transient error, got %T", out.Err)
	}
}

func TestExecutor_AttemptTimeout(t *testing.T) {
	exec := NewExecutor(nil, 20*time.Millisecond, zerolog.Nop())
	exec.RegisterHandler(KindPublishScheduling, &mockHandler{delay: time.Second})

	start := time.Now()
	out := exec.Execute(context.Background(), Request{TaskID: "t1", Kind: KindPublishScheduling})
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", out.Err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("timeout did not interrupt the handler")
	}
}

func TestExecutor_OpenBreakerIsTransient(t *testing.T) {
	breakers := NewCircuitBreakerRegistry(BreakerSettings{TripFailures: 2, Cooldown: time.Minute}, zerolog.Nop())
	exec := NewExecutor(breakers, 0, zerolog.Nop())
	h := &mockHandler{err: errors.New("upstream 500")}
	exec.RegisterHandler(KindViralOptimization, h)

	for i := 0; i < 2; i++ {
		exec.Execute(context.Background(), Request{TaskID: "t1", Kind: KindViralOptimization})
	}

	out := exec.Execute(context.Background(), Request{TaskID: "t1", Kind: KindViralOptimization})
	if h.callCount.Load() != 2 {
		t.Errorf("open breaker must not call the handler, calls = %d", h.callCount.Load())
	}
	if out.Err == nil || IsPermanent(out.Err) {
		t.Errorf("expected a retryable rejection, got %v", out.Err)
	}
	if !isBreakerRejection(out.Err) {
		t.Errorf("expected error to wrap the breaker rejection, got %v", out.Err)
	}
}

func TestExecutor_RecordsDuration(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	calls := 0
	exec := NewExecutor(nil, 0, zerolog.Nop())
	exec.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 90 * time.Second)
	}
	exec.RegisterHandler(KindAnalysis, &mockHandler{})

	out := exec.Execute(context.Background(), Request{TaskID: "t1", Kind: KindAnalysis})
	if !out.StartedAt.Equal(base) {
		t.Errorf("expected start %v, got %v", base, out.StartedAt)
	}
	if out.Duration != 90*time.Second {
		t.Errorf("expected 90s duration, got %v", out.Duration)
	}
}
