package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Request is everything a handler receives for one attempt.
type Request struct {
	TaskID            string
	Kind              Kind
	Params            Params
	Attempt           int               // 1-based attempt number
	DependencyResults map[string]Result // Results of completed dependencies by task ID
}

// Handler executes one kind of task.
type Handler interface {
	Handle(ctx context.Context, req Request) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// Outcome is the result of one handler invocation.
type Outcome struct {
	Result    Result
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Executor dispatches requests to the handler registered for their kind.
type Executor struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
	breakers *CircuitBreakerRegistry
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewExecutor creates an Executor. breakers may be nil to call handlers directly.
// timeout bounds each attempt when positive.
func NewExecutor(breakers *CircuitBreakerRegistry, timeout time.Duration, log zerolog.Logger) *Executor {
	return &Executor{
		handlers: make(map[Kind]Handler),
		breakers: breakers,
		timeout:  timeout,
		now:      time.Now,
		log:      log,
	}
}

// RegisterHandler maps a kind to its handler, replacing any previous one.
func (e *Executor) RegisterHandler(kind Kind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

// HasHandler reports whether kind has a registered handler.
func (e *Executor) HasHandler(kind Kind) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.handlers[kind]
	return ok
}

// Execute runs req through its handler. A missing handler yields a permanent
// ErrUnknownTaskType; a panicking handler yields a transient error.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	start := e.now()

	e.mu.RLock()
	h, ok := e.handlers[req.Kind]
	e.mu.RUnlock()
	if !ok {
		return Outcome{
			Err:       fmt.Errorf("%w: no handler registered for %s", ErrUnknownTaskType, req.Kind),
			StartedAt: start,
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		result Result
		err    error
	)
	if e.breakers.Enabled() {
		var out any
		out, err = e.breakers.Get(req.Kind).Execute(func() (any, error) {
			return e.invoke(ctx, h, req)
		})
		if err != nil && isBreakerRejection(err) {
			err = Transient(fmt.Errorf("%s breaker: %w", req.Kind, err))
		}
		if r, ok := out.(Result); ok {
			result = r
		}
	} else {
		result, err = e.invoke(ctx, h, req)
	}

	return Outcome{
		Result:    result,
		Err:       err,
		StartedAt: start,
		Duration:  e.now().Sub(start),
	}
}

func (e *Executor) invoke(ctx context.Context, h Handler, req Request) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Str("task_id", req.TaskID).
				Str("kind", req.Kind.String()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler.panic")
			result = nil
			err = Transient(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, req)
}
