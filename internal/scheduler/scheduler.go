package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/viralshorts/automation/internal/events"
)

// Config tunes the scheduling loop.
type Config struct {
	MaxConcurrent         int            // Ceiling on tasks admitted per round (default 3)
	IdleInterval          time.Duration  // Sleep when a round admits nothing (default 10s)
	DefaultMaxRetries     int            // Applied when a submission leaves MaxRetries at 0 (default 3)
	AttemptTimeout        time.Duration  // Per-attempt deadline; 0 disables
	Retry                 RetryPolicy    // Backoff between attempts
	Breaker               BreakerSettings
	Capacities            map[string]float64 // Resource ceilings (default DefaultCapacities)
	FailStalledDependents bool               // Fail tasks whose dependency failed instead of leaving them pending
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     3,
		IdleInterval:      10 * time.Second,
		DefaultMaxRetries: 3,
		Retry:             DefaultRetryPolicy(),
		Breaker:           DefaultBreakerSettings(),
		Capacities:        DefaultCapacities(),
	}
}

// TaskSpec describes a submission. Zero values take defaults from the
// estimate table and the scheduler config.
type TaskSpec struct {
	ID                string // Generated when empty
	Kind              Kind
	Priority          Priority // 0 uses the kind's default priority
	Params            Params
	ScheduledAt       time.Time // Zero means now
	EstimatedDuration time.Duration
	Resources         Resources // nil uses the estimate table
	DependsOn         []string
	MaxRetries        int // 0 uses the scheduler default; negative disables retries
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithPredictor sets the desirability predictor used at admission.
func WithPredictor(p Predictor) Option {
	return func(s *Scheduler) { s.predictor = p }
}

// WithMirror sets the sink receiving task snapshots.
func WithMirror(m Mirror) Option {
	return func(s *Scheduler) { s.mirror = m }
}

// WithPublisher sets the event sink, typically an *events.EventBus.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.bus = p }
}

// Scheduler owns the task registry, the queues and the resource ledger.
// All state changes go through its methods; handlers run outside its lock.
type Scheduler struct {
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
	predictor Predictor
	mirror    Mirror
	bus       events.Publisher

	exec     *Executor
	breakers *CircuitBreakerRegistry
	stats    *StatusReporter

	mu      sync.Mutex
	dag     *DAG
	queue   *QueueSet
	ledger  *ResourceLedger
	stalled map[string]bool // Pending tasks already reported as stalled
	dirty   []*Task         // Snapshots waiting to be mirrored
	rounds  uint64

	wake chan struct{}
}

// New creates a Scheduler.
func New(cfg Config, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = def.IdleInterval
	}
	if cfg.DefaultMaxRetries == 0 {
		cfg.DefaultMaxRetries = def.DefaultMaxRetries
	}
	if cfg.DefaultMaxRetries < 0 {
		cfg.DefaultMaxRetries = 0
	}
	if len(cfg.Capacities) == 0 {
		cfg.Capacities = def.Capacities
	}

	s := &Scheduler{
		cfg:     cfg,
		now:     time.Now,
		log:     zerolog.Nop(),
		stats:   NewStatusReporter(),
		dag:     NewDAG(),
		queue:   NewQueueSet(),
		ledger:  NewResourceLedger(cfg.Capacities),
		stalled: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.breakers = NewCircuitBreakerRegistry(cfg.Breaker, s.log)
	s.exec = NewExecutor(s.breakers, cfg.AttemptTimeout, s.log)
	s.exec.now = s.now
	return s
}

// RegisterHandler maps a kind to the handler that executes it.
func (s *Scheduler) RegisterHandler(kind Kind, h Handler) {
	s.exec.RegisterHandler(kind, h)
}

// Ledger exposes the resource ledger for inspection.
func (s *Scheduler) Ledger() *ResourceLedger {
	return s.ledger
}

// Submit validates spec and enqueues it as a pending task.
func (s *Scheduler) Submit(spec TaskSpec) (string, error) {
	t, err := s.newTask(spec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	err = s.addLocked(t)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.flush(context.Background())
	s.notify()
	return t.ID, nil
}

// SubmitPipeline builds a four-stage pipeline and enqueues every stage.
func (s *Scheduler) SubmitPipeline(batchSize int) ([]string, error) {
	tasks, err := BuildPipeline(batchSize)
	if err != nil {
		return nil, err
	}

	// Validate every stage before enqueuing any, so a pipeline is all or nothing.
	for _, t := range tasks {
		t.Resources = s.fitEstimate(t.Resources)
		s.applyDefaults(t, t.MaxRetries == 0)
		if err := s.ledger.Validate(t.Resources); err != nil {
			return nil, fmt.Errorf("pipeline stage %s: %w", t.Kind, err)
		}
	}

	ids := make([]string, 0, len(tasks))
	s.mu.Lock()
	for _, t := range tasks {
		if err := s.addLocked(t); err != nil {
			s.mu.Unlock()
			return ids, err
		}
		ids = append(ids, t.ID)
	}
	s.mu.Unlock()

	s.log.Info().Strs("task_ids", ids).Int("batch_size", batchSize).Msg("pipeline.submitted")
	s.flush(context.Background())
	s.notify()
	return ids, nil
}

func (s *Scheduler) newTask(spec TaskSpec) (*Task, error) {
	if !spec.Kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, spec.Kind)
	}
	if spec.Priority != 0 && !spec.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(spec.Priority))
	}

	t := &Task{
		ID:                spec.ID,
		Kind:              spec.Kind,
		Priority:          spec.Priority,
		Params:            spec.Params,
		ScheduledAt:       spec.ScheduledAt,
		EstimatedDuration: spec.EstimatedDuration,
		DependsOn:         append([]string(nil), spec.DependsOn...),
		MaxRetries:        spec.MaxRetries,
		Status:            TaskPending,
	}
	if spec.Resources != nil {
		t.Resources = make(Resources, len(spec.Resources))
		for name, qty := range spec.Resources {
			t.Resources[name] = qty
		}
		if err := s.ledger.Validate(t.Resources); err != nil {
			return nil, err
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return nil, fmt.Errorf("task %s depends on itself", t.ID)
		}
	}
	s.applyDefaults(t, spec.MaxRetries == 0)
	return t, nil
}

// applyDefaults fills unset fields from the estimate table. Estimated
// resources are restricted to the ledger's resources and clamped to their
// ceilings.
func (s *Scheduler) applyDefaults(t *Task, defaultRetries bool) {
	est, _ := EstimateFor(t.Kind)
	if t.Priority == 0 {
		t.Priority = est.Priority
		if !t.Priority.Valid() {
			t.Priority = PriorityNormal
		}
	}

	duration, resources := Estimated(t.Kind, t.Params)
	if t.EstimatedDuration <= 0 {
		t.EstimatedDuration = duration
	}
	if t.Resources == nil {
		t.Resources = s.fitEstimate(resources)
	}

	switch {
	case defaultRetries:
		t.MaxRetries = s.cfg.DefaultMaxRetries
	case t.MaxRetries < 0:
		t.MaxRetries = 0
	}
}

// fitEstimate restricts estimated resources to the ledger's resources and
// clamps each to its ceiling.
func (s *Scheduler) fitEstimate(estimated Resources) Resources {
	capacities := s.ledger.Available()
	fitted := make(Resources, len(estimated))
	for name, qty := range estimated {
		ceiling, ok := capacities[name]
		if !ok {
			continue
		}
		fitted[name] = min(qty, ceiling)
	}
	return fitted
}

func (s *Scheduler) addLocked(t *Task) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = now
	}
	if err := s.dag.AddTask(t); err != nil {
		return err
	}
	s.queue.Enqueue(t)
	s.markDirty(t)
	s.publish(events.TopicTask, events.TaskSubmittedEvent{
		ID:        t.ID,
		Kind:      t.Kind.String(),
		Priority:  t.Priority.String(),
		Timestamp: now,
	})

	if unknown := s.dag.UnknownDependencies(t); len(unknown) > 0 {
		s.log.Warn().Str("task_id", t.ID).Strs("dependencies", unknown).Msg("task.unknown_dependencies")
	}
	s.log.Debug().Str("task_id", t.ID).Str("kind", t.Kind.String()).Str("priority", t.Priority.String()).Msg("task.submitted")
	return nil
}

// Cancel removes a pending task, or flags a running one so that a failing
// attempt is not retried. Returns false for unknown or terminal tasks.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	t, ok := s.dag.lookup(id)
	if !ok {
		s.mu.Unlock()
		return false
	}

	var cancelled bool
	switch t.Status {
	case TaskPending:
		s.queue.Remove(id)
		t.Status = TaskCancelled
		t.CancelRequested = true
		delete(s.stalled, id)
		s.markDirty(t)
		s.publish(events.TopicTask, events.TaskCancelledEvent{ID: id, Kind: t.Kind.String(), Timestamp: s.now()})
		s.log.Info().Str("task_id", id).Msg("task.cancelled")
		cancelled = true
	case TaskRunning:
		t.CancelRequested = true
		s.markDirty(t)
		s.log.Info().Str("task_id", id).Msg("task.cancel_requested")
		cancelled = true
	}
	s.mu.Unlock()

	if cancelled {
		s.flush(context.Background())
	}
	return cancelled
}

// Task returns a copy of the task with the given ID.
func (s *Scheduler) Task(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dag.Get(id)
}

// Tasks returns copies of every known task in submission order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dag.Tasks()
}

// GetStatus aggregates counts, performance and utilization.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		QueueSizes:  s.queue.Sizes(),
		Performance: s.stats.Performance(),
		Utilization: s.ledger.Utilization(),
		Rounds:      s.rounds,
	}
	s.countLocked(&st)
	st.Stalled = len(s.dag.Stalled())
	return st
}

func (s *Scheduler) countLocked(st *Status) {
	for _, t := range s.dag.Tasks() {
		st.Total++
		switch t.Status {
		case TaskPending:
			st.Pending++
		case TaskRunning:
			st.Running++
		case TaskCompleted:
			st.Completed++
		case TaskFailed:
			st.Failed++
		case TaskCancelled:
			st.Cancelled++
		}
	}
}

type launch struct {
	task    *Task
	req     Request
	score   float64
	outcome Outcome
}

// RunRound performs one gather, admit, run and reconcile cycle and returns
// the number of tasks admitted. It blocks until every admitted task's attempt
// has finished, so a round lasts as long as its slowest task.
func (s *Scheduler) RunRound(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	launches := s.admit()
	if len(launches) == 0 {
		s.flush(ctx)
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrent)
	for i := range launches {
		l := &launches[i]
		g.Go(func() error {
			l.outcome = s.exec.Execute(ctx, l.req)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	for i := range launches {
		s.reconcileLocked(ctx, &launches[i])
	}
	s.rounds++
	round := s.rounds
	var st Status
	s.countLocked(&st)
	s.mu.Unlock()

	s.publish(events.TopicScheduler, events.RoundCompletedEvent{
		Round:     round,
		Admitted:  len(launches),
		Total:     st.Total,
		Completed: st.Completed,
		Running:   st.Running,
		Failed:    st.Failed,
		Cancelled: st.Cancelled,
		Pending:   st.Pending,
		Timestamp: s.now(),
	})
	s.flush(ctx)
	return len(launches), nil
}

// admit selects this round's tasks, reserves their resources and marks them
// running.
func (s *Scheduler) admit() []launch {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.reconcileStalledLocked(now)

	ready := s.queue.Ready(func(t *Task) bool {
		return !t.ScheduledAt.After(now) && s.dag.IsReady(t)
	})
	admitted := Admit(ready, s.ledger.Free(), s.cfg.MaxConcurrent, s.predictor)

	launches := make([]launch, 0, len(admitted))
	for _, a := range admitted {
		t := a.Task
		if err := s.ledger.Reserve(t.Resources); err != nil {
			s.log.Error().Err(err).Str("task_id", t.ID).Msg("task.reserve_failed")
			continue
		}
		s.queue.Remove(t.ID)
		t.Status = TaskRunning
		t.Score = a.Score
		s.markDirty(t)

		attempt := len(t.History) + 1
		s.publish(events.TopicTask, events.TaskStartedEvent{
			ID:        t.ID,
			Kind:      t.Kind.String(),
			Attempt:   attempt,
			Score:     a.Score,
			Timestamp: now,
		})
		s.log.Info().
			Str("task_id", t.ID).
			Str("kind", t.Kind.String()).
			Str("priority", t.Priority.String()).
			Int("attempt", attempt).
			Float64("score", a.Score).
			Msg("task.started")

		launches = append(launches, launch{
			task:  t,
			score: a.Score,
			req: Request{
				TaskID:            t.ID,
				Kind:              t.Kind,
				Params:            cloneTask(t).Params,
				Attempt:           attempt,
				DependencyResults: s.dependencyResultsLocked(t),
			},
		})
	}
	return launches
}

func (s *Scheduler) dependencyResultsLocked(t *Task) map[string]Result {
	if len(t.DependsOn) == 0 {
		return nil
	}
	out := make(map[string]Result, len(t.DependsOn))
	for _, depID := range t.DependsOn {
		if dep, ok := s.dag.Get(depID); ok && dep.Status == TaskCompleted {
			out[depID] = dep.Result
		}
	}
	return out
}

// reconcileLocked applies one attempt's outcome to its task.
func (s *Scheduler) reconcileLocked(ctx context.Context, l *launch) {
	t := l.task
	out := l.outcome
	now := s.now()

	s.ledger.Release(t.Resources)

	attempt := Attempt{StartedAt: out.StartedAt, Duration: out.Duration}
	logger := s.log.With().Str("task_id", t.ID).Str("kind", t.Kind.String()).Logger()

	if out.Err == nil {
		attempt.Outcome = TaskCompleted
		t.History = append(t.History, attempt)
		t.Status = TaskCompleted
		t.Result = out.Result
		t.Error = nil
		s.stats.RecordSuccess(out.Duration, l.score)
		s.markDirty(t)
		s.publish(events.TopicTask, events.TaskCompletedEvent{ID: t.ID, Kind: t.Kind.String(), Duration: out.Duration, Timestamp: now})
		logger.Info().Dur("duration", out.Duration).Msg("task.completed")
		return
	}

	attempt.Outcome = TaskFailed
	attempt.Error = out.Err.Error()
	t.History = append(t.History, attempt)
	t.Error = out.Err

	switch {
	case t.CancelRequested:
		s.stats.RecordFailure(false)
		t.Status = TaskCancelled
		s.publish(events.TopicTask, events.TaskCancelledEvent{ID: t.ID, Kind: t.Kind.String(), Timestamp: now})
		logger.Info().Err(out.Err).Msg("task.cancelled")

	case ctx.Err() != nil && isCancellation(out.Err):
		// Interrupted by shutdown rather than failed: put it back untouched.
		s.stats.RecordFailure(false)
		t.Status = TaskPending
		s.queue.Enqueue(t)
		logger.Warn().Err(out.Err).Msg("task.interrupted")

	case !IsPermanent(out.Err) && t.RetryCount < t.MaxRetries:
		delay := s.cfg.Retry.Delay(t.RetryCount)
		t.RetryCount++
		t.Priority = t.Priority.Lower()
		t.ScheduledAt = now.Add(delay)
		t.Status = TaskPending
		s.queue.Enqueue(t)
		s.stats.RecordFailure(true)
		s.publish(events.TopicTask, events.TaskRetryScheduledEvent{
			ID:          t.ID,
			Kind:        t.Kind.String(),
			Err:         out.Err,
			RetryCount:  t.RetryCount,
			Priority:    t.Priority.String(),
			Delay:       delay,
			ScheduledAt: t.ScheduledAt,
			Timestamp:   now,
		})
		logger.Warn().
			Err(out.Err).
			Int("retry_count", t.RetryCount).
			Int("max_retries", t.MaxRetries).
			Dur("delay", delay).
			Str("priority", t.Priority.String()).
			Msg("task.retry_scheduled")

	default:
		s.stats.RecordFailure(false)
		t.Status = TaskFailed
		s.publish(events.TopicTask, events.TaskFailedEvent{ID: t.ID, Kind: t.Kind.String(), Err: out.Err, Duration: out.Duration, Timestamp: now})
		logger.Error().Err(out.Err).Int("retry_count", t.RetryCount).Bool("permanent", IsPermanent(out.Err)).Msg("task.failed")
	}
	s.markDirty(t)
}

// reconcileStalledLocked reports pending tasks blocked by a failed or
// cancelled dependency, failing them when configured to. Failing a task can
// stall its own dependents, so this repeats until nothing changes.
func (s *Scheduler) reconcileStalledLocked(now time.Time) {
	for {
		changed := false
		s.queue.Each(func(t *Task) {
			blocker, blocked := s.dag.BlockedBy(t)
			if !blocked {
				return
			}
			if !s.stalled[t.ID] {
				s.stalled[t.ID] = true
				s.publish(events.TopicTask, events.TaskStalledEvent{ID: t.ID, Kind: t.Kind.String(), BlockedBy: blocker, Timestamp: now})
				s.log.Warn().Str("task_id", t.ID).Str("blocked_by", blocker).Msg("task.stalled")
			}
			if !s.cfg.FailStalledDependents {
				return
			}
			t.Status = TaskFailed
			t.Error = fmt.Errorf("%w: %s", ErrDependencyNeverSatisfied, blocker)
			s.markDirty(t)
			s.publish(events.TopicTask, events.TaskFailedEvent{ID: t.ID, Kind: t.Kind.String(), Err: t.Error, Timestamp: now})
			changed = true
		})
		if !changed {
			return
		}
		// Drop the tasks failed above; Each must not see its slice mutated.
		for _, t := range s.queue.Ready(func(t *Task) bool { return t.Status == TaskFailed }) {
			s.queue.Remove(t.ID)
			delete(s.stalled, t.ID)
		}
	}
}

// Run loops over rounds until ctx is done. When a round admits nothing it
// sleeps for the idle interval, waking early on Submit or when the next
// delayed task becomes due.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Int("max_concurrent", s.cfg.MaxConcurrent).Msg("scheduler.started")
	defer s.log.Info().Msg("scheduler.stopped")

	for {
		n, err := s.RunRound(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}

		timer := time.NewTimer(s.idleWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// idleWait returns how long Run may sleep before something could be due.
func (s *Scheduler) idleWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	wait := s.cfg.IdleInterval
	now := s.now()
	s.queue.Each(func(t *Task) {
		if d := t.ScheduledAt.Sub(now); d > 0 && d < wait {
			wait = d
		}
	})
	return wait
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Restore re-registers tasks from mirror snapshots after a restart. Tasks
// that were running are re-queued as pending; terminal tasks are kept so
// their dependents resolve. Returns the number of tasks queued.
func (s *Scheduler) Restore(snapshots [][]byte) (int, error) {
	var errs []error
	queued := 0

	s.mu.Lock()
	for _, data := range snapshots {
		t, err := DecodeSnapshot(data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, exists := s.dag.lookup(t.ID); exists {
			continue
		}

		if t.Status == TaskRunning {
			t.Status = TaskPending
			if t.CancelRequested {
				t.Status = TaskCancelled
			}
		}
		if !t.Status.Terminal() {
			if err := s.ledger.Validate(t.Resources); err != nil {
				t.Status = TaskFailed
				t.Error = err
			}
		}
		if err := s.dag.AddTask(t); err != nil {
			errs = append(errs, err)
			continue
		}
		if t.Status == TaskPending {
			s.queue.Enqueue(t)
			queued++
		}
		s.markDirty(t)
	}
	s.mu.Unlock()

	s.log.Info().Int("snapshots", len(snapshots)).Int("queued", queued).Msg("scheduler.restored")
	s.flush(context.Background())
	s.notify()
	return queued, errors.Join(errs...)
}

func (s *Scheduler) markDirty(t *Task) {
	if s.mirror != nil {
		s.dirty = append(s.dirty, cloneTask(t))
	}
}

// flush writes pending snapshots to the mirror outside the scheduler lock.
func (s *Scheduler) flush(ctx context.Context) {
	if s.mirror == nil {
		return
	}
	s.mu.Lock()
	batch := s.dirty
	s.dirty = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	// Snapshots of a shutdown round must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, t := range batch {
		data, err := EncodeSnapshot(t)
		if err != nil {
			s.log.Error().Err(err).Str("task_id", t.ID).Msg("mirror.encode_failed")
			continue
		}
		if err := s.mirror.Put(ctx, t.ID, data); err != nil {
			s.log.Error().Err(err).Str("task_id", t.ID).Msg("mirror.put_failed")
		}
	}
}

func (s *Scheduler) publish(topic string, e events.Event) {
	if s.bus != nil {
		s.bus.Publish(topic, e)
	}
}
