package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask      = "task"
	TopicScheduler = "scheduler"
)

// Event type constants
const (
	EventTypeTaskSubmitted      = "task.submitted"
	EventTypeTaskStarted        = "task.started"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeTaskFailed         = "task.failed"
	EventTypeTaskRetryScheduled = "task.retry_scheduled"
	EventTypeTaskCancelled      = "task.cancelled"
	EventTypeTaskStalled        = "task.stalled"
	EventTypeRoundCompleted     = "scheduler.round_completed"
)

// TaskSubmittedEvent is published when a task enters the queue.
type TaskSubmittedEvent struct {
	ID        string
	Kind      string
	Priority  string
	Timestamp time.Time
}

func (e TaskSubmittedEvent) EventType() string { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a task begins an attempt.
type TaskStartedEvent struct {
	ID        string
	Kind      string
	Attempt   int
	Score     float64
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	Kind      string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails permanently.
type TaskFailedEvent struct {
	ID        string
	Kind      string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskRetryScheduledEvent is published when a failed attempt is re-enqueued.
type TaskRetryScheduledEvent struct {
	ID          string
	Kind        string
	Err         error
	RetryCount  int
	Priority    string
	Delay       time.Duration
	ScheduledAt time.Time
	Timestamp   time.Time
}

func (e TaskRetryScheduledEvent) EventType() string { return EventTypeTaskRetryScheduled }
func (e TaskRetryScheduledEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a task reaches the cancelled state.
type TaskCancelledEvent struct {
	ID        string
	Kind      string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// TaskStalledEvent is published once when a pending task is found blocked by
// a dependency that failed or was cancelled.
type TaskStalledEvent struct {
	ID        string
	Kind      string
	BlockedBy string
	Timestamp time.Time
}

func (e TaskStalledEvent) EventType() string { return EventTypeTaskStalled }
func (e TaskStalledEvent) TaskID() string    { return e.ID }

// RoundCompletedEvent is published after every round that admitted work.
type RoundCompletedEvent struct {
	Round     uint64
	Admitted  int
	Total     int
	Completed int
	Running   int
	Failed    int
	Cancelled int
	Pending   int
	Timestamp time.Time
}

func (e RoundCompletedEvent) EventType() string { return EventTypeRoundCompleted }
func (e RoundCompletedEvent) TaskID() string    { return "" }
