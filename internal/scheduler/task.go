package scheduler

import (
	"fmt"
	"time"
)

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Queued, waiting for dependencies, time or capacity
	TaskRunning                     // Attempt in progress
	TaskCompleted                   // Finished successfully
	TaskFailed                      // Permanently failed
	TaskCancelled                   // Cancelled before or after its last attempt
)

var statusNames = [...]string{"pending", "running", "completed", "failed", "cancelled"}

func (s TaskStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ParseTaskStatus is the inverse of TaskStatus.String.
func ParseTaskStatus(name string) (TaskStatus, error) {
	for i, n := range statusNames {
		if n == name {
			return TaskStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown task status %q", name)
}

// Priority orders tasks between buckets. Higher values run first.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
	PriorityEmergency
)

// Priorities lists every bucket from highest to lowest.
var Priorities = []Priority{PriorityEmergency, PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

var priorityNames = map[Priority]string{
	PriorityLow:       "low",
	PriorityNormal:    "normal",
	PriorityHigh:      "high",
	PriorityCritical:  "critical",
	PriorityEmergency: "emergency",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p names one of the five buckets.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityEmergency
}

// Lower returns the next bucket down, never below PriorityLow.
func (p Priority) Lower() Priority {
	if p <= PriorityLow {
		return PriorityLow
	}
	return p - 1
}

// ParsePriority accepts the lowercase bucket names.
func ParsePriority(name string) (Priority, error) {
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", name)
}

// Kind is the closed set of work a task can carry.
type Kind int

const (
	KindDiscovery         Kind = iota // Find candidate source videos
	KindBatchProcessing               // Transcribe, clip and caption a batch
	KindPublishScheduling             // Pick upload slots and publish
	KindAnalysis                      // Collect analytics and update models
	KindEmergencyContent              // Manually triggered fast-path content run
	KindViralOptimization             // Re-optimize low performing uploads
	numKinds
)

var kindNames = [numKinds]string{
	"discovery",
	"batch_processing",
	"publish_scheduling",
	"analysis",
	"emergency_content",
	"viral_optimization",
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is a member of the enumeration.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// Kinds returns every task kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTaskType, name)
}

// Params is the opaque payload handed to a handler.
type Params map[string]any

// Result is what a handler returns on success.
type Result map[string]any

// Resources maps a resource name to the quantity a task holds while running.
type Resources map[string]float64

// Attempt records one execution of a task.
type Attempt struct {
	StartedAt time.Time
	Duration  time.Duration
	Outcome   TaskStatus // TaskCompleted or TaskFailed
	Error     string
}

// Task represents one unit of work and its lifecycle.
type Task struct {
	ID                string        // Unique identifier, stable across retries
	Kind              Kind          // Selects the handler
	Priority          Priority      // Current bucket; lowered on each retry
	Params            Params        // Handler input
	ScheduledAt       time.Time     // Not eligible before this instant
	CreatedAt         time.Time
	EstimatedDuration time.Duration
	Resources         Resources // Held for the Running window
	DependsOn         []string  // Task IDs this task waits for
	RetryCount        int
	MaxRetries        int
	Status            TaskStatus
	Result            Result
	Error             error
	History           []Attempt
	CancelRequested   bool    // Set by Cancel while running
	Score             float64 // Desirability at last admission
}

// LastAttempt returns the most recent attempt, if any.
func (t *Task) LastAttempt() (Attempt, bool) {
	if len(t.History) == 0 {
		return Attempt{}, false
	}
	return t.History[len(t.History)-1], true
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.History != nil {
		cp.History = append([]Attempt(nil), task.History...)
	}
	if task.Params != nil {
		cp.Params = make(Params, len(task.Params))
		for k, v := range task.Params {
			cp.Params[k] = v
		}
	}
	if task.Resources != nil {
		cp.Resources = make(Resources, len(task.Resources))
		for k, v := range task.Resources {
			cp.Resources[k] = v
		}
	}
	if task.Result != nil {
		cp.Result = make(Result, len(task.Result))
		for k, v := range task.Result {
			cp.Result[k] = v
		}
	}
	return &cp
}
