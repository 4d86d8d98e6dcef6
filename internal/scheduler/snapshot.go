package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Mirror is an optional key-value sink receiving a JSON snapshot of a task
// after every transition, keyed by task ID.
type Mirror interface {
	Put(ctx context.Context, key string, value []byte) error
}

// Snapshot is the serialized form of a Task.
type Snapshot struct {
	ID                string            `json:"id"`
	Kind              string            `json:"kind"`
	Priority          string            `json:"priority"`
	Params            Params            `json:"params,omitempty"`
	ScheduledAt       time.Time         `json:"scheduled_at"`
	CreatedAt         time.Time         `json:"created_at"`
	EstimatedDuration float64           `json:"estimated_duration_seconds"`
	Resources         Resources         `json:"resources,omitempty"`
	DependsOn         []string          `json:"depends_on,omitempty"`
	RetryCount        int               `json:"retry_count"`
	MaxRetries        int               `json:"max_retries"`
	Status            string            `json:"status"`
	Result            Result            `json:"result,omitempty"`
	Error             string            `json:"error,omitempty"`
	History           []AttemptSnapshot `json:"history,omitempty"`
	CancelRequested   bool              `json:"cancel_requested,omitempty"`
	Score             float64           `json:"score"`
}

// AttemptSnapshot is the serialized form of an Attempt.
type AttemptSnapshot struct {
	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration_seconds"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// EncodeSnapshot serializes a task to JSON.
func EncodeSnapshot(t *Task) ([]byte, error) {
	s := Snapshot{
		ID:                t.ID,
		Kind:              t.Kind.String(),
		Priority:          t.Priority.String(),
		Params:            t.Params,
		ScheduledAt:       t.ScheduledAt,
		CreatedAt:         t.CreatedAt,
		EstimatedDuration: t.EstimatedDuration.Seconds(),
		Resources:         t.Resources,
		DependsOn:         t.DependsOn,
		RetryCount:        t.RetryCount,
		MaxRetries:        t.MaxRetries,
		Status:            t.Status.String(),
		Result:            t.Result,
		CancelRequested:   t.CancelRequested,
		Score:             t.Score,
	}
	if t.Error != nil {
		s.Error = t.Error.Error()
	}
	for _, a := range t.History {
		s.History = append(s.History, AttemptSnapshot{
			StartedAt: a.StartedAt,
			Duration:  a.Duration.Seconds(),
			Outcome:   a.Outcome.String(),
			Error:     a.Error,
		})
	}
	return json.Marshal(s)
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Task, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.ID == "" {
		return nil, errors.New("decode snapshot: missing id")
	}

	kind, err := ParseKind(s.Kind)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.ID, err)
	}
	priority, err := ParsePriority(s.Priority)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.ID, err)
	}
	status, err := ParseTaskStatus(s.Status)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.ID, err)
	}

	t := &Task{
		ID:                s.ID,
		Kind:              kind,
		Priority:          priority,
		Params:            s.Params,
		ScheduledAt:       s.ScheduledAt,
		CreatedAt:         s.CreatedAt,
		EstimatedDuration: seconds(s.EstimatedDuration),
		Resources:         s.Resources,
		DependsOn:         s.DependsOn,
		RetryCount:        s.RetryCount,
		MaxRetries:        s.MaxRetries,
		Status:            status,
		Result:            s.Result,
		CancelRequested:   s.CancelRequested,
		Score:             s.Score,
	}
	if s.Error != "" {
		t.Error = errors.New(s.Error)
	}
	for _, a := range s.History {
		outcome, err := ParseTaskStatus(a.Outcome)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", s.ID, err)
		}
		t.History = append(t.History, Attempt{
			StartedAt: a.StartedAt,
			Duration:  seconds(a.Duration),
			Outcome:   outcome,
			Error:     a.Error,
		})
	}
	return t, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
