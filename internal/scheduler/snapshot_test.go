package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC)
	task := &Task{
		ID:                "upload-1",
		Kind:              KindPublishScheduling,
		Priority:          PriorityLow,
		Params:            Params{"clip_id": "c-9"},
		ScheduledAt:       at.Add(time.Minute),
		CreatedAt:         at,
		EstimatedDuration: 5 * time.Minute,
		Resources:         Resources{ResourceCPU: 1, ResourceYouTubeQuota: 50},
		DependsOn:         []string{"batch-1"},
		RetryCount:        1,
		MaxRetries:        3,
		Status:            TaskPending,
		Error:             errors.New("quota exceeded"),
		History: []Attempt{
			{StartedAt: at, Duration: 1500 * time.Millisecond, Outcome: TaskFailed, Error: "quota exceeded"},
		},
		Score: 72.5,
	}

	data, err := EncodeSnapshot(task)
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}

	if got.ID != task.ID || got.Kind != task.Kind || got.Priority != task.Priority || got.Status != task.Status {
		t.Errorf("identity fields differ: %+v", got)
	}
	if !got.ScheduledAt.Equal(task.ScheduledAt) || got.EstimatedDuration != task.EstimatedDuration {
		t.Errorf("timing fields differ: %v %v", got.ScheduledAt, got.EstimatedDuration)
	}
	if got.Error == nil || got.Error.Error() != "quota exceeded" {
		t.Errorf("expected error text to survive, got %v", got.Error)
	}
	if len(got.History) != 1 || got.History[0].Duration != 1500*time.Millisecond || got.History[0].Outcome != TaskFailed {
		t.Errorf("history differs: %+v", got.History)
	}
	if got.Resources[ResourceYouTubeQuota] != 50 || got.DependsOn[0] != "batch-1" || got.RetryCount != 1 {
		t.Errorf("scheduling fields differ: %+v", got)
	}
}

func TestDecodeSnapshot_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing id", `{"kind":"analysis","priority":"low","status":"pending"}`},
		{"unknown kind", `{"id":"x","kind":"thumbnail","priority":"low","status":"pending"}`},
		{"unknown priority", `{"id":"x","kind":"analysis","priority":"urgent","status":"pending"}`},
		{"unknown status", `{"id":"x","kind":"analysis","priority":"low","status":"paused"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSnapshot([]byte(tt.data)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}
