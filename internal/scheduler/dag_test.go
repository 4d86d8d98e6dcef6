package scheduler

import (
	"errors"
	"strings"
	"testing"
)

// TestDAGValidate tests DAG validation with various graph structures.
func TestDAGValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *DAG
		wantErr     bool
		errContains string
		wantLen     int
	}{
		{
			name: "valid linear chain",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				dag.AddTask(&Task{ID: "C", DependsOn: []string{"B"}})
				return dag
			},
			wantLen: 3,
		},
		{
			name: "valid parallel tasks",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B"})
				dag.AddTask(&Task{ID: "C", DependsOn: []string{"A", "B"}})
				return dag
			},
			wantLen: 3,
		},
		{
			name: "direct cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"B"}})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"B"}})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"C"}})
				dag.AddTask(&Task{ID: "C", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "self-loop",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "unknown dependency is ignored",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"nonexistent"}})
				return dag
			},
			wantLen: 1,
		},
		{
			name: "disconnected components",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				dag.AddTask(&Task{ID: "C"})
				dag.AddTask(&Task{ID: "D", DependsOn: []string{"C"}})
				return dag
			},
			wantLen: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dag := tt.setup()
			order, err := dag.Validate()

			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Error message %q doesn't contain %q", err.Error(), tt.errContains)
			}
			if err == nil && len(order) != tt.wantLen {
				t.Errorf("Expected %d tasks in order, got %d: %v", tt.wantLen, len(order), order)
			}
		})
	}
}

func TestDAGAddTaskDuplicate(t *testing.T) {
	dag := NewDAG()
	if err := dag.AddTask(&Task{ID: "A"}); err != nil {
		t.Fatalf("first AddTask: %v", err)
	}
	err := dag.AddTask(&Task{ID: "A"})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
	if dag.Len() != 1 {
		t.Errorf("expected 1 task, got %d", dag.Len())
	}
}

// TestDAGIsReady tests dependency resolution.
func TestDAGIsReady(t *testing.T) {
	tests := []struct {
		name      string
		depStatus TaskStatus
		known     bool
		want      bool
	}{
		{"unknown dependency is satisfied", 0, false, true},
		{"completed dependency", TaskCompleted, true, true},
		{"pending dependency", TaskPending, true, false},
		{"running dependency", TaskRunning, true, false},
		{"failed dependency blocks", TaskFailed, true, false},
		{"cancelled dependency blocks", TaskCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dag := NewDAG()
			if tt.known {
				dag.AddTask(&Task{ID: "dep", Status: tt.depStatus})
			}
			task := &Task{ID: "task", DependsOn: []string{"dep"}, Status: TaskPending}
			dag.AddTask(task)

			if got := dag.IsReady(task); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDAGStalled(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A", Status: TaskFailed})
	dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}, Status: TaskPending})
	dag.AddTask(&Task{ID: "C", DependsOn: []string{"B"}, Status: TaskPending})
	dag.AddTask(&Task{ID: "D", Status: TaskCancelled})
	dag.AddTask(&Task{ID: "E", DependsOn: []string{"D", "missing"}, Status: TaskPending})

	stalled := dag.Stalled()
	if strings.Join(stalled, ",") != "B,E" {
		t.Errorf("expected stalled [B E], got %v", stalled)
	}

	b, _ := dag.lookup("B")
	if blocker, ok := dag.BlockedBy(b); !ok || blocker != "A" {
		t.Errorf("expected B blocked by A, got %q %v", blocker, ok)
	}

	e, _ := dag.lookup("E")
	if unknown := dag.UnknownDependencies(e); len(unknown) != 1 || unknown[0] != "missing" {
		t.Errorf("expected unknown [missing], got %v", unknown)
	}

	if deps := dag.Dependents("A"); len(deps) != 1 || deps[0] != "B" {
		t.Errorf("expected dependents of A to be [B], got %v", deps)
	}
}

func TestDAGGetReturnsCopy(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A", Params: Params{"k": "v"}, DependsOn: []string{"x"}})

	got, ok := dag.Get("A")
	if !ok {
		t.Fatal("expected task A")
	}
	got.Params["k"] = "changed"
	got.DependsOn[0] = "y"
	got.Status = TaskCompleted

	again, _ := dag.Get("A")
	if again.Params["k"] != "v" || again.DependsOn[0] != "x" || again.Status != TaskPending {
		t.Errorf("Get must return an independent copy, stored task is %+v", again)
	}

	if _, ok := dag.Get("missing"); ok {
		t.Error("expected missing task to be absent")
	}
}

// TestDAGDiamond checks ordering of a diamond: A -> B, A -> C, B and C -> D.
func TestDAGDiamond(t *testing.T) {
	dag := NewDAG()
	a := &Task{ID: "A"}
	b := &Task{ID: "B", DependsOn: []string{"A"}}
	c := &Task{ID: "C", DependsOn: []string{"A"}}
	d := &Task{ID: "D", DependsOn: []string{"B", "C"}}
	for _, task := range []*Task{a, b, c, d} {
		dag.AddTask(task)
	}

	order, err := dag.Validate()
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if order[0] != "A" || order[len(order)-1] != "D" {
		t.Errorf("expected A first and D last, got %v", order)
	}

	if dag.IsReady(d) {
		t.Error("D must not be ready before B and C complete")
	}
	a.Status, b.Status, c.Status = TaskCompleted, TaskCompleted, TaskCompleted
	if !dag.IsReady(d) {
		t.Error("D should be ready once B and C complete")
	}
}
