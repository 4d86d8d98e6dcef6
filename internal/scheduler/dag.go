package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// DAG indexes every known task by ID and answers dependency questions.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
	order      []string            // Insertion order for stable iteration
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, task.ID)
	}

	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)

	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// IsReady reports whether every dependency of task is satisfied.
// A dependency is satisfied when it is Completed or unknown to the DAG.
func (d *DAG) IsReady(task *Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, depID := range task.DependsOn {
		dep, exists := d.tasks[depID]
		if !exists {
			continue
		}
		if dep.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// UnknownDependencies returns the dependency IDs of task not present in the DAG.
func (d *DAG) UnknownDependencies(task *Task) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var unknown []string
	for _, depID := range task.DependsOn {
		if _, exists := d.tasks[depID]; !exists {
			unknown = append(unknown, depID)
		}
	}
	return unknown
}

// BlockedBy returns the first dependency of task that ended Failed or
// Cancelled, which means task can never become ready.
func (d *DAG) BlockedBy(task *Task) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, depID := range task.DependsOn {
		dep, exists := d.tasks[depID]
		if !exists {
			continue
		}
		if dep.Status == TaskFailed || dep.Status == TaskCancelled {
			return depID, true
		}
	}
	return "", false
}

// Stalled returns the IDs of pending tasks that are blocked forever.
func (d *DAG) Stalled() []string {
	d.mu.RLock()
	ids := make([]string, 0)
	candidates := make([]*Task, 0)
	for _, id := range d.order {
		if t := d.tasks[id]; t.Status == TaskPending {
			candidates = append(candidates, t)
		}
	}
	d.mu.RUnlock()

	for _, t := range candidates {
		if _, blocked := d.BlockedBy(t); blocked {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Dependents returns the IDs of tasks that list taskID as a dependency.
func (d *DAG) Dependents(taskID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.dependents[taskID]...)
}

// Validate runs topological sort using gammazero/toposort.
// Returns ordered task IDs or error if cycle detected. Dependencies on IDs
// outside the DAG are ignored, matching IsReady.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var edges []toposort.Edge
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		known := 0
		for _, depID := range task.DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				continue
			}
			// Edge (depID, taskID) means depID must come before taskID
			edges = append(edges, toposort.Edge{depID, taskID})
			known++
		}
		if known == 0 {
			edges = append(edges, toposort.Edge{nil, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("DAG contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for taskID := range d.tasks {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Get returns a copy of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// lookup returns the live task pointer. Callers must hold the Scheduler lock.
func (d *DAG) lookup(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	task, exists := d.tasks[taskID]
	return task, exists
}

// Tasks returns copies of all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.order))
	for _, id := range d.order {
		tasks = append(tasks, cloneTask(d.tasks[id]))
	}
	return tasks
}

// Len returns the number of known tasks.
func (d *DAG) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tasks)
}
