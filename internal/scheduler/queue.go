package scheduler

// QueueSet holds pending tasks in one FIFO bucket per priority.
// It is not safe for concurrent use; the Scheduler serializes access.
type QueueSet struct {
	buckets map[Priority][]*Task
}

// NewQueueSet creates an empty queue set.
func NewQueueSet() *QueueSet {
	q := &QueueSet{buckets: make(map[Priority][]*Task, len(Priorities))}
	for _, p := range Priorities {
		q.buckets[p] = nil
	}
	return q
}

// Enqueue appends the task to the bucket of its current priority.
func (q *QueueSet) Enqueue(task *Task) {
	p := task.Priority
	if !p.Valid() {
		p = PriorityNormal
		task.Priority = p
	}
	q.buckets[p] = append(q.buckets[p], task)
}

// Remove takes the task with the given ID out of whichever bucket holds it.
func (q *QueueSet) Remove(taskID string) (*Task, bool) {
	for _, p := range Priorities {
		bucket := q.buckets[p]
		for i, t := range bucket {
			if t.ID == taskID {
				q.buckets[p] = append(bucket[:i:i], bucket[i+1:]...)
				return t, true
			}
		}
	}
	return nil, false
}

// Ready returns, highest bucket first and in insertion order within a bucket,
// every queued task accepted by eligible. Nothing is removed.
func (q *QueueSet) Ready(eligible func(*Task) bool) []*Task {
	var ready []*Task
	for _, p := range Priorities {
		for _, t := range q.buckets[p] {
			if eligible == nil || eligible(t) {
				ready = append(ready, t)
			}
		}
	}
	return ready
}

// Each visits every queued task, highest bucket first.
func (q *QueueSet) Each(fn func(*Task)) {
	for _, p := range Priorities {
		for _, t := range q.buckets[p] {
			fn(t)
		}
	}
}

// Sizes returns the number of queued tasks per bucket.
func (q *QueueSet) Sizes() map[Priority]int {
	out := make(map[Priority]int, len(Priorities))
	for _, p := range Priorities {
		out[p] = len(q.buckets[p])
	}
	return out
}

// Len returns the total number of queued tasks.
func (q *QueueSet) Len() int {
	n := 0
	for _, p := range Priorities {
		n += len(q.buckets[p])
	}
	return n
}
