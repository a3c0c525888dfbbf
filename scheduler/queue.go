package scheduler

import "sort"

// queueEntry pairs a task with its arrival sequence number.
type queueEntry struct {
	task *Task
	seq  uint64
}

// taskQueue is a priority queue over pending tasks: highest priority
// first, FIFO within a priority level. Not safe for concurrent use; the
// orchestrator serializes access under its own lock.
type taskQueue struct {
	entries []queueEntry
	nextSeq uint64
}

func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

// push inserts a task at its priority position, after earlier arrivals
// of the same priority.
func (q *taskQueue) push(t *Task) {
	e := queueEntry{task: t, seq: q.nextSeq}
	q.nextSeq++

	w := t.Priority.Weight()
	i := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].task.Priority.Weight() < w
	})

	q.entries = append(q.entries, queueEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

// pop removes and returns the first task (in priority/FIFO order) that
// satisfies match. Returns nil when nothing matches.
func (q *taskQueue) pop(match func(*Task) bool) *Task {
	for i, e := range q.entries {
		if match(e.task) {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e.task
		}
	}
	return nil
}

// remove deletes a task by ID. Returns true if it was queued.
func (q *taskQueue) remove(id string) bool {
	for i, e := range q.entries {
		if e.task.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// len returns the number of queued tasks.
func (q *taskQueue) len() int {
	return len(q.entries)
}
