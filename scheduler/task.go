package scheduler

import (
	"encoding/json"
	"time"

	"github.com/swarmlearn/swarmlearn/errors"
)

// TaskType is an enumerated task kind. The orchestrator only accepts
// types present in its capability map.
type TaskType string

// Priority orders pending tasks: critical > high > medium > low.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Weight returns the numeric ordering weight. Unknown priorities weigh 0.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is one of the four defined levels.
func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// Status is a task's lifecycle state. Transitions are monotonic along
// pending -> assigned -> running -> {completed | failed}; cancelled is
// reachable from any non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// rank positions a status along the monotonic order.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAssigned:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return to.rank() == from.rank()+1
}

// Task is one unit of schedulable work.
type Task struct {
	// ID uniquely identifies the task.
	ID string `json:"id"`

	// Type is the enumerated task kind.
	Type TaskType `json:"type"`

	// Priority orders the task in the queue.
	Priority Priority `json:"priority"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// AssignedWorker back-references the worker holding the task.
	// The worker does not own the task.
	AssignedWorker string `json:"assigned_worker,omitempty"`

	// Input is the opaque submission payload.
	Input json.RawMessage `json:"input,omitempty"`

	// Output is the opaque result payload, set on completion. For
	// failed tasks it carries an error description.
	Output json.RawMessage `json:"output,omitempty"`

	// Created is when the task was submitted.
	Created time.Time `json:"created"`

	// Started is when execution began.
	Started time.Time `json:"started,omitempty"`

	// Completed is when the task reached a terminal status.
	Completed time.Time `json:"completed,omitempty"`
}

// Transition moves the task to a new status, enforcing the monotonic
// order. Cancellation is legal from any non-terminal state.
func (t *Task) Transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return errors.IllegalState(
			"illegal task transition "+string(t.Status)+" -> "+string(to),
			errors.WithTaskID(t.ID),
		)
	}
	t.Status = to
	return nil
}

// clone returns a value copy safe to hand to callers.
func (t *Task) clone() *Task {
	c := *t
	if t.Input != nil {
		c.Input = append(json.RawMessage(nil), t.Input...)
	}
	if t.Output != nil {
		c.Output = append(json.RawMessage(nil), t.Output...)
	}
	return &c
}
