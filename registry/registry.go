package registry

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrNotFound  = errors.New("worker not found")
	ErrClosed    = errors.New("registry closed")
	ErrInvalidID = errors.New("invalid worker ID")
)

// Status represents a worker's operational state.
type Status string

const (
	// StatusIdle means the worker is available for assignment.
	StatusIdle Status = "idle"

	// StatusBusy means the worker holds exactly one current task.
	StatusBusy Status = "busy"

	// StatusError means the worker was flagged by the health check and is
	// excluded from matching until it reports back.
	StatusError Status = "error"

	// StatusOffline means the worker deregistered or was taken down.
	StatusOffline Status = "offline"
)

// Performance is a worker's lifetime execution record.
type Performance struct {
	// TasksCompleted counts successful completions.
	TasksCompleted int `json:"tasks_completed"`

	// TasksAttempted counts all finished executions, success or failure.
	TasksAttempted int `json:"tasks_attempted"`

	// AvgExecution is the running average execution time.
	AvgExecution time.Duration `json:"avg_execution_ns"`

	// SuccessRate is completed/attempted over the worker's lifetime.
	SuccessRate float64 `json:"success_rate"`

	// CurrentLoad counts tasks concurrently assigned. Normally 0 or 1;
	// modeled as a counter for extensibility.
	CurrentLoad int `json:"current_load"`
}

// RecordExecution folds one finished execution into the running record.
// The average uses the incremental form avg' = (avg*(n-1) + d) / n.
func (p *Performance) RecordExecution(d time.Duration, success bool) {
	p.TasksAttempted++
	n := time.Duration(p.TasksAttempted)
	p.AvgExecution = (p.AvgExecution*(n-1) + d) / n
	if success {
		p.TasksCompleted++
	}
	p.SuccessRate = float64(p.TasksCompleted) / float64(p.TasksAttempted)
}

// WorkerInfo describes a registered worker.
type WorkerInfo struct {
	// ID uniquely identifies the worker.
	ID string `json:"id"`

	// Type is the declared worker type (maps to an execution strategy).
	Type string `json:"type"`

	// Capabilities lists what the worker can do
	// (e.g. "testing", "architecture_analysis").
	Capabilities []string `json:"capabilities"`

	// Status is the worker's current operational state.
	Status Status `json:"status"`

	// CurrentTaskID is the task held while busy, empty otherwise.
	CurrentTaskID string `json:"current_task_id,omitempty"`

	// Performance is the worker's lifetime execution record.
	Performance Performance `json:"performance"`

	// Registered is when the worker joined the pool.
	Registered time.Time `json:"registered"`
}

// EventType represents the type of registry event.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event represents a change in the registry.
type Event struct {
	// Type indicates what happened.
	Type EventType

	// Worker contains the worker information.
	// For removal events, this is the last known state.
	Worker WorkerInfo
}

// Registry tracks the worker pool.
type Registry interface {
	// Register adds or updates a worker.
	Register(info WorkerInfo) error

	// Deregister removes a worker from the pool.
	// Returns ErrNotFound if the worker doesn't exist.
	Deregister(id string) error

	// Get retrieves a worker by ID.
	Get(id string) (*WorkerInfo, error)

	// List returns workers, optionally filtered by status.
	// Empty status means all workers.
	List(status Status) ([]WorkerInfo, error)

	// Idle returns idle workers sorted by ascending current load,
	// ties broken by registration order.
	Idle() ([]WorkerInfo, error)

	// Update applies fn to the stored worker under the registry lock.
	// fn sees and may mutate the live entry; an error aborts the update.
	Update(id string, fn func(*WorkerInfo) error) error

	// Watch returns a channel of registry events.
	// The channel is closed when the registry closes.
	Watch() (<-chan Event, error)

	// Close shuts down the registry.
	Close() error
}

// ValidateWorkerInfo checks if worker info is valid.
func ValidateWorkerInfo(info WorkerInfo) error {
	if info.ID == "" {
		return ErrInvalidID
	}
	return nil
}

// HasCapability checks if a worker declares a specific capability.
func HasCapability(info WorkerInfo, capability string) bool {
	for _, c := range info.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasAnyCapability checks if a worker declares at least one of the
// required capabilities. An empty requirement set matches nothing.
func HasAnyCapability(info WorkerInfo, required []string) bool {
	for _, r := range required {
		if HasCapability(info, r) {
			return true
		}
	}
	return false
}
