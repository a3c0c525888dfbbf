// Package events delivers lifecycle notifications from the scheduler and
// the learning environment to observers (dashboard, loggers, audit jobs).
//
// Publishing never blocks the producer: slow subscribers drop events
// rather than stalling the scheduling tick or a training step.
package events

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Kind identifies the lifecycle event type.
type Kind string

const (
	KindTaskSubmitted Kind = "task_submitted"
	KindTaskAssigned  Kind = "task_assigned"
	KindTaskCompleted Kind = "task_completed"
	KindTaskFailed    Kind = "task_failed"
	KindTaskCancelled Kind = "task_cancelled"
	KindWorkerStuck   Kind = "worker_stuck"
	KindEpisodeEnded  Kind = "episode_ended"
	KindSessionEnded  Kind = "session_ended"
)

// Subjects group events for subscription. Task events publish on
// SubjectTasks, learning events on SubjectLearning.
const (
	SubjectTasks    = "events.tasks"
	SubjectLearning = "events.learning"
)

// Event is a single lifecycle notification.
type Event struct {
	// Kind identifies what happened.
	Kind Kind `json:"kind"`

	// TaskID is set for task lifecycle events.
	TaskID string `json:"task_id,omitempty"`

	// WorkerID is set when a worker was involved.
	WorkerID string `json:"worker_id,omitempty"`

	// AgentID is set for learning events.
	AgentID string `json:"agent_id,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Detail carries event-specific fields (duration, reward, error text).
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Bus publishes lifecycle events to subscribers.
type Bus interface {
	// Publish sends an event to all subscribers of a subject.
	Publish(subject string, ev *Event) error

	// Subscribe creates a subscription to a subject.
	// All subscribers receive all events on the subject.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Events returns the channel of incoming events.
	// The channel is closed when the subscription ends.
	Events() <-chan *Event

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}
