package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrClosed     = errors.New("store closed")
	ErrInvalidKey = errors.New("invalid key")
)

// Well-known key prefixes for audit records. Keys are dotted paths so
// observers can watch a whole class of records with a single pattern.
const (
	PrefixTask      = "audit.task."
	PrefixWorker    = "audit.worker."
	PrefixReward    = "audit.reward."
	PrefixKnowledge = "knowledge."
	PrefixSession   = "audit.session."
)

// Operation represents the type of change to a key.
type Operation int

const (
	// OpPut indicates a key was created or updated.
	OpPut Operation = iota
	// OpDelete indicates a key was deleted.
	OpDelete
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Record is a stored entry with metadata.
type Record struct {
	// Key is the entry key.
	Key string

	// Value is the entry value.
	Value []byte

	// Revision is a monotonic version number.
	Revision uint64

	// Operation indicates the type of change.
	Operation Operation

	// Modified is when the key was last written.
	Modified time.Time
}

// RecordStore is the persistence collaborator for audit records and
// exported knowledge.
type RecordStore interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores a value under a key.
	Put(key string, value []byte) error

	// Delete removes a key. Returns nil if the key does not exist.
	Delete(key string) error

	// Keys returns all keys matching a pattern.
	// Pattern supports a trailing * wildcard (e.g. "audit.task.*").
	Keys(pattern string) ([]string, error)

	// Watch streams changes to keys matching a pattern.
	// The channel is closed when the watch ends or the store closes.
	Watch(pattern string) (<-chan *Record, error)

	// Close shuts down the store and releases resources.
	Close() error
}

// PutJSON marshals v and stores it under key.
func PutJSON(s RecordStore, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// GetJSON retrieves key and unmarshals it into v.
func GetJSON(s RecordStore, key string, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ValidateKey checks if a key is valid.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.Contains(key, " ") {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return ErrInvalidKey
	}
	if len(key) > 1024 {
		return ErrInvalidKey
	}
	return nil
}

// MatchPattern checks if a key matches a pattern.
// Supports a trailing * wildcard (e.g. "audit.task.*").
func MatchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
