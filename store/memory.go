package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is an in-memory RecordStore for tests and single-process use.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]*Record
	revision uint64
	watchers []*memoryWatcher
	closed   atomic.Bool
}

type memoryWatcher struct {
	pattern string
	ch      chan *Record
	closed  atomic.Bool
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Record),
	}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}

	value := make([]byte, len(rec.Value))
	copy(value, rec.Value)
	return value, nil
}

// Put stores a value under a key.
func (s *MemoryStore) Put(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.revision++
	rec := &Record{
		Key:       key,
		Value:     stored,
		Revision:  s.revision,
		Operation: OpPut,
		Modified:  time.Now(),
	}
	s.entries[key] = rec
	watchers := s.matchingWatchers(key)
	s.mu.Unlock()

	s.notify(watchers, rec)
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	_, existed := s.entries[key]
	if !existed {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, key)
	s.revision++
	rec := &Record{
		Key:       key,
		Revision:  s.revision,
		Operation: OpDelete,
		Modified:  time.Now(),
	}
	watchers := s.matchingWatchers(key)
	s.mu.Unlock()

	s.notify(watchers, rec)
	return nil
}

// Keys returns all keys matching a pattern.
func (s *MemoryStore) Keys(pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.entries {
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Watch streams changes to keys matching a pattern.
func (s *MemoryStore) Watch(pattern string) (<-chan *Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	w := &memoryWatcher{
		pattern: pattern,
		ch:      make(chan *Record, 64),
	}

	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	return w.ch, nil
}

// Close shuts down the store.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchers {
		if !w.closed.Swap(true) {
			close(w.ch)
		}
	}
	s.watchers = nil
	s.entries = nil

	return nil
}

// matchingWatchers returns watchers for a key. Caller holds the lock.
func (s *MemoryStore) matchingWatchers(key string) []*memoryWatcher {
	var matched []*memoryWatcher
	for _, w := range s.watchers {
		if MatchPattern(w.pattern, key) {
			matched = append(matched, w)
		}
	}
	return matched
}

// notify delivers a record to watchers without blocking the writer.
func (s *MemoryStore) notify(watchers []*memoryWatcher, rec *Record) {
	for _, w := range watchers {
		if w.closed.Load() {
			continue
		}
		select {
		case w.ch <- rec:
		default:
			// Buffer full, drop
		}
	}
}
