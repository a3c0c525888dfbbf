package registry

import (
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-memory implementation of Registry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	workers  map[string]*WorkerInfo
	order    map[string]int // registration sequence for stable Idle ordering
	seq      int
	watchers []chan Event
	closed   bool
}

// NewMemoryRegistry creates a new in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		workers: make(map[string]*WorkerInfo),
		order:   make(map[string]int),
	}
}

// Register adds or updates a worker.
func (r *MemoryRegistry) Register(info WorkerInfo) error {
	if err := ValidateWorkerInfo(info); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	_, exists := r.workers[info.ID]
	if !exists {
		info.Registered = time.Now()
		if info.Status == "" {
			info.Status = StatusIdle
		}
		r.seq++
		r.order[info.ID] = r.seq
	}

	stored := info
	stored.Capabilities = append([]string(nil), info.Capabilities...)
	r.workers[info.ID] = &stored

	eventType := EventAdded
	if exists {
		eventType = EventUpdated
	}
	watchers := r.snapshotWatchers()
	r.mu.Unlock()

	notify(watchers, Event{Type: eventType, Worker: stored})
	return nil
}

// Deregister removes a worker from the pool.
func (r *MemoryRegistry) Deregister(id string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	info, ok := r.workers[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}

	last := *info
	last.Status = StatusOffline
	delete(r.workers, id)
	delete(r.order, id)
	watchers := r.snapshotWatchers()
	r.mu.Unlock()

	notify(watchers, Event{Type: EventRemoved, Worker: last})
	return nil
}

// Get retrieves a worker by ID.
func (r *MemoryRegistry) Get(id string) (*WorkerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	info, ok := r.workers[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := cloneWorker(info)
	return &clone, nil
}

// List returns workers, optionally filtered by status.
func (r *MemoryRegistry) List(status Status) ([]WorkerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	var result []WorkerInfo
	for _, info := range r.workers {
		if status == "" || info.Status == status {
			result = append(result, cloneWorker(info))
		}
	}
	return result, nil
}

// Idle returns idle workers sorted by ascending current load,
// ties broken by registration order.
func (r *MemoryRegistry) Idle() ([]WorkerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	var idle []WorkerInfo
	for _, info := range r.workers {
		if info.Status == StatusIdle {
			idle = append(idle, cloneWorker(info))
		}
	}

	sort.SliceStable(idle, func(i, j int) bool {
		if idle[i].Performance.CurrentLoad != idle[j].Performance.CurrentLoad {
			return idle[i].Performance.CurrentLoad < idle[j].Performance.CurrentLoad
		}
		return r.order[idle[i].ID] < r.order[idle[j].ID]
	})

	return idle, nil
}

// Update applies fn to the stored worker under the registry lock.
func (r *MemoryRegistry) Update(id string, fn func(*WorkerInfo) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	info, ok := r.workers[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}

	if err := fn(info); err != nil {
		r.mu.Unlock()
		return err
	}

	updated := cloneWorker(info)
	watchers := r.snapshotWatchers()
	r.mu.Unlock()

	notify(watchers, Event{Type: EventUpdated, Worker: updated})
	return nil
}

// Watch returns a channel of registry events.
func (r *MemoryRegistry) Watch() (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	ch := make(chan Event, 64)
	r.watchers = append(r.watchers, ch)
	return ch, nil
}

// Close shuts down the registry.
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for _, ch := range r.watchers {
		close(ch)
	}
	r.watchers = nil
	r.workers = nil

	return nil
}

// snapshotWatchers copies the watcher list. Caller holds the lock.
func (r *MemoryRegistry) snapshotWatchers() []chan Event {
	watchers := make([]chan Event, len(r.watchers))
	copy(watchers, r.watchers)
	return watchers
}

// notify delivers an event without blocking the caller.
func notify(watchers []chan Event, ev Event) {
	for _, ch := range watchers {
		select {
		case ch <- ev:
		default:
			// Buffer full, drop
		}
	}
}

// cloneWorker deep-copies a worker entry.
func cloneWorker(info *WorkerInfo) WorkerInfo {
	clone := *info
	clone.Capabilities = append([]string(nil), info.Capabilities...)
	return clone
}
