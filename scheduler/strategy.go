package scheduler

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/swarmlearn/swarmlearn/errors"
)

// Strategy executes one task. One implementation per worker type. The
// context carries the execution deadline; strategies should honor it.
type Strategy interface {
	Execute(ctx context.Context, task *Task) (json.RawMessage, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, task *Task) (json.RawMessage, error)

// Execute implements Strategy.
func (f StrategyFunc) Execute(ctx context.Context, task *Task) (json.RawMessage, error) {
	return f(ctx, task)
}

// StrategyRegistry maps worker types to execution strategies. Looked up
// at runtime so new worker types are added without touching dispatch.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewStrategyRegistry creates an empty registry.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[string]Strategy)}
}

// Register binds a worker type to a strategy.
func (r *StrategyRegistry) Register(workerType string, s Strategy) error {
	if workerType == "" {
		return errors.Validation("worker type must not be empty")
	}
	if s == nil {
		return errors.Validation("strategy must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.strategies[workerType]; ok {
		return errors.Conflict("strategy already registered for worker type " + workerType)
	}
	r.strategies[workerType] = s
	return nil
}

// Get returns the strategy for a worker type.
func (r *StrategyRegistry) Get(workerType string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[workerType]
	return s, ok
}

// Types returns the registered worker types.
func (r *StrategyRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	return types
}
