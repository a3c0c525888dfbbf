package rl

import "sync"

// QTable is a sparse mapping from state hash to per-action Q-values.
// Unseen (state, action) pairs read as the default value. An optional
// soft cap bounds the number of distinct states: once reached, values
// for already-known states keep updating but new states are not added.
type QTable struct {
	mu           sync.RWMutex
	defaultValue float64
	maxStates    int // 0 means unbounded
	values       map[string]map[string]float64
}

// NewQTable creates a Q-table. maxStates of 0 disables the cap.
func NewQTable(defaultValue float64, maxStates int) *QTable {
	return &QTable{
		defaultValue: defaultValue,
		maxStates:    maxStates,
		values:       make(map[string]map[string]float64),
	}
}

// Get returns the Q-value for a (state, action) pair.
func (q *QTable) Get(stateHash, actionID string) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if actions, ok := q.values[stateHash]; ok {
		if v, ok := actions[actionID]; ok {
			return v
		}
	}
	return q.defaultValue
}

// Set stores a Q-value. Returns false when the state is unknown and the
// state cap has been reached; the write is dropped in that case.
func (q *QTable) Set(stateHash, actionID string, value float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, ok := q.values[stateHash]
	if !ok {
		if q.maxStates > 0 && len(q.values) >= q.maxStates {
			return false
		}
		actions = make(map[string]float64)
		q.values[stateHash] = actions
	}
	actions[actionID] = value
	return true
}

// MaxOver returns the maximum Q-value across the given actions for a
// state. With no actions it returns the default value.
func (q *QTable) MaxOver(stateHash string, actionIDs []string) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()

	best := q.defaultValue
	actions := q.values[stateHash]
	for i, id := range actionIDs {
		v := q.defaultValue
		if actions != nil {
			if qv, ok := actions[id]; ok {
				v = qv
			}
		}
		if i == 0 || v > best {
			best = v
		}
	}
	return best
}

// ArgMax returns the action with the highest Q-value for a state. Ties
// go to the first action in the given order.
func (q *QTable) ArgMax(stateHash string, actionIDs []string) (string, float64) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(actionIDs) == 0 {
		return "", q.defaultValue
	}

	actions := q.values[stateHash]
	bestID := actionIDs[0]
	bestValue := q.defaultValue
	if actions != nil {
		if v, ok := actions[actionIDs[0]]; ok {
			bestValue = v
		}
	}
	for _, id := range actionIDs[1:] {
		v := q.defaultValue
		if actions != nil {
			if qv, ok := actions[id]; ok {
				v = qv
			}
		}
		if v > bestValue {
			bestID, bestValue = id, v
		}
	}
	return bestID, bestValue
}

// States returns the number of distinct states in the table.
func (q *QTable) States() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.values)
}

// Snapshot returns a deep copy of the table contents.
func (q *QTable) Snapshot() map[string]map[string]float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make(map[string]map[string]float64, len(q.values))
	for state, actions := range q.values {
		inner := make(map[string]float64, len(actions))
		for id, v := range actions {
			inner[id] = v
		}
		out[state] = inner
	}
	return out
}

// Restore replaces the table contents with a snapshot.
func (q *QTable) Restore(values map[string]map[string]float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.values = make(map[string]map[string]float64, len(values))
	for state, actions := range values {
		inner := make(map[string]float64, len(actions))
		for id, v := range actions {
			inner[id] = v
		}
		q.values[state] = inner
	}
}

// Reset clears the table.
func (q *QTable) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.values = make(map[string]map[string]float64)
}
