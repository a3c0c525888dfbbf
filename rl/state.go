package rl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/swarmlearn/swarmlearn/reward"
)

// maxRecentActions bounds the action history carried in agent state.
const maxRecentActions = 10

// AgentState is a timestamped snapshot of what the agent observes.
//
// Features and Labels identify the state: two states with identical
// feature and label sets hash identically. The context block (SystemLoad,
// TaskType, ErrorFlag, RecentActions) informs the reward calculation but
// is excluded from the hash so continuous load values and rolling action
// history do not explode the Q-table's state space.
type AgentState struct {
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`

	// Features holds named numeric features.
	Features map[string]float64 `json:"features,omitempty"`

	// Labels holds named string features.
	Labels map[string]string `json:"labels,omitempty"`

	// SystemLoad is the current system load in [0, 1].
	SystemLoad float64 `json:"system_load"`

	// TaskType is the kind of task the agent is working on, if any.
	TaskType string `json:"task_type,omitempty"`

	// ErrorFlag signals the state carries an error condition.
	ErrorFlag bool `json:"error_flag,omitempty"`

	// RecentActions holds the last action IDs, newest last, bounded
	// to maxRecentActions entries.
	RecentActions []string `json:"recent_actions,omitempty"`
}

// Hash returns the deterministic content hash used as the Q-table key.
// It covers the sorted feature and label mappings only.
func (s *AgentState) Hash() string {
	var b strings.Builder

	keys := make([]string, 0, len(s.Features))
	for k := range s.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%.9g;", k, s.Features[k])
	}

	labels := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, k := range labels {
		fmt.Fprintf(&b, "%s=%s;", k, s.Labels[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// Clone returns a deep copy.
func (s *AgentState) Clone() AgentState {
	out := AgentState{
		Timestamp:  s.Timestamp,
		SystemLoad: s.SystemLoad,
		TaskType:   s.TaskType,
		ErrorFlag:  s.ErrorFlag,
	}
	if s.Features != nil {
		out.Features = make(map[string]float64, len(s.Features))
		for k, v := range s.Features {
			out.Features[k] = v
		}
	}
	if s.Labels != nil {
		out.Labels = make(map[string]string, len(s.Labels))
		for k, v := range s.Labels {
			out.Labels[k] = v
		}
	}
	if s.RecentActions != nil {
		out.RecentActions = append([]string(nil), s.RecentActions...)
	}
	return out
}

// RecordAction appends an action ID to the bounded recent-action history.
func (s *AgentState) RecordAction(actionID string) {
	s.RecentActions = append(s.RecentActions, actionID)
	if len(s.RecentActions) > maxRecentActions {
		s.RecentActions = s.RecentActions[len(s.RecentActions)-maxRecentActions:]
	}
}

// View projects the state into the slice the reward calculator reads.
func (s *AgentState) View() reward.StateView {
	return reward.StateView{
		Load:            s.SystemLoad,
		ErrorFlag:       s.ErrorFlag,
		RecentActionIDs: s.RecentActions,
	}
}
