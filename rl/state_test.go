package rl

import "testing"

func TestHashDeterministic(t *testing.T) {
	a := AgentState{Features: map[string]float64{"accuracy": 0.8, "complexity": 0.4}}
	b := AgentState{Features: map[string]float64{"complexity": 0.4, "accuracy": 0.8}}

	if a.Hash() != b.Hash() {
		t.Error("Identical feature sets must hash identically")
	}

	c := AgentState{Features: map[string]float64{"accuracy": 0.81, "complexity": 0.4}}
	if a.Hash() == c.Hash() {
		t.Error("Different feature values must hash differently")
	}
}

func TestHashIgnoresContext(t *testing.T) {
	a := AgentState{
		Features:      map[string]float64{"accuracy": 0.8},
		SystemLoad:    0.1,
		RecentActions: []string{"x"},
	}
	b := AgentState{
		Features:      map[string]float64{"accuracy": 0.8},
		SystemLoad:    0.9,
		RecentActions: []string{"y", "z"},
	}

	if a.Hash() != b.Hash() {
		t.Error("Context block must not affect the hash")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := AgentState{
		Features:      map[string]float64{"accuracy": 0.8},
		Labels:        map[string]string{"phase": "warmup"},
		RecentActions: []string{"a"},
	}

	c := orig.Clone()
	c.Features["accuracy"] = 0.1
	c.Labels["phase"] = "done"
	c.RecordAction("b")

	if orig.Features["accuracy"] != 0.8 {
		t.Error("Clone shares the features map")
	}
	if orig.Labels["phase"] != "warmup" {
		t.Error("Clone shares the labels map")
	}
	if len(orig.RecentActions) != 1 {
		t.Error("Clone shares the recent-actions slice")
	}
}

func TestRecordActionBounded(t *testing.T) {
	var s AgentState
	for i := 0; i < 25; i++ {
		s.RecordAction("act")
	}
	if len(s.RecentActions) != maxRecentActions {
		t.Errorf("Expected history bounded to %d, got %d", maxRecentActions, len(s.RecentActions))
	}
}

func TestView(t *testing.T) {
	s := AgentState{SystemLoad: 0.7, ErrorFlag: true, RecentActions: []string{"a", "b"}}
	v := s.View()

	if v.Load != 0.7 || !v.ErrorFlag || len(v.RecentActionIDs) != 2 {
		t.Errorf("View mismatch: %+v", v)
	}
}
