package rl

import "testing"

func TestQTableDefaultValue(t *testing.T) {
	q := NewQTable(0.25, 0)

	if got := q.Get("s1", "a1"); got != 0.25 {
		t.Errorf("Unseen pair should read the default, got %f", got)
	}

	q.Set("s1", "a1", 0.9)
	if got := q.Get("s1", "a1"); got != 0.9 {
		t.Errorf("Expected 0.9, got %f", got)
	}
	if got := q.Get("s1", "a2"); got != 0.25 {
		t.Errorf("Unseen action in a known state should read the default, got %f", got)
	}
}

func TestQTableArgMaxTieByOrder(t *testing.T) {
	q := NewQTable(0, 0)
	q.Set("s", "b", 0.5)
	q.Set("s", "c", 0.5)

	id, v := q.ArgMax("s", []string{"a", "b", "c"})
	if id != "b" || v != 0.5 {
		t.Errorf("Expected first-encountered tie winner b, got %s (%f)", id, v)
	}

	// All defaults: the first action wins.
	id, _ = q.ArgMax("unknown", []string{"x", "y"})
	if id != "x" {
		t.Errorf("Expected x on uniform defaults, got %s", id)
	}
}

func TestQTableMaxOver(t *testing.T) {
	q := NewQTable(0, 0)
	q.Set("s", "a", -1)
	q.Set("s", "b", 2)

	if got := q.MaxOver("s", []string{"a", "b", "c"}); got != 2 {
		t.Errorf("Expected 2, got %f", got)
	}
	if got := q.MaxOver("unknown", []string{"a"}); got != 0 {
		t.Errorf("Expected default for unknown state, got %f", got)
	}
}

func TestQTableStateCap(t *testing.T) {
	q := NewQTable(0, 2)

	if !q.Set("s1", "a", 1) || !q.Set("s2", "a", 1) {
		t.Fatal("Writes under the cap should succeed")
	}
	if q.Set("s3", "a", 1) {
		t.Error("Write for a new state beyond the cap should be dropped")
	}
	if !q.Set("s1", "b", 2) {
		t.Error("Known states must keep accepting writes at the cap")
	}
	if q.States() != 2 {
		t.Errorf("Expected 2 states, got %d", q.States())
	}
}

func TestQTableSnapshotRestore(t *testing.T) {
	q := NewQTable(0, 0)
	q.Set("s", "a", 0.75)

	snap := q.Snapshot()
	snap["s"]["a"] = 99 // must not affect the live table
	if got := q.Get("s", "a"); got != 0.75 {
		t.Errorf("Snapshot is not a deep copy: %f", got)
	}

	q2 := NewQTable(0, 0)
	q2.Restore(q.Snapshot())
	if got := q2.Get("s", "a"); got != 0.75 {
		t.Errorf("Restore lost a value: %f", got)
	}

	q2.Reset()
	if q2.States() != 0 {
		t.Error("Reset should clear the table")
	}
}
