package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(ErrCodeValidation, "unknown task type")

	if err.Code() != ErrCodeValidation {
		t.Errorf("Expected code VALIDATION, got %s", err.Code())
	}
	if err.Category() != CategoryPermanent {
		t.Errorf("Expected permanent category, got %s", err.Category())
	}
	if err.Retryable() {
		t.Error("Validation errors should not be retryable")
	}
	if err.Error() != "unknown task type" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New(ErrCodeExecution, "strategy failed", WithCause(cause))

	if err.Error() != "strategy failed: connection refused" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

func TestCategoryDefaults(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		category  ErrorCategory
		retryable bool
	}{
		{ErrCodeValidation, CategoryPermanent, false},
		{ErrCodeExecution, CategoryPermanent, false},
		{ErrCodeIllegalState, CategoryState, false},
		{ErrCodeNotFound, CategoryPermanent, false},
		{ErrCodeTimeout, CategoryTransient, true},
		{ErrCodeInternal, CategoryInternal, false},
		{ErrCodePanic, CategoryInternal, false},
	}

	for _, tt := range tests {
		if got := tt.code.DefaultCategory(); got != tt.category {
			t.Errorf("%s: expected category %s, got %s", tt.code, tt.category, got)
		}
		err := FromCode(tt.code)
		if err.Retryable() != tt.retryable {
			t.Errorf("%s: expected retryable=%v", tt.code, tt.retryable)
		}
	}
}

func TestRetryableOverride(t *testing.T) {
	err := New(ErrCodeTimeout, "slow worker", WithRetryable(false))
	if err.Retryable() {
		t.Error("Explicit override should win over category default")
	}
}

func TestAttribution(t *testing.T) {
	err := Execution("task-1", "boom", WithWorkerID("worker-7"))

	if err.TaskID() != "task-1" {
		t.Errorf("Expected task-1, got %s", err.TaskID())
	}
	if err.WorkerID() != "worker-7" {
		t.Errorf("Expected worker-7, got %s", err.WorkerID())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := New(ErrCodeExecution, "strategy failed",
		WithCause(fmt.Errorf("oom")),
		WithTaskID("t-9"),
		WithWorkerID("w-2"),
	)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var restored Error
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if restored.Code() != ErrCodeExecution {
		t.Errorf("Expected EXECUTION, got %s", restored.Code())
	}
	if restored.TaskID() != "t-9" || restored.WorkerID() != "w-2" {
		t.Errorf("Attribution lost: task=%s worker=%s", restored.TaskID(), restored.WorkerID())
	}
	if restored.Error() != "strategy failed: oom" {
		t.Errorf("Unexpected restored message: %s", restored.Error())
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Error("CodeOf(nil) should be empty")
	}
	if CodeOf(fmt.Errorf("plain")) != ErrCodeInternal {
		t.Error("Plain errors should map to INTERNAL")
	}

	wrapped := fmt.Errorf("outer: %w", IllegalState("no active episode"))
	if CodeOf(wrapped) != ErrCodeIllegalState {
		t.Errorf("Expected ILLEGAL_STATE through wrapping, got %s", CodeOf(wrapped))
	}
}
