package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: execution timeout, worker temporarily unavailable.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed submission, unknown task type, terminal task.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryState indicates an operation attempted in the wrong lifecycle
	// state. Examples: step() outside an active episode.
	CategoryState ErrorCategory = "state"

	// CategoryInternal indicates unexpected errors, bugs, or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the orchestration and learning core.
const (
	// ErrCodeValidation marks a malformed submission. Rejected at submission
	// time, never enqueued.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeExecution marks a failed execution strategy. Caught per task,
	// recorded as task status failed.
	ErrCodeExecution ErrorCode = "EXECUTION"

	// ErrCodeIllegalState marks an operation attempted in the wrong
	// lifecycle state (e.g. step() while no episode is active).
	ErrCodeIllegalState ErrorCode = "ILLEGAL_STATE"

	// ErrCodeNotFound marks an unknown task, worker, or agent ID.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTimeout marks an execution that exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeConflict marks a conflicting operation (double registration,
	// duplicate worker ID).
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeConfig marks an invalid configuration value or an unparseable
	// reward condition expression.
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeClosed marks use of a closed component.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeInternal marks an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL"

	// ErrCodePanic marks a panic recovered at the per-task boundary.
	ErrCodePanic ErrorCode = "PANIC"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout:
		return CategoryTransient
	case ErrCodeValidation, ErrCodeExecution, ErrCodeNotFound, ErrCodeConflict,
		ErrCodeConfig, ErrCodeClosed:
		return CategoryPermanent
	case ErrCodeIllegalState:
		return CategoryState
	default:
		return CategoryInternal
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeValidation:   "malformed submission",
	ErrCodeExecution:    "execution strategy failed",
	ErrCodeIllegalState: "operation not valid in current state",
	ErrCodeNotFound:     "resource not found",
	ErrCodeTimeout:      "execution timed out",
	ErrCodeConflict:     "conflicting operation",
	ErrCodeConfig:       "invalid configuration",
	ErrCodeClosed:       "component closed",
	ErrCodeInternal:     "internal error",
	ErrCodePanic:        "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
