// Package errors provides structured errors for the orchestration and
// learning core.
//
// Every failure that crosses a package boundary carries an ErrorCode
// identifying what went wrong and an ErrorCategory describing how callers
// should react. Task-level execution failures are recorded on the task
// itself and never propagate into the scheduler loop; the taxonomy here
// exists so observers (dashboard, audit store) can classify terminal
// statuses without string matching.
//
// Usage:
//
//	err := errors.Validation("unknown task type", errors.WithTaskID(id))
//	if errors.CodeOf(err) == errors.ErrCodeValidation { ... }
package errors
