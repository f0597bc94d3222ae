package executor

import "fmt"

// InvalidActionError rejects a decision the surface could never deliver:
// malformed shape or coordinates outside the input space. The decision came
// from the model, so re-dispatching the same one cannot help; the loop fails
// the task instead of retrying.
type InvalidActionError struct {
	Decision string
	Reason   string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action %s: %s", e.Decision, e.Reason)
}

func (e *InvalidActionError) Retryable() bool { return false }

// Code identifies this failure in outcomes and reports.
func (e *InvalidActionError) Code() string { return "INVALID_ACTION" }

// ExecutionError reports a dispatch that reached the surface and failed
// there. Input delivery is device I/O, so a retry of the same decision may
// land.
type ExecutionError struct {
	Op       string
	Decision string
	Cause    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Decision, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

func (e *ExecutionError) Retryable() bool { return true }

// Code identifies this failure in outcomes and reports.
func (e *ExecutionError) Code() string { return "EXECUTION_FAILED" }
