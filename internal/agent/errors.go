package agent

import "errors"

// ErrorCode is the stable identifier a collaborator failure is reported
// under in outcomes and episode artifacts. Using a custom type keeps report
// fields constrained to the predefined set.
type ErrorCode string

const (
	ErrCodeCapture       ErrorCode = "CAPTURE_FAILED"
	ErrCodePerception    ErrorCode = "PERCEPTION_FAILED"
	ErrCodeProvider      ErrorCode = "PROVIDER_ERROR"
	ErrCodeInvalidAction ErrorCode = "INVALID_ACTION"
	ErrCodeExecution     ErrorCode = "EXECUTION_FAILED"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// coded is implemented by collaborator error types that know their report
// code. The loop never depends on the concrete types, only on this shape.
type coded interface {
	Code() string
}

// ErrorCodeOf maps an error chain onto its report code. Unknown errors fall
// back to ErrCodeInternal.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var c coded
	if errors.As(err, &c) {
		return ErrorCode(c.Code())
	}
	return ErrCodeInternal
}
