package perception

import "fmt"

// CaptureError reports a failed screen grab. Capture is plain device I/O,
// so a later step may well succeed; callers that wrap observation in a
// retry policy may treat it as transient.
type CaptureError struct {
	Cause error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("screen capture failed: %v", e.Cause)
}

func (e *CaptureError) Unwrap() error { return e.Cause }

func (e *CaptureError) Retryable() bool { return true }

// Code identifies this failure in outcomes and reports.
func (e *CaptureError) Code() string { return "CAPTURE_FAILED" }

// PerceptionError reports that extraction produced nothing usable even after
// the adapter's internal retry. It is final for the step that observed it.
type PerceptionError struct {
	Engine string
	Cause  error
}

func (e *PerceptionError) Error() string {
	return fmt.Sprintf("perception via %s failed: %v", e.Engine, e.Cause)
}

func (e *PerceptionError) Unwrap() error { return e.Cause }

func (e *PerceptionError) Retryable() bool { return false }

// Code identifies this failure in outcomes and reports.
func (e *PerceptionError) Code() string { return "PERCEPTION_FAILED" }
