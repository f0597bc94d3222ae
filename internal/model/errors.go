package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ProviderErrorKind classifies a backend failure. The kind decides
// retryability once, here, so no caller re-derives it from status codes.
type ProviderErrorKind string

const (
	// KindAuth covers rejected or missing credentials.
	KindAuth ProviderErrorKind = "auth"
	// KindInvalidRequest covers requests the provider permanently refuses.
	KindInvalidRequest ProviderErrorKind = "invalid_request"
	// KindRateLimited covers quota and throttling rejections.
	KindRateLimited ProviderErrorKind = "rate_limited"
	// KindUnavailable covers provider outages, gateway failures and
	// transport-level errors.
	KindUnavailable ProviderErrorKind = "unavailable"
	// KindMalformedReply covers replies that cannot be turned into a
	// decision. Repeating the identical request is pointless; the loop
	// surfaces these instead of retrying.
	KindMalformedReply ProviderErrorKind = "malformed_reply"
	// KindUnknown covers everything unclassifiable.
	KindUnknown ProviderErrorKind = "unknown"
)

// retryableKinds are the classes where a later attempt can plausibly
// succeed.
var retryableKinds = map[ProviderErrorKind]bool{
	KindRateLimited: true,
	KindUnavailable: true,
}

// ProviderError is the uniform failure type surfaced by every backend
// adapter and by reply parsing.
type ProviderError struct {
	// Provider names the backend, e.g. "gemini".
	Provider string
	// Operation is the adapter call that failed, e.g. "generate".
	Operation string
	Kind      ProviderErrorKind
	// StatusCode is the HTTP status when one was observed, zero otherwise.
	StatusCode int
	Message    string
	Cause      error
}

// NewProviderError builds a classified error. Provider and operation are
// required for a readable message; kind decides retryability.
func NewProviderError(provider, operation string, kind ProviderErrorKind, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Kind:      kind,
		Message:   message,
		Cause:     cause,
	}
}

// NewStatusError classifies an HTTP response status into the kind taxonomy
// and records the code.
func NewStatusError(provider, operation string, status int, message string, cause error) *ProviderError {
	e := NewProviderError(provider, operation, classifyStatus(status), message, cause)
	e.StatusCode = status
	return e
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s failed (%s)", e.Provider, e.Operation, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether a repeat attempt can help.
func (e *ProviderError) Retryable() bool { return retryableKinds[e.Kind] }

// Code is the stable report identifier for outcomes and episode artifacts.
func (e *ProviderError) Code() string { return "PROVIDER_ERROR" }

// AsProviderError unwraps err to the provider error in its chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// WrapTransport classifies a failure from an SDK call that carried no HTTP
// status, typically a network-level error. Context errors pass through
// untouched so cancellation and deadlines keep their meaning upstream.
func WrapTransport(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewProviderError(provider, operation, KindUnavailable, "transport failure", err)
}

func classifyStatus(status int) ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}
