package model

import (
	"fmt"
	"time"
)

// ErrorKind is the closed classification taxonomy for integration call
// failures. Classification drives both retry eligibility and auto-fix
// selection.
type ErrorKind string

const (
	KindAuthExpired            ErrorKind = "AUTH_EXPIRED"
	KindRateLimited            ErrorKind = "RATE_LIMITED"
	KindTemporaryNetwork       ErrorKind = "TEMPORARY_NETWORK"
	KindServiceDown            ErrorKind = "SERVICE_DOWN"
	KindValidation             ErrorKind = "VALIDATION"
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindPermissionDenied       ErrorKind = "PERMISSION_DENIED"
	KindCircuitOpen            ErrorKind = "CIRCUIT_OPEN"
	KindExecutionLimitExceeded ErrorKind = "EXECUTION_LIMIT_EXCEEDED"
	KindUnknown                ErrorKind = "UNKNOWN"
)

// Retryable reports whether a failure of this kind may be retried by the
// retry pipeline. AuthExpired is deliberately not retryable here: the
// auto-fix strategy owns its single credential-refresh-then-retry attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTemporaryNetwork, KindServiceDown, KindRateLimited:
		return true
	default:
		return false
	}
}

// APIError is a classified integration call failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// RetryAfter is the server-provided cooldown for RateLimited failures.
	// Zero means the server did not say; callers fall back to a default.
	RetryAfter time.Duration
	Cause      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this failure may be retried.
func (e *APIError) Retryable() bool {
	return e.Kind.Retryable()
}

// NewCircuitOpenError builds the local rejection returned while a breaker is
// open. It is never retried and no transport call is attempted.
func NewCircuitOpenError(integrationID int64, category string, retryIn time.Duration) *APIError {
	return &APIError{
		Kind:       KindCircuitOpen,
		Message:    fmt.Sprintf("circuit open for integration %d category %s, next probe in %s", integrationID, category, retryIn.Round(time.Second)),
		RetryAfter: retryIn,
	}
}
