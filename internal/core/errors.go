// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps base with a formatted cause.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Data errors
	ErrInsufficientData   = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for classification"}
	ErrInsufficientSample = &Error{Code: "INSUFFICIENT_SAMPLE", Message: "insufficient sample for risk metric"}
	ErrUndefinedRatio     = &Error{Code: "UNDEFINED_RATIO", Message: "ratio is undefined for this sample"}

	// Allocation errors
	ErrAllocationUnstable = &Error{Code: "ALLOCATION_UNSTABLE", Message: "sector cap redistribution did not converge"}
	ErrProfileViolation   = &Error{Code: "PROFILE_VIOLATION", Message: "projected risk exceeds profile limit"}
	ErrInvalidAllocation  = &Error{Code: "INVALID_ALLOCATION", Message: "invalid allocation weights"}

	// Profile errors
	ErrProfileNotFound = &Error{Code: "PROFILE_NOT_FOUND", Message: "risk profile not found"}
	ErrInvalidProfile  = &Error{Code: "INVALID_PROFILE", Message: "risk profile invalid"}

	// Environment errors
	ErrInvalidRange        = &Error{Code: "INVALID_RANGE", Message: "invalid backtest range"}
	ErrEnvironmentNotReady = &Error{Code: "ENVIRONMENT_NOT_READY", Message: "environment not reset"}
	ErrEnvironmentFinished = &Error{Code: "ENVIRONMENT_FINISHED", Message: "episode finished, reset required"}

	// Policy errors
	ErrCheckpointInvalid = &Error{Code: "CHECKPOINT_INVALID", Message: "policy checkpoint invalid"}
	ErrPolicyUnavailable = &Error{Code: "POLICY_UNAVAILABLE", Message: "no policy loaded"}

	// Provider errors
	ErrProviderFailed  = &Error{Code: "PROVIDER_FAILED", Message: "provider request failed"}
	ErrProviderTimeout = &Error{Code: "PROVIDER_TIMEOUT", Message: "provider request timeout"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
