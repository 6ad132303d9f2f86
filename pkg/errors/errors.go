package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies an error for retry and reporting decisions.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeRateLimit  Code = "rate_limit"
	CodeDependency Code = "dependency"
	CodeConfig     Code = "config"
	CodeInternal   Code = "internal"
)

// Error carries a classification code alongside the wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error

	// RetryAfter is set for rate limit errors when the upstream
	// communicated a cooldown.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Code: CodeRateLimit, Message: message, RetryAfter: retryAfter}
}

// CodeOf extracts the classification code, defaulting to internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Retryable reports whether the error class is worth another attempt.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConflict, CodeRateLimit, CodeDependency:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the upstream cooldown, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
