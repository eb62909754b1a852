package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed or incomplete requests
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the caller may not act on the resource
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized is returned when a sign-in proof is missing or wrong
	ErrUnauthorized = errors.New("unauthorized")
)

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Limit             int64
	CurrentCount      int64
	RetryAfterSeconds int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d, retry after %ds", e.CurrentCount, e.Limit, e.RetryAfterSeconds)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}
