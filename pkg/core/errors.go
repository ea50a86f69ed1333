// Package core provides the Nexus assistant, its configuration and the
// conversation memory that forms the active prompt context.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates a missing or invalid configuration value,
	// such as a hosted provider without credentials.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates that the provider or store could not be reached.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrStorageOperation indicates that a learning store read or write failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrLLMOperation indicates that an LLM operation failed.
	ErrLLMOperation = errors.New("llm operation failed")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoTurn indicates feedback given before any successful turn.
	ErrNoTurn = errors.New("no completed turn to rate")

	// ErrRateLimited indicates that the request budget for the window is spent.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// NexusError wraps errors with operation context.
//
// Example:
//
//	err := &NexusError{
//	    Op:  "Feedback",
//	    Err: ErrNoTurn,
//	}
//	// Error() returns: "nexus: Feedback: no completed turn to rate"
type NexusError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns "nexus: <Op>: <Err>".
func (e *NexusError) Error() string {
	return fmt.Sprintf("nexus: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *NexusError) Unwrap() error {
	return e.Err
}

// NewNexusError creates a new NexusError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	return NewNexusError("Ask", err)
func NewNexusError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &NexusError{
		Op:  op,
		Err: err,
	}
}

// wrapKind attaches a sentinel to err so callers can match both.
func wrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return NewNexusError(op, fmt.Errorf("%w: %w", kind, err))
}
