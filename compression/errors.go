package compression

import (
	"errors"
	"fmt"
)

// Sentinel errors for compression operations.
var (
	// ErrInvalidConfig indicates invalid compression configuration.
	ErrInvalidConfig = errors.New("invalid compression configuration")

	// ErrNoMessagesToCompress indicates there are no messages eligible for compression.
	ErrNoMessagesToCompress = errors.New("no messages to compress")

	// ErrSummarizationFailed indicates the summarization call failed.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrStorageError indicates a database operation failed.
	ErrStorageError = errors.New("storage operation failed")
)

// CompressionError provides structured error context for compression operations.
type CompressionError struct {
	// Op is the operation that failed (e.g., "Compress", "Summarize", "Archive")
	Op string

	// SessionID is the session ID if applicable
	SessionID string

	// Err is the underlying error
	Err error

	// Context holds additional key-value pairs for debugging
	Context map[string]any
}

// Error returns a formatted error message.
func (e *CompressionError) Error() string {
	msg := fmt.Sprintf("compression %s failed", e.Op)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" for session %s", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *CompressionError) Unwrap() error {
	return e.Err
}

// NewCompressionError creates a new CompressionError with the given operation and underlying error.
func NewCompressionError(op string, err error) *CompressionError {
	return &CompressionError{
		Op:      op,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithSession sets the session ID on the error and returns the error for chaining.
func (e *CompressionError) WithSession(sessionID string) *CompressionError {
	e.SessionID = sessionID
	return e
}

// WithContext adds a key-value pair to the error context and returns the error for chaining.
func (e *CompressionError) WithContext(key string, value any) *CompressionError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WrapStorageError marks a failed store operation so callers can test for
// ErrStorageError with errors.Is. If err is nil, returns nil.
func WrapStorageError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorageError, err)
}

// WrapError wraps an error with operation context. If err is nil, returns nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewCompressionError(op, err)
}

// WrapErrorWithSession wraps an error with operation and session context.
func WrapErrorWithSession(op string, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return NewCompressionError(op, err).WithSession(sessionID)
}
