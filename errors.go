package memorypg

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the engine configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidFilter is returned when a query filter is malformed
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrStorageError is returned when a storage operation failed
	ErrStorageError = errors.New("storage operation failed")

	// ErrEngineClosed is returned when calling methods after Close()
	ErrEngineClosed = errors.New("engine closed")
)

// EngineError represents an error with additional context
type EngineError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// wrapStorage marks a failed store operation so callers can test for
// ErrStorageError with errors.Is.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorageError, err)
}

// NewEngineError creates a new EngineError
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{
		Op:  op,
		Err: err,
	}
}

// NewEngineErrorWithSession creates a new EngineError with session ID
func NewEngineErrorWithSession(op string, sessionID string, err error) *EngineError {
	return &EngineError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
