// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/gctrace/pkg/event"
)

// Sentinel errors for common conditions.
var (
	ErrSinkDisabled   = errors.New("trace sink is disabled")
	ErrLockHeld       = errors.New("trace file is locked by another process")
	ErrRecordTooLarge = errors.New("record does not fit in a trace buffer")
	ErrBadHeader      = errors.New("invalid trace header")
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrTruncated      = errors.New("truncated record")
	ErrWriterClosed   = errors.New("storage writer is closed")
	ErrConnectionLost = errors.New("connection lost")
)

// DecodeError represents a failure to decode a record from a trace file.
type DecodeError struct {
	Source string
	Offset int64
	Kind   event.Kind
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: source=%s offset=%d kind=%d: %v",
		e.Source, e.Offset, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError represents an invalid event descriptor or header.
type ValidationError struct {
	Kind   event.Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: kind=%d field=%s: %s",
		e.Kind, e.Field, e.Reason)
}

// StorageError represents a failed file or object storage operation.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
// Local file operations on the trace sink are never retried here; the sink
// handles interrupted writes itself and disables on anything else.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "upload" || e.Operation == "close"
}
