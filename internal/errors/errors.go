// Package errors defines the store pipeline's error taxonomy: Transient
// (retry-safe), Permanent (unrecoverable), PartialBatch (prefix
// committed, suffix not), and Overflow (in-memory queue exceeded).
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/logaggregator/pkg/store"
)

// Sentinel errors for common conditions.
var (
	ErrOverflow = errors.New("in-memory queue overflow")
	ErrConsumerClosed = errors.New("consumer is closed")
	ErrInvalidEntry = errors.New("invalid log entry")
	ErrStoreClosed = errors.New("store is closed")
	ErrConnectionLost = errors.New("connection lost")
	ErrUnknownCategory = errors.New("no store configured for category")
)

// ProcessingError represents a failure handling a batch for a category.
type ProcessingError struct {
	Category string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: category=%s: %v", e.Category, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsRetryable reports whether the underlying error is retryable.
func (e *ProcessingError) IsRetryable() bool { return IsRetryable(e.Err) }

// ValidationError represents a log entry validation failure. Permanent
// by definition: retrying without fixing the entry changes nothing.
type ValidationError struct {
	Category string
	Field string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: category=%s field=%s: %s", e.Category, e.Field, e.Reason)
}

// StorageError represents a failure from a leaf store's underlying
// resource (file, socket, object store).
type StorageError struct {
	Operation string
	Path string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v", e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryable determines if a StorageError is retryable based on the
// operation: writes/uploads/opens/connects can recover once the
// resource comes back; malformed configuration or an unwritable
// directory cannot.
func (e *StorageError) IsRetryable() bool {
	switch e.Operation {
	case "write", "upload", "open", "connect", "rotate":
		return true
	default:
		return false
	}
}

// PartialBatchError wraps the residual of a batch a store could not
// fully commit, so callers that need the typed residual (rather than
// the (bool, MessageBatch) return) can extract it via errors.As.
type PartialBatchError struct {
	Residual store.MessageBatch
	Err error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("partial batch: %d entries uncommitted: %v", len(e.Residual), e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

// OverflowError records how many entries were dropped when a secondary
// store rejected writes and the in-memory safety valve was already at
// max_queue_length. This is the only sanctioned message-loss path.
type OverflowError struct {
	Category string
	Dropped int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("overflow: dropped %d entries for category %s", e.Dropped, e.Category)
}

// Retryable is implemented by errors that know whether retrying makes
// sense.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if err is retryable: first via the Retryable
// interface, then via known sentinel errors.
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
