// Package validator validates inbound log entries before they reach
// the CategoryRouter.
package validator

import (
	"github.com/jittakal/logaggregator/internal/errors"
	"github.com/jittakal/logaggregator/pkg/store"
)

// MaxMessageBytes bounds a single entry's message size: rather than let
// an unbounded message exhaust a FileStoreBase rotation or a
// NetworkStore frame, reject it before it enters the pipeline.
const MaxMessageBytes = 16 * 1024 * 1024

// EntryValidator validates store.LogEntry values.
type EntryValidator struct {
	maxMessageBytes int
}

// New creates an EntryValidator with the default size limit.
func New() *EntryValidator {
	return &EntryValidator{maxMessageBytes: MaxMessageBytes}
}

// Validate checks that an entry has a category and a non-empty,
// within-limits message. Messages are opaque bytes; this
// never inspects their contents.
func (v *EntryValidator) Validate(entry store.LogEntry) error {
	if entry.Category == "" {
		return &errors.ValidationError{
			Category: entry.Category,
			Field: "category",
			Reason: "required field is missing",
		}
	}

	if len(entry.Message) == 0 {
		return &errors.ValidationError{
			Category: entry.Category,
			Field: "message",
			Reason: "message is empty",
		}
	}

	if len(entry.Message) > v.maxMessageBytes {
		return &errors.ValidationError{
			Category: entry.Category,
			Field: "message",
			Reason: "message exceeds maximum size",
		}
	}

	return nil
}
