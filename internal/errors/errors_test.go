package errors

import (
	"errors"
	"testing"

	"github.com/jittakal/logaggregator/pkg/store"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrOverflow", ErrOverflow},
		{"ErrConsumerClosed", ErrConsumerClosed},
		{"ErrInvalidEntry", ErrInvalidEntry},
		{"ErrStoreClosed", ErrStoreClosed},
		{"ErrConnectionLost", ErrConnectionLost},
		{"ErrUnknownCategory", ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestProcessingError(t *testing.T) {
	baseErr := errors.New("base error")
	procErr := &ProcessingError{
		Category: "orders",
		Err:      baseErr,
	}

	if procErr.Error() == "" {
		t.Error("ProcessingError should have an error message")
	}

	if !errors.Is(procErr, baseErr) {
		t.Error("ProcessingError should wrap base error")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Category: "orders",
		Field:    "message",
		Reason:   "required field missing",
	}

	if err.Error() == "" {
		t.Error("ValidationError should have an error message")
	}
}

func TestStorageError(t *testing.T) {
	baseErr := errors.New("disk full")
	storageErr := &StorageError{
		Operation: "write",
		Path:      "/data/file.log",
		Err:       baseErr,
	}

	if storageErr.Error() == "" {
		t.Error("StorageError should have an error message")
	}

	if !errors.Is(storageErr, baseErr) {
		t.Error("StorageError should wrap base error")
	}
}

func TestStorageError_IsRetryable(t *testing.T) {
	tests := []struct {
		operation string
		want      bool
	}{
		{"write", true},
		{"upload", true},
		{"open", true},
		{"connect", true},
		{"rotate", true},
		{"configure", false},
	}

	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			e := &StorageError{Operation: tt.operation, Err: errors.New("x")}
			if got := e.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPartialBatchError(t *testing.T) {
	baseErr := errors.New("peer rejected")
	residual := store.MessageBatch{{Category: "orders", Message: []byte("x")}}
	partialErr := &PartialBatchError{Residual: residual, Err: baseErr}

	if partialErr.Error() == "" {
		t.Error("PartialBatchError should have an error message")
	}
	if !errors.Is(partialErr, baseErr) {
		t.Error("PartialBatchError should wrap base error")
	}
}

func TestOverflowError(t *testing.T) {
	err := &OverflowError{Category: "orders", Dropped: 5}
	if err.Error() == "" {
		t.Error("OverflowError should have an error message")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "storage error is retryable",
			err:  &StorageError{Operation: "write", Path: "/tmp/file", Err: errors.New("failed")},
			want: true,
		},
		{
			name: "connection lost is retryable",
			err:  ErrConnectionLost,
			want: true,
		},
		{
			name: "validation error is not retryable",
			err:  &ValidationError{Category: "orders", Field: "message", Reason: "missing"},
			want: false,
		},
		{
			name: "generic error is not retryable",
			err:  errors.New("generic error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
