package store

import (
	"log/slog"
	"time"

	"github.com/jittakal/logaggregator/pkg/storage"
)

// NewFramedMultiFileStore builds a CategoryStore whose model is a
// FramedFileStore.
func NewFramedMultiFileStore(fs storage.Filesystem, logger *slog.Logger, now func() time.Time) *CategoryStore {
	model := NewFramedFileStore(fs, logger, now)
	return NewCategoryStore(model)
}
