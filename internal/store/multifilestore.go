package store

import (
	"log/slog"
	"time"

	"github.com/jittakal/logaggregator/pkg/storage"
)

// NewMultiFileStore builds a CategoryStore whose model is a FileStore;
// it only supplies the model-construction policy.
func NewMultiFileStore(fs storage.Filesystem, logger *slog.Logger, now func() time.Time) *CategoryStore {
	model := NewFileStore(fs, logger, "", now)
	return NewCategoryStore(model)
}
