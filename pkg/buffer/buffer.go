// Package buffer defines the in-memory per-category buffer the
// CategoryRouter holds entries in between worker ticks: entries
// accumulate here up to the buffer's capacity, beyond which the oldest
// excess is dropped.
package buffer

import "github.com/jittakal/logaggregator/pkg/store"

// Buffer holds pending log entries in memory. All implementations must
// be thread-safe.
type Buffer interface {
	// Add appends entries to the buffer, returning how many of the
	// oldest entries were dropped to respect the configured capacity.
	Add(entries store.MessageBatch) (dropped int)

	// Drain removes and returns everything in the buffer.
	Drain() store.MessageBatch

	// Stats reports the buffer's current size without modifying it.
	Stats() store.FileStats

	// IsEmpty reports whether the buffer holds nothing.
	IsEmpty() bool

	// Reset clears the buffer and its statistics.
	Reset()
}

// Manager creates and owns per-category buffers on demand.
type Manager interface {
	// GetOrCreate returns the buffer for category, creating one if this
	// is the first time it's been seen.
	GetOrCreate(category string) Buffer
}
