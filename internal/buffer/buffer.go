// Package buffer implements the in-memory per-category holding area the
// CategoryRouter drains into its Store tree on each tick.
package buffer

import (
	"sync"
	"time"

	"github.com/jittakal/logaggregator/pkg/buffer"
	"github.com/jittakal/logaggregator/pkg/store"
)

var _ buffer.Buffer = (*CategoryBuffer)(nil)

// CategoryBuffer buffers entries for a single category. Thread-safe,
// bounded by maxRecords — beyond that, Add drops the oldest entries
// rather than blocking the frontend, mirroring BufferStore's own
// overflow policy at the ingestion edge instead of
// the secondary-store edge.
type CategoryBuffer struct {
	mu sync.Mutex
	entries store.MessageBatch
	maxRecords int
	currentSize int64
	firstWriteTime time.Time
	lastWriteTime time.Time
}

// New creates a buffer holding up to maxRecords entries.
func New(maxRecords int) *CategoryBuffer {
	return &CategoryBuffer{
		entries: make(store.MessageBatch, 0, maxRecords),
		maxRecords: maxRecords,
	}
}

func (b *CategoryBuffer) Add(batch store.MessageBatch) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now

	for _, e := range batch {
		b.entries = append(b.entries, e)
		b.currentSize += int64(len(e.Message))
	}

	if b.maxRecords > 0 && len(b.entries) > b.maxRecords {
		excess := len(b.entries) - b.maxRecords
		for i := 0; i < excess; i++ {
			b.currentSize -= int64(len(b.entries[i].Message))
		}
		b.entries = append(store.MessageBatch{}, b.entries[excess:]...)
		dropped = excess
	}
	return dropped
}

// Drain removes and returns everything in the buffer.
func (b *CategoryBuffer) Drain() store.MessageBatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.entries
	b.reset()
	return entries
}

func (b *CategoryBuffer) Stats() store.FileStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := store.FileStats{
		RecordCount: len(b.entries),
		SizeBytes: b.currentSize,
	}
	if !b.firstWriteTime.IsZero() {
		stats.FirstWriteTime = b.firstWriteTime.Unix()
	}
	if !b.lastWriteTime.IsZero() {
		stats.LastWriteTime = b.lastWriteTime.Unix()
	}
	return stats
}

func (b *CategoryBuffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries) == 0
}

func (b *CategoryBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *CategoryBuffer) reset() {
	b.entries = make(store.MessageBatch, 0, b.maxRecords)
	b.currentSize = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}

// Manager creates and owns per-category buffers on demand, using
// double-checked locking for efficient concurrent access.
type Manager struct {
	mu sync.RWMutex
	buffers map[string]*CategoryBuffer
	maxRecords int
}

// NewManager creates a buffer manager whose buffers each cap out at
// maxRecords entries.
func NewManager(maxRecords int) *Manager {
	return &Manager{
		buffers: make(map[string]*CategoryBuffer),
		maxRecords: maxRecords,
	}
}

func (m *Manager) GetOrCreate(category string) buffer.Buffer {
	m.mu.RLock()
	buf, exists := m.buffers[category]
	m.mu.RUnlock()
	if exists {
		return buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, exists := m.buffers[category]; exists {
		return buf
	}
	buf = New(m.maxRecords)
	m.buffers[category] = buf
	return buf
}
