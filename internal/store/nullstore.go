package store

import (
	"context"

	"github.com/jittakal/logaggregator/pkg/store"
)

var _ store.Store = (*NullStore)(nil)
var _ store.Readable = (*NullStore)(nil)

// NullStore discards every message it receives. Trivially "readable"
// but always empty — useful as a BucketStore orphan sink or a test
// fixture.
type NullStore struct {
	category string
}

func NewNullStore(category string) *NullStore {
	return &NullStore{category: category}
}

func (s *NullStore) Configure(store.ConfigOptions) error { return nil }
func (s *NullStore) Open() error { return nil }
func (s *NullStore) IsOpen() bool { return true }
func (s *NullStore) Close() error { return nil }
func (s *NullStore) Flush() error { return nil }
func (s *NullStore) GetStatus() string { return "" }
func (s *NullStore) PeriodicCheck(context.Context) {}

func (s *NullStore) HandleMessages(ctx context.Context, batch store.MessageBatch) (bool, store.MessageBatch) {
	return true, nil
}

func (s *NullStore) CopyForCategory(category string) (store.Store, error) {
	return NewNullStore(category), nil
}

func (s *NullStore) ReadOldest(now int64) (store.MessageBatch, error) { return nil, nil }
func (s *NullStore) DeleteOldest(now int64) error { return nil }
func (s *NullStore) ReplaceOldest(store.MessageBatch, int64) error { return nil }
func (s *NullStore) Empty(now int64) bool { return true }
