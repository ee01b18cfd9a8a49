package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jittakal/logaggregator/pkg/store"
)

var _ store.Store = (*CategoryStore)(nil)
var _ store.MultiCategory = (*CategoryStore)(nil)

// CategoryStore keeps a model store (created but never opened) and
// lazily materializes one child per category seen.
type CategoryStore struct {
	mu sync.Mutex
	statusMu sync.Mutex
	status string

	model store.Store
	children map[string]store.Store
	opts store.ConfigOptions
}

func NewCategoryStore(model store.Store) *CategoryStore {
	return &CategoryStore{model: model, children: map[string]store.Store{}}
}

func (s *CategoryStore) Configure(opts store.ConfigOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
	return s.model.Configure(opts)
}

func (s *CategoryStore) Open() error { return nil }

func (s *CategoryStore) IsOpen() bool { return true }

func (s *CategoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := s.childSlice()
	return firstOf(fanOutClose(children))
}

func (s *CategoryStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := s.childSlice()
	return firstOf(fanOutFlush(children))
}

func (s *CategoryStore) childSlice() []store.Store {
	children := make([]store.Store, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	return children
}

func (s *CategoryStore) GetStatus() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *CategoryStore) setStatus(msg string) {
	s.statusMu.Lock()
	s.status = msg
	s.statusMu.Unlock()
}

func (s *CategoryStore) PeriodicCheck(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fanOutPeriodicCheck(ctx, s.childSlice())
}

// CopyForCategory returns a new CategoryStore over a copy of the model
// bound to category, with the same options; materialized children are
// not copied.
func (s *CategoryStore) CopyForCategory(category string) (store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	model, err := s.model.CopyForCategory(category)
	if err != nil {
		return nil, err
	}
	out := NewCategoryStore(model)
	out.opts = s.opts
	return out, nil
}

func (s *CategoryStore) IsMultiCategory() bool { return true }

// childFor returns the materialized child for category, creating and
// opening one from the model if this is the first message seen for it.
// Callers hold s.mu.
func (s *CategoryStore) childFor(category string) (store.Store, error) {
	if c, ok := s.children[category]; ok {
		return c, nil
	}
	child, err := s.model.CopyForCategory(category)
	if err != nil {
		return nil, err
	}
	if s.opts != nil {
		if err := child.Configure(s.opts); err != nil {
			return nil, err
		}
	}
	if err := child.Open(); err != nil {
		return nil, err
	}
	s.children[category] = child
	return child, nil
}

// HandleMessages groups the batch by category and forwards each group
// to the corresponding (possibly newly materialized) child.
func (s *CategoryStore) HandleMessages(ctx context.Context, batch store.MessageBatch) (bool, store.MessageBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := make([]string, 0, 4)
	groups := map[string]store.MessageBatch{}
	for _, entry := range batch {
		if _, seen := groups[entry.Category]; !seen {
			order = append(order, entry.Category)
		}
		groups[entry.Category] = append(groups[entry.Category], entry)
	}

	var residual store.MessageBatch
	allOK := true
	for _, category := range order {
		child, err := s.childFor(category)
		if err != nil {
			allOK = false
			residual = append(residual, groups[category]...)
			s.setStatus(fmt.Sprintf("category %q: %v", category, err))
			continue
		}
		ok, res := child.HandleMessages(ctx, groups[category])
		if !ok {
			allOK = false
			residual = append(residual, res...)
		}
	}

	if allOK {
		s.setStatus("")
		return true, nil
	}
	return false, residual
}
