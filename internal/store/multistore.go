package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jittakal/logaggregator/pkg/store"
)

var _ store.Store = (*MultiStore)(nil)
var _ store.MultiCategory = (*MultiStore)(nil)

// successPolicy mirrors report_success_value from
// Scribe's store.h.
type successPolicy int

const (
	successAny successPolicy = iota
	successAll
)

func parseSuccessPolicy(s string) successPolicy {
	if s == "success_all" {
		return successAll
	}
	return successAny
}

// MultiStore fans a batch out to an ordered list of children and
// aggregates their results.
type MultiStore struct {
	mu sync.Mutex
	statusMu sync.Mutex
	status string

	children []store.Store
	policy successPolicy
}

func NewMultiStore(children []store.Store) *MultiStore {
	return &MultiStore{children: children, policy: successAny}
}

func (s *MultiStore) Configure(opts store.ConfigOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := opts["report_success"]; ok {
		s.policy = parseSuccessPolicy(v)
	}
	for _, c := range s.children {
		if err := c.Configure(opts); err != nil {
			return err
		}
	}
	return nil
}

func (s *MultiStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := fanOutOpen(s.children)
	return s.summarize("open", errs)
}

func (s *MultiStore) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.children {
		if c.IsOpen() {
			return true
		}
	}
	return len(s.children) == 0
}

func (s *MultiStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := fanOutClose(s.children)
	return s.summarize("close", errs)
}

func (s *MultiStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := fanOutFlush(s.children)
	return s.summarize("flush", errs)
}

func (s *MultiStore) summarize(op string, errs []error) error {
	var first error
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if failed == 0 {
		s.setStatus("")
		return nil
	}
	s.setStatus(fmt.Sprintf("%s: %d/%d children failed", op, failed, len(errs)))
	if failed == len(errs) {
		return first
	}
	return nil
}

func (s *MultiStore) GetStatus() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *MultiStore) setStatus(msg string) {
	s.statusMu.Lock()
	s.status = msg
	s.statusMu.Unlock()
}

func (s *MultiStore) PeriodicCheck(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fanOutPeriodicCheck(ctx, s.children)
}

func (s *MultiStore) CopyForCategory(category string) (store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clones := make([]store.Store, len(s.children))
	for i, c := range s.children {
		clone, err := c.CopyForCategory(category)
		if err != nil {
			return nil, err
		}
		clones[i] = clone
	}
	out := NewMultiStore(clones)
	out.policy = s.policy
	return out, nil
}

func (s *MultiStore) IsMultiCategory() bool { return false }

// HandleMessages forwards batch to every child.
// SUCCESS_ANY succeeds if at least one child accepts, with empty
// residual; SUCCESS_ALL succeeds only if every child accepts, with
// residual the union of children's residuals.
func (s *MultiStore) HandleMessages(ctx context.Context, batch store.MessageBatch) (bool, store.MessageBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.children) == 0 {
		return true, nil
	}

	results := fanOutHandleMessages(ctx, s.children, batch)

	switch s.policy {
	case successAll:
		var residual store.MessageBatch
		allOK := true
		rejected := 0
		for _, r := range results {
			if !r.ok {
				allOK = false
				rejected++
				residual = append(residual, r.residual...)
			}
		}
		if allOK {
			s.setStatus("")
			return true, nil
		}
		s.setStatus(fmt.Sprintf("handle_messages: %d children rejected batch", rejected))
		return false, residual

	default: // successAny
		for _, r := range results {
			if r.ok {
				s.setStatus("")
				return true, nil
			}
		}
		s.setStatus("handle_messages: all children rejected batch")
		return false, batch
	}
}
