package store

import (
	"context"
	"testing"

	"github.com/jittakal/logaggregator/pkg/store"
)

// fakeChildStore is a minimal store.Store used as a MultiStore/BucketStore/
// CategoryStore child.
type fakeChildStore struct {
	openErr    error
	closeErr   error
	flushErr   error
	handleFunc func(store.MessageBatch) (bool, store.MessageBatch)
	opened     bool
	periodic   int
}

func (f *fakeChildStore) Configure(store.ConfigOptions) error { return nil }

func (f *fakeChildStore) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeChildStore) IsOpen() bool { return f.opened }

func (f *fakeChildStore) Close() error { return f.closeErr }

func (f *fakeChildStore) HandleMessages(ctx context.Context, batch store.MessageBatch) (bool, store.MessageBatch) {
	if f.handleFunc != nil {
		return f.handleFunc(batch)
	}
	return true, nil
}

func (f *fakeChildStore) PeriodicCheck(ctx context.Context) { f.periodic++ }

func (f *fakeChildStore) Flush() error { return f.flushErr }

func (f *fakeChildStore) CopyForCategory(category string) (store.Store, error) {
	return &fakeChildStore{handleFunc: f.handleFunc}, nil
}

func (f *fakeChildStore) GetStatus() string { return "" }

func TestMultiStore_HandleMessagesSuccessAny(t *testing.T) {
	a := &fakeChildStore{handleFunc: func(b store.MessageBatch) (bool, store.MessageBatch) { return false, b }}
	b := &fakeChildStore{}
	ms := NewMultiStore([]store.Store{a, b})

	batch := store.MessageBatch{{Category: "orders", Message: []byte("x")}}
	ok, residual := ms.HandleMessages(context.Background(), batch)
	if !ok || residual != nil {
		t.Errorf("HandleMessages() = (%v, %v), want (true, nil) when any child accepts", ok, residual)
	}
}

func TestMultiStore_HandleMessagesSuccessAnyAllReject(t *testing.T) {
	reject := func(b store.MessageBatch) (bool, store.MessageBatch) { return false, b }
	a := &fakeChildStore{handleFunc: reject}
	b := &fakeChildStore{handleFunc: reject}
	ms := NewMultiStore([]store.Store{a, b})

	batch := store.MessageBatch{{Category: "orders", Message: []byte("x")}}
	ok, residual := ms.HandleMessages(context.Background(), batch)
	if ok || len(residual) != 1 {
		t.Errorf("HandleMessages() = (%v, %v), want (false, batch) when all children reject", ok, residual)
	}
}

func TestMultiStore_HandleMessagesSuccessAll(t *testing.T) {
	reject := func(b store.MessageBatch) (bool, store.MessageBatch) { return false, b }
	a := &fakeChildStore{}
	b := &fakeChildStore{handleFunc: reject}
	ms := NewMultiStore([]store.Store{a, b})
	if err := ms.Configure(store.ConfigOptions{"report_success": "success_all"}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch := store.MessageBatch{{Category: "orders", Message: []byte("x")}}
	ok, residual := ms.HandleMessages(context.Background(), batch)
	if ok || len(residual) != 1 {
		t.Errorf("HandleMessages() = (%v, %v), want (false, residual) when one child rejects under success_all", ok, residual)
	}
}

func TestMultiStore_HandleMessagesSuccessAllAllAccept(t *testing.T) {
	a := &fakeChildStore{}
	b := &fakeChildStore{}
	ms := NewMultiStore([]store.Store{a, b})
	if err := ms.Configure(store.ConfigOptions{"report_success": "success_all"}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch := store.MessageBatch{{Category: "orders", Message: []byte("x")}}
	ok, residual := ms.HandleMessages(context.Background(), batch)
	if !ok || residual != nil {
		t.Errorf("HandleMessages() = (%v, %v), want (true, nil) when every child accepts", ok, residual)
	}
}

func TestMultiStore_HandleMessagesNoChildrenSucceedsTrivially(t *testing.T) {
	ms := NewMultiStore(nil)
	ok, residual := ms.HandleMessages(context.Background(), store.MessageBatch{{Category: "orders"}})
	if !ok || residual != nil {
		t.Errorf("HandleMessages() with no children = (%v, %v), want (true, nil)", ok, residual)
	}
}

func TestMultiStore_OpenPropagatesPartialFailureStatusButNoError(t *testing.T) {
	a := &fakeChildStore{}
	b := &fakeChildStore{openErr: context.DeadlineExceeded}
	ms := NewMultiStore([]store.Store{a, b})

	if err := ms.Open(); err != nil {
		t.Errorf("Open() returned error %v, want nil since one child still opened", err)
	}
	if ms.GetStatus() == "" {
		t.Error("GetStatus() is empty, want a partial-failure status message")
	}
}

func TestMultiStore_OpenAllFailPropagatesError(t *testing.T) {
	a := &fakeChildStore{openErr: context.DeadlineExceeded}
	b := &fakeChildStore{openErr: context.DeadlineExceeded}
	ms := NewMultiStore([]store.Store{a, b})

	if err := ms.Open(); err == nil {
		t.Error("Open() returned nil, want an error when every child fails to open")
	}
}

func TestMultiStore_IsOpenTrueIfAnyChildOpen(t *testing.T) {
	a := &fakeChildStore{opened: true}
	b := &fakeChildStore{}
	ms := NewMultiStore([]store.Store{a, b})
	if !ms.IsOpen() {
		t.Error("IsOpen() = false, want true when at least one child is open")
	}
}

func TestMultiStore_CopyForCategoryClonesPolicyAndChildren(t *testing.T) {
	a := &fakeChildStore{}
	ms := NewMultiStore([]store.Store{a})
	if err := ms.Configure(store.ConfigOptions{"report_success": "success_all"}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	copied, err := ms.CopyForCategory("clickstream")
	if err != nil {
		t.Fatalf("CopyForCategory returned error: %v", err)
	}
	clone, ok := copied.(*MultiStore)
	if !ok {
		t.Fatalf("CopyForCategory returned %T, want *MultiStore", copied)
	}
	if clone.policy != successAll {
		t.Errorf("clone.policy = %v, want successAll", clone.policy)
	}
	if len(clone.children) != 1 {
		t.Errorf("clone has %d children, want 1", len(clone.children))
	}
}

func TestMultiStore_PeriodicCheckFansOutToEveryChild(t *testing.T) {
	a := &fakeChildStore{}
	b := &fakeChildStore{}
	ms := NewMultiStore([]store.Store{a, b})
	ms.PeriodicCheck(context.Background())
	if a.periodic != 1 || b.periodic != 1 {
		t.Errorf("periodic checks = (%d, %d), want (1, 1)", a.periodic, b.periodic)
	}
}
