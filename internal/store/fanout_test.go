package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jittakal/logaggregator/pkg/store"
)

func TestFanOutOpen_CollectsPerChildErrorsAtMatchingIndex(t *testing.T) {
	failing := errors.New("boom")
	children := []store.Store{
		&fakeChildStore{},
		&fakeChildStore{openErr: failing},
		&fakeChildStore{},
	}
	errs := fanOutOpen(children)
	if len(errs) != 3 || errs[0] != nil || errs[1] != failing || errs[2] != nil {
		t.Errorf("fanOutOpen() = %v, want [nil, boom, nil]", errs)
	}
}

func TestFanOutClose_RunsOverAllChildrenEvenWhenOneFails(t *testing.T) {
	failing := errors.New("boom")
	c1 := &fakeChildStore{closeErr: failing}
	c2 := &fakeChildStore{}
	errs := fanOutClose([]store.Store{c1, c2})
	if errs[0] != failing || errs[1] != nil {
		t.Errorf("fanOutClose() = %v, want [boom, nil]", errs)
	}
}

func TestFanOutFlush_RunsOverAllChildren(t *testing.T) {
	failing := errors.New("boom")
	c1 := &fakeChildStore{}
	c2 := &fakeChildStore{flushErr: failing}
	errs := fanOutFlush([]store.Store{c1, c2})
	if errs[0] != nil || errs[1] != failing {
		t.Errorf("fanOutFlush() = %v, want [nil, boom]", errs)
	}
}

func TestFanOutPeriodicCheck_CallsEveryChild(t *testing.T) {
	c1 := &fakeChildStore{}
	c2 := &fakeChildStore{}
	fanOutPeriodicCheck(context.Background(), []store.Store{c1, c2})
	if c1.periodic == 0 || c2.periodic == 0 {
		t.Errorf("PeriodicCheck not observed on all children: c1=%d c2=%d", c1.periodic, c2.periodic)
	}
}

func TestFanOutHandleMessages_ReturnsOneResultPerChildAtMatchingIndex(t *testing.T) {
	accepting := &fakeChildStore{}
	rejecting := &fakeChildStore{handleFunc: func(b store.MessageBatch) (bool, store.MessageBatch) { return false, b }}
	batch := store.MessageBatch{{Category: "orders", Message: []byte("x")}}

	results := fanOutHandleMessages(context.Background(), []store.Store{accepting, rejecting}, batch)
	if !results[0].ok || results[0].residual != nil {
		t.Errorf("results[0] = %+v, want ok=true, residual=nil", results[0])
	}
	if results[1].ok || len(results[1].residual) != 1 {
		t.Errorf("results[1] = %+v, want ok=false, residual=batch", results[1])
	}
}

func TestFanOutHandleMessagesPerChild_EmptySubBatchIsTrivialSuccessWithoutInvokingChild(t *testing.T) {
	invoked := false
	child := &fakeChildStore{handleFunc: func(b store.MessageBatch) (bool, store.MessageBatch) {
		invoked = true
		return true, nil
	}}
	results := fanOutHandleMessagesPerChild(context.Background(), []store.Store{child}, []store.MessageBatch{nil})
	if invoked {
		t.Error("child.HandleMessages was called for an empty sub-batch, want it skipped")
	}
	if !results[0].ok || results[0].residual != nil {
		t.Errorf("results[0] = %+v, want a trivial success", results[0])
	}
}

func TestFanOutHandleMessagesPerChild_NonEmptySubBatchIsDispatchedToItsChild(t *testing.T) {
	var gotFirst, gotSecond store.MessageBatch
	first := &fakeChildStore{handleFunc: func(b store.MessageBatch) (bool, store.MessageBatch) {
		gotFirst = b
		return true, nil
	}}
	second := &fakeChildStore{handleFunc: func(b store.MessageBatch) (bool, store.MessageBatch) {
		gotSecond = b
		return false, b
	}}
	batches := []store.MessageBatch{
		{{Category: "orders", Message: []byte("a")}},
		{{Category: "orders", Message: []byte("b")}},
	}
	results := fanOutHandleMessagesPerChild(context.Background(), []store.Store{first, second}, batches)
	if len(gotFirst) != 1 || string(gotFirst[0].Message) != "a" {
		t.Errorf("first child got %v, want batches[0]", gotFirst)
	}
	if len(gotSecond) != 1 || string(gotSecond[0].Message) != "b" {
		t.Errorf("second child got %v, want batches[1]", gotSecond)
	}
	if !results[0].ok || results[1].ok || len(results[1].residual) != 1 {
		t.Errorf("results = %+v, want [ok, rejected-with-residual]", results)
	}
}
