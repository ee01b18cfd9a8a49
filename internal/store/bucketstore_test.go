package store

import (
	"context"
	"testing"

	"github.com/jittakal/logaggregator/pkg/store"
)

func TestBucketStore_BucketOfKeyHashIsStableForSameKey(t *testing.T) {
	bs := NewBucketStore([]store.Store{&fakeChildStore{}, &fakeChildStore{}, &fakeChildStore{}})

	b1, key1, had1 := bs.bucketOf([]byte("user-42\tclicked"))
	b2, key2, had2 := bs.bucketOf([]byte("user-42\tviewed"))

	if !had1 || !had2 {
		t.Fatal("expected both messages to report a delimiter")
	}
	if string(key1) != "user-42" || string(key2) != "user-42" {
		t.Fatalf("extracted keys = %q, %q, want both %q", key1, key2, "user-42")
	}
	if b1 != b2 {
		t.Errorf("bucketOf placed identical keys in different buckets: %d vs %d", b1, b2)
	}
}

func TestBucketStore_BucketOfNoDelimiterGoesToBucketZero(t *testing.T) {
	bs := NewBucketStore([]store.Store{&fakeChildStore{}, &fakeChildStore{}})
	bucket, key, had := bs.bucketOf([]byte("no-delimiter-here"))
	if had {
		t.Error("had = true, want false for a message with no delimiter")
	}
	if bucket != 0 || key != nil {
		t.Errorf("bucketOf() = (%d, %q), want (0, nil)", bucket, key)
	}
}

func TestBucketStore_BucketOfKeyModulo(t *testing.T) {
	bs := NewBucketStore([]store.Store{&fakeChildStore{}, &fakeChildStore{}, &fakeChildStore{}})
	if err := bs.Configure(store.ConfigOptions{"bucketizer_type": "key_modulo"}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	bucket, key, had := bs.bucketOf([]byte("5\tpayload"))
	if !had || string(key) != "5" {
		t.Fatalf("bucketOf() key = (%q, %v), want (\"5\", true)", key, had)
	}
	if bucket != 5%3 {
		t.Errorf("bucket = %d, want %d", bucket, 5%3)
	}
}

func TestBucketStore_ConfigureRejectsUnknownBucketizer(t *testing.T) {
	bs := NewBucketStore(nil)
	if err := bs.Configure(store.ConfigOptions{"bucketizer_type": "nonsense"}); err == nil {
		t.Error("Configure() returned nil, want an error for an unrecognized bucketizer_type")
	}
}

func TestBucketStore_HandleMessagesRemovesKeyWhenConfigured(t *testing.T) {
	var captured store.MessageBatch
	child := &fakeChildStore{
		handleFunc: func(b store.MessageBatch) (bool, store.MessageBatch) {
			captured = b
			return true, nil
		},
	}
	bs := NewBucketStore([]store.Store{child})
	if err := bs.Configure(store.ConfigOptions{"remove_key": "true"}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch := store.MessageBatch{{Category: "orders", Message: []byte("user-1\thello")}}
	ok, residual := bs.HandleMessages(context.Background(), batch)
	if !ok || residual != nil {
		t.Fatalf("HandleMessages() = (%v, %v), want (true, nil)", ok, residual)
	}
	if len(captured) != 1 || string(captured[0].Message) != "hello" {
		t.Errorf("child received %v, want message with key stripped to %q", captured, "hello")
	}
}

func TestBucketStore_HandleMessagesAggregatesResidualsFromFailingChildren(t *testing.T) {
	// key_modulo with two children makes the bucket assignment
	// deterministic: key "0" always lands on child index 0, key "1" on
	// child index 1.
	reject := func(b store.MessageBatch) (bool, store.MessageBatch) { return false, b }
	children := []store.Store{
		&fakeChildStore{handleFunc: reject},
		&fakeChildStore{},
	}
	bs := NewBucketStore(children)
	if err := bs.Configure(store.ConfigOptions{"bucketizer_type": "key_modulo"}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch := store.MessageBatch{
		{Category: "orders", Message: []byte("0\tone")},
		{Category: "orders", Message: []byte("1\ttwo")},
	}
	ok, residual := bs.HandleMessages(context.Background(), batch)
	if ok {
		t.Error("HandleMessages() ok = true, want false since bucket 0 rejected")
	}
	if len(residual) != 1 {
		t.Fatalf("residual length = %d, want 1 (bucket 0's entry)", len(residual))
	}
	if string(residual[0].Message) != "0\tone" {
		t.Errorf("residual = %v, want the entry routed to the rejecting bucket", residual)
	}
}

func TestBucketStore_CopyForCategoryPreservesConfig(t *testing.T) {
	bs := NewBucketStore([]store.Store{&fakeChildStore{}})
	if err := bs.Configure(store.ConfigOptions{"bucketizer_type": "key_modulo", "remove_key": "true", "delimiter": "|"}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	copied, err := bs.CopyForCategory("clickstream")
	if err != nil {
		t.Fatalf("CopyForCategory returned error: %v", err)
	}
	clone, ok := copied.(*BucketStore)
	if !ok {
		t.Fatalf("CopyForCategory returned %T, want *BucketStore", copied)
	}
	if clone.bucketizer != bucketizerKeyModulo || !clone.removeKey || clone.delimiter != '|' {
		t.Errorf("clone config = %+v, want preserved bucketizer/removeKey/delimiter", clone)
	}
}
