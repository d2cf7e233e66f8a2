package vcache

import (
	"context"
	"testing"
)

func TestNamespaceInsertGet(t *testing.T) {
	ns := NewNamespace("vectors", Config{Capacity: 1024, Policy: PolicyLRU})
	ctx := context.Background()

	if err := ns.Insert(ctx, 1, []byte("hello"), 1.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, ok := ns.Get(1)
	if !ok {
		t.Fatal("expected hit")
	}
	if string(e.Bytes) != "hello" {
		t.Errorf("got %q", e.Bytes)
	}
}

func TestNamespaceEvictsLRUUnderCapacity(t *testing.T) {
	ns := NewNamespace("vectors", Config{Capacity: 10, Policy: PolicyLRU})
	ctx := context.Background()

	_ = ns.Insert(ctx, 1, []byte("12345"), 1.0)
	_ = ns.Insert(ctx, 2, []byte("12345"), 1.0)
	// id 1 becomes LRU relative to 2; inserting a third forces eviction.
	_ = ns.Insert(ctx, 3, []byte("12345"), 1.0)

	if _, ok := ns.Get(1); ok {
		t.Error("expected id 1 to have been evicted")
	}
	if _, ok := ns.Get(3); !ok {
		t.Error("expected id 3 to be present")
	}
}

func TestNamespacePinnedNeverEvicted(t *testing.T) {
	ns := NewNamespace("vectors", Config{Capacity: 10, Policy: PolicyLRU})
	ctx := context.Background()

	_ = ns.Insert(ctx, 1, []byte("12345"), 1.0)
	ns.Pin(1)
	_ = ns.Insert(ctx, 2, []byte("12345"), 1.0)
	_ = ns.Insert(ctx, 3, []byte("12345"), 1.0)

	if _, ok := ns.Get(1); !ok {
		t.Error("expected pinned id 1 to survive eviction pressure")
	}
}

func TestNamespaceWriteBackMarksDirtyAndFlushes(t *testing.T) {
	ns := NewNamespace("vectors", Config{Capacity: 1024, Policy: PolicyLRU, Coherence: CoherenceWriteBack})
	ctx := context.Background()

	_ = ns.Insert(ctx, 1, []byte("dirty"), 1.0)
	flushed := ns.FlushDirty()
	if len(flushed) != 1 || flushed[0].ID != 1 {
		t.Fatalf("expected one dirty entry for id 1, got %+v", flushed)
	}
	if again := ns.FlushDirty(); len(again) != 0 {
		t.Error("expected no dirty entries after flush")
	}
}

func TestNamespaceInvalidationModeDropsOnWrite(t *testing.T) {
	ns := NewNamespace("vectors", Config{Capacity: 1024, Policy: PolicyLRU, Coherence: CoherenceInvalidation})
	ctx := context.Background()

	if err := ns.Insert(ctx, 1, []byte("x"), 1.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ns.Get(1); ok {
		t.Error("expected invalidation-mode insert to not be cached")
	}
}

func TestNamespaceRejectsOversizedEntry(t *testing.T) {
	ns := NewNamespace("vectors", Config{Capacity: 4, Policy: PolicyLRU})
	if err := ns.Insert(context.Background(), 1, []byte("too big"), 1.0); err == nil {
		t.Error("expected error for entry exceeding capacity")
	}
}

func TestPrefetcherEnqueuesCoOccurring(t *testing.T) {
	p := NewPrefetcher(4)
	p.OnHit(1)
	p.OnHit(2)
	p.OnHit(1)
	p.OnHit(2)

	if len(p.queue) == 0 {
		t.Error("expected co-occurrence to enqueue predictions")
	}
}
