package collopt

import (
	"context"
	"testing"

	"github.com/vexfs/vexfs-core/internal/vstore"
	"github.com/vexfs/vexfs-core/internal/vstore/block"
)

func newTestOptimizer(t *testing.T) (*Optimizer, *vstore.Store) {
	t.Helper()
	dev, err := block.NewMemory(512, 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	store := vstore.New(dev)
	opt, err := New(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return opt, store
}

func TestSelectLayout(t *testing.T) {
	tests := []struct {
		count int
		want  Layout
	}{
		{0, LayoutStandard},
		{1_000, LayoutStandard},
		{1_001, LayoutClustered},
		{10_000, LayoutClustered},
		{10_001, LayoutHierarchical},
		{100_000, LayoutHierarchical},
		{100_001, LayoutStreaming},
	}
	for _, tt := range tests {
		if got := SelectLayout(tt.count); got != tt.want {
			t.Errorf("SelectLayout(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestCollectionStats(t *testing.T) {
	opt, store := newTestOptimizer(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Store(ctx, []float32{float32(i), 0}, 1, vstore.DTypeF32, 2, vstore.CompressionNone); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	stats, err := opt.CollectionStats(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.VectorCount != 5 {
		t.Errorf("expected 5 vectors, got %d", stats.VectorCount)
	}
	if stats.Layout != LayoutStandard {
		t.Errorf("expected standard layout, got %v", stats.Layout)
	}
}
