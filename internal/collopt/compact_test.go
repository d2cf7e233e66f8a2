package collopt

import (
	"context"
	"testing"

	"github.com/vexfs/vexfs-core/internal/vstore"
)

func TestCompactSkipsBelowFragmentationThreshold(t *testing.T) {
	opt, store := newTestOptimizer(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := store.Store(ctx, []float32{float32(i), 0}, 9, vstore.DTypeF32, 2, vstore.CompressionNone); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, err := opt.Compact(ctx, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Skipped {
		t.Error("expected compaction to be skipped when fragmentation is below threshold")
	}
}

func TestCompactRewritesOnFragmentation(t *testing.T) {
	opt, store := newTestOptimizer(t)
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < 6; i++ {
		id, err := store.Store(ctx, []float32{float32(i), 0, 1}, 3, vstore.DTypeF32, 3, vstore.CompressionNone)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids[:3] {
		if err := store.Delete(ctx, id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	opt.NoteDeletes(3, 3, 6)

	result, err := opt.Compact(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped {
		t.Error("expected compaction to run once fragmentation crosses the threshold")
	}
	if result.VectorsRewritten != 3 {
		t.Errorf("expected 3 surviving vectors rewritten, got %d", result.VectorsRewritten)
	}

	stats, err := opt.CollectionStats(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Fragmentation != 0 {
		t.Errorf("expected fragmentation reset after compaction, got %v", stats.Fragmentation)
	}
}
