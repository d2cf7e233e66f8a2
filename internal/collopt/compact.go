package collopt

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/vexfs/vexfs-core/internal/vstore"
)

// CompactionResult reports what a Compact call did.
type CompactionResult struct {
	Inode           uint64
	LayoutBefore    Layout
	LayoutAfter     Layout
	ClustersFormed  int
	VectorsRewritten int
	Skipped         bool
}

// NoteDeletes records that n vectors were removed from inode since the last
// compaction, raising its tracked fragmentation estimate. The Store itself
// has no notion of "holes" (each delete frees its blocks immediately), so
// fragmentation here approximates the spec's intent: the fraction of an
// inode's historical vectors that are gone, which is what correlates with a
// layout becoming stale relative to the collection's current shape.
func (o *Optimizer) NoteDeletes(inode uint64, removed, total int) {
	if total <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fragmentation[inode] = float64(removed) / float64(total)
}

// Compact re-lays-out an inode's vectors when fragmentation has crossed the
// trigger threshold, clustering them and re-encoding each cluster with the
// compression compressionFor selects. Rewrites go through Store.Update, which
// already allocates-new-then-swaps the location entry atomically, so a crash
// mid-compaction leaves every vector's prior, valid copy in place (spec §4.6
// "compaction is crash-safe: the location map update is atomic").
func (o *Optimizer) Compact(ctx context.Context, inode uint64) (CompactionResult, error) {
	stats, err := o.CollectionStats(ctx, inode)
	if err != nil {
		return CompactionResult{}, err
	}
	if stats.Fragmentation < fragmentationCompactThreshold {
		return CompactionResult{Inode: inode, LayoutBefore: stats.Layout, LayoutAfter: stats.Layout, Skipped: true}, nil
	}

	ids, err := o.store.ListByInode(ctx, inode)
	if err != nil {
		return CompactionResult{}, err
	}

	rng := rand.New(rand.NewSource(int64(inode) ^ time.Now().UnixNano()))
	result, err := o.clusterCollection(ctx, ids, rng)
	if err != nil {
		return CompactionResult{}, fmt.Errorf("collopt: clustering failed for inode %d: %w", inode, err)
	}

	rewritten := 0
	for _, cl := range result.Clusters {
		code := compressionFor(len(cl.Members))
		for _, id := range cl.Members {
			if ctx.Err() != nil {
				return CompactionResult{}, ctx.Err()
			}
			if err := o.recompress(ctx, id, code); err != nil {
				continue
			}
			rewritten++
		}
	}
	for _, id := range result.Singles {
		if err := o.recompress(ctx, id, vstore.CompressionScalarQuantize8); err != nil {
			continue
		}
		rewritten++
	}

	o.mu.Lock()
	o.fragmentation[inode] = 0
	o.mu.Unlock()

	after := SelectLayout(len(ids))
	return CompactionResult{
		Inode:            inode,
		LayoutBefore:     stats.Layout,
		LayoutAfter:      after,
		ClustersFormed:   len(result.Clusters),
		VectorsRewritten: rewritten,
	}, nil
}

// recompress reads a vector back out and rewrites it with a new compression
// code via Store.Update, leaving dtype and inode untouched.
func (o *Optimizer) recompress(ctx context.Context, id uint64, code vstore.CompressionCode) error {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Header.Compression == code {
		return nil
	}
	data := vstore.DecodeFloats(rec.Data)
	return o.store.Update(ctx, id, data, code)
}
