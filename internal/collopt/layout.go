// Package collopt implements the Large-Collection Optimizer (C7): layout
// selection, clustering-aware compression, and crash-safe compaction for
// collections whose size crosses the thresholds spec §4.6 defines,
// reusing the Vector Storage Engine (C3) rather than duplicating it.
package collopt

import (
	"context"
	"fmt"
	"sync"

	"github.com/vexfs/vexfs-core/internal/simkernel"
	"github.com/vexfs/vexfs-core/internal/vstore"
)

// Layout identifies the storage layout tier selected for a collection
// (spec §4.6 "Layout selection").
type Layout int

const (
	LayoutStandard Layout = iota
	LayoutClustered
	LayoutHierarchical
	LayoutStreaming
)

func (l Layout) String() string {
	switch l {
	case LayoutStandard:
		return "standard"
	case LayoutClustered:
		return "clustered"
	case LayoutHierarchical:
		return "hierarchical"
	case LayoutStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Layout thresholds and clustering parameters from spec §4.6.
const (
	standardThreshold    = 1_000
	clusteredThreshold   = 10_000
	hierarchicalThreshold = 100_000

	clusterSimilarityThreshold = 0.8
	clusterSampleRatio         = 0.10
	clusterPQFloor             = 10

	fragmentationCompactThreshold = 0.3

	hierarchicalTierBatch = 1_000
	streamingBatch        = 256
)

// SelectLayout implements spec §4.6's count-based tier selection.
func SelectLayout(count int) Layout {
	switch {
	case count <= standardThreshold:
		return LayoutStandard
	case count <= clusteredThreshold:
		return LayoutClustered
	case count <= hierarchicalThreshold:
		return LayoutHierarchical
	default:
		return LayoutStreaming
	}
}

// CollectionStats summarizes an inode's stored vectors for layout and
// compaction decisions.
type CollectionStats struct {
	Inode         uint64
	VectorCount   int
	Layout        Layout
	Fragmentation float64
}

// Optimizer implements the C7 contract on top of a C3 Store.
type Optimizer struct {
	store  *vstore.Store
	kernel *simkernel.Kernel

	mu            sync.Mutex
	fragmentation map[uint64]float64
}

// New creates an Optimizer backed by store. Clustering always compares
// vectors by cosine similarity regardless of the collection's search metric
// (spec §4.6 "clustering threshold 0.8" is defined in cosine-similarity
// terms).
func New(store *vstore.Store) (*Optimizer, error) {
	kernel, err := simkernel.NewKernel(simkernel.Cosine)
	if err != nil {
		return nil, fmt.Errorf("collopt: %w", err)
	}
	return &Optimizer{store: store, kernel: kernel, fragmentation: make(map[uint64]float64)}, nil
}

// CollectionStats reports the current layout and tracked fragmentation for
// inode.
func (o *Optimizer) CollectionStats(ctx context.Context, inode uint64) (CollectionStats, error) {
	ids, err := o.store.ListByInode(ctx, inode)
	if err != nil {
		return CollectionStats{}, err
	}
	o.mu.Lock()
	frag := o.fragmentation[inode]
	o.mu.Unlock()
	return CollectionStats{
		Inode:         inode,
		VectorCount:   len(ids),
		Layout:        SelectLayout(len(ids)),
		Fragmentation: frag,
	}, nil
}
