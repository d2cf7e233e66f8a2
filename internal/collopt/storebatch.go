package collopt

import (
	"context"
	"math/rand"

	"github.com/vexfs/vexfs-core/internal/vstore"
)

// StoreBatch implements the C7 contract `store_batch(context, vectors,
// inode, dtype, dims) -> [vector_id]` (spec §4.6). The layout tier is
// selected once from the batch size and drives how aggressively the batch
// is compressed: Standard stores vectors independently, Clustered groups
// similar vectors before picking per-cluster compression, Hierarchical
// processes tiered sub-batches with product quantization in the first
// tier, and Streaming yields cooperatively between small batches under
// maximum compression.
func (o *Optimizer) StoreBatch(ctx context.Context, vectors [][]float32, inode uint64, dtype vstore.DType, dims int) ([]uint64, error) {
	layout := SelectLayout(len(vectors))

	switch layout {
	case LayoutStandard:
		return o.storeStandard(ctx, vectors, inode, dtype, dims)
	case LayoutClustered:
		return o.storeClustered(ctx, vectors, inode, dtype, dims)
	case LayoutHierarchical:
		return o.storeHierarchical(ctx, vectors, inode, dtype, dims)
	default:
		return o.storeStreaming(ctx, vectors, inode, dtype, dims)
	}
}

// storeStandard stores each vector independently, letting the storage
// engine's own compression policy (spec §4.2) decide per vector.
func (o *Optimizer) storeStandard(ctx context.Context, vectors [][]float32, inode uint64, dtype vstore.DType, dims int) ([]uint64, error) {
	ids := make([]uint64, 0, len(vectors))
	for _, v := range vectors {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code := vstore.SelectCode(v, vstore.CompressionNone, false)
		id, err := o.store.Store(ctx, v, inode, dtype, dims, code)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// storeClustered stores the batch uncompressed first (so clustering can
// compare decompressed vectors the same way compact.go does), then
// recompresses each cluster per compressionFor and singles with 8-bit
// scalar quantization.
func (o *Optimizer) storeClustered(ctx context.Context, vectors [][]float32, inode uint64, dtype vstore.DType, dims int) ([]uint64, error) {
	ids, err := o.storeStandard(ctx, vectors, inode, dtype, dims)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(int64(inode)))
	result, err := o.clusterCollection(ctx, ids, rng)
	if err != nil {
		return ids, err
	}

	for _, cl := range result.Clusters {
		code := compressionFor(len(cl.Members))
		for _, id := range cl.Members {
			if ctx.Err() != nil {
				return ids, ctx.Err()
			}
			if err := o.recompress(ctx, id, code); err != nil {
				return ids, err
			}
		}
	}
	for _, id := range result.Singles {
		if ctx.Err() != nil {
			return ids, ctx.Err()
		}
		if err := o.recompress(ctx, id, vstore.CompressionScalarQuantize8); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// storeHierarchical processes vectors in fixed-size tiers; the first tier
// is stored under product quantization (amortizing the codebook over the
// whole batch), later tiers fall back to scalar quantization.
func (o *Optimizer) storeHierarchical(ctx context.Context, vectors [][]float32, inode uint64, dtype vstore.DType, dims int) ([]uint64, error) {
	ids := make([]uint64, 0, len(vectors))
	for start := 0; start < len(vectors); start += hierarchicalTierBatch {
		if ctx.Err() != nil {
			return ids, ctx.Err()
		}
		end := start + hierarchicalTierBatch
		if end > len(vectors) {
			end = len(vectors)
		}
		code := vstore.CompressionScalarQuantize8
		if start == 0 {
			code = vstore.CompressionProductQuantize
		}
		for _, v := range vectors[start:end] {
			id, err := o.store.Store(ctx, v, inode, dtype, dims, code)
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// storeStreaming processes the batch in small chunks under maximum
// compression, checking the context between chunks so the caller's
// cancellation token is honored and other work gets a chance to run
// (spec §4.6 "Streaming ... yielding cooperatively to other work").
func (o *Optimizer) storeStreaming(ctx context.Context, vectors [][]float32, inode uint64, dtype vstore.DType, dims int) ([]uint64, error) {
	ids := make([]uint64, 0, len(vectors))
	for start := 0; start < len(vectors); start += streamingBatch {
		if ctx.Err() != nil {
			return ids, ctx.Err()
		}
		end := start + streamingBatch
		if end > len(vectors) {
			end = len(vectors)
		}
		for _, v := range vectors[start:end] {
			code := vstore.SelectCode(v, vstore.CompressionProductQuantize, true)
			id, err := o.store.Store(ctx, v, inode, dtype, dims, code)
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
