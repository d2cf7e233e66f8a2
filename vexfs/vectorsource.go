package vexfs

import (
	"context"

	"github.com/vexfs/vexfs-core/internal/vstore"
)

// storeSource adapts *vstore.Store to hnsw.VectorSource so the graph can
// fetch a vector's float32 data by id without keeping its own duplicate
// copy (spec §4.4 "the graph holds no vector data of its own").
type storeSource struct {
	store *vstore.Store
}

func (s storeSource) Get(ctx context.Context, id uint64) ([]float32, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return vstore.DecodeFloats(rec.Data), nil
}
