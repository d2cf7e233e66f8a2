package vexfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexfs/vexfs-core/internal/knn"
	"github.com/vexfs/vexfs-core/internal/simkernel"
	"github.com/vexfs/vexfs-core/internal/vstore"
)

func newTestEngine(t *testing.T, dim int) *Engine {
	t.Helper()
	cfg := DefaultConfig(dim)
	cfg.TotalBlocks = 4096
	engine, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close(context.Background()) })
	return engine
}

func vec(vals ...float32) []float32 { return vals }

func TestEngineStoreGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, 3)

	id, err := engine.Store(ctx, vec(1, 0, 0), 42, vstore.DTypeF32, 3, vstore.CompressionNone)
	require.NoError(t, err)

	rec, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rec.Header.Inode)
	assert.Equal(t, []float32{1, 0, 0}, vstore.DecodeFloats(rec.Data))
}

func TestEngineSearchFindsNearestNeighbor(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, 3)

	near, err := engine.Store(ctx, vec(1, 0, 0), 1, vstore.DTypeF32, 3, vstore.CompressionNone)
	require.NoError(t, err)
	_, err = engine.Store(ctx, vec(0, 1, 0), 1, vstore.DTypeF32, 3, vstore.CompressionNone)
	require.NoError(t, err)
	_, err = engine.Store(ctx, vec(0, 0, 1), 1, vstore.DTypeF32, 3, vstore.CompressionNone)
	require.NoError(t, err)

	results, err := engine.Search(ctx, &knn.Query{
		Vector:   vec(0.9, 0.1, 0),
		K:        1,
		Metric:   simkernel.Cosine,
		EfSearch: 32,
		Scoring:  knn.ScoreDistanceOnly,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, near, results[0].VectorID)
}

func TestEngineDeleteRequiresAdminWhenOpMetaPresent(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, 3)

	id, err := engine.Store(ctx, vec(1, 0, 0), 1, vstore.DTypeF32, 3, vstore.CompressionNone)
	require.NoError(t, err)

	unauthorized := WithOpMeta(ctx, OpMeta{Admin: false})
	err = engine.Delete(unauthorized, id)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	authorized := WithOpMeta(ctx, OpMeta{Admin: true})
	err = engine.Delete(authorized, id)
	assert.NoError(t, err)

	_, err = engine.Get(ctx, id)
	assert.ErrorIs(t, err, vstore.ErrNotFound)
}

func TestEngineUpdateReindexesVector(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, 3)

	id, err := engine.Store(ctx, vec(1, 0, 0), 1, vstore.DTypeF32, 3, vstore.CompressionNone)
	require.NoError(t, err)

	require.NoError(t, engine.Update(ctx, id, vec(0, 1, 0), vstore.CompressionNone))

	rec, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vstore.DecodeFloats(rec.Data))

	results, err := engine.Search(ctx, &knn.Query{
		Vector:   vec(0, 1, 0),
		K:        1,
		Metric:   simkernel.Cosine,
		EfSearch: 32,
		Scoring:  knn.ScoreDistanceOnly,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].VectorID)
}
