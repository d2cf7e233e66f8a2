package hnsw

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexfs/vexfs-core/internal/simkernel"
)

// fakeVectorSource is an in-memory VectorSource for tests that don't need
// a real storage engine behind the graph.
type fakeVectorSource map[uint64][]float32

func (f fakeVectorSource) Get(_ context.Context, id uint64) ([]float32, error) {
	v, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("hnsw test: vector %d not found", id)
	}
	return v, nil
}

// TestGraphRecallOnBasisVectors is spec §8 seed scenario 2: build an HNSW
// index over 1000 standard-basis-plus-noise vectors in 16 dims and query
// each basis vector with cosine/k=1, expecting recall 1.0.
func TestGraphRecallOnBasisVectors(t *testing.T) {
	const dims = 16
	const total = 1000

	source := make(fakeVectorSource, total)
	rng := rand.New(rand.NewSource(42))

	// Standard basis vectors at ids 0..dims-1.
	for i := 0; i < dims; i++ {
		v := make([]float32, dims)
		v[i] = 1
		source[uint64(i)] = v
	}
	// Fill the remaining ids with random noise vectors.
	for id := dims; id < total; id++ {
		v := make([]float32, dims)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		source[uint64(id)] = v
	}

	cfg := Config{
		Dimension:      dims,
		M:              16,
		EfConstruction: 200,
		EfSearch:       200,
		Metric:         simkernel.Cosine,
	}
	g, err := NewGraph(cfg, source, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for id := uint64(0); id < total; id++ {
		require.NoError(t, g.Insert(ctx, id, source[id]))
	}

	hits := 0
	for i := 0; i < dims; i++ {
		results, err := g.Search(ctx, source[uint64(i)], 1, total)
		require.NoError(t, err)
		require.Len(t, results, 1)
		if results[0].VectorID == uint64(i) {
			hits++
		}
	}
	recall := float64(hits) / float64(dims)
	assert.Equal(t, 1.0, recall, "expected recall@1 = 1.0 querying exact basis vectors")
}

// TestWALCrashRecoveryDiscardsUncommittedEntry is spec §8 seed scenario 4:
// insert 10 vectors (committed), then simulate a crash immediately after
// appending an uncommitted insert-11 entry. On reopen the graph must
// contain exactly the 10 committed nodes.
func TestWALCrashRecoveryDiscardsUncommittedEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	walPath := filepath.Join(dir, "graph.wal")

	cfg := Config{Dimension: 3, M: 8, EfConstruction: 50, EfSearch: 10, Metric: simkernel.Euclidean}
	source := make(fakeVectorSource, 11)
	for id := uint64(1); id <= 11; id++ {
		source[id] = []float32{float32(id), float32(id) * 2, float32(id) * 3}
	}

	wal1, err := OpenWAL(walPath)
	require.NoError(t, err)

	g1, err := NewGraph(cfg, source, wal1)
	require.NoError(t, err)
	for id := uint64(1); id <= 10; id++ {
		require.NoError(t, g1.Insert(ctx, id, source[id]))
	}
	require.Equal(t, 10, g1.Size())

	// Simulate a crash mid-write: begin a transaction for vector 11 and
	// flush it to the file, but never commit it.
	tx, err := wal1.begin()
	require.NoError(t, err)
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], 11)
	require.NoError(t, wal1.append(tx, OpVectorInsert, payload[:]))
	require.NoError(t, wal1.w.Flush())
	require.NoError(t, wal1.f.Close())

	wal2, err := OpenWAL(walPath)
	require.NoError(t, err)
	g2, err := NewGraph(cfg, source, wal2)
	require.NoError(t, err)

	stats, err := g2.ApplyWAL(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, stats.TransactionsCommitted)
	assert.Equal(t, 1, stats.TransactionsDiscarded)
	assert.Equal(t, 10, g2.Size())
}

// TestValidateDetectsUnreachableLiveNode is a structural-integrity check
// (spec §8's "every live node reachable from the entry point" property):
// Validate must fail if a live node's only path from the entry point is
// severed.
func TestValidateDetectsUnreachableLiveNode(t *testing.T) {
	ctx := context.Background()
	source := fakeVectorSource{
		1: {0, 0, 0},
		2: {1, 0, 0},
		3: {2, 0, 0},
	}
	cfg := Config{Dimension: 3, M: 8, EfConstruction: 50, EfSearch: 10, Metric: simkernel.Euclidean}
	g, err := NewGraph(cfg, source, nil)
	require.NoError(t, err)
	for _, id := range []uint64{1, 2, 3} {
		require.NoError(t, g.Insert(ctx, id, source[id]))
	}
	require.NoError(t, g.Validate())

	// Force node 1 as the entry point regardless of which node the
	// hash-based level assignment happened to favor, and sever node 3's
	// only inbound edges, leaving it structurally unreachable.
	g.mu.Lock()
	g.entryIdx = g.idToIndex[1]
	g.hasEntry = true
	idx3 := g.idToIndex[3]
	for i, n := range g.nodes {
		if uint32(i) == idx3 {
			continue
		}
		for level := range n.Links {
			filtered := n.Links[level][:0]
			for _, neighbor := range n.Links[level] {
				if neighbor != idx3 {
					filtered = append(filtered, neighbor)
				}
			}
			n.Links[level] = filtered
		}
	}
	g.nodes[idx3].Links = make([][]uint32, len(g.nodes[idx3].Links))
	g.mu.Unlock()

	err = g.Validate()
	assert.Error(t, err)
}
