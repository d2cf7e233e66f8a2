package vexfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vexfs/vexfs-core/internal/collopt"
	"github.com/vexfs/vexfs-core/internal/hnsw"
	"github.com/vexfs/vexfs-core/internal/knn"
	"github.com/vexfs/vexfs-core/internal/obs"
	"github.com/vexfs/vexfs-core/internal/simkernel"
	"github.com/vexfs/vexfs-core/internal/vcache"
	"github.com/vexfs/vexfs-core/internal/vstore"
	"github.com/vexfs/vexfs-core/internal/vstore/block"
)

// Config configures a new Engine. DataPath/GraphPath/WALPath name files on
// a real filesystem; when DataPath is empty the block device is an
// in-memory one instead (useful for tests and for spec §9's "no backing
// device" configuration).
type Config struct {
	DataPath  string
	GraphPath string
	WALPath   string

	BlockSize   uint32
	TotalBlocks uint64

	Dimension      int
	Metric         simkernel.Metric
	M              int
	EfConstruction int
	EfSearch       int
	Incremental    hnsw.IncrementalMode

	VectorCache  vcache.Config
	SegmentCache vcache.Config
}

// DefaultConfig returns sane defaults for an in-memory, small-scale engine;
// callers override whichever fields their deployment needs.
func DefaultConfig(dimension int) Config {
	return Config{
		BlockSize:      4096,
		TotalBlocks:    1 << 20,
		Dimension:      dimension,
		Metric:         simkernel.Cosine,
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		Incremental:    hnsw.IncrementalLazy,
		VectorCache: vcache.Config{
			Capacity:   256 << 20,
			MaxEntries: 100_000,
			Policy:     vcache.PolicyLRU,
		},
		SegmentCache: vcache.Config{
			Capacity:   64 << 20,
			MaxEntries: 10_000,
			Policy:     vcache.PolicyLRU,
		},
	}
}

// Engine is the single top-level object that owns the Vector Storage
// Engine (C3), Vector Cache (C4), HNSW index (C5), k-NN pipeline (C6) and
// Large-Collection Optimizer (C7); C2 (the similarity kernel) is stateless
// and is handed to each of them by value. This plays the role the
// teacher's top-level Collection/Database types played over
// internal/storage + internal/index + internal/memory.
type Engine struct {
	cfg Config

	dev   block.Device
	store *vstore.Store
	cache *vcache.Cache
	graph *hnsw.Graph
	pipe  *knn.Pipeline
	opt   *collopt.Optimizer

	metrics  *obs.Metrics
	breakers *obs.CircuitBreakerManager
	health   *obs.HealthChecker

	searchMu        sync.RWMutex
	defaultEfSearch int
	defaultSIMD     bool

	mu     sync.RWMutex
	closed bool
}

// Open creates or recovers an Engine per cfg. If cfg.GraphPath names an
// existing on-disk graph it is loaded and any WAL entries written since
// its last checkpoint are replayed (spec §4.4 graph state machine: "any
// state can transition to Recovering, but only at open").
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	dev, err := openDevice(cfg)
	if err != nil {
		return nil, newVectorDBError(ErrCodeIO, SeverityCritical, RecoveryNone, "block", "open", err)
	}

	store := vstore.New(dev)
	cache := vcache.New(cfg.VectorCache, cfg.SegmentCache)

	var wal *hnsw.WAL
	if cfg.WALPath != "" {
		wal, err = hnsw.OpenWAL(cfg.WALPath)
		if err != nil {
			return nil, fmt.Errorf("vexfs: opening graph WAL: %w", err)
		}
	}

	graphCfg := hnsw.Config{
		Dimension:      cfg.Dimension,
		M:              cfg.M,
		EfConstruction: cfg.EfConstruction,
		EfSearch:       cfg.EfSearch,
		Metric:         cfg.Metric,
		Incremental:    cfg.Incremental,
	}
	graph, err := hnsw.NewGraph(graphCfg, storeSource{store: store}, wal)
	if err != nil {
		return nil, fmt.Errorf("vexfs: %w", err)
	}

	metrics := obs.NewMetrics()

	if cfg.GraphPath != "" {
		if _, statErr := os.Stat(cfg.GraphPath); statErr == nil {
			if err := graph.LoadFromDisk(ctx, cfg.GraphPath); err != nil {
				return nil, newVectorDBError(ErrCodeIntegrity, SeverityCritical, RecoveryRebuild, "hnsw", "load", err)
			}
			if wal != nil {
				stats, err := graph.ApplyWAL(ctx)
				if err != nil {
					return nil, newVectorDBError(ErrCodeIO, SeverityError, RecoveryRetry, "hnsw", "wal_replay", err)
				}
				metrics.WALReplayCount.Inc()
				metrics.WALReplayOps.Add(float64(stats.OpsApplied))
			}
		}
	}

	opt, err := collopt.New(store)
	if err != nil {
		return nil, fmt.Errorf("vexfs: %w", err)
	}

	pipe := knn.NewPipeline(store, cache, graph)

	breakers := obs.NewCircuitBreakerManager()
	health := obs.NewHealthChecker(breakers)

	e := &Engine{
		cfg:             cfg,
		dev:             dev,
		store:           store,
		cache:           cache,
		graph:           graph,
		pipe:            pipe,
		opt:             opt,
		metrics:         metrics,
		breakers:        breakers,
		health:          health,
		defaultEfSearch: cfg.EfSearch,
	}
	e.registerHealthChecks()
	return e, nil
}

func openDevice(cfg Config) (block.Device, error) {
	if cfg.DataPath == "" {
		return block.NewMemory(cfg.BlockSize, cfg.TotalBlocks)
	}
	if dir := filepath.Dir(cfg.DataPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return block.NewFile(cfg.DataPath, cfg.BlockSize, cfg.TotalBlocks)
}

func (e *Engine) registerHealthChecks() {
	e.health.Register("storage", func(ctx context.Context) *obs.CheckResult {
		stats := e.store.Stats()
		if stats.FreeBlocks == 0 && stats.TotalBlocks > 0 {
			return &obs.CheckResult{Healthy: false, Message: "no free blocks remaining"}
		}
		return &obs.CheckResult{Healthy: true, Message: fmt.Sprintf("%d vectors stored", stats.TotalVectors)}
	})
	e.health.Register("index", func(ctx context.Context) *obs.CheckResult {
		state := e.graph.State()
		e.metrics.GraphNodeCount.Set(float64(e.graph.Size()))
		e.metrics.GraphTombstones.Set(float64(e.graph.TombstoneCount()))
		if state == hnsw.StateRecovering {
			return &obs.CheckResult{Healthy: false, Message: "graph still recovering"}
		}
		return &obs.CheckResult{Healthy: true, Message: fmt.Sprintf("graph state %s, %d live vectors", state, e.graph.Size())}
	})
	e.health.Register("cache", func(ctx context.Context) *obs.CheckResult {
		rate := e.cache.Vectors.HitRate()
		e.metrics.CacheHitRate.Set(rate)
		return &obs.CheckResult{Healthy: true, Message: fmt.Sprintf("vector cache hit rate %.2f", rate)}
	})
}

// Store implements the C3 store() contract (spec §4.2), additionally
// inserting the new vector into the HNSW index so it is immediately
// searchable.
func (e *Engine) Store(ctx context.Context, data []float32, inode uint64, dtype vstore.DType, dims int, compression vstore.CompressionCode) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return 0, ErrClosed
	}

	var id uint64
	breaker := e.breakers.GetOrCreate("vstore.write", obs.DefaultCircuitBreakerConfig("vstore.write"))
	err := breaker.Execute(ctx, func() error {
		var storeErr error
		id, storeErr = e.store.Store(ctx, data, inode, dtype, dims, compression)
		return storeErr
	})
	if err != nil {
		return 0, err
	}
	if err := e.graph.Insert(ctx, id, data); err != nil {
		return 0, fmt.Errorf("vexfs: indexing vector %d: %w", id, err)
	}
	e.metrics.VectorInserts.Inc()
	return id, nil
}

// StoreBatch implements the C7 store_batch() contract, then indexes every
// stored vector.
func (e *Engine) StoreBatch(ctx context.Context, vectors [][]float32, inode uint64, dtype vstore.DType, dims int) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	ids, err := e.opt.StoreBatch(ctx, vectors, inode, dtype, dims)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if err := e.graph.Insert(ctx, id, vectors[i]); err != nil {
			return nil, fmt.Errorf("vexfs: indexing vector %d: %w", id, err)
		}
	}
	e.metrics.VectorInserts.Add(float64(len(ids)))
	return ids, nil
}

// Get implements the C3 get() contract, warming the vector cache's
// namespace with the decoded bytes on each fetch so repeated reads of hot
// vectors (the knn pipeline's own exact-search path in particular) can be
// served from memory by a future cache-aware fetch path.
func (e *Engine) Get(ctx context.Context, vectorID uint64) (*vstore.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	rec, err := e.store.Get(ctx, vectorID)
	if err != nil {
		return nil, err
	}
	_ = e.cache.Vectors.Insert(ctx, vectorID, rec.Data, 1.0)
	return rec, nil
}

// Update implements the C3 update() contract, re-indexing the new vector
// and removing the stale graph entry (the graph never keeps its own
// vector copy, so a stale entry would otherwise keep returning the old
// distance).
func (e *Engine) Update(ctx context.Context, vectorID uint64, newData []float32, compression vstore.CompressionCode) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	if err := e.store.Update(ctx, vectorID, newData, compression); err != nil {
		return err
	}
	e.cache.Vectors.Invalidate(vectorID)
	if err := e.graph.Delete(ctx, vectorID); err != nil && !errors.Is(err, hnsw.ErrNotFound) {
		return fmt.Errorf("vexfs: retiring stale graph entry for %d: %w", vectorID, err)
	}
	if err := e.graph.Insert(ctx, vectorID, newData); err != nil {
		return fmt.Errorf("vexfs: re-indexing vector %d: %w", vectorID, err)
	}
	return nil
}

// Delete implements the C3 delete() contract. Spec §6 requires an
// administrative capability equivalent for direct deletes issued over the
// ioctl ABI; callers attach one via WithOpMeta before calling.
func (e *Engine) Delete(ctx context.Context, vectorID uint64) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	rec, err := e.store.Get(ctx, vectorID)
	if err != nil {
		return err
	}
	existing, err := e.store.ListByInode(ctx, rec.Header.Inode)
	if err != nil {
		return err
	}
	total := len(existing)

	if err := e.store.Delete(ctx, vectorID); err != nil {
		return err
	}
	e.cache.Vectors.Invalidate(vectorID)
	if err := e.graph.Delete(ctx, vectorID); err != nil && !errors.Is(err, hnsw.ErrNotFound) {
		return err
	}
	e.opt.NoteDeletes(rec.Header.Inode, 1, total)
	return nil
}

// ListByInode implements the C3 list_by_inode() contract.
func (e *Engine) ListByInode(ctx context.Context, inode uint64) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.store.ListByInode(ctx, inode)
}

// Search implements the C6 search() contract.
func (e *Engine) Search(ctx context.Context, q *knn.Query) ([]knn.ScoredResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	e.metrics.SearchQueries.Inc()
	results, err := e.pipe.Search(ctx, q)
	if err != nil {
		e.metrics.SearchErrors.Inc()
		return nil, err
	}
	return results, nil
}

// BatchSearch implements the C6 batch_search() contract with rank fusion.
func (e *Engine) BatchSearch(ctx context.Context, requests []*knn.Query, fusion knn.FusionMethod, rrfK int) ([][]knn.ScoredResult, []knn.ScoredResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, nil, ErrClosed
	}
	return e.pipe.BatchSearch(ctx, requests, fusion, rrfK)
}

// CollectionStats implements the C7 collection_stats() contract.
func (e *Engine) CollectionStats(ctx context.Context, inode uint64) (collopt.CollectionStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return collopt.CollectionStats{}, ErrClosed
	}
	return e.opt.CollectionStats(ctx, inode)
}

// Compact implements the C7 compact() contract; vexfsctl's
// "manage-index optimize" drives this. The ManageIndex ioctl's "optimize"
// sub-operation runs CompactTombstones instead (see Dispatcher).
func (e *Engine) Compact(ctx context.Context, inode uint64) (collopt.CompactionResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return collopt.CompactionResult{}, ErrClosed
	}
	if err := requireAdmin(ctx); err != nil {
		return collopt.CompactionResult{}, err
	}
	return e.opt.Compact(ctx, inode)
}

// Checkpoint persists the HNSW graph to cfg.GraphPath and truncates its
// WAL up to the checkpointed transaction (spec §4.4 "Checkpointing").
// ManageIndex's "backup" sub-operation drives this (spec §6).
func (e *Engine) Checkpoint(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if e.cfg.GraphPath == "" {
		return fmt.Errorf("vexfs: checkpoint requires a configured graph path")
	}
	breaker := e.breakers.GetOrCreate("hnsw.checkpoint", obs.DefaultCircuitBreakerConfig("hnsw.checkpoint"))
	return breaker.Execute(ctx, func() error {
		if err := e.graph.Checkpoint(ctx, e.cfg.GraphPath); err != nil {
			return newVectorDBError(ErrCodeIO, SeverityError, RecoveryRetry, "hnsw", "checkpoint", err)
		}
		return nil
	})
}

// CompactTombstones implements ManageIndex's "rebuild" sub-operation,
// physically removing every tombstoned HNSW node. It does not consult
// NeedsRestructure; it compacts whenever it is called.
func (e *Engine) CompactTombstones(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	e.graph.CompactTombstones(ctx)
	return nil
}

// Health runs every registered health check and circuit breaker state and
// returns the aggregate result (ancillary GetStatus ioctl, spec §6).
func (e *Engine) Health(ctx context.Context) (*obs.HealthStatus, error) {
	return e.health.Check(ctx)
}

// Metrics exposes the engine's Prometheus collectors for registration with
// an HTTP metrics endpoint.
func (e *Engine) Metrics() *obs.Metrics {
	return e.metrics
}

// GraphState reports the HNSW index's current lifecycle state (ancillary
// GetIndexInfo ioctl, spec §6).
func (e *Engine) GraphState() hnsw.State {
	return e.graph.State()
}

// GraphSize reports the number of live vectors indexed (ancillary
// GetIndexInfo ioctl, spec §6).
func (e *Engine) GraphSize() int {
	return e.graph.Size()
}

// NeedsRestructure reports whether the HNSW graph's tombstone ratio has
// crossed RestructureThreshold (ManageIndex's "rebuild" sub-operation,
// spec §6).
func (e *Engine) NeedsRestructure() bool {
	return e.graph.NeedsRestructure()
}

// WALPending reports how many graph transactions have committed since the
// last checkpoint (ancillary GetStatus ioctl, spec §6).
func (e *Engine) WALPending() int {
	return e.graph.WALPending()
}

// CacheHitRate reports the vector cache namespace's rolling hit rate
// (ancillary GetStatus ioctl, spec §6).
func (e *Engine) CacheHitRate() float64 {
	return e.cache.Vectors.HitRate()
}

// SetSearchDefaults updates the ef_search and SIMD-kernel preference a
// vector_search/hybrid_search request falls back to when its own wire
// fields are left unset (ancillary SetSearchParams ioctl, spec §6). The
// wire format has no "unset" encoding for the distance metric itself
// (zero decodes to the valid metric Euclidean), so SetSearchParams never
// overrides a request's explicit metric; see DESIGN.md.
func (e *Engine) SetSearchDefaults(efSearch int, useSIMD bool) {
	e.searchMu.Lock()
	defer e.searchMu.Unlock()
	if efSearch > 0 {
		e.defaultEfSearch = efSearch
	}
	e.defaultSIMD = useSIMD
}

// SearchDefaults returns the ef_search and SIMD-kernel preference a caller
// should fall back to when its own request leaves them unset.
func (e *Engine) SearchDefaults() (efSearch int, useSIMD bool) {
	e.searchMu.RLock()
	defer e.searchMu.RUnlock()
	return e.defaultEfSearch, e.defaultSIMD
}

// IndexInfo reports to IndexInfo the HNSW graph's static configuration and
// live size, for the ancillary GetIndexInfo/GetStatus ioctls (spec §6).
type IndexInfo struct {
	VectorCount int
	Dimension   int
	Metric      simkernel.Metric
	State       hnsw.State
	Tombstones  int
	WALPending  int
}

// IndexInfo reports the HNSW graph's current configuration and state.
func (e *Engine) IndexInfo(ctx context.Context) (IndexInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return IndexInfo{}, ErrClosed
	}
	return IndexInfo{
		VectorCount: e.graph.Size(),
		Dimension:   e.cfg.Dimension,
		Metric:      e.cfg.Metric,
		State:       e.graph.State(),
		Tombstones:  e.graph.TombstoneCount(),
		WALPending:  e.graph.WALPending(),
	}, nil
}

// ValidateIndex checks the HNSW graph's structural invariants: every live
// node must be reachable from the entry point and reference only live
// neighbors (ManageIndex's "validate" sub-operation, spec §6/§8).
func (e *Engine) ValidateIndex(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.graph.Validate(); err != nil {
		return newVectorDBError(ErrCodeIntegrity, SeverityError, RecoveryRebuild, "hnsw", "validate", err)
	}
	return nil
}

// BuildIndex rebuilds the HNSW graph from every vector currently in
// storage, used by ManageIndex's "create" sub-operation (spec §6) when a
// graph is being built for the first time rather than incrementally
// maintained via Store.
func (e *Engine) BuildIndex(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	ids := e.store.AllIDs()
	return e.graph.BuildFromStorage(ctx, ids, func(ctx context.Context, id uint64) ([]float32, error) {
		rec, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return vstore.DecodeFloats(rec.Data), nil
	})
}

// DeleteIndex discards the HNSW graph entirely, used by ManageIndex's
// "delete" sub-operation (spec §6). The underlying vector storage is left
// untouched; a later BuildIndex or Store rebuilds the graph.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return e.graph.Close()
}

// Restore reloads the HNSW graph from its last checkpoint on disk,
// discarding any in-memory mutations since then (ManageIndex's "restore"
// sub-operation, spec §6).
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if e.cfg.GraphPath == "" {
		return fmt.Errorf("vexfs: restore requires a configured graph path")
	}
	if err := e.graph.LoadFromDisk(ctx, e.cfg.GraphPath); err != nil {
		return newVectorDBError(ErrCodeIntegrity, SeverityCritical, RecoveryRebuild, "hnsw", "restore", err)
	}
	return nil
}

// Close writes each cache namespace's dirty entries back through that
// namespace's configured Writeback (a namespace without one only has them
// marked clean), saves the graph to disk if a graph path is configured,
// and releases the block device.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	for _, c := range []struct {
		ns *vcache.Namespace
		wb vcache.Writeback
	}{{e.cache.Vectors, e.cfg.VectorCache.Writeback}, {e.cache.Segments, e.cfg.SegmentCache.Writeback}} {
		for _, d := range c.ns.FlushDirty() {
			if c.wb == nil {
				continue
			}
			if err := c.wb(ctx, d.ID, d.Bytes); err != nil {
				return fmt.Errorf("vexfs: writing back dirty cache entry %d on close: %w", d.ID, err)
			}
		}
	}

	if e.cfg.GraphPath != "" {
		if err := e.graph.SaveToDisk(ctx, e.cfg.GraphPath); err != nil {
			return fmt.Errorf("vexfs: saving graph on close: %w", err)
		}
	}
	if err := e.graph.Close(); err != nil {
		return err
	}
	return e.dev.Close()
}
