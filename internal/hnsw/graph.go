package hnsw

import (
	"context"
	"fmt"
	"sync"

	"github.com/vexfs/vexfs-core/internal/simkernel"
)

// State is the graph's lifecycle state machine: Empty -> Building ->
// Ready <-> Updating -> Checkpointing -> Ready, with any state able to
// transition to Recovering, but only at open time.
type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
	StateUpdating
	StateCheckpointing
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateUpdating:
		return "updating"
	case StateCheckpointing:
		return "checkpointing"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// IncrementalMode selects how queued updates are folded into the live
// graph: lazy defers restructuring until the ratio of pending mutations
// crosses RestructureThreshold; eager restructures on every call.
type IncrementalMode int

const (
	IncrementalLazy IncrementalMode = iota
	IncrementalEager
)

// VectorSource fetches the float32 vector backing a vector id from the
// storage engine (C3); the graph never keeps its own duplicate copy.
type VectorSource interface {
	Get(ctx context.Context, id uint64) ([]float32, error)
}

// Config configures a Graph at construction time.
type Config struct {
	Dimension            int
	M                    int
	EfConstruction       int
	EfSearch             int
	Metric               simkernel.Metric
	Incremental          IncrementalMode
	RestructureThreshold float64
}

func (c *Config) validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("hnsw: dimension must be positive")
	}
	if c.M <= 0 {
		return fmt.Errorf("hnsw: M must be positive")
	}
	if c.EfConstruction <= 0 {
		return fmt.Errorf("hnsw: ef_construction must be positive")
	}
	if c.EfSearch <= 0 {
		return fmt.Errorf("hnsw: ef_search must be positive")
	}
	if c.RestructureThreshold <= 0 {
		c.RestructureThreshold = 0.1
	}
	return nil
}

// Graph implements the HNSW approximate nearest-neighbor index (C5).
type Graph struct {
	mu     sync.RWMutex
	cfg    Config
	kernel *simkernel.Kernel
	source VectorSource

	nodes      []*Node
	idToIndex  map[uint64]uint32
	entryIdx   uint32
	hasEntry   bool
	maxLevel   int
	size       int
	tombstoned int
	state      State

	wal *WAL
}

// entryNode returns the current entry point node, or nil if the graph is
// empty.
func (g *Graph) entryNode() *Node {
	if !g.hasEntry {
		return nil
	}
	return g.nodes[g.entryIdx]
}

// NewGraph creates an empty graph in state Empty.
func NewGraph(cfg Config, source VectorSource, wal *WAL) (*Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	kernel, err := simkernel.NewKernel(cfg.Metric)
	if err != nil {
		return nil, fmt.Errorf("hnsw: %w", err)
	}
	return &Graph{
		cfg:       cfg,
		kernel:    kernel,
		source:    source,
		idToIndex: make(map[uint64]uint32),
		state:     StateEmpty,
		wal:       wal,
	}, nil
}

// State reports the graph's current lifecycle state.
func (g *Graph) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Size returns the number of live (non-tombstoned) vectors in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.size - g.tombstoned
}

// Insert adds id with the given vector to the graph. It delegates the
// connection algorithm to insertNode.
func (g *Graph) Insert(ctx context.Context, id uint64, vector []float32) error {
	if len(vector) != g.cfg.Dimension {
		return fmt.Errorf("hnsw: vector dimension %d does not match graph dimension %d", len(vector), g.cfg.Dimension)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.idToIndex[id]; exists {
		return fmt.Errorf("hnsw: vector id %d already present", id)
	}

	if g.wal != nil {
		if err := g.wal.LogInsert(id); err != nil {
			return fmt.Errorf("hnsw: wal append failed: %w", err)
		}
	}

	prevState := g.state
	g.state = StateUpdating

	level := assignLevel(id)
	node := newNode(id, level, g.cfg.M)
	nodeIdx := uint32(len(g.nodes))
	g.nodes = append(g.nodes, node)
	g.idToIndex[id] = nodeIdx

	if !g.hasEntry {
		g.entryIdx = nodeIdx
		g.hasEntry = true
		g.maxLevel = level
		g.size++
		if prevState == StateBuilding {
			g.state = StateBuilding
		} else {
			g.state = StateReady
		}
		return nil
	}

	if err := g.insertNode(ctx, node, nodeIdx, vector); err != nil {
		g.nodes = g.nodes[:len(g.nodes)-1]
		delete(g.idToIndex, id)
		g.state = prevState
		return fmt.Errorf("hnsw: insert failed: %w", err)
	}

	g.size++
	if level > g.maxLevel {
		g.entryIdx = nodeIdx
		g.maxLevel = level
	}
	if prevState == StateBuilding {
		g.state = StateBuilding
	} else {
		g.state = StateReady
	}
	return nil
}

// BuildFromStorage batch-inserts every (id, vector) pair in order, used to
// construct a graph from an existing storage engine listing. The graph
// stays in StateBuilding until every id is inserted, so a caller observing
// State mid-build sees StateBuilding; it then moves to StateReady.
const buildBatchSize = 1000

func (g *Graph) BuildFromStorage(ctx context.Context, ids []uint64, fetch func(ctx context.Context, id uint64) ([]float32, error)) error {
	g.mu.Lock()
	g.state = StateBuilding
	g.mu.Unlock()

	for i, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		vec, err := fetch(ctx, id)
		if err != nil {
			return fmt.Errorf("hnsw: fetch vector %d: %w", id, err)
		}
		if err := g.Insert(ctx, id, vec); err != nil {
			return err
		}
		if (i+1)%buildBatchSize == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	g.mu.Lock()
	g.state = StateReady
	g.mu.Unlock()
	return nil
}

// Delete logically removes id: it is tombstoned immediately and excluded
// from future search results and neighbor selection, but its edges are
// only physically removed by CompactTombstones, which the next Checkpoint
// runs.
func (g *Graph) Delete(ctx context.Context, id uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.idToIndex[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	node := g.nodes[idx]
	if node.Tombstone {
		return nil
	}

	if g.wal != nil {
		if err := g.wal.LogDelete(id); err != nil {
			return fmt.Errorf("hnsw: wal append failed: %w", err)
		}
	}

	node.Tombstone = true
	g.tombstoned++
	delete(g.idToIndex, id)

	if g.hasEntry && g.entryIdx == idx {
		g.replaceEntryPoint(idx)
	}
	return nil
}

func (g *Graph) replaceEntryPoint(excludeIdx uint32) {
	bestIdx := uint32(0)
	found := false
	bestLevel := -1
	for i, n := range g.nodes {
		if uint32(i) == excludeIdx || n == nil || n.Tombstone {
			continue
		}
		if n.Level > bestLevel {
			bestLevel = n.Level
			bestIdx = uint32(i)
			found = true
		}
	}
	g.hasEntry = found
	if found {
		g.entryIdx = bestIdx
		g.maxLevel = bestLevel
	} else {
		g.maxLevel = 0
	}
}

// restructureRatio reports the fraction of nodes that are tombstoned,
// compared against RestructureThreshold to decide whether a lazy-mode
// incremental update queue should force a restructuring pass.
func (g *Graph) restructureRatio() float64 {
	if g.size == 0 {
		return 0
	}
	return float64(g.tombstoned) / float64(g.size)
}

// NeedsRestructure reports whether accumulated tombstones have crossed the
// configured threshold, for lazy incremental-update mode.
func (g *Graph) NeedsRestructure() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.restructureRatio() >= g.cfg.RestructureThreshold
}

// TombstoneCount reports pending tombstoned nodes awaiting the next
// CompactTombstones/Checkpoint.
func (g *Graph) TombstoneCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tombstoned
}

// WALPending reports how many transactions have committed to the WAL
// since the last checkpoint, or 0 if the graph has no WAL configured.
func (g *Graph) WALPending() int {
	if g.wal == nil {
		return 0
	}
	return g.wal.SinceCheckpoint()
}

// Close releases graph state.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nil
	g.idToIndex = make(map[uint64]uint32)
	g.hasEntry = false
	g.size = 0
	g.tombstoned = 0
	g.state = StateEmpty
	return nil
}
