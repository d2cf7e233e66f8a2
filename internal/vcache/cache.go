package vcache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config configures a Namespace cache at construction time.
type Config struct {
	Capacity   int64
	MaxEntries int
	Policy     Policy
	Coherence  Coherence
	Writeback  Writeback
}

// Stats mirrors the stats() contract.
type Stats struct {
	Name       string
	Size       int64
	Capacity   int64
	Entries    int
	MaxEntries int
	Policy     Policy
	Coherence  Coherence
}

// Namespace is one of the cache's two namespaces (vectors or segments),
// each independently sized and policy-configured (spec §4.3 "Two
// namespaces"). Structural mutations (insert/evict) are serialized under
// a single writer lock; reads take the same lock today, matching the
// teacher's LRUCache — a sharded or RW-optimistic variant is a drop-in
// swap behind this same interface if contention becomes a bottleneck.
type Namespace struct {
	name string
	cfg  Config

	mu      sync.Mutex
	entries map[uint64]*Entry
	size    int64
	hits    uint64
	misses  uint64
}

// NewNamespace creates a cache namespace.
func NewNamespace(name string, cfg Config) *Namespace {
	return &Namespace{
		name:    name,
		cfg:     cfg,
		entries: make(map[uint64]*Entry),
	}
}

// Get retrieves an entry and records the access for policy scoring.
func (n *Namespace) Get(id uint64) (*Entry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.entries[id]
	if !ok {
		n.misses++
		return nil, false
	}
	n.hits++
	e.AccessCount++
	e.LastAccess = time.Now()
	return e, true
}

// HitRate reports the fraction of Get calls that found their entry, since
// the namespace was created. Returns 0 if Get has never been called.
func (n *Namespace) HitRate() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := n.hits + n.misses
	if total == 0 {
		return 0
	}
	return float64(n.hits) / float64(total)
}

// Insert admits bytes under id, applying the namespace's coherence mode.
// Under write-through, cfg.Writeback is invoked before the entry is cached;
// under write-back the entry is marked Dirty and written back when it is
// evicted (or by whoever persists FlushDirty's result). cfg.Writeback may
// be nil when the namespace never persists (e.g. a pure index-segment cache).
func (n *Namespace) Insert(ctx context.Context, id uint64, bytes []byte, compressionRatio float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	size := int64(len(bytes))
	if size > n.cfg.Capacity {
		return fmt.Errorf("vcache: entry of size %d exceeds namespace capacity %d", size, n.cfg.Capacity)
	}

	if existing, ok := n.entries[id]; ok {
		n.size -= existing.Size
		delete(n.entries, id)
	}

	state := StateClean
	switch n.cfg.Coherence {
	case CoherenceInvalidation:
		return nil
	case CoherenceWriteThrough:
		if n.cfg.Writeback != nil {
			if err := n.cfg.Writeback(ctx, id, bytes); err != nil {
				return fmt.Errorf("vcache: write-through failed: %w", err)
			}
		}
	case CoherenceWriteBack:
		state = StateDirty
	}

	n.evictFor(size)

	n.entries[id] = &Entry{
		ID:               id,
		Bytes:            bytes,
		Size:             size,
		AccessCount:      1,
		LastAccess:       time.Now(),
		State:            state,
		CompressionRatio: compressionRatio,
	}
	n.size += size
	return nil
}

// Invalidate drops an entry regardless of coherence mode.
func (n *Namespace) Invalidate(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.entries[id]; ok {
		n.size -= e.Size
		delete(n.entries, id)
	}
}

// FlushDirty returns every Dirty entry's bytes, marking them Clean.
// Callers are expected to persist the returned pairs to storage.
func (n *Namespace) FlushDirty() []struct {
	ID    uint64
	Bytes []byte
} {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []struct {
		ID    uint64
		Bytes []byte
	}
	for _, e := range n.entries {
		if e.State == StateDirty {
			out = append(out, struct {
				ID    uint64
				Bytes []byte
			}{ID: e.ID, Bytes: e.Bytes})
			e.State = StateClean
		}
	}
	return out
}

// Maintenance performs periodic upkeep: trims the namespace back under its
// entry-count cap if prior inserts pushed it over (e.g. after a capacity
// reconfiguration).
func (n *Namespace) Maintenance() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cfg.MaxEntries > 0 {
		n.evictUntilEntryCount(n.cfg.MaxEntries)
	}
}

// evictFor makes room for an incoming entry of the given size, respecting
// pinned entries (never evicted) and both the byte-size and entry-count
// caps.
func (n *Namespace) evictFor(incoming int64) {
	for n.size+incoming > n.cfg.Capacity {
		if !n.evictOne() {
			break
		}
	}
	if n.cfg.MaxEntries > 0 {
		n.evictUntilEntryCount(n.cfg.MaxEntries - 1)
	}
}

func (n *Namespace) evictUntilEntryCount(max int) {
	for len(n.entries) > max {
		if !n.evictOne() {
			break
		}
	}
}

// evictOne removes the lowest-scoring unpinned entry, returning false if
// every remaining entry is pinned. A Dirty victim is first passed to
// cfg.Writeback when one is configured; if that fails the entry is kept
// and evictOne returns false.
func (n *Namespace) evictOne() bool {
	now := time.Now().UnixNano()
	var victim *Entry
	var victimScore float64

	for _, e := range n.entries {
		if e.Pinned() {
			continue
		}
		s := score(n.cfg.Policy, e, now)
		if victim == nil || s < victimScore {
			victim = e
			victimScore = s
		}
	}
	if victim == nil {
		return false
	}
	if victim.State == StateDirty && n.cfg.Writeback != nil {
		if err := n.cfg.Writeback(context.Background(), victim.ID, victim.Bytes); err != nil {
			return false
		}
	}
	n.size -= victim.Size
	delete(n.entries, victim.ID)
	return true
}

// Stats reports namespace-level bookkeeping.
func (n *Namespace) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{
		Name:       n.name,
		Size:       n.size,
		Capacity:   n.cfg.Capacity,
		Entries:    len(n.entries),
		MaxEntries: n.cfg.MaxEntries,
		Policy:     n.cfg.Policy,
		Coherence:  n.cfg.Coherence,
	}
}

// Pin increments an entry's reference count so it is never evicted.
func (n *Namespace) Pin(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.entries[id]; ok {
		e.RefCount++
	}
}

// Unpin decrements an entry's reference count.
func (n *Namespace) Unpin(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.entries[id]; ok && e.RefCount > 0 {
		e.RefCount--
	}
}

// Cache is the two-namespace Vector Cache (C4).
type Cache struct {
	Vectors  *Namespace
	Segments *Namespace
	prefetch *Prefetcher
}

// New creates a Cache with independently configured vector and segment
// namespaces.
func New(vectors, segments Config) *Cache {
	return &Cache{
		Vectors:  NewNamespace("vectors", vectors),
		Segments: NewNamespace("segments", segments),
		prefetch: NewPrefetcher(defaultPrefetchBatchSize),
	}
}

// Maintenance drains the prefetch queue and trims both namespaces.
func (c *Cache) Maintenance(ctx context.Context, fetch func(ctx context.Context, id uint64) ([]byte, error)) {
	c.Vectors.Maintenance()
	c.Segments.Maintenance()
	c.prefetch.Drain(ctx, c.Vectors, fetch)
}

// Warm seeds the prefetch queue from the top-frequency vector entries,
// for use on mount (spec §4.3 "Warming").
func (c *Cache) Warm(topIDs []uint64) {
	c.prefetch.Seed(topIDs)
}
