package vcache

import (
	"context"
	"sync"
)

// defaultPrefetchBatchSize bounds how many predicted ids get enqueued per
// cache hit (spec §4.3 "Prefetch").
const defaultPrefetchBatchSize = 8

// Prefetcher tracks recent access sequence, per-id frequency, and
// co-occurrence, enqueuing predicted ids for background fetch.
type Prefetcher struct {
	mu          sync.Mutex
	batchSize   int
	recent      []uint64
	frequency   map[uint64]uint64
	coOccur     map[uint64]map[uint64]uint64
	queue       []uint64
	queued      map[uint64]bool
	recentLimit int
}

// NewPrefetcher creates a prefetcher that enqueues up to batchSize
// predicted ids per hit.
func NewPrefetcher(batchSize int) *Prefetcher {
	return &Prefetcher{
		batchSize:   batchSize,
		frequency:   make(map[uint64]uint64),
		coOccur:     make(map[uint64]map[uint64]uint64),
		queued:      make(map[uint64]bool),
		recentLimit: 64,
	}
}

// OnHit records a cache hit for id and enqueues predicted follow-up ids
// based on co-occurrence with the recently accessed sequence.
func (p *Prefetcher) OnHit(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frequency[id]++
	for _, prev := range p.recent {
		if prev == id {
			continue
		}
		if p.coOccur[prev] == nil {
			p.coOccur[prev] = make(map[uint64]uint64)
		}
		p.coOccur[prev][id]++
	}

	p.recent = append(p.recent, id)
	if len(p.recent) > p.recentLimit {
		p.recent = p.recent[1:]
	}

	p.enqueuePredictions(id)
}

// enqueuePredictions enqueues up to batchSize ids most often co-accessed
// with id, skipping ids already queued.
func (p *Prefetcher) enqueuePredictions(id uint64) {
	neighbors := p.coOccur[id]
	if len(neighbors) == 0 {
		return
	}

	type scored struct {
		id    uint64
		count uint64
	}
	candidates := make([]scored, 0, len(neighbors))
	for nid, count := range neighbors {
		if !p.queued[nid] {
			candidates = append(candidates, scored{nid, count})
		}
	}
	// Simple selection of the top batchSize by count; n is small in
	// practice (bounded by recentLimit), so an O(n^2) selection is fine.
	added := 0
	for len(candidates) > 0 && added < p.batchSize {
		best := 0
		for i, c := range candidates {
			if c.count > candidates[best].count {
				best = i
			}
		}
		p.queue = append(p.queue, candidates[best].id)
		p.queued[candidates[best].id] = true
		added++
		candidates = append(candidates[:best], candidates[best+1:]...)
	}
}

func countQueued(queued map[uint64]bool, candidates []struct {
	id    uint64
	count uint64
}) int {
	n := 0
	for _, c := range candidates {
		if queued[c.id] {
			n++
		}
	}
	return n
}

// Seed enqueues topIDs directly, for cold-start warming on mount.
func (p *Prefetcher) Seed(topIDs []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range topIDs {
		if !p.queued[id] {
			p.queue = append(p.queue, id)
			p.queued[id] = true
		}
	}
}

// Drain fetches and inserts every queued id into ns, using fetch to pull
// bytes from storage on a cache miss.
func (p *Prefetcher) Drain(ctx context.Context, ns *Namespace, fetch func(ctx context.Context, id uint64) ([]byte, error)) {
	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.queued = make(map[uint64]bool)
	p.mu.Unlock()

	if fetch == nil {
		return
	}
	for _, id := range pending {
		if ctx.Err() != nil {
			return
		}
		if _, ok := ns.Get(id); ok {
			continue
		}
		bytes, err := fetch(ctx, id)
		if err != nil {
			continue
		}
		_ = ns.Insert(ctx, id, bytes, 1.0)
	}
}
