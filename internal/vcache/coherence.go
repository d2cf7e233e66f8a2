package vcache

import "context"

// Coherence selects how cache writes interact with the backing storage
// engine (spec §4.3 "Coherence mode"), resolving an ambiguity the original
// source left inconsistent across its storage APIs (spec §9 open question
// b): the mode is fixed at cache construction and applies uniformly to
// every write through that cache instance.
type Coherence int

const (
	// CoherenceNone caches entries Clean and never writes them back to
	// storage, on write, on flush_dirty or on eviction.
	CoherenceNone Coherence = iota
	// CoherenceWriteThrough persists synchronously before Insert returns.
	CoherenceWriteThrough
	// CoherenceWriteBack marks entries Dirty and defers persistence to
	// flush_dirty or eviction.
	CoherenceWriteBack
	// CoherenceInvalidation drops the entry on write rather than caching
	// the new value, forcing the next Get to repopulate from storage.
	CoherenceInvalidation
)

func (c Coherence) String() string {
	switch c {
	case CoherenceNone:
		return "none"
	case CoherenceWriteThrough:
		return "write_through"
	case CoherenceWriteBack:
		return "write_back"
	case CoherenceInvalidation:
		return "invalidation"
	default:
		return "unknown"
	}
}

// Writeback persists dirty bytes back to the storage engine. The cache
// never depends on this succeeding for correctness (spec §4.3 "the cache
// is always safe to bypass").
type Writeback func(ctx context.Context, id uint64, bytes []byte) error
