package block

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/btree"
)

// extent is a run of contiguous free blocks, keyed by its start for btree
// ordering and used to satisfy contiguous allocation requests greedily.
type extent struct {
	start uint64
	count uint64
}

func (e *extent) Less(than btree.Item) bool {
	return e.start < than.(*extent).start
}

// allocator tracks free space two ways: a bitset for O(1) per-block
// occupancy queries and a btree of free extents ordered by start block so
// AllocateBlocks can find the first run big enough for a contiguous
// request without scanning every block (same role an ordered free-extent
// index plays for any block allocator).
type allocator struct {
	mu       sync.Mutex
	total    uint64
	occupied *bitset.BitSet
	free     *btree.BTree
	freeCnt  uint64
}

func newAllocator(total uint64) *allocator {
	a := &allocator{
		total:    total,
		occupied: bitset.New(uint(total)),
		free:     btree.New(16),
		freeCnt:  total,
	}
	if total > 0 {
		a.free.ReplaceOrInsert(&extent{start: 0, count: total})
	}
	return a
}

// allocate reserves count blocks, preferring an extent at or after hint.
func (a *allocator) allocate(count uint64, hint uint64) ([]uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if count == 0 {
		return nil, fmt.Errorf("block: allocation count must be > 0")
	}
	if count > a.freeCnt {
		return nil, fmt.Errorf("block: out of space: need %d blocks, have %d free", count, a.freeCnt)
	}

	found := a.findExtent(count, hint)
	if found == nil {
		return nil, fmt.Errorf("block: no contiguous run of %d free blocks available", count)
	}

	a.free.Delete(found)
	if found.count > count {
		remainder := &extent{start: found.start + count, count: found.count - count}
		a.free.ReplaceOrInsert(remainder)
	}

	blocks := make([]uint64, count)
	for i := uint64(0); i < count; i++ {
		blocks[i] = found.start + i
		a.occupied.Set(uint(found.start + i))
	}
	a.freeCnt -= count
	return blocks, nil
}

// findExtent returns the first extent (lowest start block) at/after hint
// satisfying count, falling back to the first such extent from block zero
// (first-fit: one ascending scan from hint, then one from zero).
func (a *allocator) findExtent(count uint64, hint uint64) *extent {
	var candidate *extent
	a.free.AscendGreaterOrEqual(&extent{start: hint}, func(item btree.Item) bool {
		e := item.(*extent)
		if e.count >= count {
			candidate = e
			return false
		}
		return true
	})
	if candidate != nil {
		return candidate
	}
	a.free.Ascend(func(item btree.Item) bool {
		e := item.(*extent)
		if e.count >= count {
			candidate = e
			return false
		}
		return true
	})
	return candidate
}

// releaseBlocks releases blocks back to the pool, coalescing adjacent extents.
func (a *allocator) releaseBlocks(blocks []uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range blocks {
		if b >= a.total {
			return fmt.Errorf("block: block number %d out of range", b)
		}
		if !a.occupied.Test(uint(b)) {
			return fmt.Errorf("block: double-free of block %d", b)
		}
		a.occupied.Clear(uint(b))
		a.insertAndCoalesce(b)
		a.freeCnt++
	}
	return nil
}

func (a *allocator) insertAndCoalesce(b uint64) {
	start, count := b, uint64(1)

	// Merge with a preceding extent that ends exactly at b.
	a.free.DescendLessOrEqual(&extent{start: b}, func(item btree.Item) bool {
		e := item.(*extent)
		if e.start+e.count == b {
			a.free.Delete(e)
			start = e.start
			count += e.count
		}
		return false
	})

	// Merge with a following extent that starts exactly at start+count.
	a.free.AscendGreaterOrEqual(&extent{start: start + count}, func(item btree.Item) bool {
		e := item.(*extent)
		if e.start == start+count {
			a.free.Delete(e)
			count += e.count
		}
		return false
	})

	a.free.ReplaceOrInsert(&extent{start: start, count: count})
}

func (a *allocator) stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		TotalBlocks:   a.total,
		FreeBlocks:    a.freeCnt,
		AllocatedRuns: uint64(a.free.Len()),
	}
}
