package hnsw

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// maxMappedWindows bounds the number of simultaneously mapped windows a
// Mapper holds open (spec §4.4 "a small fixed number of aligned mapped
// windows"), independent of the total mapped-bytes budget.
const maxMappedWindows = 8

// mappedWindow is one page-aligned mmap(2) region of the graph file.
type mappedWindow struct {
	offset   int64
	size     int
	data     []byte
	refCount int32
	seq      uint64 // last-touched clock tick, for LRU-among-unpinned eviction
}

// Mapper maintains a bounded set of page-aligned memory-mapped windows over
// a single on-disk graph file, so node/connection arrays can be read
// without copying them into the Go heap (spec §4.4 "Memory mapping").
// Windows are never evicted while pinned (RefCount > 0); eviction among
// unpinned windows picks the least recently used one.
type Mapper struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int64
	budget   int64
	used     int64
	windows  map[int64]*mappedWindow
	clock    uint64
}

// NewMapper opens a Mapper over file bounded to budgetBytes of total mapped
// memory. The caller retains ownership of file and must close it after the
// Mapper (Mapper.Close only unmaps, it does not close the file).
func NewMapper(file *os.File, budgetBytes int64) *Mapper {
	return &Mapper{
		file:     file,
		pageSize: int64(os.Getpagesize()),
		budget:   budgetBytes,
		windows:  make(map[int64]*mappedWindow),
	}
}

func (m *Mapper) pageAlign(offset int64, size int) (int64, int) {
	alignedOffset := (offset / m.pageSize) * m.pageSize
	end := offset + int64(size)
	alignedEnd := ((end + m.pageSize - 1) / m.pageSize) * m.pageSize
	return alignedOffset, int(alignedEnd - alignedOffset)
}

// Acquire returns the bytes covering [offset, offset+size) of the mapped
// file, mapping a new page-aligned window if none already covers the
// range. The returned window is pinned (refCount incremented); the caller
// must call Release with the same offset when done reading.
func (m *Mapper) Acquire(offset int64, size int) ([]byte, error) {
	alignedOffset, alignedSize := m.pageAlign(offset, size)

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.windows[alignedOffset]; ok && w.size >= alignedSize {
		w.refCount++
		m.clock++
		w.seq = m.clock
		return w.data[offset-alignedOffset : offset-alignedOffset+int64(size)], nil
	}

	if err := m.makeRoom(alignedSize); err != nil {
		return nil, err
	}

	data, err := syscall.Mmap(int(m.file.Fd()), alignedOffset, alignedSize, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("hnsw: mmap window at %d (%d bytes): %w", alignedOffset, alignedSize, err)
	}

	m.clock++
	m.windows[alignedOffset] = &mappedWindow{
		offset:   alignedOffset,
		size:     alignedSize,
		data:     data,
		refCount: 1,
		seq:      m.clock,
	}
	m.used += int64(alignedSize)

	return data[offset-alignedOffset : offset-alignedOffset+int64(size)], nil
}

// Release unpins the window covering offset; once refCount reaches zero
// the window becomes eligible for eviction but is not unmapped
// immediately.
func (m *Mapper) Release(offset int64) {
	alignedOffset, _ := m.pageAlign(offset, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[alignedOffset]; ok && w.refCount > 0 {
		w.refCount--
	}
}

// makeRoom evicts unpinned windows, least-recently-used first, until
// there is room for an additional alignedSize bytes under both the
// window-count cap and the byte budget. Callers must hold m.mu.
func (m *Mapper) makeRoom(alignedSize int) error {
	for (len(m.windows) >= maxMappedWindows) || (m.budget > 0 && m.used+int64(alignedSize) > m.budget) {
		victim := m.lruUnpinned()
		if victim == nil {
			return fmt.Errorf("hnsw: mapped-window budget exhausted, no unpinned window to evict")
		}
		if err := syscall.Munmap(victim.data); err != nil {
			return fmt.Errorf("hnsw: munmap window at %d: %w", victim.offset, err)
		}
		m.used -= int64(victim.size)
		delete(m.windows, victim.offset)
	}
	return nil
}

func (m *Mapper) lruUnpinned() *mappedWindow {
	var oldest *mappedWindow
	for _, w := range m.windows {
		if w.refCount > 0 {
			continue
		}
		if oldest == nil || w.seq < oldest.seq {
			oldest = w
		}
	}
	return oldest
}

// Close unmaps every open window. Pinned windows are unmapped regardless;
// callers must ensure no concurrent reader still holds a slice into them.
func (m *Mapper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for offset, w := range m.windows {
		if err := syscall.Munmap(w.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("hnsw: munmap window at %d: %w", offset, err)
		}
		delete(m.windows, offset)
	}
	m.used = 0
	return firstErr
}
