package block

import (
	"context"
	"fmt"
	"sync"
)

// memoryDevice replaces block I/O with an id->bytes map, for the
// filesystem-less "in-memory" mode spec §4.2 requires for callers with no
// backing block device.
type memoryDevice struct {
	mu        sync.RWMutex
	blockSize uint32
	alloc     *allocator
	blocks    map[uint64][]byte
}

// NewMemory creates an in-memory block device of totalBlocks blocks of
// blockSize bytes each.
func NewMemory(blockSize uint32, totalBlocks uint64) (Device, error) {
	if blockSize < MinBlockSize {
		return nil, fmt.Errorf("block: block size %d below minimum %d", blockSize, MinBlockSize)
	}
	return &memoryDevice{
		blockSize: blockSize,
		alloc:     newAllocator(totalBlocks),
		blocks:    make(map[uint64][]byte, totalBlocks),
	}, nil
}

func (d *memoryDevice) BlockSize() uint32    { return d.blockSize }
func (d *memoryDevice) TotalBlocks() uint64  { return d.alloc.total }
func (d *memoryDevice) Stats() Stats {
	s := d.alloc.stats()
	s.BlockSize = d.blockSize
	return s
}

func (d *memoryDevice) AllocateBlocks(ctx context.Context, count uint64, hint uint64) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.alloc.allocate(count, hint)
}

func (d *memoryDevice) FreeBlocks(ctx context.Context, blocks []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.alloc.releaseBlocks(blocks); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range blocks {
		delete(d.blocks, b)
	}
	return nil
}

func (d *memoryDevice) ReadBlock(ctx context.Context, blockNo uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.blocks[blockNo]
	if !ok {
		out := make([]byte, d.blockSize)
		return out, nil
	}
	out := make([]byte, d.blockSize)
	copy(out, data)
	return out, nil
}

func (d *memoryDevice) WriteBlock(ctx context.Context, blockNo uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if uint32(len(data)) > d.blockSize {
		return fmt.Errorf("block: write exceeds block size %d", d.blockSize)
	}
	buf := make([]byte, d.blockSize)
	copy(buf, data)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocks[blockNo] = buf
	return nil
}

func (d *memoryDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocks = nil
	return nil
}
