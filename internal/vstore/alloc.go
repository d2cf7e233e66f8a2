package vstore

import (
	"context"
	"fmt"

	"github.com/vexfs/vexfs-core/internal/vstore/block"
)

// Location is the in-memory index entry mapping a vector id to its
// on-disk extent (spec §3 "Vector Location").
type Location struct {
	VectorID   uint64
	StartBlock uint64
	BlockCount uint64
	Header     *Header
}

// blocksNeeded returns the number of contiguous blocks required to hold
// aligned_size bytes on a device with the given block size.
func blocksNeeded(alignedSize uint32, blockSize uint32) uint64 {
	return uint64((alignedSize + blockSize - 1) / blockSize)
}

// writeRecord allocates blocks for header+payload, chunks the write to
// bound stack use (spec §4.2 step 4, default ceiling 6 KiB), and returns
// the resulting Location.
func writeRecord(ctx context.Context, dev block.Device, h *Header, payload []byte, stackCeiling int) (*Location, error) {
	aligned := alignUp(uint32(recordHeaderSize) + uint32(len(payload)))
	blockSize := dev.BlockSize()
	count := blocksNeeded(aligned, blockSize)

	blocks, err := dev.AllocateBlocks(ctx, count, 0)
	if err != nil {
		return nil, fmt.Errorf("vstore: block allocation failed: %w", err)
	}

	full := make([]byte, 0, int(count)*int(blockSize))
	full = append(full, EncodeHeader(h)...)
	full = append(full, payload...)
	for len(full) < cap(full) {
		full = append(full, 0)
	}

	if err := writeChunked(ctx, dev, blocks, full, stackCeiling); err != nil {
		_ = dev.FreeBlocks(ctx, blocks)
		return nil, err
	}

	return &Location{
		VectorID:   h.VectorID,
		StartBlock: blocks[0],
		BlockCount: count,
		Header:     h,
	}, nil
}

// writeChunked writes full across blocks, touching at most stackCeiling
// bytes of scratch space per iteration, honoring ctx cancellation at each
// block boundary (a suspension point per spec §5).
func writeChunked(ctx context.Context, dev block.Device, blocks []uint64, full []byte, stackCeiling int) error {
	blockSize := int(dev.BlockSize())
	blocksPerChunk := stackCeiling / blockSize
	if blocksPerChunk < 1 {
		blocksPerChunk = 1
	}

	for i := 0; i < len(blocks); i += blocksPerChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + blocksPerChunk
		if end > len(blocks) {
			end = len(blocks)
		}
		for j := i; j < end; j++ {
			off := j * blockSize
			if err := dev.WriteBlock(ctx, blocks[j], full[off:off+blockSize]); err != nil {
				return fmt.Errorf("vstore: block write failed: %w", err)
			}
		}
	}
	return nil
}

// readRecord reads loc's blocks back and reassembles the raw header+payload
// buffer (caller verifies/decompresses).
func readRecord(ctx context.Context, dev block.Device, loc *Location) ([]byte, error) {
	blockSize := int(dev.BlockSize())
	full := make([]byte, 0, int(loc.BlockCount)*blockSize)
	for i := uint64(0); i < loc.BlockCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := dev.ReadBlock(ctx, loc.StartBlock+i)
		if err != nil {
			return nil, fmt.Errorf("vstore: block read failed: %w", err)
		}
		full = append(full, data...)
	}
	return full, nil
}
