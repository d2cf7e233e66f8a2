package vstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vexfs/vexfs-core/internal/vstore/block"
)

// Sentinel errors surfaced by Store operations (spec §4.2 "Failure modes").
var (
	ErrNotFound         = errors.New("vstore: vector not found")
	ErrAlreadyExists    = errors.New("vstore: vector id already exists")
	ErrChecksumMismatch = errors.New("vstore: checksum mismatch")
	ErrInvalidDimension = errors.New("vstore: invalid dimension")
)

// DefaultStackCeiling bounds per-chunk scratch use during block I/O (spec
// §4.2 "Stack & memory discipline").
const DefaultStackCeiling = 6 * 1024

// AllocStats mirrors the stats() contract's return value.
type AllocStats struct {
	TotalVectors   uint64
	TotalBlocks    uint64
	FreeBlocks     uint64
	TotalBytesLive uint64
}

// idEntry serializes per-vector state-machine transitions and guards
// concurrent update/delete against readers copying the bytes (spec §4.2
// "State machine").
type idEntry struct {
	mu    sync.Mutex
	state VectorState
}

// Store implements the Vector Storage Engine (C3) public contract.
type Store struct {
	dev          block.Device
	compressor   *Compressor
	stackCeiling int

	mu        sync.RWMutex
	locations map[uint64]*Location
	byInode   map[uint64][]uint64
	ids       map[uint64]*idEntry

	nextID uint64
}

// New creates a Store backed by dev.
func New(dev block.Device) *Store {
	return &Store{
		dev:          dev,
		compressor:   NewCompressor(),
		stackCeiling: DefaultStackCeiling,
		locations:    make(map[uint64]*Location),
		byInode:      make(map[uint64][]uint64),
		ids:          make(map[uint64]*idEntry),
		nextID:       1,
	}
}

func (s *Store) entryFor(id uint64) *idEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ids[id]
	if !ok {
		e = &idEntry{state: StateAbsent}
		s.ids[id] = e
	}
	return e
}

// Store persists data as a new vector record owned by inode, returning its
// assigned vector id (spec §4.2 "store").
func (s *Store) Store(ctx context.Context, data []float32, inode uint64, dtype DType, dims int, compression CompressionCode) (uint64, error) {
	if dims <= 0 || dims > 8192 || len(data) != dims {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDimension, dims)
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	entry := s.entryFor(id)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := checkTransition(entry.state, StateWriting); err != nil {
		return 0, err
	}
	entry.state = StateWriting

	code := SelectCode(data, compression, false)
	payload, err := s.compressor.Compress(code, data)
	// A payload larger than the raw vector is stored uncompressed instead.
	if err == nil && code != CompressionNone && len(payload) > dims*4 {
		code = CompressionNone
		payload, err = s.compressor.Compress(code, data)
	}
	if err != nil {
		entry.state = StateAbsent
		return 0, fmt.Errorf("vstore: compression failed: %w", err)
	}

	now := uint64(time.Now().UnixNano())
	h := &Header{
		Magic:          RecordMagic,
		Version:        RecordVersion,
		VectorID:       id,
		Inode:          inode,
		Dims:           uint32(dims),
		DType:          dtype,
		Compression:    code,
		OriginalSize:   uint32(dims * 4),
		CompressedSize: uint32(len(payload)),
		CreatedAt:      now,
		ModifiedAt:     now,
		Checksum:       checksum(payload),
	}
	if err := h.Validate(); err != nil {
		entry.state = StateAbsent
		return 0, err
	}

	loc, err := writeRecord(ctx, s.dev, h, payload, s.stackCeiling)
	if err != nil {
		entry.state = StateAbsent
		return 0, err
	}

	s.mu.Lock()
	s.locations[id] = loc
	s.byInode[inode] = append(s.byInode[inode], id)
	s.mu.Unlock()

	entry.state = StateResident
	return id, nil
}

// Get retrieves and decompresses a vector record (spec §4.2 "get").
func (s *Store) Get(ctx context.Context, vectorID uint64) (*Record, error) {
	s.mu.RLock()
	loc, ok := s.locations[vectorID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	raw, err := readRecord(ctx, s.dev, loc)
	if err != nil {
		return nil, err
	}
	h, err := DecodeHeader(raw[:recordHeaderSize])
	if err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("vstore: corrupted header for vector %d: %w", vectorID, err)
	}
	payload := raw[recordHeaderSize : recordHeaderSize+int(h.CompressedSize)]
	if checksum(payload) != h.Checksum {
		return nil, fmt.Errorf("%w: vector %d", ErrChecksumMismatch, vectorID)
	}

	data, err := s.compressor.Decompress(h.Compression, payload, int(h.Dims))
	if err != nil {
		return nil, fmt.Errorf("vstore: decompression failed: %w", err)
	}

	return &Record{Header: h, Data: encodeFloats(data)}, nil
}

// encodeFloats packs a decompressed vector into the little-endian byte
// representation the get() contract returns.
func encodeFloats(data []float32) []byte {
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Update atomically replaces a vector's data: allocate-new-then-swap, per
// spec §3 "mutated only by update (which allocates new blocks then
// rewrites the index entry atomically)".
func (s *Store) Update(ctx context.Context, vectorID uint64, newData []float32, compression CompressionCode) error {
	entry := s.entryFor(vectorID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := checkTransition(entry.state, StateUpdating); err != nil {
		return err
	}
	entry.state = StateUpdating

	s.mu.RLock()
	oldLoc, ok := s.locations[vectorID]
	s.mu.RUnlock()
	if !ok {
		entry.state = StateAbsent
		return ErrNotFound
	}

	dims := int(oldLoc.Header.Dims)
	if len(newData) != dims {
		entry.state = StateResident
		return fmt.Errorf("%w: %d", ErrInvalidDimension, len(newData))
	}

	code := SelectCode(newData, compression, false)
	payload, err := s.compressor.Compress(code, newData)
	// A payload larger than the raw vector is stored uncompressed instead.
	if err == nil && code != CompressionNone && len(payload) > dims*4 {
		code = CompressionNone
		payload, err = s.compressor.Compress(code, newData)
	}
	if err != nil {
		entry.state = StateResident
		return fmt.Errorf("vstore: compression failed: %w", err)
	}

	now := uint64(time.Now().UnixNano())
	h := &Header{
		Magic:          RecordMagic,
		Version:        RecordVersion,
		VectorID:       vectorID,
		Inode:          oldLoc.Header.Inode,
		Dims:           uint32(dims),
		DType:          oldLoc.Header.DType,
		Compression:    code,
		OriginalSize:   uint32(dims * 4),
		CompressedSize: uint32(len(payload)),
		CreatedAt:      oldLoc.Header.CreatedAt,
		ModifiedAt:     now,
		Checksum:       checksum(payload),
	}

	newLoc, err := writeRecord(ctx, s.dev, h, payload, s.stackCeiling)
	if err != nil {
		entry.state = StateResident
		return err
	}

	s.mu.Lock()
	s.locations[vectorID] = newLoc
	s.mu.Unlock()

	if err := s.dev.FreeBlocks(ctx, blockRange(oldLoc)); err != nil {
		// The new location is already live; a failure to reclaim the old
		// blocks is a leak, not a correctness issue, so it is reported
		// but not rolled back.
		entry.state = StateResident
		return fmt.Errorf("vstore: failed to free superseded blocks: %w", err)
	}

	entry.state = StateResident
	return nil
}

// Delete frees all blocks owned by vectorID and removes it from the
// location map and its inode's vector list.
func (s *Store) Delete(ctx context.Context, vectorID uint64) error {
	entry := s.entryFor(vectorID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := checkTransition(entry.state, StateDeleting); err != nil {
		return err
	}
	entry.state = StateDeleting

	s.mu.Lock()
	loc, ok := s.locations[vectorID]
	if !ok {
		s.mu.Unlock()
		entry.state = StateAbsent
		return ErrNotFound
	}
	delete(s.locations, vectorID)
	inode := loc.Header.Inode
	ids := s.byInode[inode]
	for i, id := range ids {
		if id == vectorID {
			s.byInode[inode] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if err := s.dev.FreeBlocks(ctx, blockRange(loc)); err != nil {
		return fmt.Errorf("vstore: failed to free blocks for vector %d: %w", vectorID, err)
	}

	entry.state = StateAbsent
	return nil
}

// ListByInode returns the ids of every vector currently owned by inode.
func (s *Store) ListByInode(ctx context.Context, inode uint64) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byInode[inode]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// AllIDs returns every vector id currently resident in the store,
// regardless of owning inode. Used by the k-NN pipeline's exact-scan path,
// which is not scoped to a single file (spec §4.5 "scan the active vector
// set").
func (s *Store) AllIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.locations))
	for id := range s.locations {
		ids = append(ids, id)
	}
	return ids
}

// Stats reports allocator-level bookkeeping for the storage engine.
func (s *Store) Stats() AllocStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devStats := s.dev.Stats()
	var liveBytes uint64
	for _, loc := range s.locations {
		liveBytes += uint64(loc.BlockCount) * uint64(devStats.BlockSize)
	}
	return AllocStats{
		TotalVectors:   uint64(len(s.locations)),
		TotalBlocks:    devStats.TotalBlocks,
		FreeBlocks:     devStats.FreeBlocks,
		TotalBytesLive: liveBytes,
	}
}

func blockRange(loc *Location) []uint64 {
	blocks := make([]uint64, loc.BlockCount)
	for i := range blocks {
		blocks[i] = loc.StartBlock + uint64(i)
	}
	return blocks
}
