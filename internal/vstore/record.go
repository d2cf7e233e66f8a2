// Package vstore implements the Vector Storage Engine (C3): serialization,
// compression, allocation, and integrity for individual vector records
// backed by the block substrate in internal/vstore/block.
package vstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// Magic and version identify the fixed on-disk record header, following
// the same "magic at offset 0" convention the HNSW file format uses.
const (
	RecordMagic   uint32 = 0x56455258 // "VERX"
	RecordVersion uint16 = 1

	// recordHeaderSize is the fixed, on-disk size of Header in bytes.
	recordHeaderSize = 64
	// alignment is the byte boundary every record is padded to on disk.
	alignment = 64
)

// DType identifies the element type of a stored vector.
type DType uint8

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeI16
	DTypeI8
	DTypeBinary
)

// CompressionCode identifies how a record's payload is encoded (spec §3).
type CompressionCode uint8

const (
	CompressionNone CompressionCode = iota
	CompressionScalarQuantize8
	CompressionScalarQuantize4
	CompressionProductQuantize
	CompressionSparse
)

// Flags are per-record bit flags carried in the header.
type Flags uint32

const (
	FlagNone    Flags = 0
	FlagDeleted Flags = 1 << 0
)

// Header is the fixed, 64-byte on-disk prefix of every vector record.
type Header struct {
	Magic          uint32
	Version        uint16
	_              uint16 // reserved, keeps the struct 8-byte aligned
	VectorID       uint64
	Inode          uint64
	Dims           uint32
	DType          DType
	Compression    CompressionCode
	_              uint16 // reserved
	OriginalSize   uint32
	CompressedSize uint32
	CreatedAt      uint64
	ModifiedAt     uint64
	Checksum       uint32
	Flags          Flags
}

// Validate enforces the header invariants from spec §3.
func (h *Header) Validate() error {
	if h.Magic != RecordMagic {
		return fmt.Errorf("vstore: bad record magic %#x", h.Magic)
	}
	if h.Version != RecordVersion {
		return fmt.Errorf("vstore: unsupported record version %d", h.Version)
	}
	if h.Dims == 0 || h.Dims > 8192 {
		return fmt.Errorf("vstore: invalid dimensions %d", h.Dims)
	}
	if h.Compression != CompressionNone && h.CompressedSize > h.OriginalSize {
		return fmt.Errorf("vstore: compressed_size %d exceeds original_size %d", h.CompressedSize, h.OriginalSize)
	}
	return nil
}

// EncodeHeader serializes h into its fixed 64-byte little-endian layout.
func EncodeHeader(h *Header) []byte {
	buf := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.VectorID)
	binary.LittleEndian.PutUint64(buf[16:24], h.Inode)
	binary.LittleEndian.PutUint32(buf[24:28], h.Dims)
	buf[28] = byte(h.DType)
	buf[29] = byte(h.Compression)
	binary.LittleEndian.PutUint32(buf[32:36], h.OriginalSize)
	binary.LittleEndian.PutUint32(buf[36:40], h.CompressedSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.CreatedAt)
	binary.LittleEndian.PutUint64(buf[48:56], h.ModifiedAt)
	binary.LittleEndian.PutUint32(buf[56:60], h.Checksum)
	binary.LittleEndian.PutUint32(buf[60:64], uint32(h.Flags))
	return buf
}

// DecodeHeader parses a 64-byte buffer produced by EncodeHeader.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < recordHeaderSize {
		return nil, fmt.Errorf("vstore: header buffer too small: %d bytes", len(buf))
	}
	h := &Header{
		Magic:          binary.LittleEndian.Uint32(buf[0:4]),
		Version:        binary.LittleEndian.Uint16(buf[4:6]),
		VectorID:       binary.LittleEndian.Uint64(buf[8:16]),
		Inode:          binary.LittleEndian.Uint64(buf[16:24]),
		Dims:           binary.LittleEndian.Uint32(buf[24:28]),
		DType:          DType(buf[28]),
		Compression:    CompressionCode(buf[29]),
		OriginalSize:   binary.LittleEndian.Uint32(buf[32:36]),
		CompressedSize: binary.LittleEndian.Uint32(buf[36:40]),
		CreatedAt:      binary.LittleEndian.Uint64(buf[40:48]),
		ModifiedAt:     binary.LittleEndian.Uint64(buf[48:56]),
		Checksum:       binary.LittleEndian.Uint32(buf[56:60]),
		Flags:          Flags(binary.LittleEndian.Uint32(buf[60:64])),
	}
	return h, nil
}

// checksum computes the compression-independent hash of a compressed
// payload, matching the header's Checksum invariant.
func checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// alignUp rounds size up to the next multiple of alignment.
func alignUp(size uint32) uint32 {
	rem := size % alignment
	if rem == 0 {
		return size
	}
	return size + (alignment - rem)
}

// Record bundles a validated header with its decompressed payload, as
// returned by Store.Get.
type Record struct {
	Header *Header
	Data   []byte
}

// DecodeFloats unpacks the little-endian float32 byte representation a
// Record's Data carries back into a vector, the inverse of the encodeFloats
// step Store.Get applies before returning.
func DecodeFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
