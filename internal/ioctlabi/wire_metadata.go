package ioctlabi

import (
	"bytes"
	"encoding/binary"
)

// MetadataFilterWire is the encoded metadata filter HybridSearchRequest's
// MetadataQueryLen bytes carry, mirroring internal/knn.MetadataQuery's
// fields in a fixed little-endian layout. A presence flag byte precedes
// each optional field since a zero value (SizeMin=0, TimeMin=epoch) is not
// distinguishable from "unset" otherwise.
type MetadataFilterWire struct {
	HasSizeMin bool
	HasSizeMax bool
	HasTimeMin bool
	HasTimeMax bool
	SizeMin    uint32
	SizeMax    uint32
	TimeMinNS  int64
	TimeMaxNS  int64
	DTypeMask  uint32
	Extension  string // truncated to extensionFieldSize-1 bytes, NUL-terminated
}

const extensionFieldSize = 64
const metadataFilterWireSize = 4 + 4 + 4 + 8 + 8 + 4 + extensionFieldSize

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (m MetadataFilterWire) Encode() []byte {
	buf := make([]byte, metadataFilterWireSize)
	buf[0] = boolByte(m.HasSizeMin)
	buf[1] = boolByte(m.HasSizeMax)
	buf[2] = boolByte(m.HasTimeMin)
	buf[3] = boolByte(m.HasTimeMax)
	binary.LittleEndian.PutUint32(buf[4:8], m.SizeMin)
	binary.LittleEndian.PutUint32(buf[8:12], m.SizeMax)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(m.TimeMinNS))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(m.TimeMaxNS))
	binary.LittleEndian.PutUint32(buf[28:32], m.DTypeMask)
	ext := []byte(m.Extension)
	if len(ext) > extensionFieldSize-1 {
		ext = ext[:extensionFieldSize-1]
	}
	copy(buf[32:32+len(ext)], ext)
	return buf
}

func DecodeMetadataFilterWire(buf []byte) (MetadataFilterWire, error) {
	if len(buf) < metadataFilterWireSize {
		return MetadataFilterWire{}, wireErr("metadata filter", metadataFilterWireSize, len(buf))
	}
	extRaw := buf[32 : 32+extensionFieldSize]
	if i := bytes.IndexByte(extRaw, 0); i >= 0 {
		extRaw = extRaw[:i]
	}
	return MetadataFilterWire{
		HasSizeMin: buf[0] != 0,
		HasSizeMax: buf[1] != 0,
		HasTimeMin: buf[2] != 0,
		HasTimeMax: buf[3] != 0,
		SizeMin:    binary.LittleEndian.Uint32(buf[4:8]),
		SizeMax:    binary.LittleEndian.Uint32(buf[8:12]),
		TimeMinNS:  int64(binary.LittleEndian.Uint64(buf[12:20])),
		TimeMaxNS:  int64(binary.LittleEndian.Uint64(buf[20:28])),
		DTypeMask:  binary.LittleEndian.Uint32(buf[28:32]),
		Extension:  string(extRaw),
	}, nil
}
