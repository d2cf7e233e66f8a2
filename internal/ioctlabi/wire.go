package ioctlabi

import (
	"encoding/binary"
	"fmt"
)

// wireErr reports a truncated/malformed buffer, matching the original's
// VectorIoctlError::InvalidBuffer classification.
func wireErr(what string, need, got int) error {
	return fmt.Errorf("ioctlabi: %s: need %d bytes, got %d", what, need, got)
}

// AddEmbeddingRequest is VEXFS_IOCTL_ADD_EMBEDDING's request header; the
// vector payload (DataSize little-endian float32 bytes) follows immediately.
type AddEmbeddingRequest struct {
	VectorID    uint64 // 0 = auto-assign
	Inode       uint64
	Dims        uint32
	DType       uint8
	Compression uint8
	DataSize    uint32
	Flags       uint32
}

const addEmbeddingReqSize = 32

func (r AddEmbeddingRequest) Encode() []byte {
	buf := make([]byte, addEmbeddingReqSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorID)
	binary.LittleEndian.PutUint64(buf[8:16], r.Inode)
	binary.LittleEndian.PutUint32(buf[16:20], r.Dims)
	buf[20] = r.DType
	buf[21] = r.Compression
	binary.LittleEndian.PutUint32(buf[24:28], r.DataSize)
	binary.LittleEndian.PutUint32(buf[28:32], r.Flags)
	return buf
}

func DecodeAddEmbeddingRequest(buf []byte) (AddEmbeddingRequest, error) {
	if len(buf) < addEmbeddingReqSize {
		return AddEmbeddingRequest{}, wireErr("add_embedding request", addEmbeddingReqSize, len(buf))
	}
	return AddEmbeddingRequest{
		VectorID:    binary.LittleEndian.Uint64(buf[0:8]),
		Inode:       binary.LittleEndian.Uint64(buf[8:16]),
		Dims:        binary.LittleEndian.Uint32(buf[16:20]),
		DType:       buf[20],
		Compression: buf[21],
		DataSize:    binary.LittleEndian.Uint32(buf[24:28]),
		Flags:       binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}

// AddEmbeddingResponse is VEXFS_IOCTL_ADD_EMBEDDING's response.
type AddEmbeddingResponse struct {
	VectorID         uint64
	Result           ResultCode
	ProcessingTimeUs uint64
	StorageLocation  uint64
	CompressedSize   uint32
	Checksum         uint32
	Flags            uint32
}

const addEmbeddingRespSize = 40

func (r AddEmbeddingResponse) Encode() []byte {
	buf := make([]byte, addEmbeddingRespSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Result))
	binary.LittleEndian.PutUint64(buf[12:20], r.ProcessingTimeUs)
	binary.LittleEndian.PutUint64(buf[20:28], r.StorageLocation)
	binary.LittleEndian.PutUint32(buf[28:32], r.CompressedSize)
	binary.LittleEndian.PutUint32(buf[32:36], r.Checksum)
	binary.LittleEndian.PutUint32(buf[36:40], r.Flags)
	return buf
}

// GetEmbeddingRequest is VEXFS_IOCTL_GET_EMBEDDING's request.
type GetEmbeddingRequest struct {
	VectorID   uint64
	Inode      uint64 // alternative lookup key when VectorID == 0
	BufferSize uint32
	Flags      uint32
}

const getEmbeddingReqSize = 24

func DecodeGetEmbeddingRequest(buf []byte) (GetEmbeddingRequest, error) {
	if len(buf) < getEmbeddingReqSize {
		return GetEmbeddingRequest{}, wireErr("get_embedding request", getEmbeddingReqSize, len(buf))
	}
	return GetEmbeddingRequest{
		VectorID:   binary.LittleEndian.Uint64(buf[0:8]),
		Inode:      binary.LittleEndian.Uint64(buf[8:16]),
		BufferSize: binary.LittleEndian.Uint32(buf[16:20]),
		Flags:      binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

// GetEmbeddingResponse is VEXFS_IOCTL_GET_EMBEDDING's response header; the
// decompressed vector payload (ActualSize bytes) follows immediately.
type GetEmbeddingResponse struct {
	VectorID     uint64
	Result       ResultCode
	Dims         uint32
	DType        uint8
	Compression  uint8
	OriginalSize uint32
	ActualSize   uint32
	CreatedAt    uint64
	ModifiedAt   uint64
	Checksum     uint32
	Flags        uint32
}

const getEmbeddingRespSize = 52

func (r GetEmbeddingResponse) Encode() []byte {
	buf := make([]byte, getEmbeddingRespSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Result))
	binary.LittleEndian.PutUint32(buf[12:16], r.Dims)
	buf[16] = r.DType
	buf[17] = r.Compression
	binary.LittleEndian.PutUint32(buf[20:24], r.OriginalSize)
	binary.LittleEndian.PutUint32(buf[24:28], r.ActualSize)
	binary.LittleEndian.PutUint64(buf[28:36], r.CreatedAt)
	binary.LittleEndian.PutUint64(buf[36:44], r.ModifiedAt)
	binary.LittleEndian.PutUint32(buf[44:48], r.Checksum)
	binary.LittleEndian.PutUint32(buf[48:52], r.Flags)
	return buf
}

// UpdateEmbeddingRequest is VEXFS_IOCTL_UPDATE_EMBEDDING's request header;
// the replacement vector payload (DataSize bytes) follows immediately.
type UpdateEmbeddingRequest struct {
	VectorID    uint64
	Dims        uint32
	DType       uint8
	Compression uint8
	DataSize    uint32
	Flags       uint32
}

const updateEmbeddingReqSize = 24

func DecodeUpdateEmbeddingRequest(buf []byte) (UpdateEmbeddingRequest, error) {
	if len(buf) < updateEmbeddingReqSize {
		return UpdateEmbeddingRequest{}, wireErr("update_embedding request", updateEmbeddingReqSize, len(buf))
	}
	return UpdateEmbeddingRequest{
		VectorID:    binary.LittleEndian.Uint64(buf[0:8]),
		Dims:        binary.LittleEndian.Uint32(buf[8:12]),
		DType:       buf[12],
		Compression: buf[13],
		DataSize:    binary.LittleEndian.Uint32(buf[16:20]),
		Flags:       binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

// UpdateEmbeddingResponse is VEXFS_IOCTL_UPDATE_EMBEDDING's response.
type UpdateEmbeddingResponse struct {
	VectorID          uint64
	Result            ResultCode
	ProcessingTimeUs  uint64
	NewCompressedSize uint32
	NewChecksum       uint32
	UpdateTimestamp   uint64
	Flags             uint32
}

const updateEmbeddingRespSize = 40

func (r UpdateEmbeddingResponse) Encode() []byte {
	buf := make([]byte, updateEmbeddingRespSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Result))
	binary.LittleEndian.PutUint64(buf[12:20], r.ProcessingTimeUs)
	binary.LittleEndian.PutUint32(buf[20:24], r.NewCompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], r.NewChecksum)
	binary.LittleEndian.PutUint64(buf[28:36], r.UpdateTimestamp)
	binary.LittleEndian.PutUint32(buf[36:40], r.Flags)
	return buf
}

// DeleteEmbeddingRequest is VEXFS_IOCTL_DELETE_EMBEDDING's request.
type DeleteEmbeddingRequest struct {
	VectorID uint64
	Inode    uint64
	Flags    uint32
}

const deleteEmbeddingReqSize = 20

func DecodeDeleteEmbeddingRequest(buf []byte) (DeleteEmbeddingRequest, error) {
	if len(buf) < deleteEmbeddingReqSize {
		return DeleteEmbeddingRequest{}, wireErr("delete_embedding request", deleteEmbeddingReqSize, len(buf))
	}
	return DeleteEmbeddingRequest{
		VectorID: binary.LittleEndian.Uint64(buf[0:8]),
		Inode:    binary.LittleEndian.Uint64(buf[8:16]),
		Flags:    binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

// DeleteEmbeddingResponse is VEXFS_IOCTL_DELETE_EMBEDDING's response.
type DeleteEmbeddingResponse struct {
	VectorID          uint64
	Result            ResultCode
	ProcessingTimeUs  uint64
	FreedBlocks       uint32
	DeletionTimestamp uint64
	Flags             uint32
}

const deleteEmbeddingRespSize = 36

func (r DeleteEmbeddingResponse) Encode() []byte {
	buf := make([]byte, deleteEmbeddingRespSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Result))
	binary.LittleEndian.PutUint64(buf[12:20], r.ProcessingTimeUs)
	binary.LittleEndian.PutUint32(buf[20:24], r.FreedBlocks)
	binary.LittleEndian.PutUint64(buf[24:32], r.DeletionTimestamp)
	binary.LittleEndian.PutUint32(buf[32:36], r.Flags)
	return buf
}
