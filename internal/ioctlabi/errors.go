package ioctlabi

import (
	"errors"

	"github.com/vexfs/vexfs-core/internal/knn"
	"github.com/vexfs/vexfs-core/internal/vstore"
)

// ResultCode is the numeric status every response structure carries,
// mirroring the original's VectorIoctlError repr(u32) so the wire layout
// stays a single 4-byte field regardless of which Go error produced it.
type ResultCode uint32

const (
	ResultSuccess ResultCode = iota
	ResultInvalidRequest
	ResultInvalidDimensions
	ResultInvalidVectorID
	ResultVectorNotFound
	ResultIndexNotFound
	ResultPermissionDenied
	ResultInsufficientMemory
	ResultInvalidBuffer
	ResultBufferTooSmall
	ResultInvalidParameters
	ResultIndexCorrupted
	ResultIOError
	ResultTimeout
	ResultConcurrentAccess
	ResultInvalidFormat
	ResultUnknown ResultCode = 255
)

// CodeFor classifies err into the wire-stable ResultCode a response
// structure reports, matching the original's From<AnnsError>/
// From<VectorStorageError> conversions collapsed onto this package's own
// dependency errors.
func CodeFor(err error) ResultCode {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, vstore.ErrNotFound):
		return ResultVectorNotFound
	case errors.Is(err, vstore.ErrInvalidDimension):
		return ResultInvalidDimensions
	case errors.Is(err, vstore.ErrChecksumMismatch):
		return ResultIndexCorrupted
	case errors.Is(err, vstore.ErrAlreadyExists):
		return ResultInvalidVectorID
	case errors.Is(err, knn.ErrEmptyResult):
		return ResultVectorNotFound
	case errors.Is(err, knn.ErrDimensionMismatch):
		return ResultInvalidDimensions
	case errors.Is(err, knn.ErrInvalidK), errors.Is(err, knn.ErrMetricIncompatible):
		return ResultInvalidParameters
	default:
		return ResultUnknown
	}
}
