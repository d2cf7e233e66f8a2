package ioctlabi

import "encoding/binary"

// ManageIndexRequest is VEXFS_IOCTL_MANAGE_INDEX's request.
type ManageIndexRequest struct {
	Operation          IndexOperation
	IndexType          uint8
	HnswM              uint16
	HnswEfConstruction uint16
	MaxLayers          uint8
	OptimizationLevel  uint8
	MemoryBudgetMB     uint32
	Flags              uint32
}

const manageIndexReqSize = 16

func (r ManageIndexRequest) Encode() []byte {
	buf := make([]byte, manageIndexReqSize)
	buf[0] = byte(r.Operation)
	buf[1] = r.IndexType
	binary.LittleEndian.PutUint16(buf[2:4], r.HnswM)
	binary.LittleEndian.PutUint16(buf[4:6], r.HnswEfConstruction)
	buf[6] = r.MaxLayers
	buf[7] = r.OptimizationLevel
	binary.LittleEndian.PutUint32(buf[8:12], r.MemoryBudgetMB)
	binary.LittleEndian.PutUint32(buf[12:16], r.Flags)
	return buf
}

func DecodeManageIndexRequest(buf []byte) (ManageIndexRequest, error) {
	if len(buf) < manageIndexReqSize {
		return ManageIndexRequest{}, wireErr("manage_index request", manageIndexReqSize, len(buf))
	}
	return ManageIndexRequest{
		Operation:          IndexOperation(buf[0]),
		IndexType:          buf[1],
		HnswM:              binary.LittleEndian.Uint16(buf[2:4]),
		HnswEfConstruction: binary.LittleEndian.Uint16(buf[4:6]),
		MaxLayers:          buf[6],
		OptimizationLevel:  buf[7],
		MemoryBudgetMB:     binary.LittleEndian.Uint32(buf[8:12]),
		Flags:              binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// ManageIndexResponse is VEXFS_IOCTL_MANAGE_INDEX's response.
type ManageIndexResponse struct {
	Operation        IndexOperation
	Result           ResultCode
	ProcessingTimeUs uint64
	OperationData    uint64
	Flags            uint32
}

const manageIndexRespSize = 28

func (r ManageIndexResponse) Encode() []byte {
	buf := make([]byte, manageIndexRespSize)
	buf[0] = byte(r.Operation)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Result))
	binary.LittleEndian.PutUint64(buf[8:16], r.ProcessingTimeUs)
	binary.LittleEndian.PutUint64(buf[16:24], r.OperationData)
	binary.LittleEndian.PutUint32(buf[24:28], r.Flags)
	return buf
}

// GetStatusResponse is VEXFS_IOCTL_GET_STATUS's response.
type GetStatusResponse struct {
	VectorCount        uint64
	GraphState         uint8
	WALPending         uint32
	CacheHitRateScaled uint32 // scaled 0-10000 (basis points)
	Flags              uint32
}

const getStatusRespSize = 24

func (r GetStatusResponse) Encode() []byte {
	buf := make([]byte, getStatusRespSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorCount)
	buf[8] = r.GraphState
	binary.LittleEndian.PutUint32(buf[12:16], r.WALPending)
	binary.LittleEndian.PutUint32(buf[16:20], r.CacheHitRateScaled)
	binary.LittleEndian.PutUint32(buf[20:24], r.Flags)
	return buf
}

// SetSearchParamsRequest is VEXFS_IOCTL_SET_SEARCH_PARAMS's request.
type SetSearchParamsRequest struct {
	DefaultEfSearch uint16
	DefaultMetric   uint8
	UseSIMD         uint8
	MemoryBudgetMB  uint32
	CacheSize       uint32
	Flags           uint32
}

const setSearchParamsReqSize = 16

func DecodeSetSearchParamsRequest(buf []byte) (SetSearchParamsRequest, error) {
	if len(buf) < setSearchParamsReqSize {
		return SetSearchParamsRequest{}, wireErr("set_search_params request", setSearchParamsReqSize, len(buf))
	}
	return SetSearchParamsRequest{
		DefaultEfSearch: binary.LittleEndian.Uint16(buf[0:2]),
		DefaultMetric:   buf[2],
		UseSIMD:         buf[3],
		MemoryBudgetMB:  binary.LittleEndian.Uint32(buf[4:8]),
		CacheSize:       binary.LittleEndian.Uint32(buf[8:12]),
		Flags:           binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// SetSearchParamsResponse is VEXFS_IOCTL_SET_SEARCH_PARAMS's response.
type SetSearchParamsResponse struct {
	Result ResultCode
	Flags  uint32
}

const setSearchParamsRespSize = 8

func (r SetSearchParamsResponse) Encode() []byte {
	buf := make([]byte, setSearchParamsRespSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Result))
	binary.LittleEndian.PutUint32(buf[4:8], r.Flags)
	return buf
}

// GetIndexInfoResponse is VEXFS_IOCTL_GET_INDEX_INFO's response.
type GetIndexInfoResponse struct {
	VectorCount    uint64
	Dimensions     uint32
	DistanceMetric uint8
	AlgorithmType  uint8
	Version        uint32
	MemoryUsage    uint64
	DiskUsage      uint64
	AvgSearchPerf  uint32
	HealthScore    uint8
	Flags          uint32
}

const getIndexInfoRespSize = 48

func (r GetIndexInfoResponse) Encode() []byte {
	buf := make([]byte, getIndexInfoRespSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorCount)
	binary.LittleEndian.PutUint32(buf[8:12], r.Dimensions)
	buf[12] = r.DistanceMetric
	buf[13] = r.AlgorithmType
	binary.LittleEndian.PutUint32(buf[16:20], r.Version)
	binary.LittleEndian.PutUint64(buf[20:28], r.MemoryUsage)
	binary.LittleEndian.PutUint64(buf[28:36], r.DiskUsage)
	binary.LittleEndian.PutUint32(buf[36:40], r.AvgSearchPerf)
	buf[40] = r.HealthScore
	binary.LittleEndian.PutUint32(buf[44:48], r.Flags)
	return buf
}

// ValidateIndexResponse is VEXFS_IOCTL_VALIDATE_INDEX's response.
type ValidateIndexResponse struct {
	Result           ResultCode
	Valid            uint8
	ProcessingTimeUs uint64
	Flags            uint32
}

const validateIndexRespSize = 20

func (r ValidateIndexResponse) Encode() []byte {
	buf := make([]byte, validateIndexRespSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Result))
	buf[4] = r.Valid
	binary.LittleEndian.PutUint64(buf[8:16], r.ProcessingTimeUs)
	binary.LittleEndian.PutUint32(buf[16:20], r.Flags)
	return buf
}
