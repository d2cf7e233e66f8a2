package ioctlabi

import "encoding/binary"

// VectorSearchRequest is VEXFS_IOCTL_VECTOR_SEARCH's request header; the
// query vector (Dims little-endian float32 values) follows immediately.
type VectorSearchRequest struct {
	Dims              uint32
	K                 uint32
	Metric            uint8
	EfSearch          uint16
	UseMetadataFilter uint8
	InodeFilter       uint64
	MinConfidence     uint8 // scaled 0-255
	MaxDistanceScaled uint32
	Flags             uint32
}

const vectorSearchReqSize = 36

func (r VectorSearchRequest) Encode() []byte {
	buf := make([]byte, vectorSearchReqSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Dims)
	binary.LittleEndian.PutUint32(buf[4:8], r.K)
	buf[8] = r.Metric
	binary.LittleEndian.PutUint16(buf[10:12], r.EfSearch)
	buf[12] = r.UseMetadataFilter
	binary.LittleEndian.PutUint64(buf[16:24], r.InodeFilter)
	buf[24] = r.MinConfidence
	binary.LittleEndian.PutUint32(buf[28:32], r.MaxDistanceScaled)
	binary.LittleEndian.PutUint32(buf[32:36], r.Flags)
	return buf
}

func DecodeVectorSearchRequest(buf []byte) (VectorSearchRequest, error) {
	if len(buf) < vectorSearchReqSize {
		return VectorSearchRequest{}, wireErr("vector_search request", vectorSearchReqSize, len(buf))
	}
	return VectorSearchRequest{
		Dims:              binary.LittleEndian.Uint32(buf[0:4]),
		K:                 binary.LittleEndian.Uint32(buf[4:8]),
		Metric:            buf[8],
		EfSearch:          binary.LittleEndian.Uint16(buf[10:12]),
		UseMetadataFilter: buf[12],
		InodeFilter:       binary.LittleEndian.Uint64(buf[16:24]),
		MinConfidence:     buf[24],
		MaxDistanceScaled: binary.LittleEndian.Uint32(buf[28:32]),
		Flags:             binary.LittleEndian.Uint32(buf[32:36]),
	}, nil
}

// SearchResult is one VectorSearchResponse/BatchSearchResponse entry.
type SearchResult struct {
	VectorID       uint64
	Inode          uint64
	DistanceScaled uint32 // distance * 1e6, clamped to uint32 range
	Confidence     uint8  // scaled 0-255
	Flags          uint8
}

const searchResultSize = 24

func (r SearchResult) Encode() []byte {
	buf := make([]byte, searchResultSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.VectorID)
	binary.LittleEndian.PutUint64(buf[8:16], r.Inode)
	binary.LittleEndian.PutUint32(buf[16:20], r.DistanceScaled)
	buf[20] = r.Confidence
	buf[21] = r.Flags
	return buf
}

func DecodeSearchResult(buf []byte) (SearchResult, error) {
	if len(buf) < searchResultSize {
		return SearchResult{}, wireErr("search result", searchResultSize, len(buf))
	}
	return SearchResult{
		VectorID:       binary.LittleEndian.Uint64(buf[0:8]),
		Inode:          binary.LittleEndian.Uint64(buf[8:16]),
		DistanceScaled: binary.LittleEndian.Uint32(buf[16:20]),
		Confidence:     buf[20],
		Flags:          buf[21],
	}, nil
}

// VectorSearchResponse is VEXFS_IOCTL_VECTOR_SEARCH's response header;
// ResultCount SearchResult entries follow immediately.
type VectorSearchResponse struct {
	ResultCount          uint32
	SearchTimeUs         uint64
	DistanceCalculations uint64
	NodesVisited         uint32
	IndexSize            uint64
	Flags                uint32
}

const vectorSearchRespSize = 36

func (r VectorSearchResponse) Encode() []byte {
	buf := make([]byte, vectorSearchRespSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.ResultCount)
	binary.LittleEndian.PutUint64(buf[4:12], r.SearchTimeUs)
	binary.LittleEndian.PutUint64(buf[12:20], r.DistanceCalculations)
	binary.LittleEndian.PutUint32(buf[20:24], r.NodesVisited)
	binary.LittleEndian.PutUint64(buf[24:32], r.IndexSize)
	binary.LittleEndian.PutUint32(buf[32:36], r.Flags)
	return buf
}

// HybridSearchRequest is VEXFS_IOCTL_HYBRID_SEARCH's request header; the
// query vector (VectorSearch.Dims float32 values) followed by the encoded
// metadata filter (MetadataQueryLen bytes, see wire_metadata.go) follow
// immediately, in that order.
type HybridSearchRequest struct {
	VectorSearch     VectorSearchRequest
	MetadataQueryLen uint32
	VectorWeight     uint8 // scaled 0-255
	MetadataWeight   uint8 // scaled 0-255
	Flags            uint32
}

const hybridSearchReqSize = vectorSearchReqSize + 12

func (r HybridSearchRequest) Encode() []byte {
	buf := make([]byte, hybridSearchReqSize)
	copy(buf[0:vectorSearchReqSize], r.VectorSearch.Encode())
	off := vectorSearchReqSize
	binary.LittleEndian.PutUint32(buf[off:off+4], r.MetadataQueryLen)
	buf[off+4] = r.VectorWeight
	buf[off+5] = r.MetadataWeight
	binary.LittleEndian.PutUint32(buf[off+8:off+12], r.Flags)
	return buf
}

func DecodeHybridSearchRequest(buf []byte) (HybridSearchRequest, error) {
	if len(buf) < hybridSearchReqSize {
		return HybridSearchRequest{}, wireErr("hybrid_search request", hybridSearchReqSize, len(buf))
	}
	vs, err := DecodeVectorSearchRequest(buf[0:vectorSearchReqSize])
	if err != nil {
		return HybridSearchRequest{}, err
	}
	off := vectorSearchReqSize
	return HybridSearchRequest{
		VectorSearch:     vs,
		MetadataQueryLen: binary.LittleEndian.Uint32(buf[off : off+4]),
		VectorWeight:     buf[off+4],
		MetadataWeight:   buf[off+5],
		Flags:            binary.LittleEndian.Uint32(buf[off+8 : off+12]),
	}, nil
}

// BatchSearchRequest is VEXFS_IOCTL_BATCH_SEARCH's request header;
// QueryCount*Dims little-endian float32 values follow immediately
// (queries concatenated in order).
type BatchSearchRequest struct {
	QueryCount   uint32
	Dims         uint32
	K            uint32
	Metric       uint8
	EfSearch     uint16
	FusionMethod uint8
	Flags        uint32
}

const batchSearchReqSize = 24

func (r BatchSearchRequest) Encode() []byte {
	buf := make([]byte, batchSearchReqSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.QueryCount)
	binary.LittleEndian.PutUint32(buf[4:8], r.Dims)
	binary.LittleEndian.PutUint32(buf[8:12], r.K)
	buf[12] = r.Metric
	binary.LittleEndian.PutUint16(buf[13:15], r.EfSearch)
	buf[15] = r.FusionMethod
	binary.LittleEndian.PutUint32(buf[16:20], r.Flags)
	return buf
}

func DecodeBatchSearchRequest(buf []byte) (BatchSearchRequest, error) {
	if len(buf) < batchSearchReqSize {
		return BatchSearchRequest{}, wireErr("batch_search request", batchSearchReqSize, len(buf))
	}
	return BatchSearchRequest{
		QueryCount:   binary.LittleEndian.Uint32(buf[0:4]),
		Dims:         binary.LittleEndian.Uint32(buf[4:8]),
		K:            binary.LittleEndian.Uint32(buf[8:12]),
		Metric:       buf[12],
		EfSearch:     binary.LittleEndian.Uint16(buf[13:15]),
		FusionMethod: buf[15],
		Flags:        binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

// BatchSearchResponse is VEXFS_IOCTL_BATCH_SEARCH's response header. When
// FusionMethod == 0 (none), QueryCount groups of
// (uint32 count || count*SearchResult) follow, one per request in order;
// otherwise FusedCount SearchResult entries follow directly.
type BatchSearchResponse struct {
	QueryCount   uint32
	FusedCount   uint32
	SearchTimeUs uint64
	Flags        uint32
}

const batchSearchRespSize = 20

func (r BatchSearchResponse) Encode() []byte {
	buf := make([]byte, batchSearchRespSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.QueryCount)
	binary.LittleEndian.PutUint32(buf[4:8], r.FusedCount)
	binary.LittleEndian.PutUint64(buf[8:16], r.SearchTimeUs)
	binary.LittleEndian.PutUint32(buf[16:20], r.Flags)
	return buf
}
