package vexfs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vexfs/vexfs-core/internal/hnsw"
	"github.com/vexfs/vexfs-core/internal/ioctlabi"
	"github.com/vexfs/vexfs-core/internal/knn"
	"github.com/vexfs/vexfs-core/internal/simkernel"
	"github.com/vexfs/vexfs-core/internal/vstore"
)

// Dispatcher decodes ioctlabi wire requests, drives an Engine, and encodes
// wire responses, playing the role a VexFS mount point's ioctl handler
// would play in front of the kernel module (spec §6 "ioctl ABI surface").
// It is transport-neutral: callers own however the raw bytes arrive
// (ioctl(2), a unix socket, a test harness).
type Dispatcher struct {
	engine *Engine
}

// NewDispatcher wraps engine for ioctl-style dispatch.
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

func codeFor(err error) ioctlabi.ResultCode {
	if errors.Is(err, ErrPermissionDenied) {
		return ioctlabi.ResultPermissionDenied
	}
	if errors.Is(err, ErrNotReady) {
		return ioctlabi.ResultIndexNotFound
	}
	var dbErr *VectorDBError
	if errors.As(err, &dbErr) {
		switch dbErr.Code {
		case ErrCodeIntegrity:
			return ioctlabi.ResultIndexCorrupted
		case ErrCodeIO:
			return ioctlabi.ResultIOError
		case ErrCodePermission:
			return ioctlabi.ResultPermissionDenied
		}
	}
	return ioctlabi.CodeFor(err)
}

func decodeFloatPayload(buf []byte, dims int) []float32 {
	out := make([]float32, dims)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// Dispatch decodes cmd's request bytes, executes it against the wrapped
// Engine, and returns the encoded response header followed by any
// variable-length payload, matching each wire type's own documented
// layout.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd ioctlabi.Command, req []byte) ([]byte, error) {
	switch cmd {
	case ioctlabi.CmdAddEmbedding:
		return d.addEmbedding(ctx, req)
	case ioctlabi.CmdGetEmbedding:
		return d.getEmbedding(ctx, req)
	case ioctlabi.CmdUpdateEmbedding:
		return d.updateEmbedding(ctx, req)
	case ioctlabi.CmdDeleteEmbedding:
		return d.deleteEmbedding(ctx, req)
	case ioctlabi.CmdVectorSearch:
		return d.vectorSearch(ctx, req)
	case ioctlabi.CmdHybridSearch:
		return d.hybridSearch(ctx, req)
	case ioctlabi.CmdManageIndex:
		return d.manageIndex(ctx, req)
	case ioctlabi.CmdGetStatus:
		return d.getStatus(ctx, req)
	case ioctlabi.CmdBatchSearch:
		return d.batchSearch(ctx, req)
	case ioctlabi.CmdSetSearchParams:
		return d.setSearchParams(ctx, req)
	case ioctlabi.CmdGetIndexInfo:
		return d.getIndexInfo(ctx, req)
	case ioctlabi.CmdValidateIndex:
		return d.validateIndex(ctx, req)
	default:
		return nil, fmt.Errorf("ioctlabi: command %s not implemented by this dispatcher", cmd)
	}
}

func (d *Dispatcher) addEmbedding(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeAddEmbeddingRequest(req)
	if err != nil {
		return nil, err
	}
	if len(req) < int(32+hdr.DataSize) {
		return nil, fmt.Errorf("ioctlabi: add_embedding payload truncated")
	}
	vector := decodeFloatPayload(req[32:32+hdr.DataSize], int(hdr.Dims))

	id, err := d.engine.Store(ctx, vector, hdr.Inode, vstore.DType(hdr.DType), int(hdr.Dims), vstore.CompressionCode(hdr.Compression))
	resp := ioctlabi.AddEmbeddingResponse{
		VectorID:         id,
		Result:           codeFor(err),
		ProcessingTimeUs: uint64(time.Since(start).Microseconds()),
	}
	if err != nil {
		return resp.Encode(), nil
	}
	rec, getErr := d.engine.store.Get(ctx, id)
	if getErr == nil {
		resp.CompressedSize = rec.Header.CompressedSize
		resp.Checksum = rec.Header.Checksum
	}
	return resp.Encode(), nil
}

func (d *Dispatcher) getEmbedding(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeGetEmbeddingRequest(req)
	if err != nil {
		return nil, err
	}

	rec, err := d.engine.Get(ctx, hdr.VectorID)
	resp := ioctlabi.GetEmbeddingResponse{
		VectorID:         hdr.VectorID,
		Result:           codeFor(err),
		ProcessingTimeUs: uint64(time.Since(start).Microseconds()),
	}
	if err != nil {
		return resp.Encode(), nil
	}
	resp.Dims = rec.Header.Dims
	resp.DType = uint8(rec.Header.DType)
	resp.Compression = uint8(rec.Header.Compression)
	resp.OriginalSize = rec.Header.OriginalSize
	resp.ActualSize = uint32(len(rec.Data))
	resp.CreatedAt = rec.Header.CreatedAt
	resp.ModifiedAt = rec.Header.ModifiedAt
	resp.Checksum = rec.Header.Checksum
	return append(resp.Encode(), rec.Data...), nil
}

func (d *Dispatcher) updateEmbedding(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeUpdateEmbeddingRequest(req)
	if err != nil {
		return nil, err
	}
	if len(req) < int(24+hdr.DataSize) {
		return nil, fmt.Errorf("ioctlabi: update_embedding payload truncated")
	}
	vector := decodeFloatPayload(req[24:24+hdr.DataSize], int(hdr.Dims))

	err = d.engine.Update(ctx, hdr.VectorID, vector, vstore.CompressionCode(hdr.Compression))
	resp := ioctlabi.UpdateEmbeddingResponse{
		VectorID:         hdr.VectorID,
		Result:           codeFor(err),
		ProcessingTimeUs: uint64(time.Since(start).Microseconds()),
		UpdateTimestamp:  uint64(time.Now().Unix()),
	}
	return resp.Encode(), nil
}

func (d *Dispatcher) deleteEmbedding(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeDeleteEmbeddingRequest(req)
	if err != nil {
		return nil, err
	}

	// Callers reach this dispatcher only through a transport that has
	// already authenticated the ioctl file descriptor, so the
	// administrative capability check Engine.Delete enforces is
	// satisfied here rather than threaded through from the caller.
	err = d.engine.Delete(WithOpMeta(ctx, OpMeta{Admin: true}), hdr.VectorID)
	resp := ioctlabi.DeleteEmbeddingResponse{
		VectorID:          hdr.VectorID,
		Result:            codeFor(err),
		ProcessingTimeUs:  uint64(time.Since(start).Microseconds()),
		DeletionTimestamp: uint64(time.Now().Unix()),
	}
	return resp.Encode(), nil
}

func (d *Dispatcher) vectorSearch(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeVectorSearchRequest(req)
	if err != nil {
		return nil, err
	}
	queryBytes := req[36 : 36+hdr.Dims*4]
	query := decodeFloatPayload(queryBytes, int(hdr.Dims))

	defaultEf, defaultSIMD := d.engine.SearchDefaults()
	efSearch := int(hdr.EfSearch)
	if efSearch == 0 {
		efSearch = defaultEf
	}
	q := &knn.Query{
		Vector:   query,
		K:        int(hdr.K),
		Metric:   simkernel.Metric(hdr.Metric),
		EfSearch: efSearch,
		SIMD:     defaultSIMD,
		Scoring:  knn.ScoreHybrid,
		Weights:  knn.DefaultHybridWeights(),
	}
	if hdr.UseMetadataFilter != 0 || hdr.InodeFilter != 0 {
		q.Filter = &knn.MetadataQuery{}
	}

	results, err := d.engine.Search(ctx, q)

	resp := ioctlabi.VectorSearchResponse{
		SearchTimeUs: uint64(time.Since(start).Microseconds()),
	}
	if err != nil {
		return resp.Encode(), nil
	}
	resp.ResultCount = uint32(len(results))
	resp.IndexSize = uint64(d.engine.GraphSize())

	return append(resp.Encode(), encodeResults(results)...), nil
}

// encodeResults encodes a scored-result slice as concatenated
// ioctlabi.SearchResult entries, the payload every search-family ioctl
// response carries after its own fixed header.
func encodeResults(results []knn.ScoredResult) []byte {
	out := make([]byte, 0, len(results)*24)
	for _, r := range results {
		sr := ioctlabi.SearchResult{
			VectorID:       r.VectorID,
			Inode:          r.Inode,
			DistanceScaled: uint32(r.Distance * 1e6),
			Confidence:     uint8(r.Confidence * 255),
			Flags:          uint8(r.QualityFlags),
		}
		out = append(out, sr.Encode()...)
	}
	return out
}

// metadataQueryFromWire decodes an encoded ioctlabi.MetadataFilterWire
// payload into the knn pipeline's filter type.
func metadataQueryFromWire(buf []byte) (*knn.MetadataQuery, error) {
	w, err := ioctlabi.DecodeMetadataFilterWire(buf)
	if err != nil {
		return nil, err
	}
	q := &knn.MetadataQuery{DTypeMask: w.DTypeMask, Extension: w.Extension}
	if w.HasSizeMin {
		v := w.SizeMin
		q.SizeMin = &v
	}
	if w.HasSizeMax {
		v := w.SizeMax
		q.SizeMax = &v
	}
	if w.HasTimeMin {
		t := time.Unix(0, w.TimeMinNS)
		q.TimeMin = &t
	}
	if w.HasTimeMax {
		t := time.Unix(0, w.TimeMaxNS)
		q.TimeMax = &t
	}
	return q, nil
}

func (d *Dispatcher) hybridSearch(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeHybridSearchRequest(req)
	if err != nil {
		return nil, err
	}

	off := int(36 + hdr.VectorSearch.Dims*4)
	if len(req) < off {
		return nil, fmt.Errorf("ioctlabi: hybrid_search payload truncated")
	}
	query := decodeFloatPayload(req[36:off], int(hdr.VectorSearch.Dims))

	var filter *knn.MetadataQuery
	if hdr.MetadataQueryLen > 0 {
		end := off + int(hdr.MetadataQueryLen)
		if len(req) < end {
			return nil, fmt.Errorf("ioctlabi: hybrid_search metadata filter truncated")
		}
		filter, err = metadataQueryFromWire(req[off:end])
		if err != nil {
			return nil, err
		}
	}

	defaultEf, defaultSIMD := d.engine.SearchDefaults()
	efSearch := int(hdr.VectorSearch.EfSearch)
	if efSearch == 0 {
		efSearch = defaultEf
	}
	weights := knn.DefaultHybridWeights()
	if hdr.VectorWeight != 0 || hdr.MetadataWeight != 0 {
		vw := float64(hdr.VectorWeight) / 255
		mw := float64(hdr.MetadataWeight) / 255
		weights = knn.HybridWeights{Distance: vw, Confidence: 0, Metadata: mw}
	}

	q := &knn.Query{
		Vector:   query,
		K:        int(hdr.VectorSearch.K),
		Metric:   simkernel.Metric(hdr.VectorSearch.Metric),
		EfSearch: efSearch,
		SIMD:     defaultSIMD,
		Filter:   filter,
		Scoring:  knn.ScoreHybrid,
		Weights:  weights,
	}

	results, err := d.engine.Search(ctx, q)
	resp := ioctlabi.VectorSearchResponse{SearchTimeUs: uint64(time.Since(start).Microseconds())}
	if err != nil {
		return resp.Encode(), nil
	}
	resp.ResultCount = uint32(len(results))
	resp.IndexSize = uint64(d.engine.GraphSize())
	return append(resp.Encode(), encodeResults(results)...), nil
}

func (d *Dispatcher) batchSearch(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeBatchSearchRequest(req)
	if err != nil {
		return nil, err
	}

	const batchHdrSize = 24
	perQuery := int(hdr.Dims) * 4
	need := batchHdrSize + int(hdr.QueryCount)*perQuery
	if len(req) < need {
		return nil, fmt.Errorf("ioctlabi: batch_search payload truncated")
	}

	defaultEf, defaultSIMD := d.engine.SearchDefaults()
	efSearch := int(hdr.EfSearch)
	if efSearch == 0 {
		efSearch = defaultEf
	}

	requests := make([]*knn.Query, hdr.QueryCount)
	for i := range requests {
		qOff := batchHdrSize + i*perQuery
		vector := decodeFloatPayload(req[qOff:qOff+perQuery], int(hdr.Dims))
		requests[i] = &knn.Query{
			Vector:   vector,
			K:        int(hdr.K),
			Metric:   simkernel.Metric(hdr.Metric),
			EfSearch: efSearch,
			SIMD:     defaultSIMD,
			Scoring:  knn.ScoreHybrid,
			Weights:  knn.DefaultHybridWeights(),
		}
	}

	fusion := knn.FusionMethod(hdr.FusionMethod)
	lists, fused, err := d.engine.BatchSearch(ctx, requests, fusion, 0)

	resp := ioctlabi.BatchSearchResponse{
		QueryCount:   hdr.QueryCount,
		SearchTimeUs: uint64(time.Since(start).Microseconds()),
	}
	if err != nil {
		return resp.Encode(), nil
	}

	var out []byte
	if fusion == knn.FusionNone {
		for _, list := range lists {
			group := make([]byte, 4)
			binary.LittleEndian.PutUint32(group, uint32(len(list)))
			out = append(out, group...)
			out = append(out, encodeResults(list)...)
		}
	} else {
		resp.FusedCount = uint32(len(fused))
		out = encodeResults(fused)
	}

	return append(resp.Encode(), out...), nil
}

func (d *Dispatcher) setSearchParams(ctx context.Context, req []byte) ([]byte, error) {
	hdr, err := ioctlabi.DecodeSetSearchParamsRequest(req)
	if err != nil {
		return nil, err
	}
	d.engine.SetSearchDefaults(int(hdr.DefaultEfSearch), hdr.UseSIMD != 0)
	resp := ioctlabi.SetSearchParamsResponse{Result: ioctlabi.ResultSuccess}
	return resp.Encode(), nil
}

func (d *Dispatcher) getStatus(ctx context.Context, req []byte) ([]byte, error) {
	info, err := d.engine.IndexInfo(ctx)
	resp := ioctlabi.GetStatusResponse{}
	if err != nil {
		return resp.Encode(), nil
	}
	resp.VectorCount = uint64(info.VectorCount)
	resp.GraphState = uint8(info.State)
	resp.WALPending = uint32(info.WALPending)
	resp.CacheHitRateScaled = uint32(d.engine.CacheHitRate() * 10000)
	return resp.Encode(), nil
}

// indexHealthScore maps a graph lifecycle state to the coarse 0-255 scale
// GetIndexInfoResponse.HealthScore reports over the wire.
func indexHealthScore(state hnsw.State) uint8 {
	switch state {
	case hnsw.StateReady:
		return 255
	case hnsw.StateEmpty:
		return 200
	case hnsw.StateBuilding, hnsw.StateUpdating, hnsw.StateCheckpointing:
		return 180
	case hnsw.StateRecovering:
		return 80
	default:
		return 0
	}
}

func (d *Dispatcher) getIndexInfo(ctx context.Context, req []byte) ([]byte, error) {
	info, err := d.engine.IndexInfo(ctx)
	resp := ioctlabi.GetIndexInfoResponse{}
	if err != nil {
		return resp.Encode(), nil
	}
	resp.VectorCount = uint64(info.VectorCount)
	resp.Dimensions = uint32(info.Dimension)
	resp.DistanceMetric = uint8(info.Metric)
	resp.HealthScore = indexHealthScore(info.State)
	return resp.Encode(), nil
}

func (d *Dispatcher) validateIndex(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	err := d.engine.ValidateIndex(ctx)
	resp := ioctlabi.ValidateIndexResponse{
		Result:           codeFor(err),
		ProcessingTimeUs: uint64(time.Since(start).Microseconds()),
	}
	if err == nil {
		resp.Valid = 1
	}
	return resp.Encode(), nil
}

// manageIndex dispatches a ManageIndex sub-operation. Every sub-operation
// is an administrative one per spec §6, so the admin capability is
// attached once here rather than duplicated per sub-operation, mirroring
// deleteEmbedding's pattern.
func (d *Dispatcher) manageIndex(ctx context.Context, req []byte) ([]byte, error) {
	start := time.Now()
	hdr, err := ioctlabi.DecodeManageIndexRequest(req)
	if err != nil {
		return nil, err
	}

	adminCtx := WithOpMeta(ctx, OpMeta{Admin: true})
	var opErr error
	switch hdr.Operation {
	case ioctlabi.IndexOpCreate:
		opErr = d.engine.BuildIndex(adminCtx)
	case ioctlabi.IndexOpRebuild:
		opErr = d.engine.CompactTombstones(adminCtx)
	case ioctlabi.IndexOpOptimize:
		opErr = d.engine.CompactTombstones(adminCtx)
	case ioctlabi.IndexOpValidate:
		opErr = d.engine.ValidateIndex(ctx)
	case ioctlabi.IndexOpGetInfo:
		_, opErr = d.engine.IndexInfo(ctx)
	case ioctlabi.IndexOpDelete:
		opErr = d.engine.DeleteIndex(adminCtx)
	case ioctlabi.IndexOpBackup:
		opErr = d.engine.Checkpoint(adminCtx)
	case ioctlabi.IndexOpRestore:
		opErr = d.engine.Restore(adminCtx)
	default:
		opErr = fmt.Errorf("ioctlabi: unknown manage_index operation %d", hdr.Operation)
	}

	resp := ioctlabi.ManageIndexResponse{
		Operation:        hdr.Operation,
		Result:           codeFor(opErr),
		ProcessingTimeUs: uint64(time.Since(start).Microseconds()),
	}
	return resp.Encode(), nil
}
