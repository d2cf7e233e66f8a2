package vstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/vexfs/vexfs-core/internal/quant"
)

// sparsityThreshold is the sparsity cut-off of the policy-based
// compression selection from spec §4.2.
const (
	sparsityThreshold   = 0.6
	productQuantizeSize = 10 // cluster member count floor from §4.6
)

// codec is the uniform shape every compression code implements: turn a
// float32 vector into a payload, and back. Lossy codecs (quantization)
// accept some reconstruction error; lossless codecs (none, sparse) do not.
type codec interface {
	compress(vector []float32) ([]byte, error)
	decompress(payload []byte, dims int) ([]float32, error)
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
var zstdDecoder, _ = zstd.NewReader(nil)

// rawCodec stores the vector as raw little-endian f32s wrapped in a zstd
// frame — the "none" compression code, given an outer generic-compression
// envelope so it still benefits from run-length redundancy in near-zero or
// repeated-value vectors.
type rawCodec struct{}

func (rawCodec) compress(vector []float32) ([]byte, error) {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return zstdEncoder.EncodeAll(buf, nil), nil
}

func (rawCodec) decompress(payload []byte, dims int) ([]float32, error) {
	buf, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("vstore: failed to inflate raw payload: %w", err)
	}
	if len(buf) != dims*4 {
		return nil, fmt.Errorf("vstore: raw payload size %d does not match dims %d", len(buf), dims)
	}
	out := make([]float32, dims)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}

// sparseCodec stores only nonzero (index, value) pairs, zstd-wrapped, for
// vectors with sparsity ratio >= sparsityThreshold.
type sparseCodec struct{}

func (sparseCodec) compress(vector []float32) ([]byte, error) {
	buf := make([]byte, 0, len(vector))
	var idxBuf [4]byte
	var valBuf [4]byte
	for i, v := range vector {
		if v == 0 {
			continue
		}
		binary.LittleEndian.PutUint32(idxBuf[:], uint32(i))
		binary.LittleEndian.PutUint32(valBuf[:], math.Float32bits(v))
		buf = append(buf, idxBuf[:]...)
		buf = append(buf, valBuf[:]...)
	}
	return zstdEncoder.EncodeAll(buf, nil), nil
}

func (sparseCodec) decompress(payload []byte, dims int) ([]float32, error) {
	buf, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("vstore: failed to inflate sparse payload: %w", err)
	}
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("vstore: malformed sparse payload length %d", len(buf))
	}
	out := make([]float32, dims)
	for off := 0; off < len(buf); off += 8 {
		idx := binary.LittleEndian.Uint32(buf[off : off+4])
		val := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		if int(idx) >= dims {
			return nil, fmt.Errorf("vstore: sparse index %d out of range for dims %d", idx, dims)
		}
		out[idx] = val
	}
	return out, nil
}

// quantCodec adapts an internal/quant.Quantizer (scalar or product) to the
// codec interface, lazily training it once enough sample vectors have been
// observed (spec §4.2's "training-threshold-gated" compression policy).
type quantCodec struct {
	mu        sync.Mutex
	quantizer quant.Quantizer
	samples   [][]float32
	threshold int
}

func newQuantCodec(q quant.Quantizer, trainThreshold int) *quantCodec {
	return &quantCodec{quantizer: q, threshold: trainThreshold}
}

func (c *quantCodec) compress(vector []float32) ([]byte, error) {
	c.mu.Lock()
	if !c.quantizer.IsTrained() {
		cp := make([]float32, len(vector))
		copy(cp, vector)
		c.samples = append(c.samples, cp)
		if len(c.samples) >= c.threshold {
			if err := c.quantizer.Train(context.Background(), c.samples); err != nil {
				c.mu.Unlock()
				return nil, fmt.Errorf("vstore: quantizer training failed: %w", err)
			}
			c.samples = nil
		} else {
			c.mu.Unlock()
			// Not trained yet: fall back to the lossless raw codec so the
			// vector is still stored durably while samples accumulate.
			return rawCodec{}.compress(vector)
		}
	}
	c.mu.Unlock()
	return c.quantizer.Compress(vector)
}

func (c *quantCodec) decompress(payload []byte, dims int) ([]float32, error) {
	c.mu.Lock()
	trained := c.quantizer.IsTrained()
	c.mu.Unlock()
	if !trained {
		return rawCodec{}.decompress(payload, dims)
	}
	return c.quantizer.Decompress(payload)
}

// Compressor selects and applies a compression code, caching codecs keyed
// by dimension (scalar/product quantizers are dimension-specific).
type Compressor struct {
	mu     sync.Mutex
	codecs map[CompressionCode]map[int]codec
}

// NewCompressor creates a Compressor with no trained codecs yet.
func NewCompressor() *Compressor {
	return &Compressor{codecs: make(map[CompressionCode]map[int]codec)}
}

// SelectCode implements the policy from spec §4.2: a caller-chosen code
// (anything but CompressionNone) wins; otherwise sparse for vectors at or
// above sparsityThreshold, product quantization for a high-similarity
// batch, and scalar quantization (8-bit) for everything else.
func SelectCode(vector []float32, requested CompressionCode, highSimilarityBatch bool) CompressionCode {
	if requested != CompressionNone {
		return requested
	}
	if sparsity(vector) >= sparsityThreshold {
		return CompressionSparse
	}
	if highSimilarityBatch {
		return CompressionProductQuantize
	}
	return CompressionScalarQuantize8
}

func sparsity(vector []float32) float64 {
	if len(vector) == 0 {
		return 0
	}
	zeros := 0
	for _, v := range vector {
		if v == 0 {
			zeros++
		}
	}
	return float64(zeros) / float64(len(vector))
}

func (c *Compressor) codecFor(code CompressionCode, dims int) codec {
	c.mu.Lock()
	defer c.mu.Unlock()
	byDims, ok := c.codecs[code]
	if !ok {
		byDims = make(map[int]codec)
		c.codecs[code] = byDims
	}
	if existing, ok := byDims[dims]; ok {
		return existing
	}

	var cd codec
	switch code {
	case CompressionSparse:
		cd = sparseCodec{}
	case CompressionScalarQuantize8:
		cfg := quant.DefaultConfig(quant.ScalarQuantization)
		cfg.Bits = 8
		q, _ := quant.Create(cfg)
		cd = newQuantCodec(q, 256)
	case CompressionScalarQuantize4:
		cfg := quant.DefaultConfig(quant.ScalarQuantization)
		cfg.Bits = 4
		q, _ := quant.Create(cfg)
		cd = newQuantCodec(q, 256)
	case CompressionProductQuantize:
		cfg := quant.DefaultConfig(quant.ProductQuantization)
		q, _ := quant.Create(cfg)
		cd = newQuantCodec(q, 256)
	default:
		cd = rawCodec{}
	}
	byDims[dims] = cd
	return cd
}

// Compress encodes vector under code, returning the payload bytes.
func (c *Compressor) Compress(code CompressionCode, vector []float32) ([]byte, error) {
	return c.codecFor(code, len(vector)).compress(vector)
}

// Decompress decodes payload under code into a dims-length vector.
func (c *Compressor) Decompress(code CompressionCode, payload []byte, dims int) ([]float32, error) {
	return c.codecFor(code, dims).decompress(payload, dims)
}
