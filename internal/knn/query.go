// Package knn implements the k-NN / Scoring Pipeline (C6): it combines the
// similarity kernel (C2), storage engine (C3), vector cache (C4), and HNSW
// index (C5) to execute single and batched nearest-neighbor queries with
// metadata filtering, scoring, ranking, diversity filtering, and rank
// fusion, grounded on the teacher's libravdb/query.go QueryBuilder and
// internal/filter package.
package knn

import (
	"context"
	"fmt"
	"math"

	"github.com/vexfs/vexfs-core/internal/hnsw"
	"github.com/vexfs/vexfs-core/internal/simkernel"
	"github.com/vexfs/vexfs-core/internal/vcache"
	"github.com/vexfs/vexfs-core/internal/vstore"
)

// ScoringMethod selects how a candidate's final Score is computed (spec
// §4.5 "Scoring").
type ScoringMethod int

const (
	ScoreDistanceOnly ScoringMethod = iota
	ScoreConfidenceOnly
	ScoreHybrid
)

// HybridWeights are the w_d/w_c/w_m terms of ScoreHybrid; they must sum to
// 1 per spec.
type HybridWeights struct {
	Distance   float64
	Confidence float64
	Metadata   float64
}

// DefaultHybridWeights returns a weighting that favors distance while still
// letting confidence and metadata break close ties.
func DefaultHybridWeights() HybridWeights {
	return HybridWeights{Distance: 0.6, Confidence: 0.2, Metadata: 0.2}
}

// Quality flag bits carried on ScoredResult.QualityFlags.
const (
	FlagApproximate uint32 = 1 << iota
	FlagReRanked
	FlagFiltered
	FlagDiversityFiltered
)

// Query is one k-NN request (spec §4.5 "Query object").
type Query struct {
	Vector             []float32
	K                   int
	Metric              simkernel.Metric
	Approximate         bool
	ExpansionFactor     float64
	Filter              *MetadataQuery
	ExactDistances      bool
	SIMD                bool
	EfSearch            int
	Scoring             ScoringMethod
	Weights             HybridWeights
	DiversityThreshold  float64 // 0 disables the diversity filter
	MinConfidence       float64
	MaxDistance         *float32
}

func (q *Query) validate(dim int) error {
	if q.K < 1 || q.K > 10000 {
		return ErrInvalidK
	}
	if len(q.Vector) != dim {
		return ErrDimensionMismatch
	}
	return nil
}

// ScoredResult is one ranked query output (spec §3 "Scored Result").
type ScoredResult struct {
	VectorID        uint64
	Inode           uint64
	Distance        float32
	Metadata        map[string]interface{}
	Score           float64
	Confidence      float64
	Rank            int
	NormalizedScore float64
	QualityFlags    uint32
}

// Pipeline wires C2-C5 into the executable k-NN pipeline. Graph may be nil
// if only exact search is needed.
type Pipeline struct {
	Store *vstore.Store
	Cache *vcache.Cache
	Graph *hnsw.Graph

	// ExtensionResolver supplies the file-extension metadata dimension;
	// the core itself has no filename index (out of scope per spec §1),
	// so this is wired in by the caller (e.g. the FUSE layer). A nil
	// resolver means extension filters never match.
	ExtensionResolver func(inode uint64) string
}

// NewPipeline constructs a Pipeline over the given components.
func NewPipeline(store *vstore.Store, cache *vcache.Cache, graph *hnsw.Graph) *Pipeline {
	return &Pipeline{Store: store, Cache: cache, Graph: graph}
}

// candidate is an internal working record carrying everything scoring
// needs before the public ScoredResult is assembled.
type candidate struct {
	header   *vstore.Header
	distance float32
}

// fetch retrieves a vector record through the cache, falling back to
// storage on a miss and populating the cache on the way back (spec §4.5
// "Candidates are fetched via C4; misses fall through to C3").
func (p *Pipeline) fetch(ctx context.Context, id uint64) (*vstore.Record, error) {
	if p.Cache != nil {
		if e, ok := p.Cache.Vectors.Get(id); ok {
			return &vstore.Record{Data: e.Bytes}, nil
		}
	}
	rec, err := p.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Cache != nil {
		ratio := float32(1)
		if rec.Header.OriginalSize > 0 {
			ratio = float32(rec.Header.CompressedSize) / float32(rec.Header.OriginalSize)
		}
		_ = p.Cache.Vectors.Insert(ctx, id, rec.Data, ratio)
	}
	return rec, nil
}

// fetchHeader retrieves only the header+metadata needed for filtering and
// scoring, without requiring the decompressed vector (used by the exact
// scan's metadata pre-filter).
func (p *Pipeline) fetchHeader(ctx context.Context, id uint64) (*vstore.Header, error) {
	rec, err := p.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Header, nil
}

// Search executes q and returns its ranked, scored results.
func (p *Pipeline) Search(ctx context.Context, q *Query) ([]ScoredResult, error) {
	if q.Approximate && p.Graph != nil {
		return p.searchApproximate(ctx, q)
	}
	return p.searchExact(ctx, q)
}

func (p *Pipeline) searchApproximate(ctx context.Context, q *Query) ([]ScoredResult, error) {
	ef := q.EfSearch
	want := int(math.Ceil(float64(q.K) * q.ExpansionFactor))
	if want < q.K {
		want = q.K
	}
	if ef < want {
		ef = want
	}

	raw, err := p.Graph.Search(ctx, q.Vector, q.K, ef)
	if err != nil {
		return nil, fmt.Errorf("knn: approximate search: %w", err)
	}

	var kernel *simkernel.Kernel
	if q.ExactDistances {
		kernel, err = simkernel.NewKernel(q.Metric)
		if err != nil {
			return nil, err
		}
	}

	cands := make([]candidate, 0, len(raw))
	for _, r := range raw {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h, err := p.fetchHeader(ctx, r.VectorID)
		if err != nil {
			continue
		}
		ok, err := q.Filter.matches(ctx, h, p.ExtensionResolver)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		dist := r.Distance
		if kernel != nil {
			rec, err := p.fetch(ctx, r.VectorID)
			if err == nil {
				if d, err := kernel.Score(q.Vector, vstore.DecodeFloats(rec.Data)); err == nil {
					dist = d
				}
			}
		}
		cands = append(cands, candidate{header: h, distance: dist})
	}

	flags := FlagApproximate
	if q.ExactDistances {
		flags |= FlagReRanked
	}
	if q.Filter != nil {
		flags |= FlagFiltered
	}
	return p.finish(ctx, q, cands, flags)
}

func (p *Pipeline) searchExact(ctx context.Context, q *Query) ([]ScoredResult, error) {
	kernel, err := simkernel.NewKernel(q.Metric)
	if err != nil {
		return nil, err
	}

	ids := p.Store.AllIDs()
	cands := make([]candidate, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h, err := p.fetchHeader(ctx, id)
		if err != nil {
			continue
		}
		ok, err := q.Filter.matches(ctx, h, p.ExtensionResolver)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rec, err := p.fetch(ctx, id)
		if err != nil {
			continue
		}
		dist, err := kernel.Score(q.Vector, vstore.DecodeFloats(rec.Data))
		if err != nil {
			continue
		}
		cands = append(cands, candidate{header: h, distance: dist})
	}

	var flags uint32
	if q.Filter != nil {
		flags |= FlagFiltered
	}
	return p.finish(ctx, q, cands, flags)
}

// finish applies scoring, ranking, diversity filtering, normalization and
// final thresholds to a raw candidate set, per spec §4.5 "Ranking and
// filtering".
func (p *Pipeline) finish(ctx context.Context, q *Query, cands []candidate, flags uint32) ([]ScoredResult, error) {
	if len(cands) == 0 {
		return nil, ErrEmptyResult
	}

	results := scoreAll(cands, q)
	for i := range results {
		results[i].QualityFlags = flags
	}

	sortResults(results)

	if q.DiversityThreshold > 0 {
		results = applyDiversityFilter(results, q.DiversityThreshold)
	}

	assignRanks(results)
	normalizeScores(results)

	if q.K < len(results) {
		results = results[:q.K]
	}

	out := applyThresholds(results, q.MinConfidence, q.MaxDistance)
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}
