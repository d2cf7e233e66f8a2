package knn

import (
	"math"
	"sort"
	"time"

	"github.com/vexfs/vexfs-core/internal/vstore"
)

// confidenceAlpha/Beta are the spec's fixed weighting between distance-
// based and metadata-based confidence (spec §4.5 "Scoring").
const (
	confidenceAlpha = 0.8
	confidenceBeta  = 0.2

	// recencyHalfLife is the age at which recency confidence decays to 0.5,
	// chosen so a file touched within the last day still scores recent.
	recencyHalfLife = 24 * time.Hour
	// idealSizeBytes is the size a vector record is assumed cheapest to
	// serve at full fidelity; records far from it lose size confidence.
	idealSizeBytes = 4096.0
)

// scoreAll computes Distance-confidence, metadata-confidence, Confidence
// and the final Score for every candidate, given the full candidate set (the
// distance-confidence term is a z-score relative to the set).
func scoreAll(cands []candidate, q *Query) []ScoredResult {
	mean, stddev := distanceStats(cands)

	results := make([]ScoredResult, len(cands))
	for i, c := range cands {
		distConf := distanceConfidence(c.distance, mean, stddev)
		metaConf := metadataConfidence(c.header)
		confidence := confidenceAlpha*distConf + confidenceBeta*metaConf

		results[i] = ScoredResult{
			VectorID:   c.header.VectorID,
			Inode:      c.header.Inode,
			Distance:   c.distance,
			Confidence: confidence,
			Metadata: map[string]interface{}{
				"size":        uint64(c.header.CompressedSize),
				"modified_at": time.Unix(0, int64(c.header.ModifiedAt)),
				"dtype":       uint32(c.header.DType),
			},
		}
		results[i].Score = finalScore(q.Scoring, c.distance, confidence, metaConf, q.Weights)
	}
	return results
}

func distanceStats(cands []candidate) (mean, stddev float64) {
	if len(cands) == 0 {
		return 0, 1
	}
	var sum float64
	for _, c := range cands {
		sum += float64(c.distance)
	}
	mean = sum / float64(len(cands))

	var variance float64
	for _, c := range cands {
		d := float64(c.distance) - mean
		variance += d * d
	}
	variance /= float64(len(cands))
	stddev = math.Sqrt(variance)
	if stddev == 0 {
		stddev = 1
	}
	return mean, stddev
}

// distanceConfidence maps a distance's z-score within the candidate set
// through a logistic curve so a below-average (closer) distance yields a
// confidence above 0.5.
func distanceConfidence(d float32, mean, stddev float64) float64 {
	z := (mean - float64(d)) / stddev
	return 1.0 / (1.0 + math.Exp(-z))
}

// metadataConfidence combines recency, size, and dtype weights into a
// single [0,1] score (spec §4.5 "metadata-confidence combines recency,
// size, and dtype weights"). Recently modified, moderately sized, raw
// (full-precision) dtypes score highest.
func metadataConfidence(h *vstore.Header) float64 {
	age := time.Since(time.Unix(0, int64(h.ModifiedAt)))
	if age < 0 {
		age = 0
	}
	recency := math.Pow(0.5, float64(age)/float64(recencyHalfLife))

	sizeRatio := float64(h.CompressedSize) / idealSizeBytes
	sizeScore := 1.0 / (1.0 + math.Abs(math.Log(sizeRatio+1e-9)))

	var dtypeScore float64
	switch h.DType {
	case vstore.DTypeF32:
		dtypeScore = 1.0
	case vstore.DTypeF16:
		dtypeScore = 0.85
	case vstore.DTypeI16:
		dtypeScore = 0.6
	case vstore.DTypeI8, vstore.DTypeBinary:
		dtypeScore = 0.4
	}

	return 0.5*recency + 0.3*sizeScore + 0.2*dtypeScore
}

// finalScore implements the ScoringMethod dispatch from spec §4.5.
func finalScore(method ScoringMethod, d float32, confidence, metaConf float64, w HybridWeights) float64 {
	distScore := 1.0 / (1.0 + float64(d))
	switch method {
	case ScoreConfidenceOnly:
		return confidence
	case ScoreHybrid:
		return w.Distance*distScore + w.Confidence*confidence + w.Metadata*metaConf
	default: // ScoreDistanceOnly
		return distScore
	}
}

// sortResults orders results by score descending, tie-breaking by smaller
// distance then smaller vector id (spec §4.5 "Tie-breaking").
func sortResults(results []ScoredResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.VectorID < b.VectorID
	})
}

// applyDiversityFilter removes candidates whose normalized distance
// difference from any already-kept result falls below 1 - diversityThreshold
// (spec §4.5 "Ranking and filtering"). results must already be
// score-sorted; the highest-scoring member of each near-duplicate cluster
// survives.
func applyDiversityFilter(results []ScoredResult, diversityThreshold float64) []ScoredResult {
	if len(results) == 0 {
		return results
	}
	maxDist := float64(results[0].Distance)
	for _, r := range results {
		if float64(r.Distance) > maxDist {
			maxDist = float64(r.Distance)
		}
	}
	if maxDist == 0 {
		maxDist = 1
	}

	minGap := 1 - diversityThreshold
	kept := make([]ScoredResult, 0, len(results))
	for _, r := range results {
		distinct := true
		for _, k := range kept {
			gap := math.Abs(float64(r.Distance)-float64(k.Distance)) / maxDist
			if gap < minGap {
				distinct = false
				break
			}
		}
		if distinct {
			kept = append(kept, r)
		}
	}
	if len(kept) != len(results) {
		for i := range kept {
			kept[i].QualityFlags |= FlagDiversityFiltered
		}
	}
	return kept
}

// assignRanks gives dense ranks 1..N to an already-sorted result set.
func assignRanks(results []ScoredResult) {
	for i := range results {
		results[i].Rank = i + 1
	}
}

// normalizeScores min-max normalizes Score into NormalizedScore ∈ [0,1].
func normalizeScores(results []ScoredResult) {
	if len(results) == 0 {
		return
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	spread := max - min
	for i := range results {
		if spread == 0 {
			results[i].NormalizedScore = 1
			continue
		}
		results[i].NormalizedScore = (results[i].Score - min) / spread
	}
}

// applyThresholds drops results below minConfidence or above maxDistance,
// applied last per spec §4.5.
func applyThresholds(results []ScoredResult, minConfidence float64, maxDistance *float32) []ScoredResult {
	out := make([]ScoredResult, 0, len(results))
	for _, r := range results {
		if minConfidence > 0 && r.Confidence < minConfidence {
			continue
		}
		if maxDistance != nil && r.Distance > *maxDistance {
			continue
		}
		out = append(out, r)
	}
	return out
}
