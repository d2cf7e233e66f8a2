package knn

import "context"

// FusionMethod selects how BatchSearch merges multiple queries' result
// lists into one (spec §4.5 "Batch & fusion").
type FusionMethod int

const (
	// FusionNone leaves each query's results separate; BatchSearch returns
	// [][]ScoredResult.
	FusionNone FusionMethod = iota
	FusionReciprocalRank
	FusionBorda
)

// defaultRRFk is the k_rrf constant used by ReciprocalRank fusion when the
// caller does not override it (spec §8 scenario 6 uses 60).
const defaultRRFk = 60

// BatchSearch executes every request in turn, then either returns the list
// of per-query result lists (fusion == FusionNone) or merges them into one
// fused, deduplicated list.
func (p *Pipeline) BatchSearch(ctx context.Context, requests []*Query, fusion FusionMethod, rrfK int) ([][]ScoredResult, []ScoredResult, error) {
	if rrfK <= 0 {
		rrfK = defaultRRFk
	}

	lists := make([][]ScoredResult, len(requests))
	for i, q := range requests {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		results, err := p.Search(ctx, q)
		if err != nil && err != ErrEmptyResult {
			return nil, nil, err
		}
		lists[i] = results
	}

	if fusion == FusionNone {
		return lists, nil, nil
	}
	return nil, fuse(lists, fusion, rrfK), nil
}

// fuse combines per-query ranked lists into a single list, deduplicating by
// vector id and keeping the best-ranked occurrence's metadata (spec §4.5
// "deduplicates by vector id keeping the best-ranked occurrence").
func fuse(lists [][]ScoredResult, method FusionMethod, rrfK int) []ScoredResult {
	type acc struct {
		best       ScoredResult
		fusedScore float64
	}
	byID := make(map[uint64]*acc)
	var order []uint64

	for _, list := range lists {
		for _, r := range list {
			contribution := fusionContribution(method, r.Rank, len(list), rrfK)
			a, ok := byID[r.VectorID]
			if !ok {
				a = &acc{best: r}
				byID[r.VectorID] = a
				order = append(order, r.VectorID)
			} else if r.Rank < a.best.Rank {
				a.best = r
			}
			a.fusedScore += contribution
		}
	}

	out := make([]ScoredResult, 0, len(order))
	for _, id := range order {
		a := byID[id]
		r := a.best
		r.Score = a.fusedScore
		out = append(out, r)
	}
	sortResults(out)
	assignRanks(out)
	normalizeScores(out)
	return out
}

// fusionContribution computes one list's contribution to a candidate's
// fused score (spec §4.5: RRF = Σ 1/(k_rrf+rank); Borda = Σ (N-rank+1)).
func fusionContribution(method FusionMethod, rank, n, rrfK int) float64 {
	switch method {
	case FusionBorda:
		return float64(n - rank + 1)
	default: // FusionReciprocalRank
		return 1.0 / float64(rrfK+rank)
	}
}
