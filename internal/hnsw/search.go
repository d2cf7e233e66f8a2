package hnsw

import (
	"container/heap"
	"context"
)

// vectorOf fetches the vector backing a node's VectorID from the storage
// source, the single place every search/insert path goes through.
func (g *Graph) vectorOf(ctx context.Context, n *Node) ([]float32, error) {
	return g.source.Get(ctx, n.VectorID)
}

// searchLevel runs a greedy best-first search at the given level starting
// from entryIdx, expanding ef candidates. Tombstoned nodes are still
// traversed (their edges keep the graph connected until the next
// checkpoint) but never appear in the returned candidate set.
func (g *Graph) searchLevel(ctx context.Context, query []float32, entryIdx uint32, ef, level int) ([]*Candidate, error) {
	visited := make(map[uint32]bool)
	visited[entryIdx] = true

	entryNode := g.nodes[entryIdx]
	entryVec, err := g.vectorOf(ctx, entryNode)
	if err != nil {
		return nil, err
	}
	entryDist, err := g.kernel.Score(query, entryVec)
	if err != nil {
		return nil, err
	}

	candidates := newMinHeap()
	heap.Push(candidates, &Candidate{ID: entryIdx, Distance: entryDist})

	results := newMaxHeap()
	if !entryNode.Tombstone {
		heap.Push(results, &Candidate{ID: entryIdx, Distance: entryDist})
	}

	for candidates.Len() > 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		current := heap.Pop(candidates).(*Candidate)
		if results.Len() >= ef && current.Distance > (*results)[0].Distance {
			break
		}

		node := g.nodes[current.ID]
		if level >= len(node.Links) {
			continue
		}

		for _, neighborIdx := range node.Links[level] {
			if visited[neighborIdx] {
				continue
			}
			visited[neighborIdx] = true

			neighbor := g.nodes[neighborIdx]
			if neighbor == nil {
				continue
			}
			neighborVec, err := g.vectorOf(ctx, neighbor)
			if err != nil {
				continue
			}
			dist, err := g.kernel.Score(query, neighborVec)
			if err != nil {
				continue
			}

			if results.Len() < ef || dist < (*results)[0].Distance {
				heap.Push(candidates, &Candidate{ID: neighborIdx, Distance: dist})
				if !neighbor.Tombstone {
					heap.Push(results, &Candidate{ID: neighborIdx, Distance: dist})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	out := make([]*Candidate, len(*results))
	copy(out, *results)
	return sortedAscending(out), nil
}

// Result is one (vector id, distance) pair returned by Search, per the
// public contract in spec §4.4 ("search(query, k, ef_search) →
// [(vector_id, distance)]"). Unlike Candidate, ID here is the caller-facing
// vector id, never an internal node index.
type Result struct {
	VectorID uint64
	Distance float32
}

// Search returns up to k nearest neighbors of query, using the largest of
// efSearch, k and the graph's configured EfSearch as the level-0 candidate
// list size.
func (g *Graph) Search(ctx context.Context, query []float32, k, efSearch int) ([]Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, nil
	}
	if len(query) != g.cfg.Dimension {
		return nil, errDimensionMismatch(len(query), g.cfg.Dimension)
	}

	ef := efSearch
	if ef < k {
		ef = k
	}
	if ef < g.cfg.EfSearch {
		ef = g.cfg.EfSearch
	}

	entryIdx := g.entryIdx
	for level := g.maxLevel; level > 0; level-- {
		cands, err := g.searchLevel(ctx, query, entryIdx, 1, level)
		if err != nil {
			return nil, err
		}
		if len(cands) > 0 {
			entryIdx = cands[0].ID
		}
	}

	cands, err := g.searchLevel(ctx, query, entryIdx, ef, 0)
	if err != nil {
		return nil, err
	}
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = Result{VectorID: g.nodes[c.ID].VectorID, Distance: c.Distance}
	}
	return out, nil
}
