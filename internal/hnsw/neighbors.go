package hnsw

import "context"

// selectNeighborsHeuristic implements the diversity-aware neighbor
// selection heuristic: a candidate is kept only if it is closer to the
// query than to every neighbor already selected, which spreads selected
// neighbors across directions instead of clustering them all on the query's
// nearest side. candidates must already be sorted by ascending distance to
// query. If fewer than m candidates pass the diversity check, the closest
// remaining rejects are appended until m slots are filled or candidates run
// out.
func (g *Graph) selectNeighborsHeuristic(ctx context.Context, query []float32, candidates []*Candidate, m int) ([]*Candidate, error) {
	if len(candidates) <= m {
		return candidates, nil
	}

	selected := make([]*Candidate, 0, m)
	rejected := make([]*Candidate, 0)

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		cVec, err := g.vectorOf(ctx, g.nodes[c.ID])
		if err != nil {
			continue
		}

		diverse := true
		for _, s := range selected {
			sVec, err := g.vectorOf(ctx, g.nodes[s.ID])
			if err != nil {
				continue
			}
			sd, err := g.kernel.Score(cVec, sVec)
			if err != nil {
				continue
			}
			if sd < c.Distance {
				diverse = false
				break
			}
		}

		if diverse {
			selected = append(selected, c)
		} else {
			rejected = append(rejected, c)
		}
	}

	for i := 0; len(selected) < m && i < len(rejected); i++ {
		selected = append(selected, rejected[i])
	}
	return selected, nil
}

// pruneConnections caps node's level-`level` link list at maxM, re-running
// the diversity heuristic against the node's own vector so pruning keeps
// the same spread property as initial selection.
func (g *Graph) pruneConnections(ctx context.Context, nodeIdx uint32, level, maxM int) error {
	node := g.nodes[nodeIdx]
	if level >= len(node.Links) || len(node.Links[level]) <= maxM {
		return nil
	}

	nodeVec, err := g.vectorOf(ctx, node)
	if err != nil {
		return err
	}

	candidates := make([]*Candidate, 0, len(node.Links[level]))
	for _, nb := range node.Links[level] {
		nbVec, err := g.vectorOf(ctx, g.nodes[nb])
		if err != nil {
			continue
		}
		d, err := g.kernel.Score(nodeVec, nbVec)
		if err != nil {
			continue
		}
		candidates = append(candidates, &Candidate{ID: nb, Distance: d})
	}
	candidates = sortedAscending(candidates)

	pruned, err := g.selectNeighborsHeuristic(ctx, nodeVec, candidates, maxM)
	if err != nil {
		return err
	}

	links := make([]uint32, len(pruned))
	for i, c := range pruned {
		links[i] = c.ID
	}
	node.Links[level] = links
	return nil
}
