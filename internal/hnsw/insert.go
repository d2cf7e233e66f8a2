package hnsw

import "context"

// insertNode runs the classical HNSW insertion algorithm for a node that
// has already been appended to g.nodes at nodeIdx: greedy single-candidate
// descent from the entry point down to node.Level+1, then ef_construction-
// wide candidate expansion with diversity-aware neighbor selection at each
// level from node.Level down to 0.
func (g *Graph) insertNode(ctx context.Context, node *Node, nodeIdx uint32, vector []float32) error {
	epIdx := g.entryIdx

	for level := g.maxLevel; level > node.Level; level-- {
		cands, err := g.searchLevel(ctx, vector, epIdx, 1, level)
		if err != nil {
			return err
		}
		if len(cands) > 0 {
			epIdx = cands[0].ID
		}
	}

	top := node.Level
	if g.maxLevel < top {
		top = g.maxLevel
	}

	for level := top; level >= 0; level-- {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		candidates, err := g.searchLevel(ctx, vector, epIdx, g.cfg.EfConstruction, level)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			continue
		}
		epIdx = candidates[0].ID

		maxM := g.cfg.M
		if level == 0 {
			maxM *= 2
		}

		selected, err := g.selectNeighborsHeuristic(ctx, vector, candidates, maxM)
		if err != nil {
			return err
		}

		for _, c := range selected {
			node.Links[level] = append(node.Links[level], c.ID)
			neighbor := g.nodes[c.ID]
			if level < len(neighbor.Links) {
				neighbor.Links[level] = append(neighbor.Links[level], nodeIdx)
				if err := g.pruneConnections(ctx, c.ID, level, maxM); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
