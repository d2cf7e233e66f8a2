package hnsw

import "fmt"

// Validate checks the graph's structural invariants: every live node must
// be reachable from the entry point via its own links, and no live node
// may link to a tombstoned or out-of-range neighbor. It does not mutate
// the graph (spec §8 "structural integrity" scenario).
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	live := g.size - g.tombstoned
	if live == 0 {
		return nil
	}
	if !g.hasEntry || g.nodes[g.entryIdx].Tombstone {
		return fmt.Errorf("hnsw: no live entry point for %d live nodes", live)
	}

	reachable := make(map[uint32]bool, live)
	queue := []uint32{g.entryIdx}
	reachable[g.entryIdx] = true
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		node := g.nodes[idx]
		for level, links := range node.Links {
			for _, neighbor := range links {
				if int(neighbor) >= len(g.nodes) {
					return fmt.Errorf("hnsw: node %d level %d references out-of-range neighbor %d", node.VectorID, level, neighbor)
				}
				target := g.nodes[neighbor]
				if target.Tombstone {
					return fmt.Errorf("hnsw: node %d references tombstoned neighbor %d", node.VectorID, target.VectorID)
				}
				if !reachable[neighbor] {
					reachable[neighbor] = true
					queue = append(queue, neighbor)
				}
			}
		}
	}

	for i, n := range g.nodes {
		if n.Tombstone {
			continue
		}
		if !reachable[uint32(i)] {
			return fmt.Errorf("hnsw: node %d is not reachable from the entry point", n.VectorID)
		}
	}
	return nil
}
