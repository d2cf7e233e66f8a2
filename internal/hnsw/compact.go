package hnsw

import "context"

// CompactTombstones physically removes every tombstoned node, remapping
// all surviving node indices and their adjacency lists. This is the only
// place tombstoned nodes are actually freed; Delete only marks them.
func (g *Graph) CompactTombstones(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tombstoned == 0 {
		return
	}

	remap := make(map[uint32]uint32, len(g.nodes))
	live := make([]*Node, 0, len(g.nodes)-g.tombstoned)
	for i, n := range g.nodes {
		if n.Tombstone {
			continue
		}
		remap[uint32(i)] = uint32(len(live))
		live = append(live, n)
	}

	for _, n := range live {
		for level, links := range n.Links {
			kept := links[:0]
			for _, old := range links {
				if newIdx, ok := remap[old]; ok {
					kept = append(kept, newIdx)
				}
			}
			n.Links[level] = kept
		}
	}

	g.idToIndex = make(map[uint64]uint32, len(live))
	for i, n := range live {
		g.idToIndex[n.VectorID] = uint32(i)
	}

	if g.hasEntry {
		if newIdx, ok := remap[g.entryIdx]; ok {
			g.entryIdx = newIdx
		} else {
			g.hasEntry = false
		}
	}
	if !g.hasEntry && len(live) > 0 {
		g.replaceEntryPoint(uint32(len(live)))
	}

	g.nodes = live
	g.size -= g.tombstoned
	g.tombstoned = 0
}
