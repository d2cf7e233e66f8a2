package collopt

import (
	"context"
	"math/rand"

	"github.com/vexfs/vexfs-core/internal/vstore"
)

// Cluster groups vector ids whose pairwise cosine similarity exceeded
// clusterSimilarityThreshold during the sampling pass.
type Cluster struct {
	Centroid uint64
	Members  []uint64
}

// ClusterResult is the outcome of a single clustering pass over a
// collection (spec §4.6 "clustering").
type ClusterResult struct {
	Clusters  []Cluster
	Singles   []uint64 // ids that joined no cluster
	Sampled   int
	Compared  int
}

// clusterCollection greedily assigns vector ids to clusters by sampling a
// fraction of all possible pairs and growing a cluster from each id not yet
// assigned, following the teacher's LSM compaction pattern of a single
// sequential pass rather than a full O(n^2) comparison (spec §4.6
// "clustering uses a 10% sample of pairwise comparisons, threshold 0.8").
func (o *Optimizer) clusterCollection(ctx context.Context, ids []uint64, rng *rand.Rand) (*ClusterResult, error) {
	vecs := make(map[uint64][]float32, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rec, err := o.store.Get(ctx, id)
		if err != nil {
			continue
		}
		vecs[id] = vstore.DecodeFloats(rec.Data)
	}

	assigned := make(map[uint64]bool, len(ids))
	var clusters []Cluster
	var singles []uint64
	sampled, compared := 0, 0

	for _, id := range ids {
		if assigned[id] {
			continue
		}
		v, ok := vecs[id]
		if !ok {
			continue
		}
		cl := Cluster{Centroid: id, Members: []uint64{id}}
		assigned[id] = true

		for _, other := range ids {
			if assigned[other] {
				continue
			}
			ov, ok := vecs[other]
			if !ok {
				continue
			}
			// Sample clusterSampleRatio of candidate comparisons rather than
			// checking every remaining id against every open cluster.
			if rng.Float64() > clusterSampleRatio {
				continue
			}
			sampled++
			dist, err := o.kernel.Score(v, ov)
			if err != nil {
				continue
			}
			compared++
			similarity := 1 - float64(dist)
			if similarity >= clusterSimilarityThreshold {
				cl.Members = append(cl.Members, other)
				assigned[other] = true
			}
		}

		if len(cl.Members) > 1 {
			clusters = append(clusters, cl)
		} else {
			singles = append(singles, id)
		}
	}

	return &ClusterResult{Clusters: clusters, Singles: singles, Sampled: sampled, Compared: compared}, nil
}

// compressionFor selects the compression code a cluster's members should be
// re-encoded with: clusters large enough to amortize a codebook get product
// quantization, everything else falls back to 8-bit scalar quantization
// (spec §4.6 "clusters of >= 10 members use product quantization").
func compressionFor(clusterSize int) vstore.CompressionCode {
	if clusterSize >= clusterPQFloor {
		return vstore.CompressionProductQuantize
	}
	return vstore.CompressionScalarQuantize8
}
