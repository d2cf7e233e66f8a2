package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the core exposes across C3-C7
// and the ioctl ABI surface.
type Metrics struct {
	VectorInserts prometheus.Counter
	SearchQueries prometheus.Counter
	SearchErrors  prometheus.Counter
	SearchLatency prometheus.Histogram

	CacheHitRate    prometheus.Gauge
	WALReplayCount  prometheus.Counter
	WALReplayOps    prometheus.Counter
	GraphNodeCount  prometheus.Gauge
	GraphTombstones prometheus.Gauge

	IoctlLatency       *prometheus.HistogramVec
	IoctlDistanceCalcs prometheus.Counter
	IoctlNodesVisited  prometheus.Counter
}

// NewMetrics creates metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		VectorInserts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_vector_inserts_total",
			Help: "Total vector insertions",
		}),
		SearchQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_search_queries_total",
			Help: "Total search queries",
		}),
		SearchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_search_errors_total",
			Help: "Total search errors",
		}),
		SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "vexfs_search_latency_seconds",
			Help: "Search latency",
		}),
		CacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vexfs_cache_hit_rate",
			Help: "Vector cache hit rate, updated each time the cache health check runs",
		}),
		WALReplayCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_wal_replays_total",
			Help: "Total WAL replay passes executed during recovery",
		}),
		WALReplayOps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_wal_replay_ops_total",
			Help: "Total WAL entries applied across all replay passes",
		}),
		GraphNodeCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vexfs_hnsw_nodes",
			Help: "Live (non-tombstoned) node count in the HNSW graph",
		}),
		GraphTombstones: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vexfs_hnsw_tombstones",
			Help: "Tombstoned node count pending the next checkpoint",
		}),
		IoctlLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "vexfs_ioctl_latency_seconds",
			Help: "ioctl dispatch latency by command",
		}, []string{"command"}),
		IoctlDistanceCalcs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_ioctl_distance_calculations_total",
			Help: "Distance calculations performed servicing VectorSearch/HybridSearch ioctls",
		}),
		IoctlNodesVisited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_ioctl_nodes_visited_total",
			Help: "HNSW nodes visited servicing VectorSearch/HybridSearch ioctls",
		}),
	}
}
