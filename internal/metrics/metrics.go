// Package metrics wraps the Prometheus collectors the coordinator and
// scheduler report through (SPEC_FULL.md AMBIENT STACK, "internal/metrics/"
// wraps github.com/prometheus/client_golang).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the coordinator/scheduler update,
// so a caller constructs and registers them once at startup.
type Registry struct {
	EventsIngested   *prometheus.CounterVec
	PartitionCount   prometheus.Gauge
	MetaIndexBytes   prometheus.Gauge
	QueryLatency     prometheus.Histogram
	WorkerOccupancy  prometheus.Gauge
	PendingQueries   prometheus.Gauge
}

// NewRegistry builds (but does not register) the collector set.
func NewRegistry() *Registry {
	return &Registry{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telescan",
			Name:      "events_ingested_total",
			Help:      "Events appended to an active partition, by layout.",
		}, []string{"layout"}),
		PartitionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telescan",
			Name:      "partitions",
			Help:      "Number of partitions tracked by the meta-index.",
		}),
		MetaIndexBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telescan",
			Name:      "metaindex_bytes",
			Help:      "Estimated resident memory of all partition synopses.",
		}),
		QueryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telescan",
			Name:      "query_latency_seconds",
			Help:      "Wall-clock time from query admission to completion.",
			Buckets:   prometheus.DefBuckets,
		}),
		WorkerOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telescan",
			Name:      "worker_occupancy",
			Help:      "Number of workers currently evaluating a batch.",
		}),
		PendingQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telescan",
			Name:      "pending_queries",
			Help:      "Number of admitted queries with remaining partitions.",
		}),
	}
}

// MustRegister registers every collector with reg, panicking on a
// duplicate registration (mirrors the teacher stack's startup-time
// metrics wiring, where a registration conflict is a programming error).
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.EventsIngested,
		r.PartitionCount,
		r.MetaIndexBytes,
		r.QueryLatency,
		r.WorkerOccupancy,
		r.PendingQueries,
	)
}
