package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fxrollup",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of rollup and quality endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxrollup",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by endpoint",
		},
		[]string{"endpoint"},
	)

	SnapshotCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxrollup",
			Subsystem: "api",
			Name:      "snapshot_cache_total",
			Help:      "Snapshot query cache lookups by result",
		},
		[]string{"result"},
	)
)

// Register adds the API collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		reg.MustRegister(APILatency, APIErrors, SnapshotCacheHits)
	})
}
