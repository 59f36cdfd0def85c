package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	refreshes *prometheus.CounterVec
	rows      *prometheus.GaugeVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	quality   *prometheus.CounterVec
}

// New registers the rollup collectors on reg; nil means the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxrollup_refresh_total",
				Help: "Rollup and snapshot refreshes by outcome",
			},
			[]string{"kind", "resolution", "result"},
		),
		rows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fxrollup_refresh_rows",
				Help: "Rows written by the last refresh",
			},
			[]string{"kind", "resolution"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxrollup_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxrollup_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"operation"},
		),
		quality: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxrollup_quality_hours_total",
				Help: "Session-hours graded by the quality gate",
			},
			[]string{"session", "ok"},
		),
	}
}

// RecordRefresh counts one refresh of kind ("rollup_plain", "rollup_session", "snapshot").
func (r *Recorder) RecordRefresh(kind, resolution, result string) {
	r.refreshes.WithLabelValues(kind, resolution, result).Inc()
}

func (r *Recorder) RecordRows(kind, resolution string, n int) {
	r.rows.WithLabelValues(kind, resolution).Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordQuality(session string, ok bool) {
	label := "false"
	if ok {
		label = "true"
	}
	r.quality.WithLabelValues(session, label).Inc()
}
