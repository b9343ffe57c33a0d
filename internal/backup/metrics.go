package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for backup runs.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	lastRunSize prometheus.Gauge
	runDuration prometheus.Histogram
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dms_backup_runs_total",
				Help: "Total number of backup runs by terminal status",
			},
			[]string{"status"},
		),
		lastRunSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dms_backup_last_archive_bytes",
				Help: "Archive size of the most recent backup run",
			},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dms_backup_run_duration_seconds",
				Help:    "Wall-clock duration of backup runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),
	}
}

// ObserveRun records a finished backup run.
func (m *Metrics) ObserveRun(status string, size int64, duration time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.lastRunSize.Set(float64(size))
	m.runDuration.Observe(duration.Seconds())
}
