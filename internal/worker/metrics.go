package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the worker pool.
type Metrics struct {
	Registry       *prometheus.Registry
	ProcessedTotal prometheus.Counter
	FailedTotal    prometheus.Counter
	RejectedTotal  prometheus.Counter
	InFlight       prometheus.Gauge
	JobDuration    prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stylescout_jobs_processed_total",
		Help: "Total jobs completed with a validated product.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stylescout_jobs_failed_total",
		Help: "Total jobs that ended terminally failed after exhausting retries or being rejected.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stylescout_jobs_rejected_total",
		Help: "Total jobs terminally rejected by validation.",
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stylescout_jobs_inflight",
		Help: "Jobs currently being executed by workers.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stylescout_job_duration_seconds",
		Help:    "End-to-end job execution latency.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	registry.MustRegister(processed, failed, rejected, inFlight, duration)

	return &Metrics{
		Registry:       registry,
		ProcessedTotal: processed,
		FailedTotal:    failed,
		RejectedTotal:  rejected,
		InFlight:       inFlight,
		JobDuration:    duration,
	}
}

func (m *Metrics) observeJob(d time.Duration) {
	if m == nil {
		return
	}
	m.JobDuration.Observe(d.Seconds())
}
