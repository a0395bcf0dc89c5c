package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pokeindex"

// PrometheusRecorder publishes sync measurements into its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	retries  *prometheus.CounterVec
	targets  *prometheus.CounterVec
	duration prometheus.Histogram
	commits  *prometheus.CounterVec
	rows     prometheus.Counter
	lastRun  prometheus.Gauge
}

// NewPrometheusRecorder constructs a recorder with a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Catalog HTTP attempts by request kind and status code.",
		}, []string{"kind", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_request_duration_seconds",
			Help:      "Catalog HTTP attempt latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_retries_total",
			Help:      "Catalog retries after a transient failure.",
		}, []string{"kind"}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_targets_total",
			Help:      "Sync targets by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_target_duration_seconds",
			Help:      "Time spent fetching, normalizing and staging one target.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_commits_total",
			Help:      "Batch commits by result.",
		}, []string{"result"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_committed_entities_total",
			Help:      "Entities made durable by batch commits.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_last_commit_timestamp_seconds",
			Help:      "Unix time of the last successful commit.",
		}),
	}
	r.registry.MustRegister(r.requests, r.latency, r.retries, r.targets, r.duration, r.commits, r.rows, r.lastRun)
	return r
}

// Registry exposes the underlying registry, e.g. for promhttp or tests.
func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

func (r *PrometheusRecorder) ObserveRequest(_ context.Context, kind string, status int, d time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	r.requests.WithLabelValues(kind, code).Inc()
	r.latency.WithLabelValues(kind).Observe(d.Seconds())
}

func (r *PrometheusRecorder) ObserveRetry(_ context.Context, kind string) {
	r.retries.WithLabelValues(kind).Inc()
}

func (r *PrometheusRecorder) ObserveTarget(_ context.Context, outcome string, d time.Duration) {
	r.targets.WithLabelValues(outcome).Inc()
	r.duration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) ObserveCommit(_ context.Context, rows int, success bool) {
	if !success {
		r.commits.WithLabelValues("error").Inc()
		return
	}
	r.commits.WithLabelValues("success").Inc()
	r.rows.Add(float64(rows))
	r.lastRun.SetToCurrentTime()
}

// WriteTextfile writes the registry in text exposition format, atomically
// replacing path.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
