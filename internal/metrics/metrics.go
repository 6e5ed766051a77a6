// Package metrics exposes Prometheus collectors for the directory crawler.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Node kinds used as label values.
const (
	KindFile   = "file"
	KindFolder = "folder"
)

var (
	uploadsTotal          *prometheus.CounterVec
	uploadRetriesTotal    *prometheus.CounterVec
	uploadDurationSeconds *prometheus.HistogramVec
	queueDepth            *prometheus.GaugeVec
	httpRequestsTotal     *prometheus.CounterVec
	rateLimitDelay        prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawldir_uploads_total",
				Help: "Terminal upload outcomes, labeled by node kind and status.",
			},
			[]string{"kind", "status"},
		)

		uploadRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawldir_upload_retries_total",
				Help: "Upload attempts that failed transiently and were retried.",
			},
			[]string{"kind"},
		)

		uploadDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawldir_upload_duration_seconds",
				Help:    "Latency of single ingest calls, labeled by node kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"kind"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawldir_queue_depth",
				Help: "Items waiting in the scan and upload queues.",
			},
			[]string{"queue"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawldir_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by route and code.",
			},
			[]string{"route", "code"},
		)

		rateLimitDelay = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawldir_rate_limit_delay_seconds",
				Help:    "Time uploads spent waiting for the rate limiter.",
				Buckets: prometheus.DefBuckets,
			},
		)
	})
}

// ObserveUpload counts a terminal outcome ("uploaded" or "failed").
func ObserveUpload(kind, status string) {
	uploadsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRetry counts a transient failure that will be retried.
func ObserveRetry(kind string) {
	uploadRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveUploadDuration records the latency of one ingest call.
func ObserveUploadDuration(kind string, d time.Duration) {
	uploadDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// SetQueueDepth publishes the current length of a queue.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveHTTPRequest counts a request served by the metrics endpoint.
func ObserveHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveRateLimitDelay records time spent waiting for an upload token.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitDelay.Observe(d.Seconds())
}
