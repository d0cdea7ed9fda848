package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvdbproxy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tvdbproxy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvdbproxy_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvdbproxy_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	// Upstream Metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvdbproxy_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"status"},
	)

	UpstreamRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tvdbproxy_upstream_retries_total",
			Help: "Total number of upstream request retries",
		},
	)

	StaleServesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tvdbproxy_stale_serves_total",
			Help: "Total number of responses served from stale cache during upstream outages",
		},
	)

	// Sync Job Metrics
	JobsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvdbproxy_jobs_started_total",
			Help: "Total number of sync jobs started",
		},
		[]string{"type"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvdbproxy_jobs_completed_total",
			Help: "Total number of sync jobs finished",
		},
		[]string{"type", "state"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tvdbproxy_job_duration_seconds",
			Help:    "Sync job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"type"},
	)

	// Image Pipeline Metrics
	ImagesStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvdbproxy_images_stored_total",
			Help: "Total number of images mirrored into object storage",
		},
		[]string{"entity_type"},
	)

	ImageDownloadFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tvdbproxy_image_download_failures_total",
			Help: "Total number of failed image downloads",
		},
	)
)
