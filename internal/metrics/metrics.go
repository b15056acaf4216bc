package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All collectors are registered with the default registry through promauto.

var (
	// ==================== HTTP METRICS ====================

	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsTotal counts total HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsInFlight tracks currently processing requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// ==================== CACHE METRICS ====================

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redirect_cache_hits_total",
			Help: "Total number of redirect cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redirect_cache_misses_total",
			Help: "Total number of redirect cache misses",
		},
	)

	// CacheOperationDuration tracks cache operation latency
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redirect_cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"operation"}, // get, set
	)

	// ==================== RATE LIMITING METRICS ====================

	RateLimitedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Total number of rate-limited requests",
		},
	)

	RateLimitAllowedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_allowed_requests_total",
			Help: "Total number of requests allowed by rate limiter",
		},
	)

	// ==================== TRACKER METRICS ====================

	// ConversionsTotal counts /convert outcomes by mode (append, redirect)
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_conversions_total",
			Help: "Total number of converted links by mode",
		},
		[]string{"mode"},
	)

	// VisitsTotal counts slug visits by result (captured, not_found)
	VisitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_visits_total",
			Help: "Total number of slug visits by result",
		},
		[]string{"result"},
	)

	// HitPersistErrorsTotal counts hits that could not be appended to the store
	HitPersistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_hit_persist_errors_total",
			Help: "Total number of hits that failed to persist",
		},
	)

	// NotificationsTotal counts dispatcher outcomes
	// (sent, sink_rejected, sink_error, no_sink, dropped, panic)
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_notifications_total",
			Help: "Total number of notifications by outcome",
		},
		[]string{"outcome"},
	)

	// NotificationQueueDepth tracks pending notifications
	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_notification_queue_depth",
			Help: "Number of notifications waiting for a worker",
		},
	)

	// EnrichmentJobsTotal counts queue and worker outcomes
	// (enqueued, enqueue_failed, succeeded, retried, failed)
	EnrichmentJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_enrichment_jobs_total",
			Help: "Total number of enrichment jobs by outcome",
		},
		[]string{"outcome"},
	)

	// EnrichmentToolDuration tracks external tool run time
	EnrichmentToolDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_enrichment_tool_duration_seconds",
			Help:    "Duration of enrichment tool runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// ==================== DATABASE METRICS ====================

	// DatabaseQueryDuration tracks database query latency
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"}, // create, get, exists, append_hit
	)

	// DatabaseErrorsTotal counts database errors
	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation"},
	)
)

func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordConversion increments the conversion counter for a mode
func RecordConversion(mode string) {
	ConversionsTotal.WithLabelValues(mode).Inc()
}

// RecordVisit increments the visit counter for a result
func RecordVisit(result string) {
	VisitsTotal.WithLabelValues(result).Inc()
}

func RecordHitPersistError() {
	HitPersistErrorsTotal.Inc()
}

// RecordNotification increments the notification counter for an outcome
func RecordNotification(outcome string) {
	NotificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordEnrichment increments the enrichment counter for an outcome
func RecordEnrichment(outcome string) {
	EnrichmentJobsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimited increments rate-limited requests counter
func RecordRateLimited() {
	RateLimitedRequestsTotal.Inc()
}

// RecordRateLimitAllowed increments allowed requests counter
func RecordRateLimitAllowed() {
	RateLimitAllowedRequestsTotal.Inc()
}
