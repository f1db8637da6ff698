package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	RegisteredProjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hackd_registered_projects_total",
			Help: "Total number of projects currently in the registry",
		},
	)

	// Runtime cache metrics
	RuntimeCacheRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackd_runtime_cache_refreshes_total",
			Help: "Total number of runtime cache refresh attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	RuntimeCacheRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hackd_runtime_cache_refresh_duration_seconds",
			Help:    "Time taken to refresh the runtime cache",
			Buckets: prometheus.DefBuckets,
		},
	)

	RuntimeCacheLastRefreshTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hackd_runtime_cache_last_refresh_timestamp_seconds",
			Help: "Unix timestamp of the last runtime cache refresh, successful or not",
		},
	)

	RuntimeResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hackd_runtime_resets_total",
			Help: "Total number of detected engine identity resets",
		},
	)

	RuntimeContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hackd_runtime_containers_total",
			Help: "Total number of runtime containers observed by status",
		},
		[]string{"status"},
	)

	// Job/shell stream metrics
	ActiveJobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hackd_active_jobs_total",
			Help: "Number of jobs currently in each status",
		},
		[]string{"status"},
	)

	ActiveShellsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hackd_active_shells_total",
			Help: "Number of currently open interactive shells",
		},
	)

	JobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hackd_jobs_created_total",
			Help: "Total number of jobs ever created",
		},
	)

	StreamSubscribersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hackd_stream_subscribers_total",
			Help: "Number of live event-stream subscribers by kind",
		},
		[]string{"kind"}, // "job", "shell"
	)

	DroppedSubscribersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackd_dropped_subscribers_total",
			Help: "Total number of subscribers dropped for falling behind",
		},
		[]string{"kind"},
	)

	// Gateway / HTTP metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackd_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hackd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackd_auth_failures_total",
			Help: "Total number of authentication/authorization failures by reason",
		},
		[]string{"reason"}, // "missing_token", "invalid_token", "write_scope_required", "writes_disabled"
	)

	// Tickets metrics
	TicketEventsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hackd_ticket_events_appended_total",
			Help: "Total number of ticket events appended to the ledger",
		},
	)

	TicketEventsDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hackd_ticket_events_deduped_total",
			Help: "Total number of ticket events skipped as duplicates during merge",
		},
	)

	TicketSyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hackd_ticket_sync_duration_seconds",
			Help:    "Time taken to push or fetch the tickets ref",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"}, // "push", "fetch"
	)
)

func init() {
	prometheus.MustRegister(
		RegisteredProjectsTotal,
		RuntimeCacheRefreshesTotal,
		RuntimeCacheRefreshDuration,
		RuntimeCacheLastRefreshTimestamp,
		RuntimeResetsTotal,
		RuntimeContainersTotal,
		ActiveJobsTotal,
		ActiveShellsTotal,
		JobsCreatedTotal,
		StreamSubscribersTotal,
		DroppedSubscribersTotal,
		APIRequestsTotal,
		APIRequestDuration,
		AuthFailuresTotal,
		TicketEventsAppendedTotal,
		TicketEventsDedupedTotal,
		TicketSyncDuration,
	)
}

// Handler returns the Prometheus HTTP handler, mounted at /metrics alongside
// the JSON-summary GET /v1/metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
