package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_manager_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_manager_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_manager_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_manager_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Manager metrics
var (
	ManagerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_operations_total",
			Help: "Total number of media manager operations by outcome",
		},
		[]string{"operation", "status"},
	)

	ManagerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_manager_operation_duration_seconds",
			Help:    "Media manager operation duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"operation"},
	)

	JailViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_jail_violations_total",
			Help: "Total number of rejected paths by reason",
		},
		[]string{"reason"}, // "outside", "excluded", "file_excluded", "archive_entry"
	)

	MediaItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_manager_items_total",
			Help: "Number of indexed media items by visibility",
		},
		[]string{"visibility"}, // "public", "private"
	)
)

// Reconciler and rebuild metrics
var (
	ReconcileActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_reconcile_actions_total",
			Help: "Total number of index corrections made while listing directories",
		},
		[]string{"action"}, // "registered", "orphan_pruned", "duplicate_pruned", "timestamp_refreshed"
	)

	RebuildRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_manager_rebuild_runs_total",
			Help: "Total number of full index rebuilds",
		},
	)

	RebuildIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_manager_rebuild_running",
			Help: "Whether a rebuild is currently running (1 = running, 0 = idle)",
		},
	)

	RebuildLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_manager_rebuild_last_run_timestamp",
			Help: "Unix timestamp of the last completed rebuild",
		},
	)

	RebuildLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_manager_rebuild_last_run_duration_seconds",
			Help: "Duration of the last rebuild in seconds",
		},
	)

	RebuildTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_rebuild_triggers_total",
			Help: "Total number of scheduled rebuild requests by trigger",
		},
		[]string{"trigger"}, // "startup", "interval", "change", "manual"
	)

	RebuildDirectoriesVisited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_manager_rebuild_directories_visited_total",
			Help: "Total number of directories visited by rebuilds",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_thumbnail_generations_total",
			Help: "Total number of derived images written by size code",
		},
		[]string{"code", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_manager_thumbnail_generation_duration_seconds",
			Help:    "Time to decode, resize and encode derived images for one source",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"codec"},
	)

	ThumbnailLookupCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_manager_thumbnail_lookup_cache_hits_total",
			Help: "Derived image lookups served from memory",
		},
	)

	ThumbnailLookupCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_manager_thumbnail_lookup_cache_misses_total",
			Help: "Derived image lookups that touched the filesystem",
		},
	)
)

// Archive metrics
var (
	ArchiveEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_archive_entries_total",
			Help: "Total number of archive entries processed by outcome",
		},
		[]string{"status"}, // "extracted", "skipped", "renamed", "collision"
	)
)

// Hook metrics
var (
	HookInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_hook_invocations_total",
			Help: "Total number of lifecycle hook invocations",
		},
		[]string{"event", "status"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_manager_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations by volume and operation type",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_filesystem_operation_errors_total",
			Help: "Total number of filesystem operation errors",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_manager_filesystem_retry_duration_seconds",
			Help:    "Time spent retrying filesystem operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_filesystem_stale_errors_total",
			Help: "Total number of stale file handle errors encountered",
		},
		[]string{"operation", "volume"},
	)
)

// Auth metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_manager_auth_attempts_total",
			Help: "Total number of bearer token checks",
		},
		[]string{"status"}, // "success", "failure", "cached"
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_manager_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_manager_memory_paused",
			Help: "1 while image decoding is paused for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_manager_memory_pauses_total",
			Help: "Total number of times image decoding was paused for memory pressure",
		},
	)
)

// App info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_manager_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
