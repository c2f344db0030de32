// Package metrics provides Prometheus instrumentation for the media manager.
//
// All metrics are prefixed with "media_manager_" and registered with the
// default registry through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Database Metrics
//
//   - DBQueryTotal: Counter of queries by operation and status
//   - DBQueryDuration: Histogram of query duration by operation
//   - DBConnectionsOpen: Gauge of open database connections
//
// ## Manager Metrics
//
//   - ManagerOperationsTotal / ManagerOperationDuration: per public operation
//   - JailViolationsTotal: paths rejected by the jail, by reason
//   - MediaItemsTotal: indexed items split by visibility (see Collector)
//   - ReconcileActionsTotal: corrections made while listing directories
//   - RebuildRunsTotal, RebuildIsRunning, RebuildLastRun*: full rebuilds
//
// ## Thumbnail Metrics
//
//   - ThumbnailGenerationsTotal: derived images by size code and status
//   - ThumbnailGenerationDuration: decode, resize and encode time per source
//   - ThumbnailLookupCacheHits / Misses: derived image lookup cache
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by
// NewFilesystemObserver:
//   - FilesystemOperationDuration / FilesystemOperationErrors
//   - FilesystemRetry*: retry attempts, successes, failures and time spent
//   - FilesystemStaleErrors: stale NFS handles
//
// ## Memory Metrics
//
// Set by the memory.Monitor:
//   - MemoryUsageRatio: heap allocation over the configured limit
//   - MemoryPaused / MemoryPausesTotal: image decoding backpressure
//
// AppInfo carries version, commit and Go version labels.
//
// # Usage
//
//	metrics.InitializeMetrics(registry.Codes())
//	http.Handle("/metrics", promhttp.Handler())
package metrics
