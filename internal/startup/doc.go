// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional .env file and then the environment:
//
//   - MEDIA_DIR: Jail root holding the media (default: /media)
//   - DATABASE_DIR: Directory of the SQLite index (default: /database)
//   - STORAGE_PATH: Logical namespace of index rows (default: public)
//   - MEDIA_URL: URL prefix of served files and thumbnails (default: /media)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - REBUILD_INTERVAL: Periodic full rebuild as Go duration, 0 disables (default: 0)
//   - POLL_INTERVAL: Top-level change detection as Go duration, 0 disables (default: 0)
//   - THUMBNAIL_SIZES_FILE: YAML file adding or overriding thumbnail sizes
//   - IMAGE_CODEC: imaging or vips (default: imaging)
//   - MEDIA_EXCLUDED_DIRS: Comma separated directory prefixes hidden from everyone
//   - MEDIA_EXCLUDED_FILES: Regular expression of forbidden file names
//   - TOKENS_FILE: YAML token store for API authentication
//   - MEDIA_WORKERS: Worker pool size override, 0 sizes pools from the CPU count
//   - MAX_UPLOAD_MB: Upload body limit (default: 512)
//   - LOG_LEVEL, DEBUG: Logging level
//   - LOG_FILE, LOG_MAX_SIZE_MB, LOG_MAX_BACKUPS, LOG_MAX_AGE_DAYS: Rotated log file
//   - LOG_FORMAT: text or json (default: text)
//   - LOG_STATIC_FILES: Log media file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// [Config.ManagerConfig] turns the configuration into the media manager's
// settings, loading the size registry and starting libvips when selected.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// The Log* functions print the startup sections, the registered routes
// (debug level), the server endpoints and the shutdown steps.
package startup
