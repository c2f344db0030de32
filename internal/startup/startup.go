package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-manager/internal/filesystem"
	"media-manager/internal/jail"
	"media-manager/internal/logging"
	"media-manager/internal/manager"
	"media-manager/internal/thumbnail"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	MediaDir        string
	DatabaseDir     string
	StoragePath     string
	MediaURL        string
	Port            string
	MetricsPort     string
	RebuildInterval time.Duration
	PollInterval    time.Duration
	LogStaticFiles  bool
	LogHealthChecks bool
	MetricsEnabled  bool

	ThumbnailSizesFile string
	ImageCodec         string
	ExcludedDirs       []string
	ExcludedFiles      string
	TokensFile         string
	Workers            int
	MaxUploadMB        int64

	Log logging.Options

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	envErr := godotenv.Load()

	logOpts := logging.Options{
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		JSON:       strings.EqualFold(getEnv("LOG_FORMAT", "text"), "json"),
	}
	logging.Configure(logOpts)

	printBanner()
	logSystemInfo()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logging.Warn("Could not read .env file: %v", envErr)
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	mediaDir := getEnv("MEDIA_DIR", "/media")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	storagePath := getEnv("STORAGE_PATH", "public")
	mediaURL := getEnv("MEDIA_URL", "/media")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	rebuildIntervalStr := getEnv("REBUILD_INTERVAL", "0")
	pollIntervalStr := getEnv("POLL_INTERVAL", "0")
	logStaticFiles := getEnvBool("LOG_STATIC_FILES", false)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	sizesFile := getEnv("THUMBNAIL_SIZES_FILE", "")
	imageCodec := strings.ToLower(getEnv("IMAGE_CODEC", "imaging"))
	excludedDirs := splitList(getEnv("MEDIA_EXCLUDED_DIRS", ""))
	excludedFiles := getEnv("MEDIA_EXCLUDED_FILES", jail.DefaultFilePattern)
	tokensFile := getEnv("TOKENS_FILE", "")
	workerCount := getEnvInt("MEDIA_WORKERS", 0)
	maxUploadMB := int64(getEnvInt("MAX_UPLOAD_MB", 512))

	logging.Info("  MEDIA_DIR:            %s", mediaDir)
	logging.Info("  DATABASE_DIR:         %s", databaseDir)
	logging.Info("  STORAGE_PATH:         %s", storagePath)
	logging.Info("  MEDIA_URL:            %s", mediaURL)
	logging.Info("  PORT:                 %s", port)
	logging.Info("  METRICS_PORT:         %s", metricsPort)
	logging.Info("  METRICS_ENABLED:      %v", metricsEnabled)
	logging.Info("  REBUILD_INTERVAL:     %s", rebuildIntervalStr)
	logging.Info("  POLL_INTERVAL:        %s", pollIntervalStr)
	logging.Info("  THUMBNAIL_SIZES_FILE: %s", orNone(sizesFile))
	logging.Info("  IMAGE_CODEC:          %s", imageCodec)
	logging.Info("  MEDIA_EXCLUDED_DIRS:  %s", orNone(strings.Join(excludedDirs, ",")))
	logging.Info("  TOKENS_FILE:          %s", orNone(tokensFile))
	logging.Info("  MEDIA_WORKERS:        %d", workerCount)
	logging.Info("  MAX_UPLOAD_MB:        %d", maxUploadMB)
	logging.Info("  LOG_STATIC_FILES:     %v", logStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:    %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())
	logging.Info("  LOG_FILE:             %s", orNone(logOpts.File))

	rebuildInterval, err := parseInterval(rebuildIntervalStr)
	if err != nil {
		logging.Warn("  Invalid REBUILD_INTERVAL, periodic rebuilds disabled")
	}
	pollInterval, err := parseInterval(pollIntervalStr)
	if err != nil {
		logging.Warn("  Invalid POLL_INTERVAL, change polling disabled")
	}

	if imageCodec != "imaging" && imageCodec != "vips" {
		return nil, fmt.Errorf("unknown IMAGE_CODEC %q (want imaging or vips)", imageCodec)
	}
	if _, err := regexp.Compile(excludedFiles); err != nil {
		return nil, fmt.Errorf("invalid MEDIA_EXCLUDED_FILES: %w", err)
	}
	if maxUploadMB <= 0 {
		logging.Warn("  Invalid MAX_UPLOAD_MB, using default: 512")
		maxUploadMB = 512
	}

	// Resolve paths
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	mediaDir, err = filepath.Abs(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	logging.Info("  Media directory (absolute): %s", mediaDir)

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	// The media directory is the jail root and must exist
	if err := ensureDirectory(mediaDir, "media"); err != nil {
		return nil, fmt.Errorf("media directory error: %w", err)
	}
	logging.Debug("  Testing media directory write access...")
	if err := testWriteAccess(mediaDir); err != nil {
		logging.Warn("  Media directory is not writable, uploads and thumbnails will fail: %v", err)
	}

	config := &Config{
		MediaDir:           mediaDir,
		DatabaseDir:        databaseDir,
		StoragePath:        storagePath,
		MediaURL:           mediaURL,
		Port:               port,
		MetricsPort:        metricsPort,
		RebuildInterval:    rebuildInterval,
		PollInterval:       pollInterval,
		LogStaticFiles:     logStaticFiles,
		LogHealthChecks:    logHealthChecks,
		MetricsEnabled:     metricsEnabled,
		ThumbnailSizesFile: sizesFile,
		ImageCodec:         imageCodec,
		ExcludedDirs:       excludedDirs,
		ExcludedFiles:      excludedFiles,
		TokensFile:         tokensFile,
		Workers:            workerCount,
		MaxUploadMB:        maxUploadMB,
		Log:                logOpts,
		DatabasePath:       filepath.Join(databaseDir, "media.db"),
	}

	// Ensure base database directory exists (required for database)
	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	// Test write access for database (required)
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	// Summary
	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:         ENABLED (required)")
	logging.Info("    Authentication:   %s", enabledString(tokensFile != ""))
	logging.Info("    Periodic rebuild: %s", enabledString(rebuildInterval > 0))
	logging.Info("    Change polling:   %s", enabledString(pollInterval > 0))
	logging.Info("    Metrics:          %s", enabledString(metricsEnabled))

	return config, nil
}

// ManagerConfig builds the media manager configuration: the thumbnail size
// registry (defaults plus the sizes file) and the image codec. Selecting
// the vips codec starts libvips; pair it with thumbnail.ShutdownVips.
func (c *Config) ManagerConfig() (manager.Config, error) {
	sizes := thumbnail.DefaultRegistry()
	if c.ThumbnailSizesFile != "" {
		var err error
		if sizes, err = thumbnail.LoadRegistryYAML(c.ThumbnailSizesFile); err != nil {
			return manager.Config{}, err
		}
	}

	var codec thumbnail.Codec = thumbnail.ImagingCodec{}
	if c.ImageCodec == "vips" {
		thumbnail.InitVips()
		codec = thumbnail.VipsCodec{}
	}

	return manager.Config{
		Root:          c.MediaDir,
		StoragePath:   c.StoragePath,
		MediaURL:      c.MediaURL,
		ExcludedDirs:  c.ExcludedDirs,
		ExcludedFiles: c.ExcludedFiles,
		Sizes:         sizes,
		Codec:         codec,
		Retry:         filesystem.DefaultRetryConfig(),
	}, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// parseInterval parses a Go duration. "0" and "" disable the feature.
func parseInterval(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %s", s)
	}
	return d, nil
}

// splitList splits a comma separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogCodecInit logs the selected image codec
func LogCodecInit(name string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAIL INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Image codec: %s", name)
}

// LogThumbnailInit logs the registered thumbnail sizes
func LogThumbnailInit(sizes []thumbnail.SizeSpec) {
	for _, s := range sizes {
		mode := "ratio"
		if s.Crop {
			mode = "crop"
		}
		logging.Info("  Size %-4s %5dpx  %-5s  %s", s.Code, s.PixelSize, mode, s.DisplayName)
	}
}

// LogAuthInit logs the loaded token store
func LogAuthInit(users int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("AUTHENTICATION")
	logging.Info("------------------------------------------------------------")
	if users == 0 {
		logging.Warn("  No API tokens configured, every /api request will be rejected")
		return
	}
	logging.Info("  [OK] %d token user(s) loaded", users)
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(rebuildInterval, pollInterval time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("INDEXER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if rebuildInterval > 0 {
		logging.Info("  Rebuild interval: %v", rebuildInterval)
	} else {
		logging.Info("  Rebuild interval: DISABLED")
	}
	if pollInterval > 0 {
		logging.Info("  Poll interval:    %v", pollInterval)
	} else {
		logging.Info("  Poll interval:    DISABLED")
	}
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		// Group routes by prefix for cleaner output
		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		// Sort group keys
		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		// Print routes by group
		for _, group := range groupKeys {
			groupRoutes := groups[group]
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groupRoutes {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	// Remove leading slash
	path = strings.TrimPrefix(path, "/")

	// Get first segment
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	// Special handling for API routes
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    Application:   http://localhost:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
  MEDIA MANAGER
------------------------------------------------------------`
	if logging.GetLevel() <= logging.LevelInfo {
		fmt.Println(banner)
	}
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if name == "media" && logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			fileCount := 0
			dirCount := 0
			for _, e := range entries {
				if e.IsDir() {
					dirCount++
				} else {
					fileCount++
				}
			}
			logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
