package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-manager/internal/auth"
	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/handlers"
	"media-manager/internal/indexer"
	"media-manager/internal/logging"
	"media-manager/internal/manager"
	"media-manager/internal/memory"
	"media-manager/internal/metrics"
	"media-manager/internal/middleware"
	"media-manager/internal/startup"
	"media-manager/internal/thumbnail"
	"media-manager/internal/workers"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	workers.SetOverride(config.Workers)
	memory.ConfigureFromEnv()

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Thumbnail sizes and codec
	mcfg, err := config.ManagerConfig()
	if err != nil {
		startup.LogFatal("Thumbnail configuration error: %v", err)
	}
	startup.LogCodecInit(mcfg.Codec.Name())
	startup.LogThumbnailInit(mcfg.Sizes.All())

	// Memory backpressure for thumbnail generation
	mon := memory.NewMonitor(memory.DefaultConfig())
	mon.Start()
	mcfg.Throttle = mon

	metrics.InitializeMetrics(mcfg.Sizes.Codes())
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"media":    config.MediaDir,
		"database": config.DatabaseDir,
	}))

	svc, err := manager.NewServices(db, mcfg)
	if err != nil {
		startup.LogFatal("Failed to initialize media manager: %v", err)
	}

	// Authentication
	tokens, err := loadTokens(config.TokensFile)
	if err != nil {
		startup.LogFatal("Failed to load tokens: %v", err)
	}
	startup.LogAuthInit(tokens.Len())

	// Index statistics for the metrics endpoint
	collector := metrics.NewCollector(db, time.Minute)
	collector.Start()

	// Initialize indexer
	startup.LogIndexerInit(config.RebuildInterval, config.PollInterval)
	idx := indexer.New(svc, config.RebuildInterval)
	idx.SetPollInterval(config.PollInterval)
	idx.Start()
	startup.LogIndexerStarted()

	// Initialize handlers
	h := handlers.New(svc, idx, tokens, handlers.Options{
		MaxUploadBytes: config.MaxUploadMB << 20,
	})

	// Setup router
	router := h.Router(config.MediaURL)
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// Apply authentication middleware
	authedRouter := h.AuthMiddleware(router)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.MediaPrefix = config.MediaURL
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(authedRouter)

	// Apply compression middleware
	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(loggedHandler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Minute,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Metrics server
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		mm := http.NewServeMux()
		mm.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           mm,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, idx, collector, mon, config.ImageCodec == "vips")

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

// loadTokens reads the token store. Without a file every API request is
// rejected.
func loadTokens(path string) (*auth.TokenStore, error) {
	if path == "" {
		return auth.NewTokenStore(nil)
	}
	return auth.LoadTokenStore(path)
}

func handleShutdown(srv, metricsSrv *http.Server, idx *indexer.Indexer, collector *metrics.Collector, mon *memory.Monitor, vips bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	// Release decodes paused for memory so the indexer can drain.
	mon.Stop()

	startup.LogShutdownStep("Stopping indexer")
	idx.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	collector.Stop()

	if vips {
		thumbnail.ShutdownVips()
	}

	startup.LogShutdownComplete()
}
