// Command media-manager serves a jailed media directory over an
// authenticated JSON API.
//
// Files live on disk below MEDIA_DIR, the jail root; a SQLite index adds
// ownership, privacy, titles and metadata per file and is reconciled with
// the directory on every listing and by the background indexer. Images get
// derived thumbnails next to them on upload.
//
// # Application Lifecycle
//
//  1. Configuration Loading: .env file and environment variables
//  2. Database Initialization: SQLite index in DATABASE_DIR
//  3. Component Initialization: thumbnail sizes and codec, jail, hooks,
//     token store, metrics collector, indexer
//  4. HTTP Server: API on PORT, Prometheus metrics on METRICS_PORT
//  5. Graceful Shutdown: SIGINT or SIGTERM stop the servers and the indexer
package main
