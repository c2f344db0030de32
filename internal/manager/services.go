package manager

import (
	"fmt"

	"media-manager/internal/archive"
	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/hooks"
	"media-manager/internal/jail"
	"media-manager/internal/thumbnail"
)

// Config describes the shared state behind every Manager.
type Config struct {
	// Root is the jail root directory.
	Root string
	// StoragePath is the logical namespace of the index rows.
	StoragePath string
	// MediaURL prefixes derived file URLs.
	MediaURL string

	ExcludedDirs  []string
	ExcludedFiles string

	// Sizes is frozen by NewServices. Nil uses the defaults.
	Sizes *thumbnail.Registry
	// Codec decodes and encodes images. Nil uses the imaging codec.
	Codec thumbnail.Codec
	// Throttle, when set, gates image decoding.
	Throttle thumbnail.Throttle

	Retry filesystem.RetryConfig
}

// Services holds the long-lived collaborators shared by every Manager.
type Services struct {
	DB          *database.Database
	Jail        *jail.Jail
	Thumbs      *thumbnail.Cache
	Archive     *archive.Extractor
	Hooks       *hooks.Registry
	StoragePath string
	Retry       filesystem.RetryConfig
}

// NewServices builds the jail, thumbnail cache and hook registry for cfg
// and registers the built-in lifecycle handlers.
func NewServices(db *database.Database, cfg Config) (*Services, error) {
	ex, err := jail.NewExclusionSet(cfg.ExcludedDirs, cfg.ExcludedFiles)
	if err != nil {
		return nil, err
	}
	j, err := jail.New(cfg.Root, ex)
	if err != nil {
		return nil, fmt.Errorf("media root: %w", err)
	}

	sizes := cfg.Sizes
	if sizes == nil {
		sizes = thumbnail.DefaultRegistry()
	}
	sizes.Freeze()

	storage := cfg.StoragePath
	if storage == "" {
		storage = "public"
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = filesystem.DefaultRetryConfig()
	}

	svc := &Services{
		DB:          db,
		Jail:        j,
		Thumbs:      thumbnail.NewCache(j.Root(), cfg.MediaURL, sizes, cfg.Codec),
		Archive:     archive.New(j),
		Hooks:       hooks.NewRegistry(),
		StoragePath: storage,
		Retry:       retry,
	}
	if cfg.Throttle != nil {
		svc.Thumbs.SetThrottle(cfg.Throttle)
	}
	svc.Hooks.Register("image", &thumbnailHandler{thumbs: svc.Thumbs})
	svc.Hooks.Register(hooks.Any, &metadataHandler{db: db, retry: retry}, hooks.EventCreate)
	return svc, nil
}
