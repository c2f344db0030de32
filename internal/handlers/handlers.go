package handlers

import (
	"media-manager/internal/auth"
	"media-manager/internal/indexer"
	"media-manager/internal/manager"
)

// Options tunes request handling.
type Options struct {
	// MaxUploadBytes limits the multipart upload body. Zero means 512MB.
	MaxUploadBytes int64
}

// Handlers serves the media API. Each request acts through a Manager
// built for the authenticated principal.
type Handlers struct {
	svc       *manager.Services
	indexer   *indexer.Indexer
	tokens    *auth.TokenStore
	maxUpload int64
}

// New returns handlers backed by the shared services.
func New(svc *manager.Services, idx *indexer.Indexer, tokens *auth.TokenStore, opts Options) *Handlers {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 512 << 20
	}
	return &Handlers{
		svc:       svc,
		indexer:   idx,
		tokens:    tokens,
		maxUpload: maxUpload,
	}
}
