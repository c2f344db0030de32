package manager

import (
	"context"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WEBP decoder

	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/hooks"
	"media-manager/internal/logging"
	"media-manager/internal/mediatypes"
	"media-manager/internal/thumbnail"
)

// thumbnailHandler keeps derived images in step with their sources.
type thumbnailHandler struct {
	hooks.BaseHandler
	thumbs *thumbnail.Cache
}

func (h *thumbnailHandler) OnCreate(_ context.Context, args hooks.CreateArgs) error {
	return h.thumbs.Create(args.Path, h.thumbs.Sizes().All(), false)
}

func (h *thumbnailHandler) OnUpdate(_ context.Context, args hooks.UpdateArgs) error {
	if args.OldPath == args.NewPath {
		return nil
	}
	return h.thumbs.Relocate(args.OldPath, args.NewPath)
}

func (h *thumbnailHandler) OnRemove(_ context.Context, args hooks.RemoveArgs) error {
	return h.thumbs.Remove(args.Path)
}

func (h *thumbnailHandler) OnRecreate(_ context.Context, args hooks.RecreateArgs) error {
	return h.thumbs.Create(args.Path, h.thumbs.Sizes().All(), args.Force)
}

// metadataHandler records basic file attributes of newly indexed media and
// defaults the capture date to the modification time.
type metadataHandler struct {
	hooks.BaseHandler
	db    *database.Database
	retry filesystem.RetryConfig
}

func (h *metadataHandler) OnCreate(ctx context.Context, args hooks.CreateArgs) error {
	info, err := filesystem.StatWithRetry(args.Path, h.retry)
	if err != nil {
		return err
	}

	meta := database.Metadata{
		"mimeType": args.MimeType,
		"size":     info.Size(),
	}
	if mediatypes.IsImage(args.MimeType) {
		if cfg, format, err := decodeConfig(args.Path, h.retry); err == nil {
			meta["width"] = cfg.Width
			meta["height"] = cfg.Height
			meta["format"] = format
		} else {
			logging.Debug("No image header for %s: %v", args.Path, err)
		}
	}
	return h.db.UpdateMediaMeta(ctx, args.MediaID, meta, info.ModTime())
}

func decodeConfig(p string, retry filesystem.RetryConfig) (image.Config, string, error) {
	f, err := filesystem.OpenWithRetry(p, retry)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()
	return image.DecodeConfig(f)
}
