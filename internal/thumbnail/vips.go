package thumbnail

import (
	"fmt"
	"os"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"media-manager/internal/logging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// InitVips initializes the libvips library
// This should be called once at startup
func InitVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return
	}

	// Configure vips logging before Startup to respect LOG_LEVEL
	var vipsLogLevel vips.LogLevel
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
	case logging.LevelInfo:
		vipsLogLevel = vips.LogLevelWarning
	case logging.LevelWarn:
		vipsLogLevel = vips.LogLevelError
	default:
		vipsLogLevel = vips.LogLevelCritical
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLogLevel)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// VipsCodec decodes and resizes with libvips. InitVips must have been called.
// Unlike ImagingCodec it writes native WEBP files.
type VipsCodec struct{}

// Name implements Codec.
func (VipsCodec) Name() string { return "vips" }

// Decode implements Codec.
func (VipsCodec) Decode(path string) (Image, error) {
	ref, err := vips.NewImageFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	if err := ref.AutoRotate(); err != nil {
		logging.Debug("vips auto-rotate failed for %s: %v", path, err)
	}
	return &vipsImage{ref: ref}, nil
}

type vipsImage struct {
	ref *vips.ImageRef
}

func (v *vipsImage) Width() int  { return v.ref.Width() }
func (v *vipsImage) Height() int { return v.ref.Height() }
func (v *vipsImage) Close()      { v.ref.Close() }

func (v *vipsImage) Resize(size int, crop bool) (Image, error) {
	out, err := v.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("vips copy failed: %w", err)
	}

	if crop {
		err = out.Thumbnail(size, size, vips.InterestingCentre)
	} else if out.Width() > size || out.Height() > size {
		err = out.Thumbnail(size, size, vips.InterestingNone)
	}
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("vips resize failed: %w", err)
	}
	return &vipsImage{ref: out}, nil
}

func (v *vipsImage) Encode(path string, format Format, quality int) error {
	var data []byte
	var err error

	switch format {
	case FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err = v.ref.ExportJpeg(params)
	case FormatPNG:
		data, _, err = v.ref.ExportPng(vips.NewPngExportParams())
	case FormatWEBP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err = v.ref.ExportWebp(params)
	default:
		return ErrUnsupportedFormat
	}
	if err != nil {
		return fmt.Errorf("vips export failed: %w", err)
	}

	return writeAtomic(path, func(out *os.File) error {
		_, err := out.Write(data)
		return err
	})
}
