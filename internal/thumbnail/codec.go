package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // WebP format support

	"media-manager/internal/logging"
)

// Format is the encoding of a derived file.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWEBP Format = "webp"
)

// ErrUnsupportedFormat is returned by Image.Encode when the codec cannot
// write the requested format.
var ErrUnsupportedFormat = errors.New("unsupported output format")

const (
	// MaxImageDimension is the maximum width or height decoded at full size.
	MaxImageDimension = 8192

	// MaxImagePixels caps decoded pixels (~40MP, ~160MB in RGBA).
	MaxImagePixels = 40_000_000
)

// Image is a decoded source image.
type Image interface {
	Width() int
	Height() int
	// Resize returns a new image; the receiver is left untouched.
	Resize(size int, crop bool) (Image, error)
	Encode(path string, format Format, quality int) error
	Close()
}

// Codec decodes source images.
type Codec interface {
	Name() string
	Decode(path string) (Image, error)
}

// ImagingCodec is the pure Go codec backed by disintegration/imaging. It
// cannot encode WEBP.
type ImagingCodec struct{}

// Name implements Codec.
func (ImagingCodec) Name() string { return "imaging" }

// Decode implements Codec. Sources above MaxImageDimension or MaxImagePixels
// are downscaled right after decoding.
func (ImagingCodec) Decode(path string) (Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	b := img.Bounds()
	w, h := constrain(b.Dx(), b.Dy(), MaxImageDimension, MaxImagePixels)
	if w != b.Dx() || h != b.Dy() {
		logging.Info("Constraining large image %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return &imagingImage{img: img}, nil
}

// constrain returns dimensions that fit maxDimension and maxPixels while
// keeping the aspect ratio.
func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	targetWidth, targetHeight := width, height

	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if targetPixels := targetWidth * targetHeight; targetPixels > maxPixels {
		scale := float64(maxPixels) / float64(targetPixels)
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	return max(targetWidth, 1), max(targetHeight, 1)
}

type imagingImage struct {
	img image.Image
}

func (i *imagingImage) Width() int  { return i.img.Bounds().Dx() }
func (i *imagingImage) Height() int { return i.img.Bounds().Dy() }
func (i *imagingImage) Close()      {}

func (i *imagingImage) Resize(size int, crop bool) (Image, error) {
	if crop {
		return &imagingImage{img: imaging.Fill(i.img, size, size, imaging.Center, imaging.Lanczos)}, nil
	}
	return &imagingImage{img: imaging.Fit(i.img, size, size, imaging.Lanczos)}, nil
}

func (i *imagingImage) Encode(path string, format Format, quality int) error {
	var f imaging.Format
	switch format {
	case FormatJPEG:
		f = imaging.JPEG
	case FormatPNG:
		f = imaging.PNG
	default:
		return ErrUnsupportedFormat
	}

	return writeAtomic(path, func(out *os.File) error {
		return imaging.Encode(out, i.img, f, imaging.JPEGQuality(quality))
	})
}

// writeAtomic writes through a hidden temp file in the destination
// directory and renames it into place.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if err := write(out); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
