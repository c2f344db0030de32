package thumbnail

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"media-manager/internal/logging"
	"media-manager/internal/mediaerr"
	"media-manager/internal/metrics"
)

// lookupTTL bounds how long LocateAll results are served from memory when
// files change behind the cache's back.
const lookupTTL = 2 * time.Minute

// Cache manages derived images stored next to their sources as
// "{dir}/.{base}_{code}.{fmt}".
type Cache struct {
	root    string
	urlBase string
	sizes   *Registry
	codec   Codec

	lookups  *cache.Cache
	group    singleflight.Group
	throttle Throttle
}

// Throttle holds back image decoding under memory pressure. WaitIfPaused
// returns false when the wait was abandoned.
type Throttle interface {
	WaitIfPaused() bool
}

// SetThrottle installs t. Call before the cache is shared.
func (c *Cache) SetThrottle(t Throttle) {
	c.throttle = t
}

// NewCache creates a cache for sources under root. Derived file URLs are
// urlBase joined with the path relative to root.
func NewCache(root, urlBase string, sizes *Registry, codec Codec) *Cache {
	if codec == nil {
		codec = ImagingCodec{}
	}
	return &Cache{
		root:    root,
		urlBase: strings.TrimSuffix(urlBase, "/"),
		sizes:   sizes,
		codec:   codec,
		lookups: cache.New(lookupTTL, 2*lookupTTL),
	}
}

// Sizes returns the size registry.
func (c *Cache) Sizes() *Registry {
	return c.sizes
}

// nativeFormat is the format derived files of src are written in.
func nativeFormat(src string) Format {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".png":
		return FormatPNG
	case ".webp":
		return FormatWEBP
	default:
		return FormatJPEG
	}
}

func derived(src, code string, f Format) string {
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(src), "."+stem+"_"+code+"."+string(f))
}

// DerivedName returns the native-format derived filename of src for code.
func DerivedName(src, code string) string {
	return derived(src, code, nativeFormat(src))
}

// LegacyName returns the JPEG-named fallback for PNG and WEBP sources.
func LegacyName(src, code string) (string, bool) {
	if nativeFormat(src) == FormatJPEG {
		return "", false
	}
	return derived(src, code, FormatJPEG), true
}

// SourceStem parses the base name of a derived file and returns the stem of
// its source's name. ok is false for names no registered size produces.
func (c *Cache) SourceStem(name string) (string, bool) {
	if !strings.HasPrefix(name, ".") {
		return "", false
	}
	ext := filepath.Ext(name)
	switch Format(strings.TrimPrefix(ext, ".")) {
	case FormatJPEG, FormatPNG, FormatWEBP:
	default:
		return "", false
	}
	base := strings.TrimSuffix(name[1:], ext)
	for _, code := range c.sizes.Codes() {
		if stem, ok := strings.CutSuffix(base, "_"+code); ok && stem != "" {
			return stem, true
		}
	}
	return "", false
}

// candidates lists the names a derived file of src may have, preferred first.
func candidates(src, code string) []string {
	names := []string{DerivedName(src, code)}
	if legacy, ok := LegacyName(src, code); ok {
		names = append(names, legacy)
	}
	return names
}

// quality picks the encoder quality for an output of the given pixel size.
func quality(size int) int {
	switch {
	case size > 1000:
		return 70
	case size > 400:
		return 80
	default:
		return 90
	}
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// Create writes the derived files of src for sizes. Existing files are kept
// unless force is set, in which case every derived file is removed first.
// The source is decoded once and every size is resized from that original.
func (c *Cache) Create(src string, sizes []SizeSpec, force bool) error {
	key := src
	if force {
		key += "\x00force"
	}
	_, err, _ := c.group.Do(key, func() (interface{}, error) {
		return nil, c.create(src, sizes, force)
	})
	return err
}

func (c *Cache) create(src string, sizes []SizeSpec, force bool) error {
	defer c.lookups.Delete(src)

	if force {
		if err := c.Remove(src); err != nil {
			return err
		}
	}

	pending := make([]SizeSpec, 0, len(sizes))
	for _, s := range sizes {
		if s.PixelSize <= 0 {
			continue
		}
		found := false
		for _, name := range candidates(src, s.Code) {
			if exists(name) {
				found = true
				break
			}
		}
		if !found {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if c.throttle != nil && !c.throttle.WaitIfPaused() {
		return mediaerr.E("thumbnail", src, mediaerr.ErrWriteFailed, errors.New("decoding cancelled while paused for memory"))
	}

	start := time.Now()
	img, err := c.codec.Decode(src)
	if err != nil {
		for _, s := range pending {
			metrics.ThumbnailGenerationsTotal.WithLabelValues(s.Code, "error").Inc()
		}
		return mediaerr.E("thumbnail", src, mediaerr.ErrReadFailed, err)
	}
	defer img.Close()
	defer func() {
		metrics.ThumbnailGenerationDuration.WithLabelValues(c.codec.Name()).Observe(time.Since(start).Seconds())
	}()

	var errs []error
	for _, s := range pending {
		if !s.Wanted(img.Width(), img.Height()) {
			metrics.ThumbnailGenerationsTotal.WithLabelValues(s.Code, "skipped").Inc()
			continue
		}
		if err := c.write(img, src, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) write(img Image, src string, s SizeSpec) error {
	resized, err := img.Resize(s.PixelSize, s.Crop)
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(s.Code, "error").Inc()
		return mediaerr.E("thumbnail", src, mediaerr.ErrWriteFailed, err)
	}
	defer resized.Close()

	q := quality(s.PixelSize)
	name := DerivedName(src, s.Code)
	err = resized.Encode(name, nativeFormat(src), q)
	if errors.Is(err, ErrUnsupportedFormat) {
		legacy, ok := LegacyName(src, s.Code)
		if !ok {
			metrics.ThumbnailGenerationsTotal.WithLabelValues(s.Code, "error_unsupported").Inc()
			return mediaerr.E("thumbnail", name, mediaerr.ErrWriteFailed, err)
		}
		logging.Debug("%s codec cannot write %s, using %s", c.codec.Name(), nativeFormat(src), filepath.Base(legacy))
		name = legacy
		err = resized.Encode(name, FormatJPEG, q)
	}
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(s.Code, "error").Inc()
		return mediaerr.E("thumbnail", name, mediaerr.ErrWriteFailed, err)
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(s.Code, "success").Inc()
	logging.Debug("Thumbnail written: %s (%dx%d, q=%d)", name, resized.Width(), resized.Height(), q)
	return nil
}

// Remove deletes every derived file of src for every registered size.
// Missing files are ignored.
func (c *Cache) Remove(src string) error {
	defer c.lookups.Delete(src)

	var errs []error
	for _, code := range c.sizes.Codes() {
		for _, name := range candidates(src, code) {
			if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, mediaerr.E("thumbnail", name, mediaerr.ErrNotDeletable, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Relocate moves the derived files of oldSrc to the names newSrc would use.
// Files whose format does not fit newSrc are removed and regenerated on the
// next Create. Missing files are not an error.
func (c *Cache) Relocate(oldSrc, newSrc string) error {
	defer c.lookups.Delete(oldSrc)
	defer c.lookups.Delete(newSrc)

	var errs []error
	for _, code := range c.sizes.Codes() {
		for _, name := range candidates(oldSrc, code) {
			if !exists(name) {
				continue
			}

			target := ""
			f := Format(strings.TrimPrefix(filepath.Ext(name), "."))
			if f == nativeFormat(newSrc) {
				target = DerivedName(newSrc, code)
			} else if legacy, ok := LegacyName(newSrc, code); ok && f == FormatJPEG {
				target = legacy
			}

			if target == "" {
				if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
					errs = append(errs, mediaerr.E("thumbnail", name, mediaerr.ErrNotDeletable, err))
				}
				continue
			}
			if err := os.Rename(name, target); err != nil {
				errs = append(errs, mediaerr.E("thumbnail", name, mediaerr.ErrWriteFailed, err))
			}
		}
	}
	return errors.Join(errs...)
}

// LocateAll returns the URL of each existing derived file of src keyed by
// size code. The native name is preferred over the legacy JPEG name.
func (c *Cache) LocateAll(src string) map[string]string {
	if v, ok := c.lookups.Get(src); ok {
		metrics.ThumbnailLookupCacheHits.Inc()
		return copyURLs(v.(map[string]string))
	}
	metrics.ThumbnailLookupCacheMisses.Inc()

	urls := make(map[string]string)
	for _, code := range c.sizes.Codes() {
		for _, name := range candidates(src, code) {
			if !exists(name) {
				continue
			}
			if u, ok := c.url(name); ok {
				urls[code] = u
			}
			break
		}
	}

	c.lookups.Set(src, urls, cache.DefaultExpiration)
	return copyURLs(urls)
}

func (c *Cache) url(name string) (string, bool) {
	rel, err := filepath.Rel(c.root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return c.urlBase + "/" + filepath.ToSlash(rel), true
}

func copyURLs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
