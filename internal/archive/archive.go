package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"media-manager/internal/jail"
	"media-manager/internal/logging"
	"media-manager/internal/mediaerr"
	"media-manager/internal/metrics"
)

// Extractor unpacks archives that live inside a jail into directories of
// the same jail.
type Extractor struct {
	jail *jail.Jail
}

// New returns an extractor bound to j.
func New(j *jail.Jail) *Extractor {
	return &Extractor{jail: j}
}

func (e *Extractor) open(zipFile string) (*zip.ReadCloser, string, error) {
	src, err := e.jail.Check(zipFile)
	if err != nil {
		return nil, "", err
	}
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, "", mediaerr.E("inflate", zipFile, mediaerr.ErrArchiveInvalid, err)
	}
	return r, src, nil
}

// entries returns the archive members that are not on the denylist.
func entries(r *zip.ReadCloser) []*zip.File {
	out := make([]*zip.File, 0, len(r.File))
	for _, f := range r.File {
		if Ignored(f.Name) {
			metrics.ArchiveEntriesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		out = append(out, f)
	}
	return out
}

// Peek lists the entry names Inflate would consider, in archive order.
func (e *Extractor) Peek(zipFile string) ([]string, error) {
	r, _, err := e.open(zipFile)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	files := entries(r)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// Inflate extracts zipFile into destDir and returns the directory holding
// the extracted content, relative to the jail root.
//
// With createSubdir the content goes into a new directory named after the
// archive's single top-level directory, or after the archive itself when
// there is none; an existing directory of that name fails with
// ErrAlreadyExists. Without it, entries are written directly into destDir
// and any entry that would overwrite an existing file fails the whole
// extraction before anything is written.
//
// Extracted names are sanitized afterwards with CleanName; directories that
// existed before extraction keep their names. A cleaned name
// that collides with an existing entry is left unrenamed and reported as
// ErrNameCollision once all other entries are processed.
func (e *Extractor) Inflate(zipFile, destDir string, createSubdir bool) (string, error) {
	r, src, err := e.open(zipFile)
	if err != nil {
		return "", err
	}
	defer r.Close()

	dest, err := e.jail.Check(destDir)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(dest); statErr != nil || !info.IsDir() {
		return "", mediaerr.E("inflate", destDir, mediaerr.ErrInvalidDirectory, statErr)
	}

	files := entries(r)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}

	// base is where entry names are rooted; target is the directory the
	// caller gets back.
	base, target := dest, dest
	if createSubdir {
		if root := RootDir(names); root != "" {
			target = filepath.Join(dest, root)
		} else {
			stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
			target = filepath.Join(dest, stem)
			base = target
		}
		if target, err = e.jail.ResolveNew(target); err != nil {
			return "", err
		}
		if e.jail.IsExcluded(target) {
			return "", mediaerr.E("inflate", target, mediaerr.ErrExcluded, nil)
		}
		if _, statErr := os.Lstat(target); statErr == nil {
			return "", mediaerr.E("inflate", target, mediaerr.ErrAlreadyExists, nil)
		}
	}

	plan, err := e.plan(files, base, target)
	if err != nil {
		return "", err
	}
	existed := preexisting(base, plan)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", mediaerr.E("inflate", target, mediaerr.ErrNotWritable, err)
	}

	var written []string
	for _, p := range plan {
		if err := extract(p.file, p.path); err != nil {
			return "", err
		}
		metrics.ArchiveEntriesTotal.WithLabelValues("extracted").Inc()
		written = append(written, p.path)
	}

	final, renameErr := e.sanitize(base, target, written, existed)
	rel, err := e.jail.Rel(final)
	if err != nil {
		return "", err
	}
	logging.Info("Inflated %s into %s (%d entries)", filepath.Base(src), rel, len(written))
	return rel, renameErr
}

type planned struct {
	file *zip.File
	path string
}

// plan maps every entry to its destination, rejecting entries that would
// leave target and skipping those the exclusion rules deny.
func (e *Extractor) plan(files []*zip.File, base, target string) ([]planned, error) {
	out := make([]planned, 0, len(files))
	for _, f := range files {
		p := filepath.Join(base, filepath.FromSlash(f.Name))
		if p != target && !strings.HasPrefix(p, target+string(filepath.Separator)) {
			metrics.JailViolationsTotal.WithLabelValues("archive_entry").Inc()
			return nil, mediaerr.E("inflate", f.Name, mediaerr.ErrOutsideJail, nil)
		}
		resolved, err := e.jail.ResolveNew(p)
		if err != nil {
			return nil, err
		}
		if p == target {
			continue
		}

		isDir := f.FileInfo().IsDir()
		if e.jail.IsExcluded(resolved) || (!isDir && e.jail.IsFilenameExcluded(filepath.Base(resolved))) {
			logging.Debug("Skipping excluded archive entry %s", f.Name)
			metrics.ArchiveEntriesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if !isDir {
			if _, err := os.Lstat(resolved); err == nil {
				return nil, mediaerr.E("inflate", f.Name, mediaerr.ErrAlreadyExists, nil)
			}
		}
		out = append(out, planned{file: f, path: resolved})
	}
	return out, nil
}

func extract(f *zip.File, dst string) (err error) {
	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return mediaerr.E("inflate", dst, mediaerr.ErrNotWritable, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return mediaerr.E("inflate", dst, mediaerr.ErrNotWritable, err)
	}

	rc, err := f.Open()
	if err != nil {
		return mediaerr.E("inflate", f.Name, mediaerr.ErrArchiveInvalid, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return mediaerr.E("inflate", dst, mediaerr.ErrWriteFailed, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = mediaerr.E("inflate", dst, mediaerr.ErrWriteFailed, closeErr)
		}
	}()

	if _, err := io.Copy(out, rc); err != nil {
		return mediaerr.E("inflate", f.Name, mediaerr.ErrReadFailed, err)
	}
	return nil
}

// preexisting reports which paths between base and the planned entries
// already exist before extraction.
func preexisting(base string, plan []planned) map[string]bool {
	existed := make(map[string]bool)
	for _, p := range plan {
		for q := p.path; q != base && strings.HasPrefix(q, base+string(filepath.Separator)); q = filepath.Dir(q) {
			if _, checked := existed[q]; checked {
				break
			}
			_, err := os.Lstat(q)
			existed[q] = err == nil
		}
	}
	return existed
}

// sanitize renames every extracted path, and every directory between it
// and base, to its cleaned name. Paths in existed belong to the user and
// keep their names. Children are renamed before parents so collected
// paths stay valid. It returns target's final path.
func (e *Extractor) sanitize(base, target string, written []string, existed map[string]bool) (string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range written {
		for q := p; q != base && strings.HasPrefix(q, base+string(filepath.Separator)); q = filepath.Dir(q) {
			if !seen[q] {
				seen[q] = true
				paths = append(paths, q)
			}
		}
	}
	if target != base && !seen[target] {
		paths = append(paths, target)
	}

	// Deepest first.
	sort.Slice(paths, func(i, j int) bool {
		di, dj := strings.Count(paths[i], string(filepath.Separator)), strings.Count(paths[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})

	final := target
	var errs []error
	for _, p := range paths {
		name := filepath.Base(p)
		clean := cleanComponent(name)
		if clean == name || existed[p] {
			continue
		}
		np := filepath.Join(filepath.Dir(p), clean)
		if _, err := os.Lstat(np); err == nil {
			metrics.ArchiveEntriesTotal.WithLabelValues("collision").Inc()
			errs = append(errs, mediaerr.E("inflate", p, mediaerr.ErrNameCollision, fmt.Errorf("%s exists", clean)))
			continue
		}
		if err := os.Rename(p, np); err != nil {
			errs = append(errs, mediaerr.E("inflate", p, mediaerr.ErrWriteFailed, err))
			continue
		}
		metrics.ArchiveEntriesTotal.WithLabelValues("renamed").Inc()
		if p == target {
			final = np
		}
	}
	return final, errors.Join(errs...)
}
