package manager

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/hooks"
	"media-manager/internal/logging"
	"media-manager/internal/mediaerr"
	"media-manager/internal/mediatypes"
	"media-manager/internal/metrics"
)

// CreateOptions are the index fields set when a file is first registered.
type CreateOptions struct {
	Title      string
	Private    bool
	CapturedAt time.Time
	// Force fires the create event again when the file is already indexed.
	Force bool
}

// writeErr classifies a failed write.
func writeErr(op, p string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return mediaerr.E(op, p, mediaerr.ErrNotWritable, err)
	}
	return mediaerr.E(op, p, mediaerr.ErrWriteFailed, err)
}

// GetFile returns the indexed file id if the caller may see it.
func (m *Manager) GetFile(ctx context.Context, id int64) (_ *Item, err error) {
	defer track("get", time.Now(), &err)

	rec, err := m.svc.DB.GetByID(ctx, m.svc.StoragePath, id, m.visibility())
	if errors.Is(err, database.ErrNoRecord) {
		return nil, mediaerr.E("get", strconv.FormatInt(id, 10), mediaerr.ErrNotFound, nil)
	}
	if err != nil {
		return nil, mediaerr.E("get", strconv.FormatInt(id, 10), mediaerr.ErrReadFailed, err)
	}

	abs, checkErr := m.svc.Jail.Check(rec.RelativeFile)
	if checkErr == nil {
		if info, statErr := filesystem.StatWithRetry(abs, m.svc.Retry); statErr == nil && !info.IsDir() {
			it := fileItem(abs, rec.RelativeFile, info)
			m.hydrate(&it, rec)
			return &it, nil
		}
	}
	it := m.recordItem(rec)
	return &it, nil
}

// CreateFile registers the existing file name in the index and returns its
// id. A file that is already indexed only has its update time refreshed.
// If the new row cannot be written the file is deleted.
func (m *Manager) CreateFile(ctx context.Context, name string, opts CreateOptions) (_ int64, err error) {
	defer track("create", time.Now(), &err)

	if err := m.requireCreate("create", name); err != nil {
		return 0, err
	}
	abs, err := m.svc.Jail.Check(m.join(name))
	if err != nil {
		return 0, err
	}
	if m.isDir(abs) {
		return 0, mediaerr.E("create", name, mediaerr.ErrNotFound, errors.New("is a directory"))
	}
	if m.svc.Jail.IsFilenameExcluded(filepath.Base(abs)) {
		return 0, mediaerr.E("create", name, mediaerr.ErrFileExcluded, nil)
	}
	relFile, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return 0, err
	}
	mime := mediatypes.DetectMimeType(abs)

	lock, err := m.svc.DB.LockMedia(ctx)
	if err != nil {
		return 0, mediaerr.E("create", relFile, mediaerr.ErrWriteFailed, err)
	}
	defer lock.Unlock()

	existing, err := lock.FindByFile(ctx, m.svc.StoragePath, relFile)
	if err == nil {
		lock.Unlock()
		if err = m.svc.DB.Touch(ctx, existing.ID); err != nil {
			return 0, mediaerr.E("create", relFile, mediaerr.ErrWriteFailed, err)
		}
		metrics.ReconcileActionsTotal.WithLabelValues("timestamp_refreshed").Inc()
		if opts.Force {
			fire("create", relFile, m.svc.Hooks.FireCreate(ctx, hooks.CreateArgs{MediaID: existing.ID, Path: abs, MimeType: mime}))
		}
		return existing.ID, nil
	}
	if !errors.Is(err, database.ErrNoRecord) {
		return 0, mediaerr.E("create", relFile, mediaerr.ErrReadFailed, err)
	}

	title := cleanTitle(opts.Title)
	if title == "" {
		title = defaultTitle(relFile)
	}
	rec := &database.Record{
		StoragePath:  m.svc.StoragePath,
		RelativeFile: relFile,
		RelativeDir:  relDir(relFile),
		Title:        title,
		CapturedAt:   opts.CapturedAt,
		Private:      opts.Private,
		OwnerID:      m.userID(),
	}
	if rec.ID, err = lock.NextID(ctx); err == nil {
		if err = lock.Insert(ctx, rec); err == nil {
			err = lock.Commit()
		}
	}
	if err != nil {
		if rmErr := os.Remove(abs); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Error("Failed to remove %s after index failure: %v", relFile, rmErr)
		}
		return 0, mediaerr.E("create", relFile, mediaerr.ErrWriteFailed, err)
	}

	logging.Debug("Indexed %s as media %d", relFile, rec.ID)
	fire("create", relFile, m.svc.Hooks.FireCreate(ctx, hooks.CreateArgs{MediaID: rec.ID, Path: abs, MimeType: mime}))
	return rec.ID, nil
}

// prepareDest validates a destination for a new file: its parent must be an
// existing jailed directory and the name must pass the exclusion rules.
// target is root-relative or absolute.
func (m *Manager) prepareDest(op, target string, overwrite bool) (string, error) {
	parent, err := m.svc.Jail.Check(path.Dir(filepath.ToSlash(target)))
	if err != nil {
		if errors.Is(err, mediaerr.ErrNotFound) {
			return "", mediaerr.E(op, target, mediaerr.ErrInvalidDirectory, err)
		}
		return "", err
	}
	if !m.isDir(parent) {
		return "", mediaerr.E(op, target, mediaerr.ErrInvalidDirectory, nil)
	}

	dst, err := m.svc.Jail.CheckNew(target)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Lstat(dst); statErr == nil {
		if info.IsDir() || !overwrite {
			return "", mediaerr.E(op, target, mediaerr.ErrAlreadyExists, nil)
		}
	}
	return dst, nil
}

// writeAtomic streams r into a hidden temporary file next to dst and renames
// it into place.
func writeAtomic(dst string, r io.Reader) error {
	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".upload")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// UploadFile moves tmpPath to destRel and returns the absolute destination.
// The file is not indexed; follow with CreateFile.
func (m *Manager) UploadFile(ctx context.Context, tmpPath, destRel string, overwrite bool) (_ string, err error) {
	defer track("upload", time.Now(), &err)

	if err := m.requireCreate("upload", destRel); err != nil {
		return "", err
	}
	dst, err := m.prepareDest("upload", m.join(destRel), overwrite)
	if err != nil {
		return "", err
	}
	_, statErr := os.Lstat(dst)
	replaced := statErr == nil
	if replaced {
		if err := m.requireEditable(ctx, "upload", dst); err != nil {
			return "", err
		}
	}

	if renameErr := os.Rename(tmpPath, dst); renameErr == nil {
		if chErr := os.Chmod(dst, 0o644); chErr != nil {
			logging.Warn("Failed to set mode of %s: %v", destRel, chErr)
		}
	} else {
		// Different filesystem: copy instead.
		src, openErr := os.Open(tmpPath)
		if openErr != nil {
			return "", mediaerr.E("upload", destRel, mediaerr.ErrReadFailed, openErr)
		}
		err = writeAtomic(dst, src)
		src.Close()
		if err != nil {
			return "", writeErr("upload", destRel, err)
		}
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			logging.Warn("Failed to remove upload temp file %s: %v", tmpPath, rmErr)
		}
	}

	if replaced {
		if rmErr := m.svc.Thumbs.Remove(dst); rmErr != nil {
			logging.Warn("Failed to clear thumbnails of replaced %s: %v", destRel, rmErr)
		}
	}
	return dst, nil
}

// UploadBits writes data to a new file at destRel and returns its absolute
// path. The file is not indexed; follow with CreateFile.
func (m *Manager) UploadBits(ctx context.Context, destRel string, data []byte) (_ string, err error) {
	defer track("upload_bits", time.Now(), &err)

	if err := m.requireCreate("upload", destRel); err != nil {
		return "", err
	}
	dst, err := m.prepareDest("upload", m.join(destRel), false)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(dst, bytes.NewReader(data)); err != nil {
		return "", writeErr("upload", destRel, err)
	}
	return dst, nil
}

// MakeDir creates the directory rel inside an existing directory.
func (m *Manager) MakeDir(ctx context.Context, rel string) (err error) {
	defer track("mkdir", time.Now(), &err)

	if err := m.requireCreate("mkdir", rel); err != nil {
		return err
	}
	target := m.join(rel)
	parent, err := m.svc.Jail.Check(path.Dir(filepath.ToSlash(target)))
	if err != nil {
		return err
	}
	if !m.isDir(parent) {
		return mediaerr.E("mkdir", rel, mediaerr.ErrInvalidDirectory, nil)
	}

	abs, err := m.svc.Jail.ResolveNew(target)
	if err != nil {
		return err
	}
	if m.svc.Jail.IsExcluded(abs) {
		return mediaerr.E("mkdir", rel, mediaerr.ErrExcluded, nil)
	}
	if _, statErr := os.Lstat(abs); statErr == nil {
		return mediaerr.E("mkdir", rel, mediaerr.ErrAlreadyExists, nil)
	}
	if err := os.Mkdir(abs, 0755); err != nil {
		return writeErr("mkdir", rel, err)
	}
	return nil
}

// UpdateFile applies the editable fields of newItem to the file oldItem
// describes. A changed RelPath (root-relative) renames the file.
func (m *Manager) UpdateFile(ctx context.Context, oldItem, newItem *Item) (err error) {
	defer track("update", time.Now(), &err)

	if err := m.requireCreate("update", oldItem.RelPath); err != nil {
		return err
	}
	rec, err := m.svc.DB.GetByID(ctx, m.svc.StoragePath, oldItem.ID, database.Visibility{All: true})
	if errors.Is(err, database.ErrNoRecord) {
		return mediaerr.E("update", oldItem.RelPath, mediaerr.ErrNotFoundInIndex, nil)
	}
	if err != nil {
		return mediaerr.E("update", oldItem.RelPath, mediaerr.ErrReadFailed, err)
	}
	if !m.mayEdit(rec) {
		return mediaerr.E("update", rec.RelativeFile, mediaerr.ErrNotOwner, nil)
	}

	oldAbs := filepath.Join(m.svc.Jail.Root(), filepath.FromSlash(rec.RelativeFile))
	newAbs := oldAbs
	newRel := path.Clean(filepath.ToSlash(newItem.RelPath))
	renamed := newItem.RelPath != "" && newRel != rec.RelativeFile

	if renamed {
		if oldAbs, err = m.svc.Jail.Check(rec.RelativeFile); err != nil {
			return err
		}
		if newAbs, err = m.prepareDest("update", newRel, false); err != nil {
			return err
		}
		if err := os.Rename(oldAbs, newAbs); err != nil {
			return writeErr("update", newRel, err)
		}
		if rec.RelativeFile, err = m.svc.Jail.Rel(newAbs); err != nil {
			return err
		}
		rec.RelativeDir = relDir(rec.RelativeFile)
	}

	if t := cleanTitle(newItem.Title); t != "" {
		rec.Title = t
	}
	rec.Private = newItem.Private
	if !newItem.CapturedAt.IsZero() {
		rec.CapturedAt = newItem.CapturedAt
	}
	if newItem.Metadata != nil {
		meta, metaErr := rec.Metadata()
		if metaErr != nil {
			meta = database.Metadata{}
		}
		for k, v := range newItem.Metadata {
			meta[k] = v
		}
		if err := rec.SetMetadata(meta); err != nil {
			return mediaerr.E("update", rec.RelativeFile, mediaerr.ErrWriteFailed, err)
		}
	}

	if err := m.svc.DB.UpdateRecord(ctx, rec); err != nil {
		if renamed {
			if rbErr := os.Rename(newAbs, oldAbs); rbErr != nil {
				logging.Error("Failed to restore %s after index failure: %v", oldAbs, rbErr)
			}
		}
		return mediaerr.E("update", rec.RelativeFile, mediaerr.ErrWriteFailed, err)
	}

	fire("update", rec.RelativeFile, m.svc.Hooks.FireUpdate(ctx, hooks.UpdateArgs{
		MediaID:  rec.ID,
		OldPath:  oldAbs,
		NewPath:  newAbs,
		MimeType: mediatypes.GetMimeType(path.Ext(rec.RelativeFile)),
	}))
	return nil
}

// RemoveFile deletes the index row of rel and then the file itself.
func (m *Manager) RemoveFile(ctx context.Context, rel string) (err error) {
	defer track("remove", time.Now(), &err)

	if err := m.requireCreate("remove", rel); err != nil {
		return err
	}
	abs, err := m.svc.Jail.ResolveNew(m.join(rel))
	if err != nil {
		return err
	}
	if m.svc.Jail.IsExcluded(abs) {
		return mediaerr.E("remove", rel, mediaerr.ErrExcluded, nil)
	}
	relFile, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return err
	}

	rec, err := m.svc.DB.FindByFile(ctx, m.svc.StoragePath, relFile)
	if errors.Is(err, database.ErrNoRecord) {
		return mediaerr.E("remove", relFile, mediaerr.ErrNotFoundInIndex, nil)
	}
	if err != nil {
		return mediaerr.E("remove", relFile, mediaerr.ErrReadFailed, err)
	}
	if !m.mayEdit(rec) {
		return mediaerr.E("remove", relFile, mediaerr.ErrNotOwner, nil)
	}

	n, err := m.svc.DB.DeleteByFile(ctx, m.svc.StoragePath, relFile, m.visibility())
	if err != nil {
		return mediaerr.E("remove", relFile, mediaerr.ErrWriteFailed, err)
	}
	if n == 0 {
		return mediaerr.E("remove", relFile, mediaerr.ErrNotFoundInIndex, nil)
	}

	checked, err := m.svc.Jail.Check(relFile)
	switch {
	case errors.Is(err, mediaerr.ErrNotFound):
		logging.Info("Removed index row of already missing %s", relFile)
	case err != nil:
		return err
	default:
		if err := os.Remove(checked); err != nil {
			return mediaerr.E("remove", relFile, mediaerr.ErrNotDeletable, err)
		}
	}

	fire("remove", relFile, m.svc.Hooks.FireRemove(ctx, hooks.RemoveArgs{
		MediaID:  rec.ID,
		Path:     abs,
		MimeType: mediatypes.GetMimeType(path.Ext(relFile)),
	}))
	return nil
}

// RemoveDirectory deletes the empty directory rel and any index rows left
// under it.
func (m *Manager) RemoveDirectory(ctx context.Context, rel string) (err error) {
	defer track("rmdir", time.Now(), &err)

	if err := m.requireCreate("rmdir", rel); err != nil {
		return err
	}
	abs, err := m.svc.Jail.Check(m.join(rel))
	if err != nil {
		return err
	}
	if abs == m.svc.Jail.Root() {
		return mediaerr.E("rmdir", rel, mediaerr.ErrNotDeletable, nil)
	}
	if !m.isDir(abs) {
		return mediaerr.E("rmdir", rel, mediaerr.ErrInvalidDirectory, nil)
	}
	if err := os.Remove(abs); err != nil {
		return mediaerr.E("rmdir", rel, mediaerr.ErrNotDeletable, err)
	}

	dir, _ := m.svc.Jail.Rel(abs)
	rows, err := m.svc.DB.ListUnderDir(ctx, m.svc.StoragePath, dir)
	if err != nil {
		logging.Warn("Could not list stale rows under %s: %v", dir, err)
		return nil
	}
	for _, r := range rows {
		if delErr := m.svc.DB.DeleteByID(ctx, r.ID); delErr != nil {
			logging.Warn("Could not delete stale row %d: %v", r.ID, delErr)
		}
	}
	return nil
}

// RemoveItem removes rel as a directory or as a file. A file already gone
// from disk still has its index row removed.
func (m *Manager) RemoveItem(ctx context.Context, rel string) error {
	abs, err := m.svc.Jail.Check(m.join(rel))
	if err != nil && !errors.Is(err, mediaerr.ErrNotFound) {
		return err
	}
	if err == nil && m.isDir(abs) {
		return m.RemoveDirectory(ctx, rel)
	}
	return m.RemoveFile(ctx, rel)
}

// MoveFile renames src to dst on disk together with its derived images.
// The index row is not touched; an indexed src may only be moved by its
// owner or an admin.
func (m *Manager) MoveFile(ctx context.Context, src, dst string) (err error) {
	defer track("move", time.Now(), &err)

	if err := m.requireCreate("move", src); err != nil {
		return err
	}
	srcAbs, err := m.svc.Jail.Check(m.join(src))
	if err != nil {
		return err
	}
	if m.isDir(srcAbs) {
		return mediaerr.E("move", src, mediaerr.ErrInvalidDirectory, errors.New("is a directory"))
	}
	if err := m.requireEditable(ctx, "move", srcAbs); err != nil {
		return err
	}
	dstAbs, err := m.prepareDest("move", m.join(dst), false)
	if err != nil {
		return err
	}
	if err := os.Rename(srcAbs, dstAbs); err != nil {
		return writeErr("move", dst, err)
	}
	if err := m.svc.Thumbs.Relocate(srcAbs, dstAbs); err != nil {
		logging.Warn("Failed to move thumbnails of %s: %v", src, err)
	}
	return nil
}

// Lookup returns the indexed item at rel. Files without a row report
// ErrNotFoundInIndex; rows hidden from the caller report ErrNotFound.
func (m *Manager) Lookup(ctx context.Context, rel string) (*Item, error) {
	abs, err := m.svc.Jail.ResolveNew(m.join(rel))
	if err != nil {
		return nil, err
	}
	relFile, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return nil, err
	}
	rec, err := m.svc.DB.FindByFile(ctx, m.svc.StoragePath, relFile)
	if errors.Is(err, database.ErrNoRecord) {
		return nil, mediaerr.E("lookup", relFile, mediaerr.ErrNotFoundInIndex, nil)
	}
	if err != nil {
		return nil, mediaerr.E("lookup", relFile, mediaerr.ErrReadFailed, err)
	}
	return m.GetFile(ctx, rec.ID)
}

// requireEditable fails with ErrNotOwner when the existing file abs has an
// index row the caller may not change. Unindexed files pass.
func (m *Manager) requireEditable(ctx context.Context, op, abs string) error {
	relFile, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return err
	}
	rec, err := m.svc.DB.FindByFile(ctx, m.svc.StoragePath, relFile)
	if errors.Is(err, database.ErrNoRecord) {
		return nil
	}
	if err != nil {
		return mediaerr.E(op, relFile, mediaerr.ErrReadFailed, err)
	}
	if !m.mayEdit(rec) {
		return mediaerr.E(op, relFile, mediaerr.ErrNotOwner, nil)
	}
	return nil
}

// MoveDirectory renames the directory src to dst and rewrites the index
// rows below it. Derived images travel with their sources.
func (m *Manager) MoveDirectory(ctx context.Context, src, dst string) (err error) {
	defer track("move_dir", time.Now(), &err)

	if !m.isAdmin() {
		return mediaerr.E("move", src, mediaerr.ErrPermissionDenied, nil)
	}
	srcAbs, err := m.svc.Jail.Check(m.join(src))
	if err != nil {
		return err
	}
	if srcAbs == m.svc.Jail.Root() || !m.isDir(srcAbs) {
		return mediaerr.E("move", src, mediaerr.ErrInvalidDirectory, nil)
	}

	target := m.join(dst)
	parent, err := m.svc.Jail.Check(path.Dir(filepath.ToSlash(target)))
	if err != nil {
		return err
	}
	if !m.isDir(parent) {
		return mediaerr.E("move", dst, mediaerr.ErrInvalidDirectory, nil)
	}
	dstAbs, err := m.svc.Jail.ResolveNew(target)
	if err != nil {
		return err
	}
	if m.svc.Jail.IsExcluded(dstAbs) {
		return mediaerr.E("move", dst, mediaerr.ErrExcluded, nil)
	}
	if dstAbs == srcAbs || strings.HasPrefix(dstAbs, srcAbs+string(filepath.Separator)) {
		return mediaerr.E("move", dst, mediaerr.ErrInvalidDirectory, errors.New("destination is inside source"))
	}
	if _, statErr := os.Lstat(dstAbs); statErr == nil {
		return mediaerr.E("move", dst, mediaerr.ErrAlreadyExists, nil)
	}

	srcRel, _ := m.svc.Jail.Rel(srcAbs)
	dstRel, _ := m.svc.Jail.Rel(dstAbs)

	if err := os.Rename(srcAbs, dstAbs); err != nil {
		return writeErr("move", dst, err)
	}
	n, err := m.svc.DB.MoveDir(ctx, m.svc.StoragePath, srcRel, dstRel)
	if err != nil {
		if rbErr := os.Rename(dstAbs, srcAbs); rbErr != nil {
			logging.Error("Failed to restore %s after index failure: %v", srcRel, rbErr)
		}
		return mediaerr.E("move", dst, mediaerr.ErrWriteFailed, err)
	}
	logging.Info("Moved %s to %s (%d indexed files)", srcRel, dstRel, n)
	return nil
}
