package manager

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"time"

	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/mediaerr"
)

// Open returns rel opened for reading when the caller may see it. Derived
// thumbnails are readable when a visible media item in the same directory
// shares their source stem. Hidden entries report ErrNotFound.
func (m *Manager) Open(ctx context.Context, rel string) (_ *os.File, err error) {
	defer track("open", time.Now(), &err)

	abs, err := m.svc.Jail.Check(m.join(rel))
	if err != nil {
		return nil, err
	}
	relFile, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return nil, err
	}
	if m.isDir(abs) {
		return nil, mediaerr.E("open", rel, mediaerr.ErrInvalidDirectory, nil)
	}
	if m.svc.Jail.IsFilenameExcluded(path.Base(relFile)) {
		return nil, mediaerr.E("open", rel, mediaerr.ErrFileExcluded, nil)
	}

	visible, err := m.visibleFile(ctx, relFile)
	if err != nil {
		return nil, mediaerr.E("open", rel, mediaerr.ErrReadFailed, err)
	}
	if !visible {
		return nil, mediaerr.E("open", rel, mediaerr.ErrNotFound, nil)
	}

	f, err := filesystem.OpenWithRetry(abs, m.svc.Retry)
	if err != nil {
		return nil, mediaerr.E("open", rel, mediaerr.ErrReadFailed, err)
	}
	return f, nil
}

func (m *Manager) visibleFile(ctx context.Context, relFile string) (bool, error) {
	name := path.Base(relFile)
	if strings.HasPrefix(name, ".") {
		stem, ok := m.svc.Thumbs.SourceStem(name)
		if !ok {
			return false, nil
		}
		rows, err := m.svc.DB.ListDir(ctx, m.svc.StoragePath, relDir(relFile), m.visibility())
		if err != nil {
			return false, err
		}
		for _, r := range rows {
			if defaultTitle(r.RelativeFile) == stem {
				return true, nil
			}
		}
		return false, nil
	}

	rec, err := m.svc.DB.FindByFile(ctx, m.svc.StoragePath, relFile)
	if errors.Is(err, database.ErrNoRecord) {
		return m.canCreate(), nil
	}
	if err != nil {
		return false, err
	}
	return m.isAdmin() || !rec.Private || rec.OwnerID == m.userID(), nil
}
