package manager

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/hooks"
	"media-manager/internal/logging"
	"media-manager/internal/mediaerr"
	"media-manager/internal/mediatypes"
	"media-manager/internal/workers"
)

// Search matches query against indexed titles, file names and metadata.
// The filesystem is not consulted. An empty query returns nothing.
func (m *Manager) Search(ctx context.Context, query string) (_ []Item, err error) {
	defer track("search", time.Now(), &err)

	rows, err := m.svc.DB.Search(ctx, m.svc.StoragePath, query, m.visibility(), 0)
	if err != nil {
		return nil, mediaerr.E("search", query, mediaerr.ErrReadFailed, err)
	}
	return m.recordItems(rows), nil
}

func (m *Manager) recordItems(rows []database.Record) []Item {
	items := make([]Item, 0, len(rows))
	for i := range rows {
		items = append(items, m.recordItem(&rows[i]))
	}
	return items
}

// InflateZip extracts the archive item next to itself and indexes the
// extracted files. It returns the root-relative directory holding them.
func (m *Manager) InflateZip(ctx context.Context, item *Item, createSubdir bool) (_ string, err error) {
	defer track("inflate", time.Now(), &err)

	if err := m.requireCreate("inflate", item.RelPath); err != nil {
		return "", err
	}
	rel, err := m.svc.Archive.Inflate(item.RelPath, path.Dir(item.RelPath), createSubdir)
	if rel == "" {
		return "", err
	}

	abs, checkErr := m.svc.Jail.Check(rel)
	if checkErr != nil {
		return rel, errors.Join(err, checkErr)
	}
	var idxErrs []error
	m.index(ctx, abs, make(map[string]bool), &idxErrs)
	if idxErr := errors.Join(idxErrs...); idxErr != nil {
		logging.Warn("Indexing extracted files in %s: %v", rel, idxErr)
	}
	return rel, err
}

// PeekZip lists the entries InflateZip would extract.
func (m *Manager) PeekZip(ctx context.Context, item *Item) (_ []string, err error) {
	defer track("peek", time.Now(), &err)

	if _, err := m.checkVisible(ctx, "peek", item.RelPath); err != nil {
		return nil, err
	}
	return m.svc.Archive.Peek(item.RelPath)
}

// checkVisible resolves the existing root-relative file rel and reports
// ErrNotFound when the caller may not see it.
func (m *Manager) checkVisible(ctx context.Context, op, rel string) (string, error) {
	abs, err := m.svc.Jail.Check(rel)
	if err != nil {
		return "", err
	}
	relFile, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return "", err
	}
	visible, err := m.visibleFile(ctx, relFile)
	if err != nil {
		return "", mediaerr.E(op, rel, mediaerr.ErrReadFailed, err)
	}
	if !visible {
		return "", mediaerr.E(op, rel, mediaerr.ErrNotFound, nil)
	}
	return abs, nil
}

// RecreateThumbnails regenerates derived images of rel, or of every image
// directly inside rel when it is a directory. Errors are returned.
func (m *Manager) RecreateThumbnails(ctx context.Context, rel string, force bool) (err error) {
	defer track("recreate", time.Now(), &err)

	if err := m.requireCreate("recreate", rel); err != nil {
		return err
	}
	abs, err := m.svc.Jail.Check(m.join(rel))
	if err != nil {
		return err
	}

	targets := []string{abs}
	if !m.isDir(abs) {
		relFile, _ := m.svc.Jail.Rel(abs)
		if _, err := m.checkVisible(ctx, "recreate", relFile); err != nil {
			return err
		}
	} else {
		entries, err := filesystem.ReadDirWithRetry(abs, m.svc.Retry)
		if err != nil {
			return mediaerr.E("recreate", rel, mediaerr.ErrReadFailed, err)
		}
		targets = targets[:0]
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			if !mediatypes.IsImage(mediatypes.GetMimeType(filepath.Ext(name))) {
				continue
			}
			p := filepath.Join(abs, name)
			relFile, _ := m.svc.Jail.Rel(p)
			if visible, err := m.visibleFile(ctx, relFile); err != nil || !visible {
				continue
			}
			targets = append(targets, p)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers.ForCPU(8))
	for _, t := range targets {
		g.Go(func() error {
			return m.svc.Hooks.FireRecreate(gctx, hooks.RecreateArgs{
				Path:     t,
				MimeType: mediatypes.DetectMimeType(t),
				Force:    force,
			})
		})
	}
	return g.Wait()
}

// LinkToPost attaches the visible media mediaID to postID.
func (m *Manager) LinkToPost(ctx context.Context, postID, mediaID int64, linkType string) (err error) {
	defer track("link", time.Now(), &err)

	if err := m.requireCreate("link", ""); err != nil {
		return err
	}
	if _, err := m.svc.DB.GetByID(ctx, m.svc.StoragePath, mediaID, m.visibility()); err != nil {
		return indexErr("link", mediaID, err)
	}
	if err := m.svc.DB.LinkPost(ctx, postID, mediaID, linkType); err != nil {
		return mediaerr.E("link", "", mediaerr.ErrWriteFailed, err)
	}
	return nil
}

// UnlinkFromPost detaches mediaID from postID. An empty linkType removes
// links of every type.
func (m *Manager) UnlinkFromPost(ctx context.Context, postID, mediaID int64, linkType string) (err error) {
	defer track("unlink", time.Now(), &err)

	if err := m.requireCreate("unlink", ""); err != nil {
		return err
	}
	n, err := m.svc.DB.UnlinkPost(ctx, postID, mediaID, linkType)
	if err != nil {
		return mediaerr.E("unlink", "", mediaerr.ErrWriteFailed, err)
	}
	if n == 0 {
		return indexErr("unlink", mediaID, database.ErrNoRecord)
	}
	return nil
}

// PostMedia returns the media of postID visible to the caller.
func (m *Manager) PostMedia(ctx context.Context, postID int64, linkType string) (_ []Item, err error) {
	defer track("post_media", time.Now(), &err)

	rows, err := m.svc.DB.PostMedia(ctx, postID, linkType, m.visibility())
	if err != nil {
		return nil, mediaerr.E("post_media", "", mediaerr.ErrReadFailed, err)
	}
	return m.recordItems(rows), nil
}

// MediaPosts returns the post links of a media item visible to the caller.
func (m *Manager) MediaPosts(ctx context.Context, mediaID int64) (_ []database.PostLink, err error) {
	defer track("media_posts", time.Now(), &err)

	if _, err := m.svc.DB.GetByID(ctx, m.svc.StoragePath, mediaID, m.visibility()); err != nil {
		return nil, indexErr("media_posts", mediaID, err)
	}
	links, err := m.svc.DB.MediaPosts(ctx, mediaID)
	if err != nil {
		return nil, mediaerr.E("media_posts", "", mediaerr.ErrReadFailed, err)
	}
	return links, nil
}

func indexErr(op string, id int64, err error) error {
	p := "#" + strconv.FormatInt(id, 10)
	if errors.Is(err, database.ErrNoRecord) {
		return mediaerr.E(op, p, mediaerr.ErrNotFoundInIndex, nil)
	}
	return mediaerr.E(op, p, mediaerr.ErrReadFailed, err)
}
