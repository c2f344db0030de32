package manager

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
	"time"

	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/hooks"
	"media-manager/internal/logging"
	"media-manager/internal/mediaerr"
	"media-manager/internal/mediatypes"
	"media-manager/internal/metrics"
)

// List returns the current directory reconciled with the index. A non-empty
// typeFilter keeps only files whose MIME category ("image", "video", ...) or
// kind matches it.
func (m *Manager) List(ctx context.Context, typeFilter string) (_ *Listing, err error) {
	defer track("list", time.Now(), &err)

	l, err := m.reconcile(ctx, m.cwd)
	if err != nil {
		return nil, err
	}

	if typeFilter != "" {
		kept := l.Files[:0]
		for _, f := range l.Files {
			if mediatypes.Category(f.MimeType) == typeFilter || string(f.Kind) == typeFilter {
				kept = append(kept, f)
			}
		}
		l.Files = kept
	}
	return l, nil
}

// reconcile lists dir on disk and brings its index rows in line with it.
func (m *Manager) reconcile(ctx context.Context, dir string) (*Listing, error) {
	abs, err := m.svc.Jail.Check(dir)
	if err != nil {
		return nil, err
	}
	rel, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return nil, err
	}

	entries, err := filesystem.ReadDirWithRetry(abs, m.svc.Retry)
	if err != nil {
		return nil, mediaerr.E("list", rel, mediaerr.ErrReadFailed, err)
	}

	l := &Listing{Dir: rel}
	if rel != "." {
		parent := path.Dir(rel)
		l.Dirs = append(l.Dirs, Item{
			Path:    filepath.Dir(abs),
			RelPath: parent,
			Name:    "..",
			IsDir:   true,
			Parent:  true,
			Kind:    mediatypes.KindBlank,
		})
	}

	onDisk := make(map[string]int)
	for _, e := range entries {
		name := e.Name()
		childAbs := filepath.Join(abs, name)
		childRel := path.Join(rel, name)

		info, statErr := filesystem.StatWithRetry(childAbs, m.svc.Retry)
		if statErr != nil {
			logging.Debug("Skipping unreadable entry %s: %v", childRel, statErr)
			continue
		}

		if info.IsDir() {
			if m.svc.Jail.IsExcluded(childAbs) {
				continue
			}
			l.Dirs = append(l.Dirs, dirItem(childAbs, childRel, info))
			continue
		}
		if strings.HasPrefix(name, ".") || m.svc.Jail.IsFilenameExcluded(name) {
			continue
		}
		onDisk[childRel] = len(l.Files)
		l.Files = append(l.Files, fileItem(childAbs, childRel, info))
	}

	vis := m.visibility()
	rows, err := m.svc.DB.ListDir(ctx, m.svc.StoragePath, rel, vis)
	if err != nil {
		return nil, mediaerr.E("list", rel, mediaerr.ErrReadFailed, err)
	}
	privates, err := m.svc.DB.ListPrivateFiles(ctx, m.svc.StoragePath, rel)
	if err != nil {
		return nil, mediaerr.E("list", rel, mediaerr.ErrReadFailed, err)
	}

	indexed := make(map[string]bool, len(rows))
	for i := range rows {
		row := &rows[i]
		idx, present := onDisk[row.RelativeFile]

		switch {
		case present && indexed[row.RelativeFile]:
			m.pruneDuplicate(ctx, row)
		case present:
			indexed[row.RelativeFile] = true
			m.hydrate(&l.Files[idx], row)
		case rel == "." && len(entries) > 0:
			m.pruneOrphan(ctx, row)
		}
	}

	var files []Item
	for _, f := range l.Files {
		if indexed[f.RelPath] {
			files = append(files, f)
			continue
		}
		// Rows hidden from this caller must not be recreated or revealed.
		if privates[f.RelPath] || !m.canCreate() {
			continue
		}
		if err := m.register(ctx, &f); err != nil {
			logging.Warn("Could not register %s: %v", f.RelPath, err)
			continue
		}
		files = append(files, f)
	}
	l.Files = files

	sortDirs(l.Dirs)
	sortFiles(l.Files, m.sort)
	return l, nil
}

// register indexes an untracked file and hydrates it with the new row.
func (m *Manager) register(ctx context.Context, f *Item) error {
	id, err := m.CreateFile(ctx, f.Path, CreateOptions{})
	if err != nil {
		return err
	}
	metrics.ReconcileActionsTotal.WithLabelValues("registered").Inc()

	rec, err := m.svc.DB.GetByID(ctx, m.svc.StoragePath, id, database.Visibility{All: true})
	if err != nil {
		return err
	}
	m.hydrate(f, rec)
	return nil
}

func (m *Manager) pruneDuplicate(ctx context.Context, row *database.Record) {
	err := mediaerr.E("list", row.RelativeFile, mediaerr.ErrDuplicateIndexEntry, nil)
	if delErr := m.svc.DB.DeleteByID(ctx, row.ID); delErr != nil {
		logging.Error("%v: delete row %d: %v", err, row.ID, delErr)
		return
	}
	metrics.ReconcileActionsTotal.WithLabelValues("duplicate_pruned").Inc()
	logging.Warn("%v: removed row %d", err, row.ID)
}

func (m *Manager) pruneOrphan(ctx context.Context, row *database.Record) {
	if err := m.svc.DB.DeleteByID(ctx, row.ID); err != nil {
		logging.Error("Failed to prune orphaned row %d (%s): %v", row.ID, row.RelativeFile, err)
		return
	}
	metrics.ReconcileActionsTotal.WithLabelValues("orphan_pruned").Inc()
	logging.Info("Pruned index row %d for missing file %s", row.ID, row.RelativeFile)

	abs := filepath.Join(m.svc.Jail.Root(), filepath.FromSlash(row.RelativeFile))
	err := m.svc.Hooks.FireRemove(ctx, hooks.RemoveArgs{
		MediaID:  row.ID,
		Path:     abs,
		MimeType: mediatypes.GetMimeType(path.Ext(row.RelativeFile)),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fire("remove", row.RelativeFile, err)
	}
}
