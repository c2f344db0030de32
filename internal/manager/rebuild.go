package manager

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"media-manager/internal/filesystem"
	"media-manager/internal/hooks"
	"media-manager/internal/logging"
	"media-manager/internal/mediaerr"
	"media-manager/internal/mediatypes"
	"media-manager/internal/metrics"
)

// ErrRebuildRunning is returned when a rebuild is requested while another
// one is in progress.
var ErrRebuildRunning = errors.New("rebuild already running")

var rebuilding atomic.Bool

// Rebuild reconciles startDir and everything below it with the index:
// untracked files are registered and rows of missing files are deleted.
// Only a super admin may rebuild.
func (m *Manager) Rebuild(ctx context.Context, startDir string) (err error) {
	defer track("rebuild", time.Now(), &err)

	if !m.caps.IsSuperAdmin() {
		return mediaerr.E("rebuild", startDir, mediaerr.ErrPermissionDenied, nil)
	}
	abs, err := m.svc.Jail.Check(m.join(startDir))
	if err != nil {
		return err
	}
	if !m.isDir(abs) {
		return mediaerr.E("rebuild", startDir, mediaerr.ErrInvalidDirectory, nil)
	}
	rel, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return err
	}

	if !rebuilding.CompareAndSwap(false, true) {
		return ErrRebuildRunning
	}
	defer rebuilding.Store(false)

	start := time.Now()
	metrics.RebuildRunsTotal.Inc()
	metrics.RebuildIsRunning.Set(1)
	defer metrics.RebuildIsRunning.Set(0)

	logging.Info("Rebuilding media index from %s", rel)

	var errs []error
	visited := make(map[string]bool)
	m.index(ctx, abs, visited, &errs)

	pruned, pruneErr := m.pruneMissing(ctx, rel)
	if pruneErr != nil {
		errs = append(errs, pruneErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.svc.DB.SetLastRebuild(ctx, time.Now()); err != nil {
		logging.Warn("Failed to record rebuild time: %v", err)
	}
	metrics.RebuildLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.RebuildLastRunDuration.Set(time.Since(start).Seconds())
	logging.Info("Rebuild of %s finished in %v: %d directories, %d rows pruned",
		rel, time.Since(start).Round(time.Millisecond), len(visited), pruned)

	return errors.Join(errs...)
}

// index reconciles abs and every directory below it, visiting each
// level's subdirectories before registering its files.
func (m *Manager) index(ctx context.Context, abs string, visited map[string]bool, errs *[]error) {
	if ctx.Err() != nil || visited[abs] {
		return
	}
	visited[abs] = true
	metrics.RebuildDirectoriesVisited.Inc()

	entries, err := filesystem.ReadDirWithRetry(abs, m.svc.Retry)
	if err != nil {
		*errs = append(*errs, mediaerr.E("rebuild", abs, mediaerr.ErrReadFailed, err))
		return
	}
	for _, e := range entries {
		child, err := m.svc.Jail.Check(filepath.Join(abs, e.Name()))
		if err != nil || !m.isDir(child) {
			continue
		}
		m.index(ctx, child, visited, errs)
	}

	if _, err := m.reconcile(ctx, abs); err != nil {
		*errs = append(*errs, err)
	}
}

// pruneMissing deletes the rows under dir whose file no longer exists.
func (m *Manager) pruneMissing(ctx context.Context, dir string) (int, error) {
	rows, err := m.svc.DB.ListUnderDir(ctx, m.svc.StoragePath, dir)
	if err != nil {
		return 0, mediaerr.E("rebuild", dir, mediaerr.ErrReadFailed, err)
	}

	pruned := 0
	for i := range rows {
		row := &rows[i]
		p := filepath.Join(m.svc.Jail.Root(), filepath.FromSlash(row.RelativeFile))
		if _, err := os.Lstat(p); err == nil || !os.IsNotExist(err) {
			continue
		}
		if err := m.svc.DB.DeleteByID(ctx, row.ID); err != nil {
			logging.Error("Failed to prune row %d (%s): %v", row.ID, row.RelativeFile, err)
			continue
		}
		pruned++
		metrics.ReconcileActionsTotal.WithLabelValues("orphan_pruned").Inc()
		logging.Debug("Pruned index row %d for missing file %s", row.ID, row.RelativeFile)

		fire("remove", row.RelativeFile, m.svc.Hooks.FireRemove(ctx, hooks.RemoveArgs{
			MediaID:  row.ID,
			Path:     p,
			MimeType: mediatypes.GetMimeType(path.Ext(row.RelativeFile)),
		}))
	}
	return pruned, nil
}
