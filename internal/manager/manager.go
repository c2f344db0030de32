package manager

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"media-manager/internal/database"
	"media-manager/internal/logging"
	"media-manager/internal/mediaerr"
	"media-manager/internal/mediatypes"
	"media-manager/internal/metrics"
)

// Permissions checked through Capability.
const (
	PermMedia      = "media"
	PermMediaAdmin = "media_admin"
)

// Capability answers authorization questions for the caller.
type Capability interface {
	Check(perm, scope string) bool
	IsSuperAdmin() bool
}

// User identifies the caller for ownership checks.
type User interface {
	ID() string
}

// SortSpec orders listed files.
type SortSpec struct {
	Field mediatypes.SortField
	Order mediatypes.SortOrder
}

// Manager performs media operations on behalf of one caller. It keeps a
// current directory and is not safe for concurrent use.
type Manager struct {
	svc  *Services
	caps Capability
	user User

	cwd  string
	sort SortSpec
}

var titlePolicy = bluemonday.StrictPolicy()

// New returns a manager positioned at the root.
func New(svc *Services, caps Capability, user User) *Manager {
	return &Manager{
		svc:  svc,
		caps: caps,
		user: user,
		cwd:  ".",
		sort: SortSpec{Field: mediatypes.SortByName, Order: mediatypes.SortAsc},
	}
}

// Dir returns the current directory relative to the root.
func (m *Manager) Dir() string {
	return m.cwd
}

// SetSort sets the order List uses for files.
func (m *Manager) SetSort(s SortSpec) {
	m.sort = s
}

// ChangeDirectory moves to rel, taken relative to the current directory.
// On failure the current directory is unchanged.
func (m *Manager) ChangeDirectory(rel string) error {
	abs, err := m.svc.Jail.Check(m.join(rel))
	if err != nil {
		if errors.Is(err, mediaerr.ErrNotFound) {
			return mediaerr.E("chdir", rel, mediaerr.ErrInvalidDirectory, err)
		}
		return err
	}
	if !m.isDir(abs) {
		return mediaerr.E("chdir", rel, mediaerr.ErrInvalidDirectory, nil)
	}
	dir, err := m.svc.Jail.Rel(abs)
	if err != nil {
		return err
	}
	m.cwd = dir
	return nil
}

// join resolves rel against the current directory. Absolute paths are
// returned unchanged for the jail to judge.
func (m *Manager) join(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return path.Join(m.cwd, filepath.ToSlash(rel))
}

func (m *Manager) scope() string {
	return m.svc.StoragePath
}

func (m *Manager) userID() string {
	if m.user == nil {
		return ""
	}
	return m.user.ID()
}

// isAdmin reports whether the caller manages every user's media.
func (m *Manager) isAdmin() bool {
	return m.caps.IsSuperAdmin() || m.caps.Check(PermMediaAdmin, m.scope())
}

// canCreate reports whether the caller may add and change media.
func (m *Manager) canCreate() bool {
	return m.isAdmin() || m.caps.Check(PermMedia, m.scope())
}

func (m *Manager) requireCreate(op, p string) error {
	if !m.canCreate() {
		return mediaerr.E(op, p, mediaerr.ErrPermissionDenied, nil)
	}
	return nil
}

// mayEdit reports whether the caller may change or delete rec.
func (m *Manager) mayEdit(rec *database.Record) bool {
	if m.isAdmin() {
		return true
	}
	return m.canCreate() && rec.OwnerID != "" && rec.OwnerID == m.userID()
}

func (m *Manager) visibility() database.Visibility {
	return database.Visibility{OwnerID: m.userID(), All: m.isAdmin()}
}

// cleanTitle strips markup from a user supplied title.
func cleanTitle(s string) string {
	return strings.TrimSpace(titlePolicy.Sanitize(s))
}

// defaultTitle derives a title from a file name.
func defaultTitle(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// relDir returns the directory of a slash separated relative file.
func relDir(relFile string) string {
	return path.Dir(relFile)
}

// track records the outcome and duration of an operation.
func track(op string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
		if mediaerr.Kind(*err) != nil {
			logging.Debug("%s failed: %v", op, *err)
		} else {
			logging.Warn("%s failed: %v", op, *err)
		}
	}
	metrics.ManagerOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.ManagerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// fire logs the failure of a best-effort lifecycle dispatch.
func fire(ev string, target string, err error) {
	if err != nil {
		logging.Warn("%s handlers for %s: %v", ev, target, err)
	}
}
