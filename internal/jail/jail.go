package jail

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"media-manager/internal/mediaerr"
	"media-manager/internal/metrics"
)

// Jail confines paths to a canonical root directory.
type Jail struct {
	root string
	ex   *ExclusionSet
}

// New canonicalizes root, which must be an existing directory. ex may be nil.
func New(root string, ex *ExclusionSet) (*Jail, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, mediaerr.E("jail", root, mediaerr.ErrInvalidDirectory, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, mediaerr.E("jail", root, mediaerr.ErrInvalidDirectory, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, mediaerr.E("jail", root, mediaerr.ErrInvalidDirectory, err)
	}
	if !info.IsDir() {
		return nil, mediaerr.E("jail", root, mediaerr.ErrInvalidDirectory, nil)
	}

	if ex == nil {
		ex, _ = NewExclusionSet(nil, "")
	}
	ex.canonicalize(real)

	return &Jail{root: real, ex: ex}, nil
}

// Root returns the canonical root directory.
func (j *Jail) Root() string {
	return j.root
}

// Exclusions returns the jail's exclusion set.
func (j *Jail) Exclusions() *ExclusionSet {
	return j.ex
}

func (j *Jail) abs(candidate string) string {
	if filepath.IsAbs(candidate) {
		return filepath.Clean(candidate)
	}
	return filepath.Join(j.root, candidate)
}

// Resolve returns the canonical absolute path of an existing entity.
// Relative candidates are taken relative to the root.
func (j *Jail) Resolve(candidate string) (string, error) {
	abs := j.abs(candidate)
	if !filepath.IsAbs(candidate) && !within(j.root, abs) {
		return "", j.violation(candidate, "outside", mediaerr.ErrOutsideJail)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !within(j.root, abs) {
				return "", j.violation(candidate, "outside", mediaerr.ErrOutsideJail)
			}
			return "", mediaerr.E("resolve", candidate, mediaerr.ErrNotFound, nil)
		}
		return "", mediaerr.E("resolve", candidate, mediaerr.ErrReadFailed, err)
	}

	if !within(j.root, real) {
		return "", j.violation(candidate, "outside", mediaerr.ErrOutsideJail)
	}
	return real, nil
}

// ResolveNew returns the canonical absolute path a new entity at candidate
// would have. The deepest existing ancestor is resolved through symlinks and
// the remainder appended.
func (j *Jail) ResolveNew(candidate string) (string, error) {
	abs := j.abs(candidate)
	if !filepath.IsAbs(candidate) && !within(j.root, abs) {
		return "", j.violation(candidate, "outside", mediaerr.ErrOutsideJail)
	}

	rest := ""
	p := abs
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			if rest != "" {
				real = filepath.Join(real, rest)
			}
			if !within(j.root, real) {
				return "", j.violation(candidate, "outside", mediaerr.ErrOutsideJail)
			}
			return real, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", mediaerr.E("resolve", candidate, mediaerr.ErrReadFailed, err)
		}

		parent := filepath.Dir(p)
		if parent == p {
			return "", j.violation(candidate, "outside", mediaerr.ErrOutsideJail)
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

// Rel returns abs relative to the root in slash form; the root itself is ".".
func (j *Jail) Rel(abs string) (string, error) {
	if !within(j.root, abs) {
		return "", mediaerr.E("rel", abs, mediaerr.ErrOutsideJail, nil)
	}
	rel, err := filepath.Rel(j.root, abs)
	if err != nil {
		return "", mediaerr.E("rel", abs, mediaerr.ErrOutsideJail, err)
	}
	return filepath.ToSlash(rel), nil
}

// IsExcluded reports whether p falls under an excluded directory prefix.
// Jail membership is not considered.
func (j *Jail) IsExcluded(p string) bool {
	return j.ex.coversDir(j.abs(p))
}

// IsFilenameExcluded reports whether the filename denylist matches name,
// which may be a basename or a relative path.
func (j *Jail) IsFilenameExcluded(name string) bool {
	return j.ex.matchesFile(name)
}

// Check resolves an existing candidate and rejects excluded paths.
func (j *Jail) Check(candidate string) (string, error) {
	p, err := j.Resolve(candidate)
	if err != nil {
		return "", err
	}
	if j.IsExcluded(p) {
		return "", j.violation(candidate, "excluded", mediaerr.ErrExcluded)
	}
	return p, nil
}

// CheckNew resolves a destination for a new file and rejects excluded
// directories and denylisted filenames.
func (j *Jail) CheckNew(candidate string) (string, error) {
	p, err := j.ResolveNew(candidate)
	if err != nil {
		return "", err
	}
	if j.IsExcluded(p) {
		return "", j.violation(candidate, "excluded", mediaerr.ErrExcluded)
	}
	if j.IsFilenameExcluded(filepath.Base(p)) {
		return "", j.violation(candidate, "file_excluded", mediaerr.ErrFileExcluded)
	}
	return p, nil
}

func (j *Jail) violation(candidate, reason string, kind error) error {
	metrics.JailViolationsTotal.WithLabelValues(reason).Inc()
	return mediaerr.E("resolve", candidate, kind, nil)
}

// within reports whether p equals root or lies below it.
func within(root, p string) bool {
	if p == root {
		return true
	}
	if root == string(filepath.Separator) {
		return strings.HasPrefix(p, root)
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
