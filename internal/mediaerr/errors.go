package mediaerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, one per failure kind. Every error returned by a mutating
// media operation wraps exactly one of these.
var (
	ErrOutsideJail         = errors.New("path is outside the media directory")
	ErrExcluded            = errors.New("directory is excluded")
	ErrFileExcluded        = errors.New("file name is not allowed")
	ErrInvalidDirectory    = errors.New("invalid directory")
	ErrNotFound            = errors.New("file or directory not found")
	ErrNotFoundInIndex     = errors.New("media is not in the index")
	ErrAlreadyExists       = errors.New("file or directory already exists")
	ErrNotWritable         = errors.New("destination is not writable")
	ErrNotDeletable        = errors.New("file or directory cannot be deleted")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrNotOwner            = fmt.Errorf("%w: not the owner of this media", ErrPermissionDenied)
	ErrDuplicateIndexEntry = errors.New("duplicate index entry")
	ErrWriteFailed         = errors.New("write failed")
	ErrReadFailed          = errors.New("read failed")
	ErrArchiveInvalid      = errors.New("archive is missing or unreadable")
	ErrNameCollision       = errors.New("sanitized name collides with an existing file")
)

// kinds is ordered most specific first so Kind resolves ErrNotOwner before
// ErrPermissionDenied.
var kinds = []error{
	ErrOutsideJail,
	ErrExcluded,
	ErrFileExcluded,
	ErrInvalidDirectory,
	ErrNotFoundInIndex,
	ErrNotFound,
	ErrAlreadyExists,
	ErrNotWritable,
	ErrNotDeletable,
	ErrNotOwner,
	ErrPermissionDenied,
	ErrDuplicateIndexEntry,
	ErrWriteFailed,
	ErrReadFailed,
	ErrArchiveInvalid,
	ErrNameCollision,
}

// PathError records a failed media operation on a path.
type PathError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

// E builds a PathError. cause may be nil.
func E(op, path string, kind, cause error) error {
	return &PathError{Op: op, Path: path, Kind: kind, Err: cause}
}

func (e *PathError) Error() string {
	msg := e.Op + " " + e.Path + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *PathError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind returns the sentinel error err wraps, or nil if it wraps none.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the user-facing message for err.
func Message(err error) string {
	if k := Kind(err); k != nil {
		return k.Error()
	}
	return "internal error"
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case nil:
		return http.StatusInternalServerError
	case ErrOutsideJail, ErrInvalidDirectory, ErrFileExcluded, ErrArchiveInvalid:
		return http.StatusBadRequest
	case ErrExcluded, ErrPermissionDenied, ErrNotOwner:
		return http.StatusForbidden
	case ErrNotFound, ErrNotFoundInIndex:
		return http.StatusNotFound
	case ErrAlreadyExists, ErrNameCollision:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
