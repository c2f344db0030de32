// Package mediaerr defines the error kinds returned by the media manager.
//
// Each kind is a sentinel error carrying its own user-facing message. Operations
// return a *PathError wrapping the kind and, when there is one, the underlying
// OS or database error, so callers can use errors.Is for both.
package mediaerr
