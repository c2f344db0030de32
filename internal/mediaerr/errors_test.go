package mediaerr

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
)

func TestPathErrorIs(t *testing.T) {
	err := E("remove", "a.png", ErrNotDeletable, os.ErrPermission)

	if !errors.Is(err, ErrNotDeletable) {
		t.Error("expected error to match its kind")
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("expected error to match its cause")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("error should not match an unrelated kind")
	}

	var pe *PathError
	if !errors.As(err, &pe) {
		t.Fatal("expected *PathError")
	}
	if pe.Op != "remove" || pe.Path != "a.png" {
		t.Errorf("Op/Path = %q/%q, want remove/a.png", pe.Op, pe.Path)
	}
	if !strings.Contains(err.Error(), "cannot be deleted") {
		t.Errorf("Error() = %q, missing kind message", err.Error())
	}
}

func TestNotOwnerIsPermissionDenied(t *testing.T) {
	err := E("remove", "a.png", ErrNotOwner, nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("ErrNotOwner should match ErrPermissionDenied")
	}
	if Kind(err) != ErrNotOwner {
		t.Errorf("Kind() = %v, want ErrNotOwner", Kind(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"outside jail", E("chdir", "..", ErrOutsideJail, nil), http.StatusBadRequest},
		{"excluded", E("list", "private", ErrExcluded, nil), http.StatusForbidden},
		{"not owner", E("remove", "a", ErrNotOwner, nil), http.StatusForbidden},
		{"not found", E("get", "1", ErrNotFound, nil), http.StatusNotFound},
		{"exists", E("upload", "a", ErrAlreadyExists, nil), http.StatusConflict},
		{"collision", E("inflate", "a", ErrNameCollision, nil), http.StatusConflict},
		{"write failed", E("upload", "a", ErrWriteFailed, nil), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	if got := Message(E("upload", "x.php", ErrFileExcluded, nil)); got != ErrFileExcluded.Error() {
		t.Errorf("Message() = %q, want %q", got, ErrFileExcluded.Error())
	}
	if got := Message(errors.New("sql: database is locked")); got != "internal error" {
		t.Errorf("Message() = %q, want internal error", got)
	}
}
