package jail

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"media-manager/internal/mediaerr"
)

func newTestJail(t *testing.T, excluded ...string) (*Jail, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "media")
	for _, d := range []string{"media/2024", "media/private", "outside"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"media/a.png", "media/2024/b.jpg", "outside/secret.txt"} {
		if err := os.WriteFile(filepath.Join(base, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ex, err := NewExclusionSet(excluded, DefaultFilePattern)
	if err != nil {
		t.Fatal(err)
	}
	j, err := New(root, ex)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return j, base
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), nil)
	if !errors.Is(err, mediaerr.ErrInvalidDirectory) {
		t.Errorf("New() error = %v, want ErrInvalidDirectory", err)
	}
}

func TestResolve(t *testing.T) {
	j, base := newTestJail(t)

	tests := []struct {
		name      string
		candidate string
		wantErr   error
		wantRel   string
	}{
		{name: "root", candidate: ".", wantRel: "."},
		{name: "file at root", candidate: "a.png", wantRel: "a.png"},
		{name: "nested file", candidate: "2024/b.jpg", wantRel: "2024/b.jpg"},
		{name: "dot segments inside", candidate: "2024/../a.png", wantRel: "a.png"},
		{name: "traversal to passwd", candidate: "../../etc/passwd", wantErr: mediaerr.ErrOutsideJail},
		{name: "traversal to sibling", candidate: "../outside/secret.txt", wantErr: mediaerr.ErrOutsideJail},
		{name: "absolute outside", candidate: filepath.Join(base, "outside", "secret.txt"), wantErr: mediaerr.ErrOutsideJail},
		{name: "missing inside", candidate: "nothing.png", wantErr: mediaerr.ErrNotFound},
		{name: "missing outside", candidate: "../missing", wantErr: mediaerr.ErrOutsideJail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Resolve(tt.candidate)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.candidate, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.candidate, err)
			}
			rel, err := j.Rel(got)
			if err != nil {
				t.Fatalf("Rel(%q) error = %v", got, err)
			}
			if rel != tt.wantRel {
				t.Errorf("Resolve(%q) rel = %q, want %q", tt.candidate, rel, tt.wantRel)
			}
		})
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	j, base := newTestJail(t)
	link := filepath.Join(j.Root(), "escape")
	if err := os.Symlink(filepath.Join(base, "outside"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := j.Resolve("escape/secret.txt"); !errors.Is(err, mediaerr.ErrOutsideJail) {
		t.Errorf("Resolve through symlink error = %v, want ErrOutsideJail", err)
	}
	if _, err := j.ResolveNew("escape/new.txt"); !errors.Is(err, mediaerr.ErrOutsideJail) {
		t.Errorf("ResolveNew through symlink error = %v, want ErrOutsideJail", err)
	}
}

func TestResolveNew(t *testing.T) {
	j, _ := newTestJail(t)

	got, err := j.ResolveNew("2024/new/deeper/c.png")
	if err != nil {
		t.Fatalf("ResolveNew() error = %v", err)
	}
	want := filepath.Join(j.Root(), "2024", "new", "deeper", "c.png")
	if got != want {
		t.Errorf("ResolveNew() = %q, want %q", got, want)
	}

	if _, err := j.ResolveNew("../x.png"); !errors.Is(err, mediaerr.ErrOutsideJail) {
		t.Errorf("ResolveNew(../x.png) error = %v, want ErrOutsideJail", err)
	}
}

func TestJailInvariant(t *testing.T) {
	j, _ := newTestJail(t)
	candidates := []string{
		".", "a.png", "2024", "2024/..", "2024/../..", "./././a.png",
		"2024/../../media/a.png", "../media/2024/b.jpg", "/etc", "/",
	}

	for _, c := range candidates {
		got, err := j.Resolve(c)
		if err != nil {
			continue
		}
		if !within(j.Root(), got) {
			t.Errorf("Resolve(%q) = %q escapes root %q", c, got, j.Root())
		}
	}
}

func TestIsExcluded(t *testing.T) {
	j, base := newTestJail(t, "private", filepath.Join(t.TempDir(), "elsewhere"))

	tests := []struct {
		path string
		want bool
	}{
		{"private", true},
		{"private/x.png", true},
		{"privateer", false},
		{"2024", false},
		{filepath.Join(base, "media", "private", "y.png"), true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := j.IsExcluded(tt.path); got != tt.want {
				t.Errorf("IsExcluded(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestAddDir_AfterNew(t *testing.T) {
	j, base := newTestJail(t)
	if j.IsExcluded("2024/b.jpg") {
		t.Fatal("2024 excluded before it was added")
	}

	j.Exclusions().AddDir("2024")

	if !j.IsExcluded("2024/b.jpg") {
		t.Error("relative prefix added after New does not match")
	}
	if !j.IsExcluded(filepath.Join(base, "media", "2024")) {
		t.Error("relative prefix added after New does not match the absolute path")
	}
	if _, err := j.Check("2024/b.jpg"); !errors.Is(err, mediaerr.ErrExcluded) {
		t.Errorf("Check() error = %v, want ErrExcluded", err)
	}
}

func TestIsExcluded_IndependentOfJail(t *testing.T) {
	outside := t.TempDir()
	j, _ := newTestJail(t, outside)

	if !j.IsExcluded(filepath.Join(outside, "file.txt")) {
		t.Error("exclusion prefix outside the jail should still match")
	}
}

func TestIsFilenameExcluded(t *testing.T) {
	j, _ := newTestJail(t)

	tests := []struct {
		name string
		want bool
	}{
		{"shell.php", true},
		{"shell.PHP5", true},
		{"page.phtml", true},
		{"index.html", true},
		{"index.shtml", true},
		{"feed.xml", true},
		{"app.js", true},
		{".htaccess", true},
		{"photo.jpg", false},
		{"notes.txt", false},
		{"json.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := j.IsFilenameExcluded(tt.name); got != tt.want {
				t.Errorf("IsFilenameExcluded(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCheckNew(t *testing.T) {
	j, _ := newTestJail(t, "private")

	if _, err := j.CheckNew("2024/ok.png"); err != nil {
		t.Errorf("CheckNew(ok) error = %v", err)
	}
	if _, err := j.CheckNew("private/x.png"); !errors.Is(err, mediaerr.ErrExcluded) {
		t.Errorf("CheckNew(private) error = %v, want ErrExcluded", err)
	}
	if _, err := j.CheckNew("2024/evil.php"); !errors.Is(err, mediaerr.ErrFileExcluded) {
		t.Errorf("CheckNew(evil.php) error = %v, want ErrFileExcluded", err)
	}
}

func TestCheck(t *testing.T) {
	j, _ := newTestJail(t, "private")

	if _, err := j.Check("private"); !errors.Is(err, mediaerr.ErrExcluded) {
		t.Errorf("Check(private) error = %v, want ErrExcluded", err)
	}
	if _, err := j.Check("2024/b.jpg"); err != nil {
		t.Errorf("Check(2024/b.jpg) error = %v", err)
	}
}

func TestNewExclusionSet_BadPattern(t *testing.T) {
	if _, err := NewExclusionSet(nil, "(["); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
