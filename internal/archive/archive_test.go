package archive

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"

	"media-manager/internal/jail"
	"media-manager/internal/mediaerr"
)

// writeZip creates an archive at path holding the given entries. Names
// ending in "/" become directory entries.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entries[n])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T) (*Extractor, string) {
	t.Helper()

	root := t.TempDir()
	ex, err := jail.NewExclusionSet([]string{"private"}, jail.DefaultFilePattern)
	if err != nil {
		t.Fatal(err)
	}
	j, err := jail.New(root, ex)
	if err != nil {
		t.Fatal(err)
	}
	return New(j), j.Root()
}

func walk(t *testing.T, dir string) []string {
	t.Helper()

	var out []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(dir, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(out)
	return out
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"Café/déjà-vu.txt", "Cafe/deja-vu.txt"},
		{".hidden", "hidden"},
		{"a/..b/c", "a/b/c"},
		{"my file (1).png", "my_file__1_.png"},
		{"Straße.txt", "Strasse.txt"},
		{"Łódź.jpg", "Lodz.jpg"},
		{"über_DATA-2.tar.gz", "uber_DATA-2.tar.gz"},
		{"...", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CleanName(tt.in); got != tt.want {
				t.Errorf("CleanName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"__MACOSX/._a.jpg", true},
		{"photos/.DS_Store", true},
		{".git/config", true},
		{"repo/.gitignore", true},
		{".hgtags", true},
		{"dir/.svn/entries", true},
		{"Thumbs.db", true},
		{"photos/a.jpg", false},
		{"digital/b.jpg", false},
		{"Thumbs.dbx", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ignored(tt.name); got != tt.want {
				t.Errorf("Ignored(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestRootDir(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"single root", []string{"top/", "top/a.txt", "top/sub/b.txt"}, "top"},
		{"implicit root", []string{"top/a.txt", "top/b.txt"}, "top"},
		{"file at top level", []string{"top/a.txt", "b.txt"}, ""},
		{"two roots", []string{"one/a.txt", "two/b.txt"}, ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RootDir(tt.names); got != tt.want {
				t.Errorf("RootDir(%v) = %q, want %q", tt.names, got, tt.want)
			}
		})
	}
}

func TestInflate_SanitizesNames(t *testing.T) {
	e, root := setup(t)
	writeZip(t, filepath.Join(root, "trip.zip"), map[string]string{
		"Café/":            "",
		"Café/déjà-vu.txt": "hello",
		"__MACOSX/._x":     "junk",
	})

	rel, err := e.Inflate("trip.zip", ".", true)
	if err != nil {
		t.Fatalf("Inflate() error = %v", err)
	}
	if rel != "Cafe" {
		t.Errorf("Inflate() = %q, want Cafe", rel)
	}

	data, err := os.ReadFile(filepath.Join(root, "Cafe", "deja-vu.txt"))
	if err != nil {
		t.Fatalf("sanitized file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(root, "__MACOSX")); !os.IsNotExist(err) {
		t.Error("denylisted entry was extracted")
	}
}

func TestInflate_SubdirFromArchiveName(t *testing.T) {
	e, root := setup(t)
	if err := os.Mkdir(filepath.Join(root, "albums"), 0755); err != nil {
		t.Fatal(err)
	}
	writeZip(t, filepath.Join(root, "albums", "summer.zip"), map[string]string{
		"a.jpg":       "a",
		"sub/b.jpg":   "b",
		"index.html":  "<script>",
		"private.txt": "p",
	})

	rel, err := e.Inflate("albums/summer.zip", "albums", true)
	if err != nil {
		t.Fatalf("Inflate() error = %v", err)
	}
	if rel != "albums/summer" {
		t.Errorf("Inflate() = %q, want albums/summer", rel)
	}

	got := walk(t, filepath.Join(root, "albums", "summer"))
	want := []string{"a.jpg", "private.txt", "sub/b.jpg"}
	if len(got) != len(want) {
		t.Fatalf("extracted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("extracted %v, want %v", got, want)
			break
		}
	}

	// Same target again.
	if _, err := e.Inflate("albums/summer.zip", "albums", true); !errors.Is(err, mediaerr.ErrAlreadyExists) {
		t.Errorf("second Inflate() error = %v, want ErrAlreadyExists", err)
	}
}

func TestInflate_IntoDestination(t *testing.T) {
	e, root := setup(t)
	writeZip(t, filepath.Join(root, "x.zip"), map[string]string{"one.txt": "1", "two.txt": "2"})

	rel, err := e.Inflate("x.zip", ".", false)
	if err != nil {
		t.Fatal(err)
	}
	if rel != "." {
		t.Errorf("Inflate() = %q, want .", rel)
	}

	// Existing files are never overwritten.
	if err := os.Remove(filepath.Join(root, "one.txt")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Inflate("x.zip", ".", false); !errors.Is(err, mediaerr.ErrAlreadyExists) {
		t.Errorf("Inflate() over existing files error = %v, want ErrAlreadyExists", err)
	}
	if _, err := os.Stat(filepath.Join(root, "one.txt")); !os.IsNotExist(err) {
		t.Error("Inflate() wrote files before failing")
	}
}

func TestInflate_KeepsExistingDirectoryNames(t *testing.T) {
	e, root := setup(t)
	for _, d := range []string{"My Photos", "Café"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, d, "old.jpg"), []byte("o"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	writeZip(t, filepath.Join(root, "add.zip"), map[string]string{
		"My Photos/new.jpg":  "n",
		"Café/été 1.jpg":     "e",
		"Nouveau Café/a.txt": "a",
	})

	if _, err := e.Inflate("add.zip", ".", false); err != nil {
		t.Fatalf("Inflate() error = %v", err)
	}

	want := []string{
		"Café/ete_1.jpg",
		"Café/old.jpg",
		"My Photos/new.jpg",
		"My Photos/old.jpg",
		"Nouveau_Cafe/a.txt",
		"add.zip",
	}
	got := walk(t, root)
	if len(got) != len(want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tree[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInflate_ZipSlip(t *testing.T) {
	e, root := setup(t)
	writeZip(t, filepath.Join(root, "evil.zip"), map[string]string{"../../escape.txt": "x"})

	// Readers that refuse insecure names report the archive as invalid.
	_, err := e.Inflate("evil.zip", ".", false)
	if !errors.Is(err, mediaerr.ErrOutsideJail) && !errors.Is(err, mediaerr.ErrArchiveInvalid) {
		t.Errorf("Inflate() error = %v, want ErrOutsideJail", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(root)), "escape.txt")); !os.IsNotExist(err) {
		t.Error("entry escaped the jail")
	}
}

func TestInflate_NameCollision(t *testing.T) {
	e, root := setup(t)
	writeZip(t, filepath.Join(root, "c.zip"), map[string]string{
		"set/a b.txt": "space",
		"set/a_b.txt": "underscore",
	})

	rel, err := e.Inflate("c.zip", ".", true)
	if !errors.Is(err, mediaerr.ErrNameCollision) {
		t.Fatalf("Inflate() error = %v, want ErrNameCollision", err)
	}
	if rel != "set" {
		t.Errorf("Inflate() = %q, want set", rel)
	}

	data, _ := os.ReadFile(filepath.Join(root, "set", "a_b.txt"))
	if string(data) != "underscore" {
		t.Errorf("colliding rename overwrote a_b.txt: %q", data)
	}
	if _, err := os.Stat(filepath.Join(root, "set", "a b.txt")); err != nil {
		t.Errorf("unrenamed entry missing: %v", err)
	}
}

func TestInflate_InvalidArchive(t *testing.T) {
	e, root := setup(t)
	if err := os.WriteFile(filepath.Join(root, "bad.zip"), []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Inflate("bad.zip", ".", true); !errors.Is(err, mediaerr.ErrArchiveInvalid) {
		t.Errorf("Inflate() error = %v, want ErrArchiveInvalid", err)
	}
	if _, err := e.Peek("missing.zip"); !errors.Is(err, mediaerr.ErrNotFound) {
		t.Errorf("Peek(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPeek(t *testing.T) {
	e, root := setup(t)
	writeZip(t, filepath.Join(root, "p.zip"), map[string]string{
		"a.txt":          "a",
		".DS_Store":      "",
		"docs/readme.md": "r",
	})

	names, err := e.Peek("p.zip")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "docs/readme.md" {
		t.Errorf("Peek() = %v", names)
	}
}
