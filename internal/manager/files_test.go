package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"media-manager/internal/database"
	"media-manager/internal/mediaerr"
	"media-manager/internal/thumbnail"
)

func TestRemoveFile(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	root := svc.Jail.Root()

	alice := New(svc, creator, testUser("alice"))
	upload(t, alice, "a.png", pngBytes(t, 500, 500), CreateOptions{})
	src := filepath.Join(root, "a.png")

	// A creator who is not the owner may not delete.
	err := New(svc, creator, testUser("bob")).RemoveFile(ctx, "a.png")
	if !errors.Is(err, mediaerr.ErrPermissionDenied) {
		t.Fatalf("RemoveFile() by non-owner error = %v, want ErrPermissionDenied", err)
	}
	if !exists(src) || countRows(t, svc, ".") != 1 {
		t.Fatal("file or row touched by a rejected RemoveFile")
	}

	if err := New(svc, nobody, testUser("carol")).RemoveFile(ctx, "a.png"); !errors.Is(err, mediaerr.ErrPermissionDenied) {
		t.Errorf("RemoveFile() without capability error = %v, want ErrPermissionDenied", err)
	}

	if err := alice.RemoveFile(ctx, "a.png"); err != nil {
		t.Fatalf("RemoveFile() by owner error = %v", err)
	}
	if exists(src) || countRows(t, svc, ".") != 0 {
		t.Error("file or row survived RemoveFile")
	}
	if exists(thumbnail.DerivedName(src, "sq")) || exists(thumbnail.DerivedName(src, "m")) {
		t.Error("thumbnails survived RemoveFile")
	}

	if err := alice.RemoveFile(ctx, "a.png"); !errors.Is(err, mediaerr.ErrNotFoundInIndex) {
		t.Errorf("second RemoveFile() error = %v, want ErrNotFoundInIndex", err)
	}
}

func TestRemoveFileByAdmin(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	upload(t, New(svc, creator, testUser("alice")), "a.txt", []byte("a"), CreateOptions{Private: true})

	if err := New(svc, admin, testUser("root")).RemoveItem(ctx, "a.txt"); err != nil {
		t.Fatalf("RemoveItem() by admin error = %v", err)
	}
	if countRows(t, svc, ".") != 0 {
		t.Error("row survived admin removal")
	}
}

func TestUpdateFileRename(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	root := svc.Jail.Root()

	alice := New(svc, creator, testUser("alice"))
	id := upload(t, alice, "a.png", pngBytes(t, 500, 500), CreateOptions{})
	if err := alice.MakeDir(ctx, "sub"); err != nil {
		t.Fatal(err)
	}

	old, err := alice.GetFile(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	updated := *old
	updated.RelPath = "sub/b.png"
	updated.Title = "<i>Renamed</i>"
	updated.Private = true
	updated.Metadata = map[string]any{"caption": "hello"}

	if err := New(svc, creator, testUser("bob")).UpdateFile(ctx, old, &updated); !errors.Is(err, mediaerr.ErrNotOwner) {
		t.Errorf("UpdateFile() by non-owner error = %v, want ErrNotOwner", err)
	}
	if err := alice.UpdateFile(ctx, old, &updated); err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}

	newSrc := filepath.Join(root, "sub", "b.png")
	if !exists(newSrc) || exists(filepath.Join(root, "a.png")) {
		t.Error("file was not renamed")
	}
	if !exists(filepath.Join(root, "sub", ".b_sq.png")) || exists(filepath.Join(root, ".a_sq.png")) {
		t.Error("thumbnails were not relocated")
	}

	got, err := alice.GetFile(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.RelPath != "sub/b.png" || got.Title != "Renamed" || !got.Private {
		t.Errorf("GetFile() after update = %+v", got)
	}
	if got.Metadata["caption"] != "hello" || got.Metadata["width"] != float64(500) {
		t.Errorf("metadata not merged: %v", got.Metadata)
	}
}

func TestUpdateFileConflict(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	m := New(svc, creator, testUser("alice"))
	id := upload(t, m, "a.txt", []byte("a"), CreateOptions{})
	upload(t, m, "b.txt", []byte("b"), CreateOptions{})

	old, _ := m.GetFile(ctx, id)
	moved := *old
	moved.RelPath = "b.txt"
	if err := m.UpdateFile(ctx, old, &moved); !errors.Is(err, mediaerr.ErrAlreadyExists) {
		t.Errorf("UpdateFile() onto existing file error = %v, want ErrAlreadyExists", err)
	}

	moved.RelPath = "../outside.txt"
	if err := m.UpdateFile(ctx, old, &moved); !errors.Is(err, mediaerr.ErrOutsideJail) {
		t.Errorf("UpdateFile() outside jail error = %v, want ErrOutsideJail", err)
	}

	missing := Item{ID: 999}
	if err := m.UpdateFile(ctx, &missing, &missing); !errors.Is(err, mediaerr.ErrNotFoundInIndex) {
		t.Errorf("UpdateFile() unknown id error = %v, want ErrNotFoundInIndex", err)
	}
}

func TestMoveFile(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	m := New(svc, creator, testUser("alice"))
	upload(t, m, "a.txt", []byte("a"), CreateOptions{})
	writeFile(t, svc, "dest/keep.txt", []byte("k"))

	if err := m.MoveFile(ctx, "a.txt", "dest/a.txt"); err != nil {
		t.Fatalf("MoveFile() error = %v", err)
	}
	if !exists(filepath.Join(svc.Jail.Root(), "dest", "a.txt")) {
		t.Error("file not moved")
	}
	if _, err := svc.DB.FindByFile(ctx, svc.StoragePath, "a.txt"); err != nil {
		t.Errorf("MoveFile() must not touch the index: %v", err)
	}

	tests := []struct {
		name     string
		src, dst string
		want     error
	}{
		{"destination exists", "dest/a.txt", "dest/keep.txt", mediaerr.ErrAlreadyExists},
		{"outside jail", "dest/a.txt", "../../a.txt", mediaerr.ErrOutsideJail},
		{"excluded destination", "dest/a.txt", "private/a.txt", mediaerr.ErrExcluded},
		{"denylisted name", "dest/a.txt", "dest/a.php", mediaerr.ErrFileExcluded},
		{"missing source", "nope.txt", "x.txt", mediaerr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.MoveFile(ctx, tt.src, tt.dst); !errors.Is(err, tt.want) {
				t.Errorf("MoveFile(%q, %q) error = %v, want %v", tt.src, tt.dst, err, tt.want)
			}
		})
	}
}

func TestMoveFileOwnership(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	root := svc.Jail.Root()
	alice := New(svc, creator, testUser("alice"))
	upload(t, alice, "p.png", pngBytes(t, 100, 100), CreateOptions{Private: true})

	if err := New(svc, creator, testUser("bob")).MoveFile(ctx, "p.png", "stolen.png"); !errors.Is(err, mediaerr.ErrNotOwner) {
		t.Fatalf("MoveFile() by non-owner error = %v, want ErrNotOwner", err)
	}
	if !exists(filepath.Join(root, "p.png")) || exists(filepath.Join(root, "stolen.png")) {
		t.Fatal("file moved by a non-owner")
	}

	if err := alice.MoveFile(ctx, "p.png", "q.png"); err != nil {
		t.Fatalf("MoveFile() by owner error = %v", err)
	}
	if !exists(filepath.Join(root, ".q_sq.png")) || exists(filepath.Join(root, ".p_sq.png")) {
		t.Error("thumbnails did not follow the file")
	}
}

func TestRemoveFileExcluded(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	alice := New(svc, creator, testUser("alice"))
	writeFile(t, svc, "later/a.txt", []byte("a"))
	if _, err := alice.CreateFile(ctx, "later/a.txt", CreateOptions{}); err != nil {
		t.Fatal(err)
	}

	svc.Jail.Exclusions().AddDir("later")

	if err := alice.RemoveFile(ctx, "later/a.txt"); !errors.Is(err, mediaerr.ErrExcluded) {
		t.Fatalf("RemoveFile() under an excluded prefix error = %v, want ErrExcluded", err)
	}
	if _, err := svc.DB.FindByFile(ctx, svc.StoragePath, "later/a.txt"); err != nil {
		t.Errorf("row deleted by a rejected RemoveFile: %v", err)
	}
	if !exists(filepath.Join(svc.Jail.Root(), "later", "a.txt")) {
		t.Error("file deleted by a rejected RemoveFile")
	}
}

func TestMoveDirectory(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	m := New(svc, admin, testUser("root"))
	for _, dir := range []string{"old", "old/deep"} {
		if err := m.MakeDir(ctx, dir); err != nil {
			t.Fatal(err)
		}
	}
	upload(t, m, "old/a.txt", []byte("a"), CreateOptions{})
	upload(t, m, "old/deep/b.txt", []byte("b"), CreateOptions{})

	if err := New(svc, creator, testUser("alice")).MoveDirectory(ctx, "old", "new"); !errors.Is(err, mediaerr.ErrPermissionDenied) {
		t.Errorf("MoveDirectory() by creator error = %v, want ErrPermissionDenied", err)
	}
	if err := m.MoveDirectory(ctx, "old", "old/deep/inner"); !errors.Is(err, mediaerr.ErrInvalidDirectory) {
		t.Errorf("MoveDirectory() into itself error = %v, want ErrInvalidDirectory", err)
	}
	if err := m.MoveDirectory(ctx, "old", "new"); err != nil {
		t.Fatalf("MoveDirectory() error = %v", err)
	}

	for _, rel := range []string{"new/a.txt", "new/deep/b.txt"} {
		if _, err := svc.DB.FindByFile(ctx, svc.StoragePath, rel); err != nil {
			t.Errorf("row for %s missing: %v", rel, err)
		}
	}
	if n := countRows(t, svc, "old"); n != 0 {
		t.Errorf("%d rows left under old", n)
	}
}

func TestMakeAndRemoveDirectory(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	m := New(svc, creator, testUser("alice"))

	if err := m.MakeDir(ctx, "albums"); err != nil {
		t.Fatalf("MakeDir() error = %v", err)
	}
	if err := m.MakeDir(ctx, "albums"); !errors.Is(err, mediaerr.ErrAlreadyExists) {
		t.Errorf("MakeDir() twice error = %v, want ErrAlreadyExists", err)
	}
	if err := m.MakeDir(ctx, "private/x"); !errors.Is(err, mediaerr.ErrExcluded) {
		t.Errorf("MakeDir() under excluded error = %v, want ErrExcluded", err)
	}
	if err := m.MakeDir(ctx, "a/b/c"); !errors.Is(err, mediaerr.ErrNotFound) {
		t.Errorf("MakeDir() without parent error = %v, want ErrNotFound", err)
	}

	writeFile(t, svc, "albums/x.txt", []byte("x"))
	if err := m.RemoveDirectory(ctx, "albums"); !errors.Is(err, mediaerr.ErrNotDeletable) {
		t.Errorf("RemoveDirectory() non-empty error = %v, want ErrNotDeletable", err)
	}
	if err := m.RemoveDirectory(ctx, "."); !errors.Is(err, mediaerr.ErrNotDeletable) {
		t.Errorf("RemoveDirectory(root) error = %v, want ErrNotDeletable", err)
	}

	if err := os.Remove(filepath.Join(svc.Jail.Root(), "albums", "x.txt")); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveItem(ctx, "albums"); err != nil {
		t.Fatalf("RemoveItem(dir) error = %v", err)
	}
	if exists(filepath.Join(svc.Jail.Root(), "albums")) {
		t.Error("directory survived RemoveItem")
	}
}

func TestSearch(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	alice := New(svc, creator, testUser("alice"))
	upload(t, alice, "beach.txt", []byte("b"), CreateOptions{Title: "Sunset beach"})
	upload(t, alice, "diary.txt", []byte("d"), CreateOptions{Title: "Sunset diary", Private: true})

	tests := []struct {
		name  string
		m     *Manager
		query string
		want  int
	}{
		{"empty query", alice, "", 0},
		{"owner", alice, "sunset", 2},
		{"other user", New(svc, creator, testUser("bob")), "sunset", 1},
		{"file name", alice, "diary.txt", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.m.Search(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("Search(%q) = %d items, want %d", tt.query, len(got), tt.want)
			}
		})
	}
}

func TestInflateZip(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	m := New(svc, creator, testUser("alice"))

	zipPath := writeFile(t, svc, "trip.zip", nil)
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("Café/déjà-vu.txt")
	_, _ = w.Write([]byte("hello"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	id, err := m.CreateFile(ctx, "trip.zip", CreateOptions{Private: true})
	if err != nil {
		t.Fatal(err)
	}
	item, err := m.GetFile(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	bob := New(svc, creator, testUser("bob"))
	if _, err := bob.PeekZip(ctx, item); !errors.Is(err, mediaerr.ErrNotFound) {
		t.Errorf("PeekZip() of a hidden archive error = %v, want ErrNotFound", err)
	}

	entries, err := m.PeekZip(ctx, item)
	if err != nil || len(entries) != 1 {
		t.Fatalf("PeekZip() = %v, %v", entries, err)
	}

	rel, err := m.InflateZip(ctx, item, true)
	if err != nil {
		t.Fatalf("InflateZip() error = %v", err)
	}
	if rel != "Cafe" {
		t.Errorf("InflateZip() = %q, want Cafe", rel)
	}
	if _, err := svc.DB.FindByFile(ctx, svc.StoragePath, "Cafe/deja-vu.txt"); err != nil {
		t.Errorf("extracted file not indexed: %v", err)
	}
}

func TestPostLinks(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	alice := New(svc, creator, testUser("alice"))
	pub := upload(t, alice, "pub.txt", []byte("p"), CreateOptions{})
	priv := upload(t, alice, "priv.txt", []byte("q"), CreateOptions{Private: true})

	for _, id := range []int64{pub, priv} {
		if err := alice.LinkToPost(ctx, 10, id, ""); err != nil {
			t.Fatalf("LinkToPost(%d) error = %v", id, err)
		}
	}
	bob := New(svc, creator, testUser("bob"))
	if err := bob.LinkToPost(ctx, 11, priv, ""); !errors.Is(err, mediaerr.ErrNotFoundInIndex) {
		t.Errorf("LinkToPost() of hidden media error = %v, want ErrNotFoundInIndex", err)
	}

	items, err := alice.PostMedia(ctx, 10, database.DefaultLinkType)
	if err != nil || len(items) != 2 {
		t.Errorf("PostMedia() as owner = %d items, %v", len(items), err)
	}
	items, _ = bob.PostMedia(ctx, 10, "")
	if len(items) != 1 || items[0].ID != pub {
		t.Errorf("PostMedia() as bob = %+v", items)
	}

	links, err := alice.MediaPosts(ctx, pub)
	if err != nil || len(links) != 1 || links[0].PostID != 10 {
		t.Errorf("MediaPosts() = %v, %v", links, err)
	}

	if err := alice.UnlinkFromPost(ctx, 10, pub, ""); err != nil {
		t.Fatal(err)
	}
	if err := alice.UnlinkFromPost(ctx, 10, pub, ""); !errors.Is(err, mediaerr.ErrNotFoundInIndex) {
		t.Errorf("second UnlinkFromPost() error = %v, want ErrNotFoundInIndex", err)
	}
}

func TestRecreateThumbnails(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	root := svc.Jail.Root()
	m := New(svc, creator, testUser("alice"))

	writeFile(t, svc, "gallery/a.png", pngBytes(t, 500, 300))
	writeFile(t, svc, "gallery/b.png", pngBytes(t, 60, 60))
	writeFile(t, svc, "gallery/notes.txt", []byte("n"))

	if err := m.RecreateThumbnails(ctx, "gallery", false); err != nil {
		t.Fatalf("RecreateThumbnails(dir) error = %v", err)
	}
	for _, name := range []string{".a_sq.png", ".a_m.png", ".b_sq.png"} {
		if !exists(filepath.Join(root, "gallery", name)) {
			t.Errorf("%s not generated", name)
		}
	}

	sq := filepath.Join(root, "gallery", ".a_sq.png")
	if err := os.WriteFile(sq, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.RecreateThumbnails(ctx, "gallery/a.png", true); err != nil {
		t.Fatalf("RecreateThumbnails(force) error = %v", err)
	}
	if data, _ := os.ReadFile(sq); string(data) == "stale" {
		t.Error("force did not regenerate the thumbnail")
	}

	// Another user's private image is neither targeted nor swept up.
	writeFile(t, svc, "gallery/c.png", pngBytes(t, 100, 100))
	if _, err := New(svc, creator, testUser("bob")).CreateFile(ctx, "gallery/c.png", CreateOptions{Private: true}); err != nil {
		t.Fatal(err)
	}
	hidden := filepath.Join(root, "gallery", ".c_sq.png")
	if err := os.WriteFile(hidden, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.RecreateThumbnails(ctx, "gallery/c.png", true); !errors.Is(err, mediaerr.ErrNotFound) {
		t.Errorf("RecreateThumbnails(hidden) error = %v, want ErrNotFound", err)
	}
	if err := m.RecreateThumbnails(ctx, "gallery", true); err != nil {
		t.Fatalf("RecreateThumbnails(dir, force) error = %v", err)
	}
	if data, _ := os.ReadFile(hidden); string(data) != "stale" {
		t.Error("directory pass regenerated another user's private thumbnail")
	}

	writeFile(t, svc, "gallery/broken.png", []byte("not an image"))
	if err := m.RecreateThumbnails(ctx, "gallery/broken.png", false); !errors.Is(err, mediaerr.ErrReadFailed) {
		t.Errorf("RecreateThumbnails(broken) error = %v, want ErrReadFailed", err)
	}
}

func TestOpen(t *testing.T) {
	svc := setupServices(t)
	ctx := context.Background()
	alice := New(svc, creator, testUser("alice"))
	upload(t, alice, "pub.png", pngBytes(t, 100, 100), CreateOptions{})
	upload(t, alice, "secret.png", pngBytes(t, 100, 100), CreateOptions{Private: true})
	writeFile(t, svc, "loose.txt", []byte("l"))

	bob := New(svc, creator, testUser("bob"))
	viewer := New(svc, nobody, testUser("carol"))

	tests := []struct {
		name string
		m    *Manager
		rel  string
		want error
	}{
		{"public file", viewer, "pub.png", nil},
		{"public thumbnail", viewer, ".pub_sq.png", nil},
		{"private file for owner", alice, "secret.png", nil},
		{"private thumbnail for owner", alice, ".secret_sq.png", nil},
		{"private file for other", bob, "secret.png", mediaerr.ErrNotFound},
		{"private thumbnail for other", bob, ".secret_sq.png", mediaerr.ErrNotFound},
		{"unindexed for creator", bob, "loose.txt", nil},
		{"unindexed for viewer", viewer, "loose.txt", mediaerr.ErrNotFound},
		{"directory", alice, "private", mediaerr.ErrExcluded},
		{"outside", alice, "../etc/passwd", mediaerr.ErrOutsideJail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tt.m.Open(ctx, tt.rel)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Open(%q) error = %v", tt.rel, err)
				}
				f.Close()
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Open(%q) error = %v, want %v", tt.rel, err, tt.want)
			}
		})
	}
}
