package indexer

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"media-manager/internal/database"
	"media-manager/internal/jail"
	"media-manager/internal/manager"
)

func setupIndexer(t *testing.T) *Indexer {
	t.Helper()

	root := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "media.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc, err := manager.NewServices(db, manager.Config{
		Root:          root,
		ExcludedDirs:  []string{"private"},
		ExcludedFiles: jail.DefaultFilePattern,
	})
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}
	return New(svc, 0)
}

func writeFile(t *testing.T, idx *Indexer, rel string) {
	t.Helper()
	p := filepath.Join(idx.svc.Jail.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(rel), 0644); err != nil {
		t.Fatal(err)
	}
}

func rows(t *testing.T, idx *Indexer) int {
	t.Helper()
	recs, err := idx.svc.DB.ListUnderDir(context.Background(), idx.svc.StoragePath, ".")
	if err != nil {
		t.Fatal(err)
	}
	return len(recs)
}

// touch moves the modification time of rel forward so change detection
// does not depend on timestamp resolution.
func touch(t *testing.T, idx *Indexer, rel string) {
	t.Helper()
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(idx.svc.Jail.Root(), rel), future, future); err != nil {
		t.Fatal(err)
	}
}

func TestRebuild(t *testing.T) {
	idx := setupIndexer(t)
	ctx := context.Background()
	writeFile(t, idx, "a.txt")
	writeFile(t, idx, "sub/b.txt")
	writeFile(t, idx, "private/c.txt")

	if err := idx.Rebuild(ctx, ".", "manual"); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if n := rows(t, idx); n != 2 {
		t.Errorf("rows after Rebuild() = %d, want 2", n)
	}

	if err := os.Remove(filepath.Join(idx.svc.Jail.Root(), "sub", "b.txt")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Rebuild(ctx, "sub", "change"); err != nil {
		t.Fatalf("Rebuild(sub) error = %v", err)
	}
	if n := rows(t, idx); n != 1 {
		t.Errorf("rows after pruning rebuild = %d, want 1", n)
	}

	status := idx.GetHealthStatus(ctx)
	if status.LastRebuild.IsZero() || status.LastError != "" || status.Rebuilding {
		t.Errorf("GetHealthStatus() = %+v", status)
	}
}

func TestDetectChanges(t *testing.T) {
	idx := setupIndexer(t)
	ctx := context.Background()
	writeFile(t, idx, "a/x.txt")
	writeFile(t, idx, "b/y.txt")
	writeFile(t, idx, "private/z.txt")

	if err := idx.Rebuild(ctx, ".", "startup"); err != nil {
		t.Fatal(err)
	}

	dirs, err := idx.detectChanges()
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 0 {
		t.Errorf("detectChanges() right after rebuild = %v, want none", dirs)
	}

	touch(t, idx, "b")
	touch(t, idx, "private")
	dirs, _ = idx.detectChanges()
	if !reflect.DeepEqual(dirs, []string{"b"}) {
		t.Errorf("detectChanges() = %v, want [b]", dirs)
	}

	writeFile(t, idx, "c.txt")
	touch(t, idx, ".")
	dirs, _ = idx.detectChanges()
	if !reflect.DeepEqual(dirs, []string{"."}) {
		t.Errorf("detectChanges() after root change = %v, want [.]", dirs)
	}
}

func TestStartStop(t *testing.T) {
	idx := setupIndexer(t)
	writeFile(t, idx, "a.txt")
	idx.SetPollInterval(0)

	if idx.IsReady() {
		t.Error("IsReady() before Start")
	}
	idx.Start()

	deadline := time.Now().Add(5 * time.Second)
	for !idx.IsReady() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	idx.Stop()

	if !idx.IsReady() {
		t.Fatal("initial rebuild did not complete")
	}
	if status := idx.GetHealthStatus(context.Background()); status.InitialIndexError != "" {
		t.Errorf("InitialIndexError = %q", status.InitialIndexError)
	}
	if n := rows(t, idx); n != 1 {
		t.Errorf("rows after initial rebuild = %d, want 1", n)
	}

	// A second Stop must not panic.
	idx.Stop()
}
