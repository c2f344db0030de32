package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

// recorder is an Observer that keeps every label it sees.
type recorder struct {
	ops      []string // "volume/operation"
	stale    int
	attempts int
	success  int
	failures int
}

func (r *recorder) ObserveOperation(volume, op string, _ float64, _ error) {
	r.ops = append(r.ops, volume+"/"+op)
}
func (r *recorder) ObserveRetryAttempt(_, _ string)             { r.attempts++ }
func (r *recorder) ObserveRetrySuccess(_, _ string)             { r.success++ }
func (r *recorder) ObserveRetryFailure(_, _ string)             { r.failures++ }
func (r *recorder) ObserveRetryDuration(_, _ string, _ float64) {}
func (r *recorder) ObserveStaleError(_, _ string)               { r.stale++ }

func useRecorder(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{}
	SetObserver(r)
	t.Cleanup(func() { SetObserver(nil) })
	return r
}

func fastConfig(retries int) RetryConfig {
	return RetryConfig{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bare ESTALE", syscall.ESTALE, true},
		{"wrapped ESTALE", &os.PathError{Op: "stat", Path: "/srv/media/a.png", Err: syscall.ESTALE}, true},
		{"other errno", syscall.ENOENT, false},
		{"not exist", fs.ErrNotExist, false},
		{"plain error", errors.New("stale"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"media":    "/srv/media",
		"database": "/srv/media/.db",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/srv/media", "media"},
		{"/srv/media/2024/a.png", "media"},
		{"/srv/media/.db/media.db", "database"},
		{"/srv/mediaextra/a.png", "unknown"},
		{"/tmp/upload.tmp", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}

	var nilResolver *VolumeResolver
	if got := nilResolver.Resolve("/srv/media/a.png"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want unknown", got)
	}
}

func TestResolveVolume_Fallback(t *testing.T) {
	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"media": "/srv/media"}))
	t.Cleanup(func() { SetDefaultVolumeResolver(nil) })

	config := DefaultRetryConfig()
	if got := config.resolveVolume("/srv/media/a.png"); got != "media" {
		t.Errorf("default resolver volume = %q, want media", got)
	}
	config.VolumeResolver = NewVolumeResolver(map[string]string{"database": "/srv/media"})
	if got := config.resolveVolume("/srv/media/a.png"); got != "database" {
		t.Errorf("config resolver volume = %q, want database", got)
	}
}

func TestRetry(t *testing.T) {
	stale := &os.PathError{Op: "stat", Path: "/srv/media/a.png", Err: syscall.ESTALE}

	tests := []struct {
		name      string
		failures  int // leading ESTALE results
		final     error
		retries   int
		wantCalls int
		wantErr   bool
		wantStale int
		wantRetry int
		wantFail  int
		wantOK    int
	}{
		{"success", 0, nil, 3, 1, false, 0, 0, 0, 0},
		{"non-stale error fails at once", 0, fs.ErrNotExist, 3, 1, true, 0, 0, 0, 0},
		{"recovers after stale", 2, nil, 3, 3, false, 2, 2, 0, 1},
		{"stale exhausts retries", 10, nil, 2, 3, true, 3, 2, 1, 0},
		{"no retries configured", 10, nil, 0, 1, true, 1, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := useRecorder(t)
			calls := 0
			v, err := retry("stat", "/srv/media/a.png", fastConfig(tt.retries), func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", stale
				}
				if tt.final != nil {
					return "", tt.final
				}
				return "ok", nil
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("retry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && v != "ok" {
				t.Errorf("retry() = %q, want ok", v)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(rec.ops) != tt.wantCalls {
				t.Errorf("observed %d operations, want %d", len(rec.ops), tt.wantCalls)
			}
			if rec.stale != tt.wantStale || rec.attempts != tt.wantRetry || rec.failures != tt.wantFail || rec.success != tt.wantOK {
				t.Errorf("observer = %+v", *rec)
			}
		})
	}
}

func TestRetry_BackoffIsCapped(t *testing.T) {
	config := RetryConfig{MaxRetries: 4, InitialBackoff: time.Millisecond, MaxBackoff: 3 * time.Millisecond}
	start := time.Now()
	_, _ = retry("stat", "/x", config, func() (int, error) { return 0, syscall.ESTALE })

	// 1 + 2 + 3 + 3 ms of sleep.
	if elapsed := time.Since(start); elapsed < 9*time.Millisecond {
		t.Errorf("retries took %v, want at least 9ms of backoff", elapsed)
	}
}

func TestWrappers(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	config := fastConfig(1)
	config.VolumeResolver = NewVolumeResolver(map[string]string{"media": root})
	missing := filepath.Join(root, "nope")

	tests := []struct {
		name   string
		call   func(p string) error
		path   string
		wantOp string
		ok     bool
	}{
		{"stat", func(p string) error { _, err := StatWithRetry(p, config); return err }, filepath.Join(root, "a.png"), "media/stat", true},
		{"stat missing", func(p string) error { _, err := StatWithRetry(p, config); return err }, missing, "media/stat", false},
		{"open", func(p string) error {
			f, err := OpenWithRetry(p, config)
			if err == nil {
				f.Close()
			}
			return err
		}, filepath.Join(root, "a.png"), "media/read", true},
		{"open missing", func(p string) error { _, err := OpenWithRetry(p, config); return err }, missing, "media/read", false},
		{"readdir", func(p string) error { _, err := ReadDirWithRetry(p, config); return err }, root, "media/readdir", true},
		{"readdir missing", func(p string) error { _, err := ReadDirWithRetry(p, config); return err }, missing, "media/readdir", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := useRecorder(t)
			err := tt.call(tt.path)
			if tt.ok && err != nil {
				t.Fatalf("error = %v", err)
			}
			if !tt.ok && !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("error = %v, want fs.ErrNotExist", err)
			}
			if len(rec.ops) != 1 || rec.ops[0] != tt.wantOp {
				t.Errorf("observed %v, want [%s]", rec.ops, tt.wantOp)
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	c := DefaultRetryConfig()
	if c.MaxRetries != 3 || c.InitialBackoff != 50*time.Millisecond || c.MaxBackoff != 500*time.Millisecond {
		t.Errorf("DefaultRetryConfig() = %+v", c)
	}
}
