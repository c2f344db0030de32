package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-manager/internal/jail"
	"media-manager/internal/thumbnail"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Errorf("Expected OS and Arch to be set, got %q/%q", info.OS, info.Arch)
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		setEnv       bool
		defaultValue string
		want         string
	}{
		{"unset uses default", "", false, "default", "default"},
		{"set value wins", "custom", true, "default", "custom"},
		{"empty value uses default", "", true, "default", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv("STARTUP_TEST_VAR", tt.envValue)
			}
			if got := getEnv("STARTUP_TEST_VAR", tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("STARTUP_TEST_BOOL", tt.envValue)
			if got := getEnvBool("STARTUP_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.envValue, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		envValue string
		want     int
	}{
		{"", 7},
		{"42", 42},
		{"-3", -3},
		{"lots", 7},
	}
	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("STARTUP_TEST_INT", tt.envValue)
			if got := getEnvInt("STARTUP_TEST_INT", 7); got != tt.want {
				t.Errorf("getEnvInt(%q) = %d, want %d", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"90s", 90 * time.Second, false},
		{"1h", time.Hour, false},
		{"-5m", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseInterval(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseInterval(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseInterval(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"private", []string{"private"}},
		{" private , trash,,", []string{"private", "trash"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	mediaDir := t.TempDir()
	dbDir := filepath.Join(t.TempDir(), "db")

	t.Setenv("MEDIA_DIR", mediaDir)
	t.Setenv("DATABASE_DIR", dbDir)
	t.Setenv("MEDIA_EXCLUDED_DIRS", "private, .trash")
	t.Setenv("REBUILD_INTERVAL", "15m")
	t.Setenv("POLL_INTERVAL", "bogus")
	t.Setenv("IMAGE_CODEC", "")
	t.Setenv("MEDIA_EXCLUDED_FILES", "")
	t.Setenv("MAX_UPLOAD_MB", "64")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MediaDir != mediaDir || cfg.DatabasePath != filepath.Join(dbDir, "media.db") {
		t.Errorf("paths = %q, %q", cfg.MediaDir, cfg.DatabasePath)
	}
	if _, err := os.Stat(dbDir); err != nil {
		t.Errorf("database directory not created: %v", err)
	}
	if !reflect.DeepEqual(cfg.ExcludedDirs, []string{"private", ".trash"}) {
		t.Errorf("ExcludedDirs = %v", cfg.ExcludedDirs)
	}
	if cfg.ExcludedFiles != jail.DefaultFilePattern {
		t.Errorf("ExcludedFiles = %q, want the default pattern", cfg.ExcludedFiles)
	}
	if cfg.RebuildInterval != 15*time.Minute || cfg.PollInterval != 0 {
		t.Errorf("intervals = %v, %v", cfg.RebuildInterval, cfg.PollInterval)
	}
	if cfg.ImageCodec != "imaging" || cfg.StoragePath != "public" || cfg.MaxUploadMB != 64 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown codec", "IMAGE_CODEC", "magick"},
		{"bad exclusion pattern", "MEDIA_EXCLUDED_FILES", "(["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MEDIA_DIR", t.TempDir())
			t.Setenv("DATABASE_DIR", t.TempDir())
			t.Setenv(tt.key, tt.val)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%q succeeded", tt.key, tt.val)
			}
		})
	}
}

func TestManagerConfig(t *testing.T) {
	sizesFile := filepath.Join(t.TempDir(), "sizes.yaml")
	yaml := "sizes:\n  - {code: xl, size: 1600, name: Extra large}\n"
	if err := os.WriteFile(sizesFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		MediaDir:           t.TempDir(),
		StoragePath:        "public",
		MediaURL:           "/media",
		ImageCodec:         "imaging",
		ThumbnailSizesFile: sizesFile,
	}
	mc, err := cfg.ManagerConfig()
	if err != nil {
		t.Fatalf("ManagerConfig() error = %v", err)
	}
	if _, ok := mc.Sizes.Get("xl"); !ok {
		t.Error("sizes file entry xl not registered")
	}
	if _, ok := mc.Codec.(thumbnail.ImagingCodec); !ok {
		t.Errorf("Codec = %T, want ImagingCodec", mc.Codec)
	}
	if mc.Root != cfg.MediaDir || mc.Retry.MaxRetries == 0 {
		t.Errorf("manager config = %+v", mc)
	}

	cfg.ThumbnailSizesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.ManagerConfig(); err == nil {
		t.Error("ManagerConfig() with a missing sizes file succeeded")
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := func(_ http.ResponseWriter, _ *http.Request) {}
	r.HandleFunc("/healthz", noop).Methods("GET")
	r.HandleFunc("/api/media", noop).Methods("GET", "DELETE")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 3 {
		t.Errorf("GetRoutes() returned %d routes, want 3: %+v", len(routes), routes)
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "healthz"},
		{"/api/media/{id}", "api/media"},
		{"/api/posts/{post}/media", "api/posts"},
		{"/media/{path}", "media"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
