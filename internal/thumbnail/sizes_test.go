package thumbnail

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	if got, want := r.Codes(), []string{"m", "s", "t", "sq"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Codes() = %v, want %v", got, want)
	}

	crop := 0
	for _, s := range r.All() {
		if s.Crop {
			crop++
		}
	}
	if crop == 0 {
		t.Error("default registry must contain a crop size")
	}
}

func TestRegistrySet(t *testing.T) {
	r, err := NewRegistry(SizeSpec{Code: "a", PixelSize: 10}, SizeSpec{Code: "b", PixelSize: 20})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Set(SizeSpec{Code: "a", PixelSize: 30}); err != nil {
		t.Fatalf("Set(replace) error = %v", err)
	}
	if got := r.Codes(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("replace changed order: %v", got)
	}
	if s, _ := r.Get("a"); s.PixelSize != 30 {
		t.Errorf("Get(a).PixelSize = %d, want 30", s.PixelSize)
	}

	invalid := []SizeSpec{
		{Code: "", PixelSize: 10},
		{Code: "A", PixelSize: 10},
		{Code: "x_y", PixelSize: 10},
		{Code: "ok", PixelSize: -1},
	}
	for _, s := range invalid {
		if err := r.Set(s); err == nil {
			t.Errorf("Set(%+v) should fail", s)
		}
	}

	r.Freeze()
	if err := r.Set(SizeSpec{Code: "c", PixelSize: 5}); !errors.Is(err, ErrFrozen) {
		t.Errorf("Set after Freeze error = %v, want ErrFrozen", err)
	}
}

func TestSizeSpecWanted(t *testing.T) {
	tests := []struct {
		name string
		spec SizeSpec
		w, h int
		want bool
	}{
		{"crop always", SizeSpec{Code: "sq", PixelSize: 48, Crop: true}, 10, 10, true},
		{"ratio wider", SizeSpec{Code: "m", PixelSize: 400}, 500, 100, true},
		{"ratio taller", SizeSpec{Code: "m", PixelSize: 400}, 100, 500, true},
		{"ratio equal", SizeSpec{Code: "m", PixelSize: 400}, 400, 400, false},
		{"ratio smaller", SizeSpec{Code: "m", PixelSize: 400}, 100, 100, false},
		{"zero size", SizeSpec{Code: "z", PixelSize: 0, Crop: true}, 500, 500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Wanted(tt.w, tt.h); got != tt.want {
				t.Errorf("Wanted(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
			}
		})
	}
}

func TestLoadRegistryYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.yaml")
	data := `sizes:
  - {code: xl, size: 1200, name: Extra large}
  - {code: sq, size: 64, crop: true, name: Square}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRegistryYAML(path)
	if err != nil {
		t.Fatalf("LoadRegistryYAML() error = %v", err)
	}

	if got, want := r.Codes(), []string{"m", "s", "t", "sq", "xl"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Codes() = %v, want %v", got, want)
	}
	if sq, _ := r.Get("sq"); sq.PixelSize != 64 || !sq.Crop {
		t.Errorf("sq = %+v, want 64 crop", sq)
	}
}

func TestLoadRegistryYAML_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadRegistryYAML(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("sizes:\n  - {code: BAD, size: 10}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistryYAML(bad); err == nil {
		t.Error("expected error for invalid code")
	}
}
