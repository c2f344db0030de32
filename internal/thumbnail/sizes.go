package thumbnail

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrFrozen is returned when a frozen registry is modified.
var ErrFrozen = errors.New("thumbnail size registry is frozen")

var codePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// SizeSpec describes one derived image size.
type SizeSpec struct {
	Code        string `yaml:"code" json:"code"`
	PixelSize   int    `yaml:"size" json:"size"`
	Crop        bool   `yaml:"crop" json:"crop"`
	DisplayName string `yaml:"name" json:"name"`
}

// Wanted reports whether a source of w x h pixels gets a derived file for
// this size: crop sizes always do, ratio sizes only when the source is larger.
func (s SizeSpec) Wanted(w, h int) bool {
	if s.PixelSize <= 0 {
		return false
	}
	return s.Crop || w > s.PixelSize || h > s.PixelSize
}

// Registry holds size specs in registration order. It is mutable until
// Freeze is called.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	specs  map[string]SizeSpec
	frozen bool
}

// NewRegistry builds a registry from specs.
func NewRegistry(specs ...SizeSpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]SizeSpec)}
	for _, s := range specs {
		if err := r.Set(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultSizes returns the built-in sizes.
func DefaultSizes() []SizeSpec {
	return []SizeSpec{
		{Code: "m", PixelSize: 448, DisplayName: "Medium"},
		{Code: "s", PixelSize: 240, DisplayName: "Small"},
		{Code: "t", PixelSize: 100, DisplayName: "Thumbnail"},
		{Code: "sq", PixelSize: 48, Crop: true, DisplayName: "Square"},
	}
}

// DefaultRegistry returns an unfrozen registry with DefaultSizes.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultSizes()...)
	return r
}

// Set adds or replaces a size. Replacing keeps the original position.
func (r *Registry) Set(s SizeSpec) error {
	if !codePattern.MatchString(s.Code) {
		return fmt.Errorf("invalid size code %q", s.Code)
	}
	if s.PixelSize < 0 {
		return fmt.Errorf("invalid pixel size %d for code %q", s.PixelSize, s.Code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if _, ok := r.specs[s.Code]; !ok {
		r.order = append(r.order, s.Code)
	}
	r.specs[s.Code] = s
	return nil
}

// Get returns the spec for code.
func (r *Registry) Get(code string) (SizeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[code]
	return s, ok
}

// All returns every spec in registration order.
func (r *Registry) All() []SizeSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SizeSpec, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.specs[c])
	}
	return out
}

// Codes returns every size code in registration order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

type sizesFile struct {
	Sizes []SizeSpec `yaml:"sizes"`
}

// LoadRegistryYAML returns the default registry with the sizes listed in the
// YAML file at path applied on top.
//
//	sizes:
//	  - {code: xl, size: 1200, name: Extra large}
//	  - {code: sq, size: 64, crop: true, name: Square}
func LoadRegistryYAML(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sizes file: %w", err)
	}

	var f sizesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sizes file %s: %w", path, err)
	}

	r := DefaultRegistry()
	for _, s := range f.Sizes {
		if err := r.Set(s); err != nil {
			return nil, fmt.Errorf("sizes file %s: %w", path, err)
		}
	}
	return r, nil
}
