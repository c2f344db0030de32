package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	SetOverride(0)
	procs := runtime.GOMAXPROCS(0)

	tests := []struct {
		name  string
		load  Load
		limit int
		want  int
	}{
		{"cpu unlimited", CPU, 0, procs},
		{"io unlimited", IO, 0, procs * 2},
		{"mixed unlimited", Mixed, 0, int(float64(procs) * 1.5)},
		{"limit caps", IO, 1, 1},
		{"fractional load rounds up to one", Load(0.01), 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.load, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.load, tt.limit, got, tt.want)
			}
		})
	}
}

func TestOverride(t *testing.T) {
	t.Cleanup(func() { SetOverride(0) })

	SetOverride(3)
	if got := ForCPU(0); got != 3 {
		t.Errorf("ForCPU(0) with override = %d, want 3", got)
	}
	if got := ForIO(2); got != 2 {
		t.Errorf("ForIO(2) with override 3 = %d, want 2", got)
	}

	SetOverride(-5)
	if Override() != 0 {
		t.Errorf("Override() after negative = %d, want 0", Override())
	}
	if got, want := ForMixed(0), Count(Mixed, 0); got != want {
		t.Errorf("ForMixed(0) = %d, want %d", got, want)
	}
}
