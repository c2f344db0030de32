package workers

import (
	"runtime"
	"sync/atomic"
)

// Load describes how a task spends its time and scales the worker count
// per available CPU.
type Load float64

const (
	// CPU is for decoding and resizing images.
	CPU Load = 1.0
	// IO is for directory walks and index queries.
	IO Load = 2.0
	// Mixed is for thumbnail passes that read, resize and write.
	Mixed Load = 1.5
)

var override atomic.Int64

// SetOverride pins the worker count of every load to n, still capped by the
// caller's limit. n <= 0 restores the GOMAXPROCS based calculation.
func SetOverride(n int) {
	if n < 0 {
		n = 0
	}
	override.Store(int64(n))
}

// Override returns the pinned worker count, or 0 when none is set.
func Override() int {
	return int(override.Load())
}

// Count returns the worker count for load, capped at limit when limit > 0.
// GOMAXPROCS follows container CPU limits, so it is used instead of
// runtime.NumCPU.
func Count(load Load, limit int) int {
	n := Override()
	if n == 0 {
		n = int(float64(runtime.GOMAXPROCS(0)) * float64(load))
	}
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU returns the worker count for CPU-bound tasks.
func ForCPU(limit int) int {
	return Count(CPU, limit)
}

// ForIO returns the worker count for I/O-bound tasks.
func ForIO(limit int) int {
	return Count(IO, limit)
}

// ForMixed returns the worker count for tasks mixing decode work with disk
// I/O.
func ForMixed(limit int) int {
	return Count(Mixed, limit)
}
