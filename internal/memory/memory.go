package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-manager/internal/logging"
	"media-manager/internal/metrics"
)

// Config holds the backpressure thresholds.
type Config struct {
	// LimitBytes is the soft limit. Zero uses GOMEMLIMIT; without either
	// the monitor never pauses.
	LimitBytes int64
	// ResumeRatio is the usage below which paused work resumes.
	ResumeRatio float64
	// PauseRatio is the usage at which image decoding pauses.
	PauseRatio float64
	// CheckInterval is how often heap usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		ResumeRatio:   0.7,
		PauseRatio:    0.85,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor samples heap usage and holds back image decoding while it is
// above the pause threshold. It satisfies thumbnail.Throttle.
type Monitor struct {
	config Config
	limit  int64
	alloc  func() uint64

	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	current uint64
	paused  bool
	resume  chan struct{}
}

// NewMonitor creates a monitor. Call Start to begin sampling.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit > 0 {
		logging.Info("Memory monitor limit: %s (pause at %.0f%%, resume at %.0f%%)",
			FormatBytes(limit), config.PauseRatio*100, config.ResumeRatio*100)
	} else {
		logging.Debug("Memory monitor: no memory limit configured, backpressure disabled")
	}
	return &Monitor{
		config:   config,
		limit:    limit,
		alloc:    heapAlloc,
		stopChan: make(chan struct{}),
		resume:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start begins sampling. Without a limit it does nothing.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases every waiter.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopChan:
			return
		}
	}
}

// check samples usage and moves between the paused and running states.
func (m *Monitor) check() {
	alloc := m.alloc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.PauseRatio && !m.paused:
		logging.Warn("Memory critical (%.1f%% of limit), pausing image decoding", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case usage < m.config.ResumeRatio && m.paused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming image decoding", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// WaitIfPaused blocks while usage is above the pause threshold. It returns
// false when the monitor was stopped while waiting.
func (m *Monitor) WaitIfPaused() bool {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return true
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return true
	case <-m.stopChan:
		return false
	}
}

// IsPaused reports whether decoding is currently held back.
func (m *Monitor) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled usage as a ratio of the limit, or 0
// without a limit.
func (m *Monitor) Usage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit <= 0 {
		return 0
	}
	return float64(m.current) / float64(m.limit)
}
