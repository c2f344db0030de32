package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"media-manager/internal/auth"
	"media-manager/internal/filesystem"
	"media-manager/internal/logging"
	"media-manager/internal/manager"
	"media-manager/internal/metrics"
)

// Default polling interval for change detection
const defaultPollInterval = 30 * time.Second

// Indexer schedules index rebuilds.
type Indexer struct {
	svc          *manager.Services
	interval     time.Duration
	pollInterval time.Duration
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	mu                sync.Mutex
	running           bool
	lastRun           time.Time
	lastErr           error
	initialComplete   bool
	initialIndexError error
	startTime         time.Time

	stateMu      sync.RWMutex
	lastRootMod  time.Time
	lastTopCount int
	lastDirMods  map[string]time.Time
}

// New creates an indexer. interval <= 0 disables periodic full rebuilds;
// change polling still runs.
func New(svc *manager.Services, interval time.Duration) *Indexer {
	return &Indexer{
		svc:          svc,
		interval:     interval,
		pollInterval: defaultPollInterval,
		stopChan:     make(chan struct{}),
		startTime:    time.Now(),
		lastDirMods:  make(map[string]time.Time),
	}
}

// SetPollInterval sets the change detection interval; <= 0 disables polling.
func (idx *Indexer) SetPollInterval(interval time.Duration) {
	idx.pollInterval = interval
}

// Start runs the initial rebuild and the background loops.
func (idx *Indexer) Start() {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		logging.Info("Starting initial rebuild in background...")
		ctx, cancel := idx.stopContext()
		err := idx.Rebuild(ctx, ".", "startup")
		cancel()
		idx.mu.Lock()
		idx.initialComplete = true
		idx.initialIndexError = err
		idx.mu.Unlock()
		if err != nil {
			logging.Error("Initial rebuild error: %v", err)
		}

		if idx.pollInterval > 0 {
			idx.wg.Add(1)
			go idx.pollForChanges()
		}
	}()

	if idx.interval > 0 {
		idx.wg.Add(1)
		go idx.periodicRebuild()
	}
}

// Stop ends the background loops and waits for a running rebuild to notice.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() { close(idx.stopChan) })
	idx.wg.Wait()
}

// stopContext returns a context cancelled by Stop.
func (idx *Indexer) stopContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-idx.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Rebuild reconciles dir as the System principal. trigger labels the
// request in metrics. A rebuild already in progress is not an error.
func (idx *Indexer) Rebuild(ctx context.Context, dir, trigger string) error {
	metrics.RebuildTriggersTotal.WithLabelValues(trigger).Inc()

	idx.mu.Lock()
	idx.running = true
	idx.mu.Unlock()

	sys := auth.System()
	err := manager.New(idx.svc, sys, sys).Rebuild(ctx, dir)
	skipped := errors.Is(err, manager.ErrRebuildRunning)
	if skipped {
		logging.Info("Rebuild already in progress, skipping %s request for %s", trigger, dir)
		err = nil
	}

	idx.mu.Lock()
	idx.running = false
	if !skipped {
		idx.lastErr = err
		idx.lastRun = time.Now()
	}
	idx.mu.Unlock()

	idx.updateLastKnownState()
	return err
}

// TriggerRebuild starts a rebuild of dir in the background.
func (idx *Indexer) TriggerRebuild(dir string) {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		ctx, cancel := idx.stopContext()
		defer cancel()
		if err := idx.Rebuild(ctx, dir, "manual"); err != nil {
			logging.Error("Manually triggered rebuild of %s failed: %v", dir, err)
		}
	}()
}

func (idx *Indexer) periodicRebuild() {
	defer idx.wg.Done()
	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic rebuild triggered")
			ctx, cancel := idx.stopContext()
			if err := idx.Rebuild(ctx, ".", "interval"); err != nil {
				logging.Error("Periodic rebuild failed: %v", err)
			}
			cancel()
		case <-idx.stopChan:
			return
		}
	}
}

func (idx *Indexer) pollForChanges() {
	defer idx.wg.Done()
	logging.Info("Starting change detection polling (interval: %v)", idx.pollInterval)

	ticker := time.NewTicker(idx.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dirs, err := idx.detectChanges()
			if err != nil {
				logging.Error("Error detecting changes: %v", err)
				continue
			}
			for _, dir := range dirs {
				logging.Info("Changes detected in %s, rebuilding", dir)
				ctx, cancel := idx.stopContext()
				if err := idx.Rebuild(ctx, dir, "change"); err != nil {
					logging.Error("Rebuild of %s after change detection failed: %v", dir, err)
				}
				cancel()
			}
		case <-idx.stopChan:
			logging.Info("Change detection polling stopped")
			return
		}
	}
}

// snapshot is the cheap view of the root used for change detection.
type snapshot struct {
	rootMod  time.Time
	topCount int
	dirMods  map[string]time.Time
}

func (idx *Indexer) snapshot() (snapshot, error) {
	root := idx.svc.Jail.Root()
	rootInfo, err := filesystem.StatWithRetry(root, idx.svc.Retry)
	if err != nil {
		return snapshot{}, err
	}
	entries, err := filesystem.ReadDirWithRetry(root, idx.svc.Retry)
	if err != nil {
		return snapshot{}, err
	}

	s := snapshot{rootMod: rootInfo.ModTime(), dirMods: make(map[string]time.Time)}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		s.topCount++
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(root, e.Name())
		if idx.svc.Jail.IsExcluded(p) {
			continue
		}
		if info, err := filesystem.StatWithRetry(p, idx.svc.Retry); err == nil {
			s.dirMods[e.Name()] = info.ModTime()
		}
	}
	return s, nil
}

// detectChanges returns the directories to rebuild: "." when the root
// itself changed, otherwise the top-level directories that changed.
func (idx *Indexer) detectChanges() ([]string, error) {
	cur, err := idx.snapshot()
	if err != nil {
		return nil, err
	}

	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()

	if cur.rootMod.After(idx.lastRootMod) || cur.topCount != idx.lastTopCount {
		return []string{"."}, nil
	}

	var dirs []string
	for name, mod := range cur.dirMods {
		last, known := idx.lastDirMods[name]
		if !known || mod.After(last) {
			dirs = append(dirs, name)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (idx *Indexer) updateLastKnownState() {
	s, err := idx.snapshot()
	if err != nil {
		logging.Warn("Failed to snapshot media directory for change detection: %v", err)
		return
	}

	idx.stateMu.Lock()
	idx.lastRootMod = s.rootMod
	idx.lastTopCount = s.topCount
	idx.lastDirMods = s.dirMods
	idx.stateMu.Unlock()
}

// IsReady reports whether the initial rebuild has finished.
func (idx *Indexer) IsReady() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.initialComplete
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool      `json:"ready"`
	Rebuilding        bool      `json:"rebuilding"`
	StartTime         time.Time `json:"startTime"`
	Uptime            string    `json:"uptime"`
	LastRebuild       time.Time `json:"lastRebuild,omitempty"`
	LastError         string    `json:"lastError,omitempty"`
	InitialIndexError string    `json:"initialIndexError,omitempty"`
}

// GetHealthStatus returns detailed health information. LastRebuild falls
// back to the time stored in the index by an earlier process.
func (idx *Indexer) GetHealthStatus(ctx context.Context) HealthStatus {
	idx.mu.Lock()
	status := HealthStatus{
		Ready:       idx.initialComplete,
		Rebuilding:  idx.running,
		StartTime:   idx.startTime,
		Uptime:      time.Since(idx.startTime).Round(time.Second).String(),
		LastRebuild: idx.lastRun,
	}
	if idx.lastErr != nil {
		status.LastError = idx.lastErr.Error()
	}
	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}
	idx.mu.Unlock()

	if status.LastRebuild.IsZero() {
		if t, err := idx.svc.DB.GetLastRebuild(ctx); err == nil {
			status.LastRebuild = t
		}
	}
	return status
}
