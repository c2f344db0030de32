package metrics

import (
	"context"
	"time"

	"media-manager/internal/logging"
)

// StatsProvider reports index-wide counts.
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
}

// Stats holds the current statistics
type Stats struct {
	TotalMedia   int
	PrivateMedia int
	PostLinks    int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats, err := c.statsProvider.GetStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	MediaItemsTotal.WithLabelValues("public").Set(float64(stats.TotalMedia - stats.PrivateMedia))
	MediaItemsTotal.WithLabelValues("private").Set(float64(stats.PrivateMedia))

	logging.Debug("Metrics collected: media=%d, private=%d, links=%d",
		stats.TotalMedia, stats.PrivateMedia, stats.PostLinks)
}
