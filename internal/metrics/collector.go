package metrics

import (
	"time"

	"media-server/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current streaming statistics
type Stats struct {
	ActiveSessions    int
	PreloadLoops      int
	SegmentCacheBytes int64
	SegmentCacheFiles int
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

	stats := c.statsProvider.GetStats()

	ActiveSessions.Set(float64(stats.ActiveSessions))
	ActivePreloadLoops.Set(float64(stats.PreloadLoops))
	SegmentCacheBytes.Set(float64(stats.SegmentCacheBytes))
	SegmentCacheFiles.Set(float64(stats.SegmentCacheFiles))

	logging.Debug("Metrics collected: sessions=%d, preloadLoops=%d, segmentFiles=%d, segmentBytes=%d",
		stats.ActiveSessions, stats.PreloadLoops, stats.SegmentCacheFiles, stats.SegmentCacheBytes)
}
