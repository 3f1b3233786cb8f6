package metrics

import (
	"sync"
	"time"

	"dataset-tagger/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats is a point-in-time summary of the dataset
type Stats struct {
	Records         int   `json:"records"`
	TaggedRecords   int   `json:"tagged_records"`
	DistinctTags    int   `json:"distinct_tags"`
	DuplicateGroups int   `json:"duplicate_groups"`
	DuplicateFiles  int   `json:"duplicate_files"`
	CacheEntries    int   `json:"cache_entries"`
	CacheBytes      int64 `json:"cache_bytes"`
}

// Collector periodically refreshes the index gauges
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
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
	c.stopOnce.Do(func() { close(c.stopChan) })
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

	IndexRecords.Set(float64(stats.Records))
	IndexTaggedRecords.Set(float64(stats.TaggedRecords))
	IndexDistinctTags.Set(float64(stats.DistinctTags))
	DuplicateGroups.Set(float64(stats.DuplicateGroups))
	DuplicateFiles.Set(float64(stats.DuplicateFiles))
	ThumbnailCacheEntries.Set(float64(stats.CacheEntries))
	ThumbnailCacheBytes.Set(float64(stats.CacheBytes))

	logging.Debug("Metrics collected: records=%d, tagged=%d, tags=%d, duplicate groups=%d",
		stats.Records, stats.TaggedRecords, stats.DistinctTags, stats.DuplicateGroups)
}
