package metrics

import (
	"context"
	"time"

	"backup-timeline/internal/logging"
)

// StatsProvider supplies timeline statistics to the collector.
type StatsProvider interface {
	TimelineStats(ctx context.Context) (Stats, error)
}

// DBMetricsUpdater refreshes database connection and file size gauges.
type DBMetricsUpdater interface {
	UpdateDBMetrics()
}

// Stats holds the current statistics
type Stats struct {
	TotalEntries    int
	EntriesBySchema map[string]int
	Sources         int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	// Collect immediately on start
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

	if u, ok := c.statsProvider.(DBMetricsUpdater); ok {
		u.UpdateDBMetrics()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := c.statsProvider.TimelineStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	for _, schema := range Schemas {
		EntriesTotal.WithLabelValues(schema).Set(float64(stats.EntriesBySchema[schema]))
	}
	SourcesTotal.Set(float64(stats.Sources))

	logging.Debug("Metrics collected: entries=%d, sources=%d", stats.TotalEntries, stats.Sources)
}
