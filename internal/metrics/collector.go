package metrics

import (
	"context"
	"time"
)

// KeySource supplies per-namespace cache key counts. The orchestrator's
// key registry implements it.
type KeySource interface {
	KeysByNamespace() map[string]int
}

// Collector periodically refreshes the CacheKeysTracked gauge from a key
// source.
type Collector struct {
	src      KeySource
	interval time.Duration
}

// NewCollector creates a collector. A non-positive interval defaults to
// one minute.
func NewCollector(src KeySource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{src: src, interval: interval}
}

// Collect refreshes the gauge once. Reset first so namespaces whose last
// key expired do not linger at their final count.
func (c *Collector) Collect() {
	counts := c.src.KeysByNamespace()
	CacheKeysTracked.Reset()
	for ns, n := range counts {
		CacheKeysTracked.WithLabelValues(ns).Set(float64(n))
	}
}

// Run refreshes the gauge on a fixed interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	c.Collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}
