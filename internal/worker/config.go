// Package worker runs the background jobs of the status page: Pub/Sub health
// event ingestion and the rolling uptime rollup.
package worker

import (
	"time"
)

// RollupConfig holds configuration for the uptime rollup job.
type RollupConfig struct {
	// Concurrency is the number of services recomputed in parallel.
	// Default: 4
	Concurrency int

	// Timeout bounds the recomputation of a single service.
	// Default: 10 seconds
	Timeout time.Duration

	// Interval is the period of the scheduled rollup.
	// Default: 5 minutes
	Interval time.Duration
}

// DefaultRollupConfig returns the default rollup configuration.
func DefaultRollupConfig() RollupConfig {
	return RollupConfig{
		Concurrency: 4,
		Timeout:     10 * time.Second,
		Interval:    5 * time.Minute,
	}
}

func (c RollupConfig) withDefaults() RollupConfig {
	d := DefaultRollupConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	return c
}
