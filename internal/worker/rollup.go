package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/uptime"
)

// Invalidator drops cached read models after the rollup wrote new numbers.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// RollupJob recomputes the rolling uptime fields stored on every service.
type RollupJob struct {
	config      RollupConfig
	services    ledger.Repository
	uptime      *uptime.Aggregator
	invalidator Invalidator
	logger      zerolog.Logger

	mu      sync.RWMutex
	metrics RollupMetrics
}

// RollupMetrics tracks rollup job statistics.
type RollupMetrics struct {
	TotalRuns       int64
	ServicesUpdated int64
	ServicesFailed  int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// RollupJobConfig holds configuration for creating a RollupJob.
type RollupJobConfig struct {
	Config   RollupConfig
	Services ledger.Repository
	Uptime   *uptime.Aggregator

	// Invalidator is told once per run that anything was updated. Optional.
	Invalidator Invalidator

	Logger zerolog.Logger
}

// NewRollupJob creates a new rollup job.
func NewRollupJob(cfg RollupJobConfig) *RollupJob {
	return &RollupJob{
		config:      cfg.Config.withDefaults(),
		services:    cfg.Services,
		uptime:      cfg.Uptime,
		invalidator: cfg.Invalidator,
		logger:      cfg.Logger,
	}
}

// RollupResult contains the result of one rollup run.
type RollupResult struct {
	StartTime  time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []RollupError
}

// RollupError records a service that could not be recomputed.
type RollupError struct {
	ServiceID string
	Error     string
}

type serviceResult struct {
	serviceID string
	err       error
}

// Run recomputes uptime for every service, hidden ones included. It returns
// an error only when the service list cannot be read.
func (j *RollupJob) Run(ctx context.Context) (*RollupResult, error) {
	start := time.Now()

	services, err := j.services.List(ctx, ledger.ListOptions{})
	if err != nil {
		return nil, err
	}
	result := &RollupResult{StartTime: start, Total: len(services)}

	ids := make(chan string, len(services))
	results := make(chan serviceResult, len(services))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.rollupWorker(ctx, ids, results)
		}()
	}

	for _, svc := range services {
		ids <- svc.ID
	}
	close(ids)

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RollupError{ServiceID: r.serviceID, Error: r.err.Error()})
			continue
		}
		result.Successful++
	}
	result.Duration = time.Since(start)

	if result.Successful > 0 && j.invalidator != nil {
		j.invalidator.Invalidate(ctx)
	}
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("services", result.Total).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("uptime rollup completed")

	return result, nil
}

// Start runs the job on the configured interval until ctx is cancelled.
func (j *RollupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error().Err(err).Msg("uptime rollup failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *RollupJob) rollupWorker(ctx context.Context, ids <-chan string, results chan<- serviceResult) {
	for id := range ids {
		select {
		case <-ctx.Done():
			results <- serviceResult{serviceID: id, err: ctx.Err()}
		default:
			results <- serviceResult{serviceID: id, err: j.rollupService(ctx, id)}
		}
	}
}

func (j *RollupJob) rollupService(ctx context.Context, serviceID string) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	rolling, err := j.uptime.Rolling(ctx, serviceID)
	if err != nil {
		return err
	}
	return j.services.SetUptime(ctx, serviceID, rolling)
}

func (j *RollupJob) updateMetrics(result *RollupResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.ServicesUpdated += int64(result.Successful)
	j.metrics.ServicesFailed += int64(result.Failed)
	j.metrics.LastRunAt = result.StartTime
	j.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RollupJob) GetMetrics() RollupMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.metrics
}
