package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/metrics"
)

// QueueConfig holds configuration for the Queue.
type QueueConfig struct {
	Fanout *Fanout
	Logger zerolog.Logger

	// Workers is the number of concurrent fanout workers.
	// Default: 2
	Workers int

	// Buffer is the number of pending deltas kept before new ones are dropped.
	// Default: 256
	Buffer int

	// Timeout bounds a single fanout run.
	// Default: 30 seconds
	Timeout time.Duration
}

// Queue runs fanouts off the write path. Notify never blocks: when the
// buffer is full the delta is dropped and counted.
type Queue struct {
	fanout  *Fanout
	logger  zerolog.Logger
	timeout time.Duration

	jobs chan incident.Delta
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a Queue and starts its workers.
func NewQueue(cfg QueueConfig) *Queue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	q := &Queue{
		fanout:  cfg.Fanout,
		logger:  cfg.Logger,
		timeout: timeout,
		jobs:    make(chan incident.Delta, buffer),
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			q.worker(workerID)
		}(i)
	}
	return q
}

// Notify enqueues the delta. It implements incident.Notifier.
func (q *Queue) Notify(_ context.Context, delta incident.Delta) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.drop(delta, "queue closed")
		return
	}

	select {
	case q.jobs <- delta:
		metrics.NotificationQueueDepth.Set(float64(len(q.jobs)))
	default:
		q.drop(delta, "queue full")
	}
}

// Depth returns the number of deltas waiting for a worker.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Close stops accepting deltas and waits for pending ones to be sent or for
// ctx to expire.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker(workerID int) {
	for delta := range q.jobs {
		metrics.NotificationQueueDepth.Set(float64(len(q.jobs)))

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if _, err := q.fanout.Notify(ctx, delta, delta.ServiceIDs); err != nil {
			q.logger.Error().
				Err(err).
				Int("worker_id", workerID).
				Str("incident_id", delta.Incident.ID).
				Msg("incident fanout failed")
		}
		cancel()
	}
}

func (q *Queue) drop(delta incident.Delta, reason string) {
	metrics.NotificationsTotal.WithLabelValues(metrics.ResultDropped).Inc()
	ev := q.logger.Warn().Str("reason", reason).Str("event", string(delta.Event))
	if delta.Incident != nil {
		ev = ev.Str("incident_id", delta.Incident.ID)
	}
	ev.Msg("notification dropped")
}

var _ incident.Notifier = (*Queue)(nil)
