package uptime

import (
	"context"
	"sort"
	"sync"
	"time"
)

type bucketKey struct {
	serviceID string
	hour      int64
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu      sync.RWMutex
	checks  map[string][]*CheckResult // keyed by service ID, append order
	buckets map[bucketKey]*HourBucket
	newest  map[string]time.Time // newest bucket hour per service
}

// NewInMemoryRepository creates a new in-memory metric repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		checks:  make(map[string][]*CheckResult),
		buckets: make(map[bucketKey]*HourBucket),
		newest:  make(map[string]time.Time),
	}
}

// AppendCheck stores a check result.
func (r *InMemoryRepository) AppendCheck(_ context.Context, check *CheckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checks[check.ServiceID] = append(r.checks[check.ServiceID], copyCheck(check))
	return nil
}

// ListChecks returns the most recent checks of a service, newest first.
func (r *InMemoryRepository) ListChecks(_ context.Context, serviceID string, limit int) ([]*CheckResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.checks[serviceID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	items := make([]*CheckResult, 0, limit)
	for i := len(all) - 1; i >= 0 && len(items) < limit; i-- {
		items = append(items, copyCheck(all[i]))
	}
	return items, nil
}

// IncrementBucket adds one sample to its hour bucket.
func (r *InMemoryRepository) IncrementBucket(_ context.Context, sample Sample) (*HourBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hour := sample.Hour()
	key := bucketKey{serviceID: sample.ServiceID, hour: hour.Unix()}

	b, ok := r.buckets[key]
	if !ok {
		if newest, seen := r.newest[sample.ServiceID]; seen && hour.Before(newest) {
			return nil, ErrStaleHour
		}
		b = &HourBucket{ServiceID: sample.ServiceID, Hour: hour}
		r.buckets[key] = b
		r.newest[sample.ServiceID] = hour
	}

	applySample(b, sample)
	return copyBucket(b), nil
}

// applySample folds one sample into a bucket.
func applySample(b *HourBucket, sample Sample) {
	b.ChecksTotal++
	if sample.Success {
		b.ChecksSuccess++
	} else {
		b.ChecksFailed++
	}

	if sample.ResponseTimeMs != nil {
		rt := float64(*sample.ResponseTimeMs)
		avg := rt
		if b.AvgResponseMs != nil {
			avg = (*b.AvgResponseMs*float64(b.ResponseSamples) + rt) / float64(b.ResponseSamples+1)
		}
		b.AvgResponseMs = &avg
		b.ResponseSamples++
	}

	b.UptimePercent = 100 * float64(b.ChecksSuccess) / float64(b.ChecksTotal)
}

// ListBuckets returns buckets with from <= hour < to, oldest first.
func (r *InMemoryRepository) ListBuckets(_ context.Context, serviceID string, from, to time.Time) ([]*HourBucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*HourBucket
	for key, b := range r.buckets {
		if key.serviceID != serviceID {
			continue
		}
		if b.Hour.Before(from) || !b.Hour.Before(to) {
			continue
		}
		items = append(items, copyBucket(b))
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Hour.Before(items[j].Hour) })
	return items, nil
}

// Totals returns the summed check counters across every bucket of a service.
func (r *InMemoryRepository) Totals(_ context.Context, serviceID string) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total, success int
	for key, b := range r.buckets {
		if key.serviceID == serviceID {
			total += b.ChecksTotal
			success += b.ChecksSuccess
		}
	}
	return total, success, nil
}

var _ Repository = (*InMemoryRepository)(nil)
