package uptime

import (
	"context"
	"time"
)

// Repository defines the interface for check and metric persistence.
type Repository interface {
	// AppendCheck stores a check result. Check results are never updated.
	AppendCheck(ctx context.Context, check *CheckResult) error

	// ListChecks returns the most recent checks of a service, newest first.
	ListChecks(ctx context.Context, serviceID string, limit int) ([]*CheckResult, error)

	// IncrementBucket adds one sample to the bucket of its hour, creating
	// the bucket if needed. Concurrent calls for the same bucket must not
	// lose increments. An existing bucket is always incremented; creating a
	// bucket older than the service's newest one returns ErrStaleHour.
	IncrementBucket(ctx context.Context, sample Sample) (*HourBucket, error)

	// ListBuckets returns buckets with from <= hour < to, oldest first.
	ListBuckets(ctx context.Context, serviceID string, from, to time.Time) ([]*HourBucket, error)

	// Totals returns the summed check counters across every bucket of a service.
	Totals(ctx context.Context, serviceID string) (total, success int, err error)
}
