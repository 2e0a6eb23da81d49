package ledger

import (
	"context"
	"time"

	"github.com/chainstatus/statuspage/internal/status"
)

// Repository defines the interface for service persistence.
type Repository interface {
	// Get retrieves a service by ID.
	Get(ctx context.Context, id string) (*Service, error)

	// GetBySlug retrieves a service by its unique slug.
	GetBySlug(ctx context.Context, slug string) (*Service, error)

	// List returns services ordered by sort order then slug.
	List(ctx context.Context, opts ListOptions) ([]*Service, error)

	// Upsert creates a service or refreshes its descriptive fields, keyed by
	// slug. Status and metric fields of an existing service are left alone.
	// On return svc.ID holds the stored ID.
	Upsert(ctx context.Context, svc *Service) (created bool, err error)

	// RecordCheck stores the last-checked timestamp and response time.
	RecordCheck(ctx context.Context, id string, checkedAt time.Time, responseTimeMs *int) error

	// SetStatus stores a new status and its change timestamp.
	SetStatus(ctx context.Context, id string, level status.Level, changedAt time.Time) error

	// SetVisibility toggles whether the service is publicly listed.
	SetVisibility(ctx context.Context, id string, public bool) error

	// SetUptime stores recomputed rolling uptime percentages.
	SetUptime(ctx context.Context, id string, uptime Uptime) error
}
