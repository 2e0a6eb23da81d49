package incident

import (
	"context"
	"time"

	"github.com/chainstatus/statuspage/internal/status"
)

// Repository defines the interface for incident persistence.
type Repository interface {
	// CreateOpen stores inc together with its first update, unless inc is
	// attached to a service that already has an open incident. In that case
	// nothing is written and the existing incident is returned tagged
	// AlreadyOpen.
	CreateOpen(ctx context.Context, inc *Incident, first *Update) (CreateResult, error)

	// Get retrieves an incident by ID.
	Get(ctx context.Context, id string) (*Incident, error)

	// GetOpenForService returns the open incident of a service, or
	// ErrIncidentNotFound if there is none.
	GetOpenForService(ctx context.Context, serviceID string) (*Incident, error)

	// ListOpen returns every open incident, newest impact first.
	ListOpen(ctx context.Context) ([]*Incident, error)

	// ListResolvedSince returns incidents resolved at or after since, newest first.
	ListResolvedSince(ctx context.Context, since time.Time) ([]*Incident, error)

	// AppendUpdate adds an update to an open incident and moves the incident
	// to newStatus. Returns ErrIncidentResolved if the incident is resolved.
	AppendUpdate(ctx context.Context, upd *Update, newStatus status.IncidentStatus) error

	// Resolve marks an open incident resolved at the given time and appends
	// the closing update. Returns false without writing if it was already
	// resolved.
	Resolve(ctx context.Context, id string, closing *Update, at time.Time) (bool, error)

	// SetPostmortem stores the postmortem text, open or resolved.
	SetPostmortem(ctx context.Context, id string, text string, at time.Time) error

	// ListUpdates returns an incident's updates in timestamp order.
	ListUpdates(ctx context.Context, incidentID string) ([]*Update, error)
}
