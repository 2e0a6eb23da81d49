package incident

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chainstatus/statuspage/internal/status"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Useful for testing and development.
type InMemoryRepository struct {
	mu        sync.RWMutex
	incidents map[string]*Incident
	updates   map[string][]*Update
	// open maps a service ID to its open incident ID.
	open map[string]string
}

// NewInMemoryRepository creates a new in-memory incident repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		incidents: make(map[string]*Incident),
		updates:   make(map[string][]*Update),
		open:      make(map[string]string),
	}
}

// CreateOpen stores the incident unless its service already has an open one.
func (r *InMemoryRepository) CreateOpen(ctx context.Context, inc *Incident, first *Update) (CreateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inc.ServiceID != nil && inc.Open() {
		if id, ok := r.open[*inc.ServiceID]; ok {
			return CreateResult{Outcome: AlreadyOpen, Incident: copyIncident(r.incidents[id])}, nil
		}
	}

	r.incidents[inc.ID] = copyIncident(inc)
	if first != nil {
		u := *first
		r.updates[inc.ID] = append(r.updates[inc.ID], &u)
	}
	if inc.ServiceID != nil && inc.Open() {
		r.open[*inc.ServiceID] = inc.ID
	}
	return CreateResult{Outcome: Created, Incident: copyIncident(inc)}, nil
}

// Get retrieves an incident by ID.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc, ok := r.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return copyIncident(inc), nil
}

// GetOpenForService returns the open incident of a service.
func (r *InMemoryRepository) GetOpenForService(ctx context.Context, serviceID string) (*Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.open[serviceID]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return copyIncident(r.incidents[id]), nil
}

// ListOpen returns every open incident, newest impact first.
func (r *InMemoryRepository) ListOpen(ctx context.Context) ([]*Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Incident
	for _, inc := range r.incidents {
		if inc.Open() {
			out = append(out, copyIncident(inc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ImpactStartAt.After(out[j].ImpactStartAt)
	})
	return out, nil
}

// ListResolvedSince returns incidents resolved at or after since, newest first.
func (r *InMemoryRepository) ListResolvedSince(ctx context.Context, since time.Time) ([]*Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Incident
	for _, inc := range r.incidents {
		if inc.ResolvedAt != nil && !inc.ResolvedAt.Before(since) {
			out = append(out, copyIncident(inc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolvedAt.After(*out[j].ResolvedAt)
	})
	return out, nil
}

// AppendUpdate adds an update to an open incident.
func (r *InMemoryRepository) AppendUpdate(ctx context.Context, upd *Update, newStatus status.IncidentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[upd.IncidentID]
	if !ok {
		return ErrIncidentNotFound
	}
	if !inc.Open() {
		return ErrIncidentResolved
	}

	u := *upd
	r.updates[inc.ID] = append(r.updates[inc.ID], &u)
	inc.Status = newStatus
	inc.UpdatedAt = upd.CreatedAt
	return nil
}

// Resolve marks an open incident resolved and appends the closing update.
func (r *InMemoryRepository) Resolve(ctx context.Context, id string, closing *Update, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return false, ErrIncidentNotFound
	}
	if !inc.Open() {
		return false, nil
	}

	inc.Status = status.Resolved
	inc.ResolvedAt = &at
	if inc.ImpactEndAt == nil {
		end := at
		inc.ImpactEndAt = &end
	}
	inc.UpdatedAt = at
	if inc.ServiceID != nil && r.open[*inc.ServiceID] == id {
		delete(r.open, *inc.ServiceID)
	}
	if closing != nil {
		u := *closing
		r.updates[id] = append(r.updates[id], &u)
	}
	return true, nil
}

// SetPostmortem stores the postmortem text.
func (r *InMemoryRepository) SetPostmortem(ctx context.Context, id string, text string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return ErrIncidentNotFound
	}
	inc.Postmortem = &text
	inc.UpdatedAt = at
	return nil
}

// ListUpdates returns an incident's updates in timestamp order.
func (r *InMemoryRepository) ListUpdates(ctx context.Context, incidentID string) ([]*Update, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.incidents[incidentID]; !ok {
		return nil, ErrIncidentNotFound
	}

	src := r.updates[incidentID]
	out := make([]*Update, 0, len(src))
	for _, u := range src {
		c := *u
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)
