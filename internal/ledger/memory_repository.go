package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chainstatus/statuspage/internal/status"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu       sync.RWMutex
	services map[string]*Service // keyed by service ID
	slugs    map[string]string   // slug -> service ID
}

// NewInMemoryRepository creates a new in-memory service repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		services: make(map[string]*Service),
		slugs:    make(map[string]string),
	}
}

// Get retrieves a service by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return copyService(svc), nil
}

// GetBySlug retrieves a service by its unique slug.
func (r *InMemoryRepository) GetBySlug(_ context.Context, slug string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.slugs[slug]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return copyService(r.services[id]), nil
}

// List returns services ordered by sort order then slug.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		if opts.PublicOnly && !svc.Public {
			continue
		}
		items = append(items, copyService(svc))
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].Slug < items[j].Slug
	})
	return items, nil
}

// Upsert creates a service or refreshes its descriptive fields.
func (r *InMemoryRepository) Upsert(_ context.Context, svc *Service) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.slugs[svc.Slug]; ok {
		existing := r.services[id]
		existing.Name = svc.Name
		existing.Category = svc.Category
		existing.Description = svc.Description
		existing.ProbeURL = copyService(svc).ProbeURL
		existing.Public = svc.Public
		existing.SortOrder = svc.SortOrder
		existing.UpdatedAt = svc.UpdatedAt
		svc.ID = id
		return false, nil
	}

	r.services[svc.ID] = copyService(svc)
	r.slugs[svc.Slug] = svc.ID
	return true, nil
}

// RecordCheck stores the last-checked timestamp and response time.
func (r *InMemoryRepository) RecordCheck(_ context.Context, id string, checkedAt time.Time, responseTimeMs *int) error {
	return r.mutate(id, func(svc *Service) {
		svc.LastCheckedAt = &checkedAt
		if responseTimeMs != nil {
			v := *responseTimeMs
			svc.LastResponseTimeMs = &v
		} else {
			svc.LastResponseTimeMs = nil
		}
		svc.UpdatedAt = checkedAt
	})
}

// SetStatus stores a new status and its change timestamp.
func (r *InMemoryRepository) SetStatus(_ context.Context, id string, level status.Level, changedAt time.Time) error {
	return r.mutate(id, func(svc *Service) {
		svc.Status = level
		svc.LastStatusChangeAt = changedAt
		svc.UpdatedAt = changedAt
	})
}

// SetVisibility toggles whether the service is publicly listed.
func (r *InMemoryRepository) SetVisibility(_ context.Context, id string, public bool) error {
	return r.mutate(id, func(svc *Service) {
		svc.Public = public
	})
}

// SetUptime stores recomputed rolling uptime percentages.
func (r *InMemoryRepository) SetUptime(_ context.Context, id string, uptime Uptime) error {
	return r.mutate(id, func(svc *Service) {
		svc.Uptime = uptime
	})
}

func (r *InMemoryRepository) mutate(id string, fn func(*Service)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[id]
	if !ok {
		return ErrServiceNotFound
	}
	fn(svc)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
