package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/status"
)

// Config holds configuration for the Ledger.
type Config struct {
	Repository Repository
	Locks      *Locks
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Ledger is the read/write entry point for service records.
type Ledger struct {
	repo   Repository
	locks  *Locks
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new Ledger.
func New(cfg Config) *Ledger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	locks := cfg.Locks
	if locks == nil {
		locks = NewLocks()
	}
	return &Ledger{
		repo:   cfg.Repository,
		locks:  locks,
		logger: cfg.Logger,
		now:    now,
	}
}

// Repository exposes the underlying store to collaborators that write
// status fields directly.
func (l *Ledger) Repository() Repository {
	return l.repo
}

// Get retrieves a service by ID.
func (l *Ledger) Get(ctx context.Context, id string) (*Service, error) {
	return l.repo.Get(ctx, id)
}

// GetBySlug retrieves a service by slug.
func (l *Ledger) GetBySlug(ctx context.Context, slug string) (*Service, error) {
	return l.repo.GetBySlug(ctx, slug)
}

// List returns services, optionally only the publicly listed ones.
func (l *Ledger) List(ctx context.Context, publicOnly bool) ([]*Service, error) {
	return l.repo.List(ctx, ListOptions{PublicOnly: publicOnly})
}

// Seed applies the catalog. New services start OPERATIONAL with full uptime;
// existing services keep their status and metrics.
func (l *Ledger) Seed(ctx context.Context, cat *Catalog) (created int, err error) {
	now := l.now().UTC()
	for _, entry := range cat.Services {
		svc := &Service{
			ID:                 "svc_" + uuid.New().String()[:22],
			Slug:               entry.Slug,
			Name:               entry.Name,
			Category:           entry.Category,
			Description:        entry.Description,
			Public:             !entry.Hidden,
			SortOrder:          entry.SortOrder,
			Status:             status.Operational,
			LastStatusChangeAt: now,
			Uptime:             FullUptime(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if entry.ProbeURL != "" {
			probe := entry.ProbeURL
			svc.ProbeURL = &probe
		}

		isNew, err := l.repo.Upsert(ctx, svc)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", entry.Slug, err)
		}
		if isNew {
			created++
			l.logger.Info().
				Str("service_slug", svc.Slug).
				Str("service_id", svc.ID).
				Msg("service registered")
		}
	}
	return created, nil
}

// Override sets a service's status by hand. Incidents are not touched.
func (l *Ledger) Override(ctx context.Context, slug string, level status.Level, actor string) (*Service, error) {
	if !level.Valid() {
		return nil, status.NewValidationError("status", "INVALID", "unknown status level")
	}

	svc, err := l.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(svc.ID)
	defer unlock()

	svc, err = l.repo.Get(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	if svc.Status == level {
		return svc, nil
	}

	now := l.now().UTC()
	if err := l.repo.SetStatus(ctx, svc.ID, level, now); err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("service_slug", slug).
		Str("previous_status", string(svc.Status)).
		Str("new_status", string(level)).
		Str("actor", actor).
		Msg("service status overridden")

	svc.Status = level
	svc.LastStatusChangeAt = now
	return svc, nil
}

// SetVisibility shows or hides a service on the public page.
func (l *Ledger) SetVisibility(ctx context.Context, slug string, public bool) (*Service, error) {
	svc, err := l.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := l.repo.SetVisibility(ctx, svc.ID, public); err != nil {
		return nil, err
	}
	svc.Public = public
	return svc, nil
}
