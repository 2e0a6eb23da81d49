// Package overview computes the system-wide status and the public status
// page read model.
package overview

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/cache"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/status"
)

const pageCacheKey = "status_page"

// PageSettings supplies operator-controlled presentation settings.
type PageSettings interface {
	StatusBanner(ctx context.Context) string
	RecentIncidentDays(ctx context.Context) int
}

// Config holds configuration for the overview Service.
type Config struct {
	Services  ledger.Repository
	Incidents incident.Repository
	Settings  PageSettings

	// Cache holds the status page snapshot. Optional.
	Cache cache.Cache

	// CacheTTL bounds how stale a cached snapshot can be.
	// Default: 15 seconds
	CacheTTL time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Overall is the system-wide status.
type Overall struct {
	Status        status.Level `json:"status"`
	UptimePercent float64      `json:"uptimePercent"`
}

// Page is the read model behind the public status page.
type Page struct {
	Overall                 Overall              `json:"overall"`
	Services                []*ledger.Service    `json:"services"`
	ActiveIncidents         []*incident.Incident `json:"activeIncidents"`
	RecentResolvedIncidents []*incident.Incident `json:"recentResolvedIncidents"`
	Banner                  string               `json:"banner,omitempty"`
	GeneratedAt             time.Time            `json:"generatedAt"`
}

// Service answers read-only status queries. It never takes the processor's
// locks; reads see the latest committed state of each repository.
type Service struct {
	services  ledger.Repository
	incidents incident.Repository
	settings  PageSettings
	cache     cache.Cache
	cacheTTL  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a new overview Service.
func New(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Service{
		services:  cfg.Services,
		incidents: cfg.Incidents,
		settings:  cfg.Settings,
		cache:     cfg.Cache,
		cacheTTL:  ttl,
		logger:    cfg.Logger,
		now:       now,
	}
}

// GetOverallStatus returns the worst of every public service's level and
// the level implied by every open incident's severity, so an unresolved
// incident is never hidden by a service reset to OPERATIONAL.
func (s *Service) GetOverallStatus(ctx context.Context) (*Overall, error) {
	services, err := s.services.List(ctx, ledger.ListOptions{PublicOnly: true})
	if err != nil {
		return nil, err
	}
	open, err := s.incidents.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	overall := computeOverall(services, open)
	return &overall, nil
}

// GetStatusPage returns the status page read model, from cache when fresh.
func (s *Service) GetStatusPage(ctx context.Context) (*Page, error) {
	if s.cache != nil {
		var cached Page
		ok, err := s.cache.Get(ctx, pageCacheKey, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("status page cache read failed")
		}
		if ok {
			return &cached, nil
		}
	}

	page, err := s.buildPage(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, pageCacheKey, page, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("status page cache write failed")
		}
	}
	return page, nil
}

// Invalidate drops the cached status page.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, pageCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("status page cache invalidation failed")
	}
}

// StatusChanged invalidates the cached page. It implements
// processor.StatusObserver.
func (s *Service) StatusChanged(ctx context.Context, _ processor.StatusChange) {
	s.Invalidate(ctx)
}

// Notify invalidates the cached page. It implements incident.Notifier.
func (s *Service) Notify(ctx context.Context, _ incident.Delta) {
	s.Invalidate(ctx)
}

func (s *Service) buildPage(ctx context.Context) (*Page, error) {
	services, err := s.services.List(ctx, ledger.ListOptions{PublicOnly: true})
	if err != nil {
		return nil, err
	}
	open, err := s.incidents.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	days := 7
	banner := ""
	if s.settings != nil {
		days = s.settings.RecentIncidentDays(ctx)
		banner = s.settings.StatusBanner(ctx)
	}
	now := s.now().UTC()
	resolved, err := s.incidents.ListResolvedSince(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}

	if services == nil {
		services = []*ledger.Service{}
	}
	if open == nil {
		open = []*incident.Incident{}
	}
	if resolved == nil {
		resolved = []*incident.Incident{}
	}

	return &Page{
		Overall:                 computeOverall(services, open),
		Services:                services,
		ActiveIncidents:         open,
		RecentResolvedIncidents: resolved,
		Banner:                  banner,
		GeneratedAt:             now,
	}, nil
}

func computeOverall(services []*ledger.Service, open []*incident.Incident) Overall {
	levels := make([]status.Level, 0, len(services)+len(open))
	uptimeSum := 0.0
	for _, svc := range services {
		levels = append(levels, svc.Status)
		uptimeSum += svc.Uptime.Month
	}
	for _, inc := range open {
		levels = append(levels, inc.Severity.Level())
	}

	overall := Overall{
		Status:        status.MaxLevel(levels...),
		UptimePercent: 100,
	}
	if len(services) > 0 {
		overall.UptimePercent = uptimeSum / float64(len(services))
	}
	return overall
}

var (
	_ processor.StatusObserver = (*Service)(nil)
	_ incident.Notifier        = (*Service)(nil)
)
