package featureflags

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// CacheTTL is how long a loaded snapshot is served before the
	// repository is read again.
	// Default: 1 minute
	CacheTTL time.Duration

	// DefaultFlags apply to keys the repository does not hold.
	// Default: DefaultFlags()
	DefaultFlags map[string]*Flag

	Now func() time.Time
}

// Service evaluates feature flags from a cached snapshot of the repository
// merged over the defaults. When the repository cannot be read the last
// snapshot (or the defaults) keeps being served.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag
	now          func() time.Time

	mu       sync.RWMutex
	snapshot map[string]*Flag
	expiry   time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	defaultFlags := cfg.DefaultFlags
	if defaultFlags == nil {
		defaultFlags = DefaultFlags()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:         cfg.Repository,
		logger:       cfg.Logger,
		cacheTTL:     cacheTTL,
		defaultFlags: defaultFlags,
		now:          now,
	}
}

// GetFlag returns the flag for key, or nil when the key is neither stored
// nor a default.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	return s.load(ctx)[key]
}

// GetAllFlags returns every stored flag merged over the defaults. The map is
// a copy; the flags are shared and must not be modified.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	snap := s.load(ctx)
	result := make(map[string]*Flag, len(snap))
	for k, v := range snap {
		result[k] = v
	}
	return result
}

// SetFlag stores a single flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.SetFlags(ctx, []*Flag{flag})
}

// SetFlags stores flags in one write and applies them to the snapshot.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := s.now()
	for _, flag := range flags {
		flag.UpdatedAt = now
	}
	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}

	base := s.load(ctx)
	next := make(map[string]*Flag, len(base)+len(flags))
	for k, v := range base {
		next[k] = v
	}
	for _, flag := range flags {
		stored := *flag
		next[flag.Key] = &stored
	}

	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()
	return nil
}

// ResetFlag removes the stored value of key so its default applies again.
func (s *Service) ResetFlag(ctx context.Context, key string) error {
	if err := s.repo.DeleteFlag(ctx, key); err != nil {
		return err
	}
	s.InvalidateCache()
	return nil
}

// InvalidateCache drops the snapshot so the next read goes to the repository.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.expiry = time.Time{}
}

// IsEnabled reports whether a boolean flag is set.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

func (s *Service) load(ctx context.Context) map[string]*Flag {
	s.mu.RLock()
	snap, expiry := s.snapshot, s.expiry
	s.mu.RUnlock()
	if snap != nil && s.now().Before(expiry) {
		return snap
	}

	stored, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load feature flags, serving last known values")
		if snap == nil {
			snap = s.defaultFlags
		}
		s.mu.Lock()
		s.snapshot = snap
		s.expiry = s.now().Add(s.cacheTTL)
		s.mu.Unlock()
		return snap
	}

	merged := make(map[string]*Flag, len(s.defaultFlags)+len(stored))
	for k, v := range s.defaultFlags {
		merged[k] = v
	}
	for k, v := range stored {
		merged[k] = v
	}

	s.mu.Lock()
	s.snapshot = merged
	s.expiry = s.now().Add(s.cacheTTL)
	s.mu.Unlock()
	return merged
}

// Convenience methods for well-known flags.

// NotificationsPaused returns true if subscriber notifications are paused.
func (s *Service) NotificationsPaused(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagNotificationsPaused)
}

// IngestPaused returns true if health events should be rejected.
func (s *Service) IngestPaused(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagIngestPaused)
}

// StatusBanner returns the operator banner, empty when none is set.
func (s *Service) StatusBanner(ctx context.Context) string {
	return s.GetFlag(ctx, FlagStatusBanner).StringValue("")
}

// RecentIncidentDays returns the resolved-incident window of the status page.
func (s *Service) RecentIncidentDays(ctx context.Context) int {
	days := s.GetFlag(ctx, FlagRecentIncidentDays).IntValue(7)
	if days < 1 {
		return 7
	}
	return days
}
