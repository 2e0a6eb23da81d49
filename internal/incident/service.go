package incident

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/metrics"
	"github.com/chainstatus/statuspage/internal/status"
)

const (
	maxTitleLength   = 200
	maxMessageLength = 5000
)

// Notifier is told about incident changes after they are stored.
// Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, delta Delta)
}

// Notifiers fans a delta out to several notifiers in order.
type Notifiers []Notifier

// Notify calls every notifier.
func (n Notifiers) Notify(ctx context.Context, delta Delta) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Notify(ctx, delta)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Delta) {}

// ServiceConfig holds configuration for the incident Service.
type ServiceConfig struct {
	Repository Repository
	Services   ledger.Repository
	Notifier   Notifier
	Logger     zerolog.Logger
	Now        func() time.Time

	// Locks is held while a resolve resets the service status. Share it with
	// the processor; a private set is used when nil.
	Locks *ledger.Locks
}

// Service implements the operator-facing incident lifecycle.
type Service struct {
	repo     Repository
	services ledger.Repository
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
	locks    *ledger.Locks
}

// NewService creates a new incident Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	locks := cfg.Locks
	if locks == nil {
		locks = ledger.NewLocks()
	}
	return &Service{
		repo:     cfg.Repository,
		services: cfg.Services,
		notifier: notifier,
		logger:   cfg.Logger,
		now:      now,
		locks:    locks,
	}
}

// CreateInput is the operator input for a new incident.
type CreateInput struct {
	ServiceID     *string
	Title         string
	Description   string
	Severity      status.Severity
	Status        status.IncidentStatus
	Message       string
	ImpactStartAt *time.Time
	Author        string
}

// CreateIncident opens an incident with an initial update. If the service
// already has an open incident the input is recorded as an update on that
// one instead, and the result is tagged AlreadyOpen.
func (s *Service) CreateIncident(ctx context.Context, in CreateInput) (CreateResult, error) {
	if in.Status == "" {
		in.Status = status.Investigating
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		in.Message = strings.TrimSpace(in.Description)
	}
	if in.Message == "" {
		in.Message = in.Title
	}

	now := s.now().UTC()
	if err := s.validateCreate(ctx, in, now); err != nil {
		return CreateResult{}, err
	}

	impactStart := now
	if in.ImpactStartAt != nil {
		impactStart = in.ImpactStartAt.UTC()
	}

	inc := &Incident{
		ID:            NewIncidentID(),
		ServiceID:     in.ServiceID,
		Title:         in.Title,
		Description:   in.Description,
		Severity:      in.Severity,
		Status:        in.Status,
		ImpactStartAt: impactStart,
		CreatedBy:     in.Author,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !in.Status.Open() {
		inc.ResolvedAt = &now
		inc.ImpactEndAt = &now
	}

	result, err := s.repo.CreateOpen(ctx, inc, &Update{
		ID:         NewUpdateID(),
		IncidentID: inc.ID,
		Status:     in.Status,
		Message:    in.Message,
		Author:     in.Author,
		CreatedAt:  impactStart,
	})
	if err != nil {
		return CreateResult{}, err
	}

	if result.Outcome == AlreadyOpen {
		existing := result.Incident
		if err := s.repo.AppendUpdate(ctx, &Update{
			ID:         NewUpdateID(),
			IncidentID: existing.ID,
			Status:     existing.Status,
			Message:    in.Message,
			Author:     in.Author,
			CreatedAt:  now,
		}, existing.Status); err != nil {
			return CreateResult{}, err
		}

		s.logger.Info().
			Str("incident_id", existing.ID).
			Str("service_id", *existing.ServiceID).
			Msg("service already has an open incident, recorded as update")

		s.notifier.Notify(ctx, Delta{
			Event:      EventUpdated,
			Incident:   existing,
			Message:    in.Message,
			ServiceIDs: existing.ServiceIDs(),
		})
		return result, nil
	}

	metrics.IncidentsOpenedTotal.Inc()
	s.logger.Info().
		Str("incident_id", inc.ID).
		Str("severity", string(inc.Severity)).
		Str("created_by", inc.CreatedBy).
		Msg("incident created")

	s.notifier.Notify(ctx, Delta{
		Event:      EventCreated,
		Incident:   result.Incident,
		Message:    in.Message,
		ServiceIDs: result.Incident.ServiceIDs(),
	})
	return result, nil
}

func (s *Service) validateCreate(ctx context.Context, in CreateInput, now time.Time) error {
	verr := &status.ValidationError{}

	switch {
	case in.Title == "":
		verr.Add("title", "REQUIRED", "title is required")
	case len(in.Title) > maxTitleLength:
		verr.Add("title", "TOO_LONG", "title must be at most 200 characters")
	}
	if len(in.Message) > maxMessageLength {
		verr.Add("message", "TOO_LONG", "message must be at most 5000 characters")
	}
	if _, err := status.ParseSeverity(string(in.Severity)); err != nil {
		verr.Add("severity", "INVALID", "severity must be MINOR, MAJOR or CRITICAL")
	}
	if _, err := status.ParseIncidentStatus(string(in.Status)); err != nil {
		verr.Add("status", "INVALID", "unknown incident status")
	}
	if in.ImpactStartAt != nil && in.ImpactStartAt.After(now) {
		verr.Add("impactStartAt", "IN_FUTURE", "impactStartAt must not be in the future")
	}

	if in.ServiceID != nil {
		if _, err := s.services.Get(ctx, *in.ServiceID); err != nil {
			if !errors.Is(err, ledger.ErrServiceNotFound) {
				return err
			}
			verr.Add("serviceId", "NOT_FOUND", "service does not exist")
		}
	}

	return verr.Err()
}

// AddUpdate appends a timeline entry and moves the incident to newStatus.
// A RESOLVED update resolves the incident.
func (s *Service) AddUpdate(ctx context.Context, id string, newStatus status.IncidentStatus, message, author string) (*Incident, error) {
	message = strings.TrimSpace(message)

	verr := &status.ValidationError{}
	if _, err := status.ParseIncidentStatus(string(newStatus)); err != nil {
		verr.Add("status", "INVALID", "unknown incident status")
	}
	switch {
	case message == "":
		verr.Add("message", "REQUIRED", "message is required")
	case len(message) > maxMessageLength:
		verr.Add("message", "TOO_LONG", "message must be at most 5000 characters")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if newStatus == status.Resolved {
		return s.Resolve(ctx, id, ResolveInput{Message: message, Author: author})
	}

	now := s.now().UTC()
	if err := s.repo.AppendUpdate(ctx, &Update{
		ID:         NewUpdateID(),
		IncidentID: id,
		Status:     newStatus,
		Message:    message,
		Author:     author,
		CreatedAt:  now,
	}, newStatus); err != nil {
		return nil, err
	}

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("incident_id", id).
		Str("status", string(newStatus)).
		Msg("incident updated")

	s.notifier.Notify(ctx, Delta{
		Event:      EventUpdated,
		Incident:   inc,
		Message:    message,
		ServiceIDs: inc.ServiceIDs(),
	})
	return inc, nil
}

// ResolveInput is the operator input for resolving an incident.
type ResolveInput struct {
	Message    string
	Postmortem *string
	Author     string
}

// Resolve closes an incident, resets its service to OPERATIONAL and notifies
// subscribers. Resolving an already resolved incident changes nothing except
// storing a supplied postmortem.
func (s *Service) Resolve(ctx context.Context, id string, in ResolveInput) (*Incident, error) {
	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if in.Postmortem != nil {
		if err := s.repo.SetPostmortem(ctx, id, *in.Postmortem, now); err != nil {
			return nil, err
		}
	}

	message := strings.TrimSpace(in.Message)
	if message == "" {
		message = "This incident has been resolved."
	}

	resolved, err := s.resolveAndReset(ctx, inc, &Update{
		ID:         NewUpdateID(),
		IncidentID: id,
		Status:     status.Resolved,
		Message:    message,
		Author:     in.Author,
		CreatedAt:  now,
	}, now)
	if err != nil {
		return nil, err
	}

	inc, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return inc, nil
	}

	metrics.IncidentsResolvedTotal.Inc()

	s.logger.Info().
		Str("incident_id", id).
		Str("resolved_by", in.Author).
		Msg("incident resolved")

	s.notifier.Notify(ctx, Delta{
		Event:      EventResolved,
		Incident:   inc,
		Message:    message,
		ServiceIDs: inc.ServiceIDs(),
	})
	return inc, nil
}

// resolveAndReset closes the incident and moves its service back to
// OPERATIONAL while holding the service lock, so a health event for the
// same service lands either before the resolve or after the reset.
func (s *Service) resolveAndReset(ctx context.Context, inc *Incident, closing *Update, at time.Time) (bool, error) {
	if inc.ServiceID == nil {
		return s.repo.Resolve(ctx, inc.ID, closing, at)
	}

	unlock := s.locks.Lock(*inc.ServiceID)
	defer unlock()

	resolved, err := s.repo.Resolve(ctx, inc.ID, closing, at)
	if err != nil || !resolved {
		return resolved, err
	}
	return true, s.resetService(ctx, *inc.ServiceID, at)
}

func (s *Service) resetService(ctx context.Context, serviceID string, at time.Time) error {
	svc, err := s.services.Get(ctx, serviceID)
	if errors.Is(err, ledger.ErrServiceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if svc.Status == status.Operational {
		return nil
	}
	if err := s.services.SetStatus(ctx, serviceID, status.Operational, at); err != nil {
		return err
	}
	metrics.StatusTransitionsTotal.WithLabelValues(string(svc.Status), string(status.Operational)).Inc()
	return nil
}

// SetPostmortem stores or replaces the postmortem of an incident.
func (s *Service) SetPostmortem(ctx context.Context, id, text string) (*Incident, error) {
	if strings.TrimSpace(text) == "" {
		return nil, status.NewValidationError("postmortem", "REQUIRED", "postmortem is required")
	}
	if err := s.repo.SetPostmortem(ctx, id, text, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Get retrieves an incident by ID.
func (s *Service) Get(ctx context.Context, id string) (*Incident, error) {
	return s.repo.Get(ctx, id)
}

// ListUpdates returns an incident's timeline, oldest first.
func (s *Service) ListUpdates(ctx context.Context, id string) ([]*Update, error) {
	return s.repo.ListUpdates(ctx, id)
}

// ListActive returns every open incident.
func (s *Service) ListActive(ctx context.Context) ([]*Incident, error) {
	return s.repo.ListOpen(ctx)
}

// ListResolvedSince returns incidents resolved within the window.
func (s *Service) ListResolvedSince(ctx context.Context, since time.Time) ([]*Incident, error) {
	return s.repo.ListResolvedSince(ctx, since)
}
