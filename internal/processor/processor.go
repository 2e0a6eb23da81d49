// Package processor turns health events reported by monitors into service
// status changes, check history and automatic incidents.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/metrics"
	"github.com/chainstatus/statuspage/internal/status"
	"github.com/chainstatus/statuspage/internal/telemetry"
	"github.com/chainstatus/statuspage/internal/uptime"
)

const (
	maxMessageLength = 5000
	maxSourceLength  = 100

	// Author recorded on incidents and updates written by the processor.
	systemAuthor = "system"

	recoveredMessage = "Service recovered."
)

// Event is a health event reported by a monitor.
type Event struct {
	ServiceSlug    string
	Kind           status.EventKind
	Message        string
	Diagnostics    string
	ResponseTimeMs *int
	StatusCode     *int
	Source         string
}

// Result describes what a health event changed.
type Result struct {
	ServiceID        string
	PreviousStatus   status.Level
	NewStatus        status.Level
	IncidentCreated  bool
	IncidentResolved bool

	// IncidentID is set whenever the event opened, resolved or updated an
	// incident.
	IncidentID string
}

// Changed reports whether the service status changed.
func (r *Result) Changed() bool {
	return r.PreviousStatus != r.NewStatus
}

// StatusChange is published after a service status changed.
type StatusChange struct {
	ServiceID string
	Slug      string
	Previous  status.Level
	Current   status.Level
	At        time.Time
}

// StatusObserver is told about status changes after they are stored.
// Implementations must not block the caller.
type StatusObserver interface {
	StatusChanged(ctx context.Context, change StatusChange)
}

// IngestSwitch reports whether an operator paused health event ingestion.
type IngestSwitch interface {
	IngestPaused(ctx context.Context) bool
}

// Config holds configuration for the Processor.
type Config struct {
	Services  ledger.Repository
	Uptime    *uptime.Aggregator
	Incidents incident.Repository

	// Notifier receives created and resolved incidents. Optional.
	Notifier incident.Notifier

	// Observers receive status changes. Optional.
	Observers []StatusObserver

	// Flags can pause ingestion. Optional.
	Flags IngestSwitch

	// Locks serializes status writes per service. Share it with the incident
	// Service and the Ledger; a private set is used when nil.
	Locks *ledger.Locks

	Logger zerolog.Logger
	Now    func() time.Time
}

// Processor applies health events. Events for the same service are applied
// one at a time; events for different services run in parallel.
type Processor struct {
	services  ledger.Repository
	uptime    *uptime.Aggregator
	incidents incident.Repository
	notifier  incident.Notifier
	observers []StatusObserver
	flags     IngestSwitch
	logger    zerolog.Logger
	now       func() time.Time
	tracer    trace.Tracer
	locks     *ledger.Locks
}

// New creates a new Processor.
func New(cfg Config) *Processor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	locks := cfg.Locks
	if locks == nil {
		locks = ledger.NewLocks()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = incident.Notifiers{}
	}
	return &Processor{
		services:  cfg.Services,
		uptime:    cfg.Uptime,
		incidents: cfg.Incidents,
		notifier:  notifier,
		observers: cfg.Observers,
		flags:     cfg.Flags,
		locks:     locks,
		logger:    cfg.Logger,
		now:       now,
		tracer:    telemetry.Tracer("statuspage/processor"),
	}
}

// ReportEvent records a health event: it appends a check, folds it into the
// hour bucket, moves the service to the level the event implies and opens or
// resolves the service's incident when the status crosses OPERATIONAL.
//
// Validation failures return a *status.ValidationError and record nothing.
// Storage failures are returned as-is; the event is not considered processed
// and the monitor is expected to report it again. Notification failures
// never surface here.
func (p *Processor) ReportEvent(ctx context.Context, ev Event) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.EventProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	ctx, span := p.tracer.Start(ctx, "processor.report_event",
		trace.WithAttributes(
			attribute.String("service.slug", ev.ServiceSlug),
			attribute.String("event.kind", string(ev.Kind)),
		),
	)
	defer span.End()

	result, err := p.reportEvent(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("status.previous", string(result.PreviousStatus)),
		attribute.String("status.new", string(result.NewStatus)),
		attribute.Bool("incident.created", result.IncidentCreated),
		attribute.Bool("incident.resolved", result.IncidentResolved),
	)
	return result, nil
}

func (p *Processor) reportEvent(ctx context.Context, ev Event) (*Result, error) {
	target, err := validate(ev)
	if err != nil {
		return nil, err
	}

	if p.flags != nil && p.flags.IngestPaused(ctx) {
		return nil, status.ErrUnavailable
	}

	svc, err := p.services.GetBySlug(ctx, ev.ServiceSlug)
	if errors.Is(err, ledger.ErrServiceNotFound) {
		return nil, status.NewValidationError("serviceSlug", "NOT_FOUND", "unknown service")
	}
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(svc.ID)
	defer unlock()

	// Re-read under the lock so the transition is computed against the
	// status left by the previous event for this service.
	svc, err = p.services.Get(ctx, svc.ID)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	metrics.HealthEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	check := &uptime.CheckResult{
		ServiceID:      svc.ID,
		Status:         target,
		ResponseTimeMs: ev.ResponseTimeMs,
		StatusCode:     ev.StatusCode,
		Source:         ev.Source,
		CheckedAt:      now,
	}
	if target != status.Operational {
		if msg := firstNonEmpty(ev.Diagnostics, ev.Message); msg != "" {
			check.Error = &msg
		}
	}
	if _, err := p.uptime.Record(ctx, check); err != nil {
		return nil, err
	}

	result := &Result{
		ServiceID:      svc.ID,
		PreviousStatus: svc.Status,
		NewStatus:      target,
	}

	var deltas []incident.Delta
	if target != svc.Status {
		switch {
		case svc.Status == status.Operational && ev.Kind != status.EventRecovery:
			delta, err := p.openIncident(ctx, svc, ev, target, now, result)
			if err != nil {
				return nil, err
			}
			if delta != nil {
				deltas = append(deltas, *delta)
			}
		case target == status.Operational && ev.Kind == status.EventRecovery:
			delta, err := p.resolveIncident(ctx, svc, ev, now, result)
			if err != nil {
				return nil, err
			}
			if delta != nil {
				deltas = append(deltas, *delta)
			}
		}

		if err := p.services.SetStatus(ctx, svc.ID, target, now); err != nil {
			return nil, err
		}
		metrics.StatusTransitionsTotal.WithLabelValues(string(svc.Status), string(target)).Inc()
	}

	if err := p.services.RecordCheck(ctx, svc.ID, now, ev.ResponseTimeMs); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("service_slug", svc.Slug).
		Str("event_kind", string(ev.Kind)).
		Str("previous_status", string(result.PreviousStatus)).
		Str("new_status", string(result.NewStatus)).
		Bool("incident_created", result.IncidentCreated).
		Bool("incident_resolved", result.IncidentResolved).
		Str("incident_id", result.IncidentID).
		Msg("health event processed")

	if result.Changed() {
		change := StatusChange{
			ServiceID: svc.ID,
			Slug:      svc.Slug,
			Previous:  result.PreviousStatus,
			Current:   result.NewStatus,
			At:        now,
		}
		for _, o := range p.observers {
			o.StatusChanged(ctx, change)
		}
	}
	for _, d := range deltas {
		p.notifier.Notify(ctx, d)
	}

	return result, nil
}

// openIncident opens the automatic incident for a service leaving
// OPERATIONAL. If one is already open the event is appended to it instead.
func (p *Processor) openIncident(ctx context.Context, svc *ledger.Service, ev Event, target status.Level, now time.Time, result *Result) (*incident.Delta, error) {
	message := firstNonEmpty(ev.Diagnostics, ev.Message, defaultMessage(target))
	serviceID := svc.ID

	inc := &incident.Incident{
		ID:            incident.NewIncidentID(),
		ServiceID:     &serviceID,
		Title:         fmt.Sprintf("%s: %s", svc.Name, describe(target)),
		Description:   firstNonEmpty(ev.Message, message),
		Severity:      ev.Kind.Severity(),
		Status:        status.Investigating,
		ImpactStartAt: now,
		CreatedBy:     systemAuthor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := p.incidents.CreateOpen(ctx, inc, &incident.Update{
		ID:         incident.NewUpdateID(),
		IncidentID: inc.ID,
		Status:     status.Investigating,
		Message:    message,
		Author:     systemAuthor,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	result.IncidentID = created.Incident.ID

	if created.Outcome == incident.AlreadyOpen {
		existing := created.Incident
		err := p.incidents.AppendUpdate(ctx, &incident.Update{
			ID:         incident.NewUpdateID(),
			IncidentID: existing.ID,
			Status:     existing.Status,
			Message:    message,
			Author:     systemAuthor,
			CreatedAt:  now,
		}, existing.Status)
		// Resolved between CreateOpen and here; the next event will open a new one.
		if errors.Is(err, incident.ErrIncidentResolved) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		p.logger.Info().
			Str("service_slug", svc.Slug).
			Str("incident_id", existing.ID).
			Msg("service already has an open incident, event appended")
		return nil, nil
	}

	result.IncidentCreated = true
	metrics.IncidentsOpenedTotal.Inc()
	return &incident.Delta{
		Event:      incident.EventCreated,
		Incident:   created.Incident,
		Message:    message,
		ServiceIDs: created.Incident.ServiceIDs(),
	}, nil
}

// resolveIncident closes the open incident of a recovering service. A
// service without an open incident just changes status.
func (p *Processor) resolveIncident(ctx context.Context, svc *ledger.Service, ev Event, now time.Time, result *Result) (*incident.Delta, error) {
	open, err := p.incidents.GetOpenForService(ctx, svc.ID)
	if errors.Is(err, incident.ErrIncidentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	message := firstNonEmpty(ev.Message, recoveredMessage)
	resolved, err := p.incidents.Resolve(ctx, open.ID, &incident.Update{
		ID:         incident.NewUpdateID(),
		IncidentID: open.ID,
		Status:     status.Resolved,
		Message:    message,
		Author:     systemAuthor,
		CreatedAt:  now,
	}, now)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, nil
	}

	result.IncidentResolved = true
	result.IncidentID = open.ID
	metrics.IncidentsResolvedTotal.Inc()

	inc, err := p.incidents.Get(ctx, open.ID)
	if err != nil {
		return nil, err
	}
	return &incident.Delta{
		Event:      incident.EventResolved,
		Incident:   inc,
		Message:    message,
		ServiceIDs: inc.ServiceIDs(),
	}, nil
}

func validate(ev Event) (status.Level, error) {
	verr := &status.ValidationError{}

	if strings.TrimSpace(ev.ServiceSlug) == "" {
		verr.Add("serviceSlug", "REQUIRED", "serviceSlug is required")
	}

	target, ok := ev.Kind.Level()
	if !ok {
		verr.Add("eventKind", "INVALID", "eventKind must be one of outage, partial, degraded, maintenance, recovery")
	}

	if len(ev.Message) > maxMessageLength {
		verr.Add("message", "TOO_LONG", "message must be at most 5000 characters")
	}
	if len(ev.Diagnostics) > maxMessageLength {
		verr.Add("diagnosticLog", "TOO_LONG", "diagnosticLog must be at most 5000 characters")
	}
	if len(ev.Source) > maxSourceLength {
		verr.Add("source", "TOO_LONG", "source must be at most 100 characters")
	}
	if ev.ResponseTimeMs != nil && *ev.ResponseTimeMs < 0 {
		verr.Add("responseTimeMs", "INVALID", "responseTimeMs must not be negative")
	}
	if ev.StatusCode != nil && (*ev.StatusCode < 100 || *ev.StatusCode > 599) {
		verr.Add("statusCode", "INVALID", "statusCode must be a valid HTTP status")
	}

	if err := verr.Err(); err != nil {
		return "", err
	}
	return target, nil
}

func describe(level status.Level) string {
	switch level {
	case status.MajorOutage:
		return "major outage"
	case status.PartialOutage:
		return "partial outage"
	case status.Degraded:
		return "degraded performance"
	case status.Maintenance:
		return "under maintenance"
	case status.Operational:
		return "operational"
	default:
		return strings.ToLower(string(level))
	}
}

func defaultMessage(level status.Level) string {
	return "Monitoring reported " + describe(level) + "."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
