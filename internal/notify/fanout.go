package notify

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/metrics"
	"github.com/chainstatus/statuspage/internal/subscriber"
	"github.com/chainstatus/statuspage/internal/telemetry"
)

// SubscriberSource lists the subscribers that currently receive notifications.
type SubscriberSource interface {
	ListActive(ctx context.Context) ([]*subscriber.Subscriber, error)
}

// PauseSwitch reports whether notifications are paused by an operator.
type PauseSwitch interface {
	NotificationsPaused(ctx context.Context) bool
}

// FanoutConfig holds configuration for the Fanout.
type FanoutConfig struct {
	Subscribers SubscriberSource
	Dispatcher  Dispatcher
	Flags       PauseSwitch
	Logger      zerolog.Logger
}

// Fanout turns one incident change into one request per eligible subscriber.
type Fanout struct {
	subscribers SubscriberSource
	dispatcher  Dispatcher
	flags       PauseSwitch
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewFanout creates a new Fanout.
func NewFanout(cfg FanoutConfig) *Fanout {
	return &Fanout{
		subscribers: cfg.Subscribers,
		dispatcher:  cfg.Dispatcher,
		flags:       cfg.Flags,
		logger:      cfg.Logger,
		tracer:      telemetry.Tracer("statuspage/notify"),
	}
}

// Notify sends the delta to every eligible subscriber once and returns how
// many requests were dispatched successfully. Dispatch failures are logged
// and counted but not returned; only a failure to list subscribers is.
func (f *Fanout) Notify(ctx context.Context, delta incident.Delta, eligibleServiceIDs []string) (int, error) {
	ctx, span := f.tracer.Start(ctx, "notify.fanout",
		trace.WithAttributes(
			attribute.String("incident.event", string(delta.Event)),
		),
	)
	defer span.End()

	if delta.Incident == nil {
		return 0, nil
	}
	span.SetAttributes(attribute.String("incident.id", delta.Incident.ID))

	if f.flags != nil && f.flags.NotificationsPaused(ctx) {
		metrics.NotificationsTotal.WithLabelValues(metrics.ResultPaused).Inc()
		f.logger.Info().
			Str("incident_id", delta.Incident.ID).
			Msg("notifications paused, fanout skipped")
		return 0, nil
	}

	subs, err := f.subscribers.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	seen := make(map[string]struct{}, len(subs))
	sent := 0
	for _, sub := range subs {
		if _, dup := seen[sub.ID]; dup {
			continue
		}
		if !subscriber.Eligible(sub, delta.Incident.Severity, eligibleServiceIDs) {
			continue
		}
		seen[sub.ID] = struct{}{}

		req := Request{
			SubscriberEmail: sub.Email,
			IncidentID:      delta.Incident.ID,
			Title:           delta.Incident.Title,
			Severity:        delta.Incident.Severity,
			Message:         delta.Message,
			Event:           delta.Event,
		}
		if err := f.dispatcher.Dispatch(ctx, req); err != nil {
			metrics.NotificationsTotal.WithLabelValues(metrics.ResultFailed).Inc()
			f.logger.Warn().
				Err(err).
				Str("incident_id", delta.Incident.ID).
				Str("subscriber_id", sub.ID).
				Msg("failed to dispatch notification")
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(metrics.ResultSent).Inc()
		sent++
	}

	span.SetAttributes(attribute.Int("notify.sent", sent))
	f.logger.Info().
		Str("incident_id", delta.Incident.ID).
		Str("event", string(delta.Event)).
		Int("notified", sent).
		Msg("incident fanout complete")

	return sent, nil
}
