package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/models"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/status"
)

// Job types carried in the job_type field.
const (
	JobHealthEvent  = "health_event"
	JobUptimeRollup = "uptime_rollup"
)

// Disposition says whether a message is acknowledged or redelivered.
type Disposition int

// Dispositions.
const (
	Ack Disposition = iota
	Nack
)

func (d Disposition) String() string {
	if d == Nack {
		return "nack"
	}
	return "ack"
}

// PubSubHandler consumes health events and job triggers from Pub/Sub.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *Jobs
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Processor        *processor.Processor
	RollupJob        *RollupJob
	Logger           zerolog.Logger
}

// JobMessage is the payload of a worker message.
type JobMessage struct {
	JobType string                     `json:"job_type"`
	Event   *models.HealthEventRequest `json:"event,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 50
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             NewJobs(cfg.Processor, cfg.RollupJob, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if h.jobs.Handle(logger.WithContext(ctx), msg.Data) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Jobs dispatches decoded worker messages. It is independent of the
// transport so the same logic serves Pub/Sub and tests.
type Jobs struct {
	processor *processor.Processor
	rollup    *RollupJob
	logger    zerolog.Logger
}

// NewJobs creates a job dispatcher. rollup may be nil when the worker does
// not run rollups.
func NewJobs(p *processor.Processor, rollup *RollupJob, logger zerolog.Logger) *Jobs {
	return &Jobs{processor: p, rollup: rollup, logger: logger}
}

// Handle runs the job in data and reports what to do with the message.
// Malformed messages and rejected events are dropped; storage failures and a
// paused ingest are redelivered.
func (j *Jobs) Handle(ctx context.Context, data []byte) Disposition {
	startTime := time.Now()
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &j.logger
	}

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn().Err(err).Msg("dropping unparseable message")
		return Ack
	}

	var err error
	switch msg.JobType {
	case JobHealthEvent:
		err = j.handleHealthEvent(ctx, msg.Event)
	case JobUptimeRollup:
		err = j.handleRollup(ctx)
	default:
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return Ack
	}

	switch {
	case err == nil:
	case status.IsValidation(err):
		logger.Warn().Err(err).Str("job_type", msg.JobType).Msg("dropping rejected event")
		return Ack
	case status.IsStorage(err), errors.Is(err, status.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Str("job_type", msg.JobType).Msg("job will be retried")
		return Nack
	default:
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("job failed")
		return Nack
	}

	logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return Ack
}

func (j *Jobs) handleHealthEvent(ctx context.Context, req *models.HealthEventRequest) error {
	if req == nil {
		return status.NewValidationError("event", "REQUIRED", "event is required")
	}

	source := req.Source
	if source == "" {
		source = "pubsub"
	}
	result, err := j.processor.ReportEvent(ctx, processor.Event{
		ServiceSlug:    req.ServiceSlug,
		Kind:           status.EventKind(req.EventKind),
		Message:        req.Message,
		Diagnostics:    req.DiagnosticLog,
		ResponseTimeMs: req.ResponseTimeMs,
		StatusCode:     req.StatusCode,
		Source:         source,
	})
	if err != nil {
		return err
	}

	if result.Changed() {
		j.logger.Info().
			Str("service_slug", req.ServiceSlug).
			Str("previous_status", string(result.PreviousStatus)).
			Str("new_status", string(result.NewStatus)).
			Msg("service status changed")
	}
	return nil
}

func (j *Jobs) handleRollup(ctx context.Context) error {
	if j.rollup == nil {
		j.logger.Debug().Msg("rollup not configured, ignoring")
		return nil
	}

	result, err := j.rollup.Run(ctx)
	if err != nil {
		return err
	}
	if result.Total > 0 && result.Failed == result.Total {
		return fmt.Errorf("uptime rollup failed for all %d services", result.Total)
	}
	return nil
}
