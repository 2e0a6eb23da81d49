package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/resilience"
	"github.com/chainstatus/statuspage/internal/subscriber"
)

// LogDispatcher writes requests to the log instead of delivering them.
// Used in development and when no delivery endpoint is configured.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher creates a new LogDispatcher.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the request.
func (d *LogDispatcher) Dispatch(_ context.Context, req Request) error {
	d.logger.Info().
		Str("incident_id", req.IncidentID).
		Str("event", string(req.Event)).
		Str("severity", string(req.Severity)).
		Msg("notification")
	return nil
}

// SendToken logs that a token would have been sent.
func (d *LogDispatcher) SendToken(_ context.Context, _ string, kind subscriber.TokenKind, _ string) error {
	d.logger.Info().Str("token_kind", string(kind)).Msg("subscription token")
	return nil
}

// WebhookConfig holds configuration for the WebhookDispatcher.
type WebhookConfig struct {
	URL    string
	Secret string

	// Client defaults to a resilience client named "notify-webhook" that is
	// not tracked by any registry.
	Client *resilience.Client
}

// WebhookDispatcher POSTs envelopes to the mail-sending service.
type WebhookDispatcher struct {
	url    string
	secret string
	client *resilience.Client
}

// NewWebhookDispatcher creates a new WebhookDispatcher.
func NewWebhookDispatcher(cfg WebhookConfig) *WebhookDispatcher {
	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.DefaultConfig("notify-webhook"))
	}
	return &WebhookDispatcher{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: client,
	}
}

// Dispatch delivers a notification request.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, req Request) error {
	return d.post(ctx, Envelope{Type: TypeNotification, Notification: &req, SentAt: time.Now().UTC()})
}

// SendToken delivers a subscription token.
func (d *WebhookDispatcher) SendToken(ctx context.Context, email string, kind subscriber.TokenKind, token string) error {
	return d.post(ctx, Envelope{
		Type:   TypeSubscriptionToken,
		Token:  &TokenRequest{Email: email, Kind: kind, Token: token},
		SentAt: time.Now().UTC(),
	})
}

func (d *WebhookDispatcher) post(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.secret)
	}

	resp, err := d.client.DoWithContext(ctx, httpReq)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", d.client.Name(), resp.StatusCode)
	}
	return nil
}

// PubSubDispatcher publishes envelopes to a Pub/Sub topic consumed by the
// mail-sending service.
type PubSubDispatcher struct {
	publisher *pubsub.Publisher
}

// NewPubSubDispatcher creates a dispatcher publishing to topic.
func NewPubSubDispatcher(client *pubsub.Client, topic string) *PubSubDispatcher {
	return &PubSubDispatcher{publisher: client.Publisher(topic)}
}

// Dispatch publishes a notification request.
func (d *PubSubDispatcher) Dispatch(ctx context.Context, req Request) error {
	return d.publish(ctx, Envelope{Type: TypeNotification, Notification: &req, SentAt: time.Now().UTC()})
}

// SendToken publishes a subscription token.
func (d *PubSubDispatcher) SendToken(ctx context.Context, email string, kind subscriber.TokenKind, token string) error {
	return d.publish(ctx, Envelope{
		Type:   TypeSubscriptionToken,
		Token:  &TokenRequest{Email: email, Kind: kind, Token: token},
		SentAt: time.Now().UTC(),
	})
}

// Stop flushes pending messages.
func (d *PubSubDispatcher) Stop() {
	d.publisher.Stop()
}

func (d *PubSubDispatcher) publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	result := d.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": env.Type},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

var (
	_ Dispatcher             = (*LogDispatcher)(nil)
	_ Dispatcher             = (*WebhookDispatcher)(nil)
	_ Dispatcher             = (*PubSubDispatcher)(nil)
	_ subscriber.TokenSender = (*LogDispatcher)(nil)
	_ subscriber.TokenSender = (*WebhookDispatcher)(nil)
	_ subscriber.TokenSender = (*PubSubDispatcher)(nil)
)
