package notify

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/resilience"
	"github.com/chainstatus/statuspage/internal/subscriber"
)

// TokenDispatcher delivers both notifications and subscription tokens.
type TokenDispatcher interface {
	Dispatcher
	subscriber.TokenSender
}

// TransportConfig selects the delivery transport. Pub/Sub wins over the
// webhook; with neither configured requests are only logged.
type TransportConfig struct {
	PubSubProjectID string
	PubSubTopic     string

	WebhookURL    string
	WebhookSecret string

	// Registry tracks the webhook client's breaker. Optional.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Transport is the configured dispatcher and its teardown.
type Transport struct {
	Dispatcher TokenDispatcher
	Name       string

	close func()
}

// Close releases the transport's clients and flushes pending publishes.
func (t *Transport) Close() {
	if t.close != nil {
		t.close()
	}
}

// NewTransport builds the dispatcher described by cfg.
func NewTransport(ctx context.Context, cfg TransportConfig) (*Transport, error) {
	if cfg.PubSubProjectID != "" && cfg.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return nil, fmt.Errorf("creating pubsub client: %w", err)
		}
		d := NewPubSubDispatcher(client, cfg.PubSubTopic)
		return &Transport{
			Dispatcher: d,
			Name:       "pubsub",
			close: func() {
				d.Stop()
				_ = client.Close()
			},
		}, nil
	}

	if cfg.WebhookURL != "" {
		clientCfg := resilience.DefaultConfig("notify-webhook")
		clientCfg.Registry = cfg.Registry
		return &Transport{
			Dispatcher: NewWebhookDispatcher(WebhookConfig{
				URL:    cfg.WebhookURL,
				Secret: cfg.WebhookSecret,
				Client: resilience.NewClient(clientCfg),
			}),
			Name: "webhook",
		}, nil
	}

	return &Transport{Dispatcher: NewLogDispatcher(cfg.Logger), Name: "log"}, nil
}
