// Package notify selects the subscribers affected by an incident change and
// hands one notification request per subscriber to a dispatcher.
package notify

import (
	"context"
	"time"

	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/status"
	"github.com/chainstatus/statuspage/internal/subscriber"
)

// Request is one notification for one subscriber.
type Request struct {
	SubscriberEmail string          `json:"subscriberEmail"`
	IncidentID      string          `json:"incidentId"`
	Title           string          `json:"title"`
	Severity        status.Severity `json:"severity"`
	Message         string          `json:"message"`
	Event           incident.Event  `json:"event"`
}

// TokenRequest carries a subscription token to its owner.
type TokenRequest struct {
	Email string               `json:"email"`
	Kind  subscriber.TokenKind `json:"kind"`
	Token string               `json:"token"`
}

// Dispatcher delivers notification requests to the mail-sending side.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// Message types on the wire.
const (
	TypeNotification      = "notification"
	TypeSubscriptionToken = "subscription_token"
)

// Envelope is the payload published by the webhook and Pub/Sub dispatchers.
type Envelope struct {
	Type         string        `json:"type"`
	Notification *Request      `json:"notification,omitempty"`
	Token        *TokenRequest `json:"token,omitempty"`
	SentAt       time.Time     `json:"sentAt"`
}
