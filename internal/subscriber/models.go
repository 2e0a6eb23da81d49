// Package subscriber manages email subscriptions to incident notifications.
package subscriber

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenLength is the length in bytes of verification and manage tokens.
const TokenLength = 32

// Predefined subscriber errors.
var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrEmailTaken         = errors.New("email already subscribed")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Subscriber is an email address that receives incident notifications.
type Subscriber struct {
	ID           string
	Email        string
	Verified     bool
	Unsubscribed bool

	// Filters. A subscriber hears about an incident when any of them match.
	NotifyAll      bool
	NotifyMajor    bool
	NotifyServices []string

	// VerifyToken activates the subscription; ManageToken unsubscribes.
	VerifyToken string
	ManageToken string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	VerifiedAt *time.Time
}

// Active reports whether the subscriber should receive notifications at all.
func (s *Subscriber) Active() bool {
	return s.Verified && !s.Unsubscribed
}

// Filters selects which incidents a subscriber hears about.
type Filters struct {
	NotifyAll      bool
	NotifyMajor    bool
	NotifyServices []string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return !f.NotifyAll && !f.NotifyMajor && len(f.NotifyServices) == 0
}

// NewSubscriberID returns a fresh subscriber ID.
func NewSubscriberID() string {
	return "sub_" + uuid.New().String()[:22]
}

// GenerateToken creates a new opaque URL-safe token.
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating subscriber token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func copySubscriber(s *Subscriber) *Subscriber {
	if s == nil {
		return nil
	}
	c := *s
	if s.NotifyServices != nil {
		c.NotifyServices = append([]string(nil), s.NotifyServices...)
	}
	if s.VerifiedAt != nil {
		v := *s.VerifiedAt
		c.VerifiedAt = &v
	}
	return &c
}
