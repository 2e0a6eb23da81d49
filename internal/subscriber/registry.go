package subscriber

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/status"
)

const maxEmailLength = 254

// TokenKind tells a TokenSender which link to build.
type TokenKind string

// Token kinds.
const (
	TokenVerify      TokenKind = "verify"
	TokenUnsubscribe TokenKind = "unsubscribe"
)

// TokenSender delivers subscription tokens out of band, usually by email.
type TokenSender interface {
	SendToken(ctx context.Context, email string, kind TokenKind, token string) error
}

// Config holds configuration for the Registry.
type Config struct {
	Repository Repository
	Sender     TokenSender
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Registry handles the subscribe, verify and unsubscribe flow.
type Registry struct {
	repo   Repository
	sender TokenSender
	logger zerolog.Logger
	now    func() time.Time
}

// NewRegistry creates a new Registry.
func NewRegistry(cfg Config) *Registry {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		repo:   cfg.Repository,
		sender: cfg.Sender,
		logger: cfg.Logger,
		now:    now,
	}
}

// NormalizeEmail lower-cases and validates an email address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", status.NewValidationError("email", "REQUIRED", "email is required")
	}
	if len(email) > maxEmailLength {
		return "", status.NewValidationError("email", "TOO_LONG", "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", status.NewValidationError("email", "INVALID", "email is not a valid address")
	}
	return email, nil
}

// Subscribe registers an email with the given filters and sends a
// verification token. No filter at all means every incident. Subscribing an
// address that is already active changes nothing and sends nothing.
func (r *Registry) Subscribe(ctx context.Context, rawEmail string, filters Filters) (*Subscriber, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	filters.NotifyServices = dedupe(filters.NotifyServices)
	if filters.Empty() {
		filters.NotifyAll = true
	}

	now := r.now().UTC()

	existing, err := r.repo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrSubscriberNotFound):
		sub, err := r.create(ctx, email, filters, now)
		if !errors.Is(err, ErrEmailTaken) {
			return sub, err
		}
		// Lost a race with a concurrent subscribe; continue with the winner.
		existing, err = r.repo.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if existing.Active() {
		return existing, nil
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	existing.Verified = false
	existing.Unsubscribed = false
	existing.NotifyAll = filters.NotifyAll
	existing.NotifyMajor = filters.NotifyMajor
	existing.NotifyServices = filters.NotifyServices
	existing.VerifyToken = token
	existing.UpdatedAt = now
	if err := r.repo.Update(ctx, existing); err != nil {
		return nil, err
	}

	r.send(ctx, existing.Email, TokenVerify, token)
	return existing, nil
}

func (r *Registry) create(ctx context.Context, email string, filters Filters, now time.Time) (*Subscriber, error) {
	verifyToken, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	manageToken, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		ID:             NewSubscriberID(),
		Email:          email,
		NotifyAll:      filters.NotifyAll,
		NotifyMajor:    filters.NotifyMajor,
		NotifyServices: filters.NotifyServices,
		VerifyToken:    verifyToken,
		ManageToken:    manageToken,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	r.logger.Info().Str("subscriber_id", sub.ID).Msg("subscriber registered")
	r.send(ctx, email, TokenVerify, verifyToken)
	return sub, nil
}

// Verify activates the subscription that owns token. Verifying twice is
// harmless.
func (r *Registry) Verify(ctx context.Context, token string) (*Subscriber, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	sub, err := r.repo.GetByVerifyToken(ctx, token)
	if errors.Is(err, ErrSubscriberNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if sub.Verified {
		return sub, nil
	}

	now := r.now().UTC()
	sub.Verified = true
	sub.VerifiedAt = &now
	sub.UpdatedAt = now
	if err := r.repo.Update(ctx, sub); err != nil {
		return nil, err
	}

	r.logger.Info().Str("subscriber_id", sub.ID).Msg("subscriber verified")
	r.send(ctx, sub.Email, TokenUnsubscribe, sub.ManageToken)
	return sub, nil
}

// Unsubscribe deactivates the subscription that owns the manage token.
func (r *Registry) Unsubscribe(ctx context.Context, token string) (*Subscriber, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	sub, err := r.repo.GetByManageToken(ctx, token)
	if errors.Is(err, ErrSubscriberNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if sub.Unsubscribed {
		return sub, nil
	}

	sub.Unsubscribed = true
	sub.UpdatedAt = r.now().UTC()
	if err := r.repo.Update(ctx, sub); err != nil {
		return nil, err
	}

	r.logger.Info().Str("subscriber_id", sub.ID).Msg("subscriber unsubscribed")
	return sub, nil
}

// ListActive returns every subscriber that currently receives notifications.
func (r *Registry) ListActive(ctx context.Context) ([]*Subscriber, error) {
	return r.repo.ListActive(ctx)
}

// send hands a token to the sender. Delivery failures are logged only.
func (r *Registry) send(ctx context.Context, email string, kind TokenKind, token string) {
	if r.sender == nil {
		return
	}
	if err := r.sender.SendToken(ctx, email, kind, token); err != nil {
		r.logger.Warn().Err(err).Str("token_kind", string(kind)).Msg("failed to send subscription token")
	}
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
