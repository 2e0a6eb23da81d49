package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/models"
	"github.com/chainstatus/statuspage/internal/api/response"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/status"
	"github.com/chainstatus/statuspage/internal/subscriber"
)

const subscribeAcceptedMessage = "If the address is not yet subscribed, a verification link has been sent."

// SubscriptionsHandler handles email subscriptions.
type SubscriptionsHandler struct {
	registry *subscriber.Registry
	ledger   *ledger.Ledger
	logger   zerolog.Logger
}

// NewSubscriptionsHandler creates a new SubscriptionsHandler.
func NewSubscriptionsHandler(registry *subscriber.Registry, l *ledger.Ledger, logger zerolog.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{registry: registry, ledger: l, logger: logger}
}

// Subscribe handles POST /v1/subscriptions. The response does not reveal
// whether the address was already subscribed.
func (h *SubscriptionsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req models.SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	serviceIDs, err := h.resolveSlugs(r.Context(), req.NotifyServices)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	sub, err := h.registry.Subscribe(r.Context(), req.Email, subscriber.Filters{
		NotifyAll:      req.NotifyAll,
		NotifyMajor:    req.NotifyMajor,
		NotifyServices: serviceIDs,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Accepted(w, r, "", models.SubscriptionAccepted{
		Email:   sub.Email,
		Message: subscribeAcceptedMessage,
	})
}

// Verify handles POST /v1/subscriptions/verify.
func (h *SubscriptionsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.withToken(w, r, h.registry.Verify)
}

// Unsubscribe handles POST /v1/subscriptions/unsubscribe.
func (h *SubscriptionsHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.withToken(w, r, h.registry.Unsubscribe)
}

func (h *SubscriptionsHandler) withToken(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*subscriber.Subscriber, error)) {
	var req models.SubscriptionTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := fn(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	slugs, err := h.slugsByID(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toSubscription(sub, slugs))
}

// resolveSlugs maps public service slugs onto service IDs.
func (h *SubscriptionsHandler) resolveSlugs(ctx context.Context, slugs []string) ([]string, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		svc, err := h.ledger.GetBySlug(ctx, slug)
		switch {
		case errors.Is(err, ledger.ErrServiceNotFound) || (err == nil && !svc.Public):
			return nil, status.NewValidationError("notifyServices", "NOT_FOUND", "unknown service "+slug)
		case err != nil:
			return nil, err
		}
		ids = append(ids, svc.ID)
	}
	return ids, nil
}

func (h *SubscriptionsHandler) slugsByID(ctx context.Context) (map[string]string, error) {
	services, err := h.ledger.List(ctx, false)
	if err != nil {
		return nil, err
	}
	slugs := make(map[string]string, len(services))
	for _, svc := range services {
		slugs[svc.ID] = svc.Slug
	}
	return slugs, nil
}
