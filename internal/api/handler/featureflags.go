package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/middleware"
	"github.com/chainstatus/statuspage/internal/api/response"
	"github.com/chainstatus/statuspage/internal/featureflags"
	"github.com/chainstatus/statuspage/internal/overview"
	"github.com/chainstatus/statuspage/internal/status"
)

const maxReasonLength = 500

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service  *featureflags.Service
	overview *overview.Service
	logger   zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler. Flag changes drop
// the cached status page since the banner and incident window live there.
func NewFeatureFlagsHandler(service *featureflags.Service, ov *overview.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, overview: ov, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags. Only well-known
// flags with values of the right type are accepted; nothing is written if
// any update is rejected.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verr := &status.ValidationError{}
	if len(req.Updates) == 0 {
		verr.Add("updates", "REQUIRED", "at least one update is required")
	}
	if len(req.Reason) > maxReasonLength {
		verr.Add("reason", "TOO_LONG", "reason must be at most 500 characters")
	}
	actor := middleware.GetSubject(r.Context())
	flags := make([]*featureflags.Flag, 0, len(req.Updates))
	for i, u := range req.Updates {
		switch {
		case !featureflags.Known(u.Key):
			verr.Add(fmt.Sprintf("updates[%d].key", i), "UNKNOWN", "unknown feature flag "+u.Key)
		case !featureflags.ValidValue(u.Key, u.Value):
			verr.Add(fmt.Sprintf("updates[%d].value", i), "INVALID", "invalid value for "+u.Key)
		default:
			flags = append(flags, &featureflags.Flag{Key: u.Key, Value: u.Value, UpdatedBy: actor})
		}
	}
	if err := verr.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.overview.Invalidate(r.Context())

	for _, f := range flags {
		h.logger.Info().
			Str("flag", f.Key).
			Interface("value", f.Value).
			Str("actor", actor).
			Str("reason", req.Reason).
			Msg("feature flag updated")
	}
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{key}: the stored
// value is removed and the default applies again.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !featureflags.Known(key) {
		writeError(w, r, h.logger, status.NewValidationError("key", "UNKNOWN", "unknown feature flag "+key))
		return
	}
	if err := h.service.ResetFlag(r.Context(), key); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.overview.Invalidate(r.Context())

	h.logger.Info().
		Str("flag", key).
		Str("actor", middleware.GetSubject(r.Context())).
		Msg("feature flag reset to default")
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	h.overview.Invalidate(r.Context())
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) list(r *http.Request) featureflags.FlagList {
	all := h.service.GetAllFlags(r.Context())
	list := featureflags.FlagList{Items: make([]featureflags.Flag, 0, len(all))}
	for _, f := range all {
		list.Items = append(list.Items, *f)
	}
	sort.Slice(list.Items, func(i, j int) bool { return list.Items[i].Key < list.Items[j].Key })
	return list
}
