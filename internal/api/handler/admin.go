package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/middleware"
	"github.com/chainstatus/statuspage/internal/api/models"
	"github.com/chainstatus/statuspage/internal/api/response"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/overview"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/status"
)

// AdminHandler handles operator endpoints for incidents and services.
type AdminHandler struct {
	incidents *incident.Service
	ledger    *ledger.Ledger
	overview  *overview.Service
	observers []processor.StatusObserver
	logger    zerolog.Logger
}

// AdminConfig holds the dependencies of AdminHandler.
type AdminConfig struct {
	Incidents *incident.Service
	Ledger    *ledger.Ledger
	Overview  *overview.Service

	// Observers hear about manual status overrides.
	Observers []processor.StatusObserver

	Logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	return &AdminHandler{
		incidents: cfg.Incidents,
		ledger:    cfg.Ledger,
		overview:  cfg.Overview,
		observers: cfg.Observers,
		logger:    cfg.Logger,
	}
}

// CreateIncident handles POST /v1/admin/incidents. When the service already
// has an open incident the request is recorded as an update on it and the
// existing incident is returned with 200.
func (h *AdminHandler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req models.CreateIncidentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := incident.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    status.Severity(req.Severity),
		Status:      status.IncidentStatus(req.Status),
		Message:     req.Message,
		Author:      middleware.GetSubject(r.Context()),
	}
	if req.ImpactStartAt != nil {
		t := req.ImpactStartAt.Time()
		in.ImpactStartAt = &t
	}
	if req.ServiceSlug != nil {
		svc, err := h.ledger.GetBySlug(r.Context(), *req.ServiceSlug)
		if err != nil {
			if errors.Is(err, ledger.ErrServiceNotFound) {
				err = status.NewValidationError("serviceSlug", "NOT_FOUND", "service does not exist")
			}
			writeError(w, r, h.logger, err)
			return
		}
		in.ServiceID = &svc.ID
	}

	result, err := h.incidents.CreateIncident(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	detail, ok := h.detail(w, r, result.Incident)
	if !ok {
		return
	}
	if result.Outcome == incident.AlreadyOpen {
		response.JSON(w, r, http.StatusOK, detail)
		return
	}
	response.Created(w, r, "/v1/incidents/"+result.Incident.ID, detail)
}

// AddIncidentUpdate handles POST /v1/admin/incidents/{incidentId}/updates.
func (h *AdminHandler) AddIncidentUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.AddIncidentUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inc, err := h.incidents.AddUpdate(r.Context(), chi.URLParam(r, "incidentId"),
		status.IncidentStatus(req.Status), req.Message, middleware.GetSubject(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if detail, ok := h.detail(w, r, inc); ok {
		response.JSON(w, r, http.StatusOK, detail)
	}
}

// ResolveIncident handles POST /v1/admin/incidents/{incidentId}/resolve.
func (h *AdminHandler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveIncidentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inc, err := h.incidents.Resolve(r.Context(), chi.URLParam(r, "incidentId"), incident.ResolveInput{
		Message:    req.Message,
		Postmortem: req.Postmortem,
		Author:     middleware.GetSubject(r.Context()),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if detail, ok := h.detail(w, r, inc); ok {
		response.JSON(w, r, http.StatusOK, detail)
	}
}

// SetPostmortem handles PUT /v1/admin/incidents/{incidentId}/postmortem.
func (h *AdminHandler) SetPostmortem(w http.ResponseWriter, r *http.Request) {
	var req models.PostmortemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inc, err := h.incidents.SetPostmortem(r.Context(), chi.URLParam(r, "incidentId"), req.Postmortem)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.overview.Invalidate(r.Context())
	if detail, ok := h.detail(w, r, inc); ok {
		response.JSON(w, r, http.StatusOK, detail)
	}
}

// SetServiceStatus handles PUT /v1/admin/services/{slug}/status. Open
// incidents are left alone.
func (h *AdminHandler) SetServiceStatus(w http.ResponseWriter, r *http.Request) {
	var req models.ServiceStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	slug := chi.URLParam(r, "slug")
	before, err := h.ledger.GetBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	svc, err := h.ledger.Override(r.Context(), slug, status.Level(req.Status), middleware.GetSubject(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if before.Status != svc.Status {
		change := processor.StatusChange{
			ServiceID: svc.ID,
			Slug:      svc.Slug,
			Previous:  before.Status,
			Current:   svc.Status,
			At:        svc.LastStatusChangeAt,
		}
		for _, o := range h.observers {
			o.StatusChanged(r.Context(), change)
		}
	}
	response.JSON(w, r, http.StatusOK, toServiceStatus(svc))
}

// SetServiceVisibility handles PUT /v1/admin/services/{slug}/visibility.
func (h *AdminHandler) SetServiceVisibility(w http.ResponseWriter, r *http.Request) {
	var req models.ServiceVisibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Public == nil {
		writeError(w, r, h.logger, status.NewValidationError("public", "REQUIRED", "public is required"))
		return
	}

	svc, err := h.ledger.SetVisibility(r.Context(), chi.URLParam(r, "slug"), *req.Public)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.overview.Invalidate(r.Context())

	h.logger.Info().
		Str("service_slug", svc.Slug).
		Bool("public", svc.Public).
		Str("actor", middleware.GetSubject(r.Context())).
		Msg("service visibility changed")
	response.JSON(w, r, http.StatusOK, toServiceStatus(svc))
}

func (h *AdminHandler) detail(w http.ResponseWriter, r *http.Request, inc *incident.Incident) (models.IncidentDetail, bool) {
	updates, err := h.incidents.ListUpdates(r.Context(), inc.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return models.IncidentDetail{}, false
	}
	return toIncidentDetail(inc, updates), true
}

