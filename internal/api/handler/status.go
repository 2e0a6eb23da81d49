package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/models"
	"github.com/chainstatus/statuspage/internal/api/response"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/overview"
	"github.com/chainstatus/statuspage/internal/uptime"
)

// defaultUptimeDays is the range served when ?days is absent.
const defaultUptimeDays = 90

// StatusHandler serves the public status page.
type StatusHandler struct {
	overview  *overview.Service
	ledger    *ledger.Ledger
	uptime    *uptime.Aggregator
	incidents *incident.Service
	logger    zerolog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(ov *overview.Service, l *ledger.Ledger, agg *uptime.Aggregator, incidents *incident.Service, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		overview:  ov,
		ledger:    l,
		uptime:    agg,
		incidents: incidents,
		logger:    logger,
	}
}

// GetStatusPage handles GET /v1/status.
func (h *StatusHandler) GetStatusPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.overview.GetStatusPage(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toStatusPage(page))
}

// GetOverallStatus handles GET /v1/status/overall.
func (h *StatusHandler) GetOverallStatus(w http.ResponseWriter, r *http.Request) {
	overall, err := h.overview.GetOverallStatus(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toOverall(*overall))
}

// ListServices handles GET /v1/services.
func (h *StatusHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.ledger.List(r.Context(), true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := toServiceStatuses(services)
	response.JSON(w, r, http.StatusOK, models.ServiceList{
		Items: items,
		Meta:  models.ListMeta{Count: len(items)},
	})
}

// GetService handles GET /v1/services/{slug}. Hidden services are not found.
func (h *StatusHandler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.publicService(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toServiceStatus(svc))
}

// GetServiceUptime handles GET /v1/services/{slug}/uptime?days=N.
func (h *StatusHandler) GetServiceUptime(w http.ResponseWriter, r *http.Request) {
	days := defaultUptimeDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "request validation failed", []models.FieldError{
				{Field: "days", Code: "INVALID", Message: "must be an integer"},
			})
			return
		}
		days = n
	}

	svc, ok := h.publicService(w, r)
	if !ok {
		return
	}

	report, err := h.uptime.GetUptime(r.Context(), svc.ID, days)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toUptimeReport(svc, days, report))
}

// GetIncident handles GET /v1/incidents/{incidentId}.
func (h *StatusHandler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "incidentId")
	inc, err := h.incidents.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	updates, err := h.incidents.ListUpdates(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toIncidentDetail(inc, updates))
}

func (h *StatusHandler) publicService(w http.ResponseWriter, r *http.Request) (*ledger.Service, bool) {
	svc, err := h.ledger.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	if !svc.Public {
		writeError(w, r, h.logger, ledger.ErrServiceNotFound)
		return nil, false
	}
	return svc, true
}
