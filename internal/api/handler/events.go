package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/middleware"
	"github.com/chainstatus/statuspage/internal/api/models"
	"github.com/chainstatus/statuspage/internal/api/response"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/status"
)

// EventsHandler accepts health events from monitors.
type EventsHandler struct {
	processor *processor.Processor
	logger    zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(p *processor.Processor, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{processor: p, logger: logger}
}

// ReportEvent handles POST /v1/events. The token subject is recorded as the
// source unless the monitor names one.
func (h *EventsHandler) ReportEvent(w http.ResponseWriter, r *http.Request) {
	var req models.HealthEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	source := req.Source
	if source == "" {
		source = middleware.GetSubject(r.Context())
	}

	result, err := h.processor.ReportEvent(r.Context(), processor.Event{
		ServiceSlug:    req.ServiceSlug,
		Kind:           status.EventKind(req.EventKind),
		Message:        req.Message,
		Diagnostics:    req.DiagnosticLog,
		ResponseTimeMs: req.ResponseTimeMs,
		StatusCode:     req.StatusCode,
		Source:         source,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toEventResponse(result))
}
