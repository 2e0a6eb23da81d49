// Package handler provides HTTP handlers for the status page API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/middleware"
	"github.com/chainstatus/statuspage/internal/api/response"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/status"
	"github.com/chainstatus/statuspage/internal/subscriber"
)

// maxBodyBytes bounds request bodies. Diagnostic logs are the largest field.
const maxBodyBytes = 64 << 10

const (
	// Seconds a monitor should wait before retrying a refused event.
	pausedRetryAfter  = 30
	storageRetryAfter = 5
)

// decodeJSON decodes the request body into dst. It writes a 400 response and
// returns false when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, r, "request body too large", nil)
			return false
		}
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

// writeError maps a domain error onto a problem response.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var verr *status.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, "request validation failed", verr.Errors)
	case errors.Is(err, ledger.ErrServiceNotFound):
		response.NotFound(w, r, "service not found")
	case errors.Is(err, incident.ErrIncidentNotFound):
		response.NotFound(w, r, "incident not found")
	case errors.Is(err, incident.ErrIncidentResolved):
		response.Conflict(w, r, "incident is already resolved")
	case errors.Is(err, subscriber.ErrInvalidToken):
		response.NotFound(w, r, "invalid or expired token")
	case errors.Is(err, status.ErrUnavailable):
		response.ServiceUnavailable(w, r, "temporarily unavailable, retry later", pausedRetryAfter)
	case status.IsStorage(err):
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("storage unavailable")
		response.ServiceUnavailable(w, r, "storage temporarily unavailable, retry later", storageRetryAfter)
	default:
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("unhandled error")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
