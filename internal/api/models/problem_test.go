package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstatus/statuspage/internal/api/models"
)

func TestProblemFor(t *testing.T) {
	p := models.ProblemFor(http.StatusBadRequest, "req_test123", "eventKind is not a known event kind")
	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Equal(t, "eventKind is not a known event kind", p.Detail)

	teapot := models.ProblemFor(http.StatusTeapot, "req_test123", "")
	assert.Equal(t, "about:blank", teapot.Type)
	assert.Equal(t, http.StatusText(http.StatusTeapot), teapot.Title)
	assert.Equal(t, http.StatusTeapot, teapot.Status)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewNotFound("", "service not found").Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	_, present := w.Header()["X-Request-Id"]
	assert.False(t, present)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "email", Message: "email is not a valid address", Code: "INVALID"},
	})
	p.Instance = "/v1/subscriptions"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "/v1/subscriptions", result.Instance)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "email", result.Errors[0].Field)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name   string
		build  func(traceID, detail string) *models.Problem
		typ    string
		title  string
		status int
	}{
		{"unauthorized", models.NewUnauthorized, models.ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized},
		{"forbidden", models.NewForbidden, models.ProblemTypeForbidden, "Forbidden", http.StatusForbidden},
		{"not found", models.NewNotFound, models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"conflict", models.NewConflict, models.ProblemTypeConflict, "Conflict", http.StatusConflict},
		{"media type", models.NewUnsupportedMediaType, models.ProblemTypeMediaType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"too many requests", models.NewTooManyRequests, models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError, models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable, models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.build("req_123", "detail")
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.title, p.Title)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "detail", p.Detail)
			assert.Equal(t, "req_123", p.TraceID)
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	at := time.Date(2026, 5, 20, 15, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	data, err := json.Marshal(models.NewTimestamp(at))
	require.NoError(t, err)
	assert.Equal(t, `"2026-05-20T13:30:00Z"`, string(data))

	var parsed models.Timestamp
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, at.Equal(parsed.Time()))

	assert.Error(t, json.Unmarshal([]byte(`12`), &parsed))
	assert.Nil(t, models.TimestampPtr(nil))
}
