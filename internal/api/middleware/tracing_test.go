package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/chainstatus/statuspage/internal/api/middleware"
)

// recordSpans installs an in-memory tracer for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

// incidentRouter mounts h behind Tracing on the public incident route.
func incidentRouter(h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Tracing("statuspage-api"))
	r.Get("/v1/incidents/{incidentId}", h)
	return r
}

func onlySpan(t *testing.T, sr *tracetest.SpanRecorder) sdktrace.ReadOnlySpan {
	t.Helper()
	spans := sr.Ended()
	require.Len(t, spans, 1)
	return spans[0]
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_SpanFollowsRoutePattern(t *testing.T) {
	sr := recordSpans(t)

	handler := incidentRouter(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
		w.WriteHeader(http.StatusOK)
	})
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/incidents/inc_42", http.NoBody))

	span := onlySpan(t, sr)
	assert.Equal(t, "GET /v1/incidents/{incidentId}", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())

	route, ok := spanAttr(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/incidents/{incidentId}", route.AsString())

	path, ok := spanAttr(span, "url.path")
	require.True(t, ok)
	assert.Equal(t, "/v1/incidents/inc_42", path.AsString())
}

func TestTracing_UnroutedRequestUsesPath(t *testing.T) {
	sr := recordSpans(t)

	handler := middleware.Tracing("statuspage-api")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/status", http.NoBody))

	assert.Equal(t, "GET /v1/status", onlySpan(t, sr).Name())
}

func TestTracing_JoinsIncomingTrace(t *testing.T) {
	sr := recordSpans(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/incidents/inc_42", http.NoBody)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	incidentRouter(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).ServeHTTP(httptest.NewRecorder(), req)

	span := onlySpan(t, sr)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())
}

func TestTracing_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  codes.Code
		wantError bool
	}{
		{"ok", http.StatusOK, codes.Unset, false},
		{"client error stays unset", http.StatusNotFound, codes.Unset, false},
		{"storage outage", http.StatusServiceUnavailable, codes.Error, true},
		{"panic recovered upstream", http.StatusInternalServerError, codes.Error, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := recordSpans(t)

			incidentRouter(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/incidents/inc_42", http.NoBody))

			span := onlySpan(t, sr)
			code, ok := spanAttr(span, "http.response.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), code.AsInt64())
			assert.Equal(t, tt.wantCode, span.Status().Code)
			if tt.wantError {
				assert.Equal(t, http.StatusText(tt.status), span.Status().Description)
			}
		})
	}
}

func TestTracing_CarriesRequestID(t *testing.T) {
	sr := recordSpans(t)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing("statuspage-api"))
	r.Get("/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", http.NoBody))

	id, ok := spanAttr(onlySpan(t, sr), "request.id")
	require.True(t, ok)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), id.AsString())
}
