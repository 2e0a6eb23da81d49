// Package api provides the HTTP API for the status page.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api/handler"
	"github.com/chainstatus/statuspage/internal/api/middleware"
	"github.com/chainstatus/statuspage/internal/auth"
	"github.com/chainstatus/statuspage/internal/featureflags"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/live"
	"github.com/chainstatus/statuspage/internal/overview"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/resilience"
	"github.com/chainstatus/statuspage/internal/subscriber"
	"github.com/chainstatus/statuspage/internal/uptime"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Tokens             middleware.TokenValidator
	Ledger             *ledger.Ledger
	Overview           *overview.Service
	Uptime             *uptime.Aggregator
	Incidents          *incident.Service
	Processor          *processor.Processor
	Subscribers        *subscriber.Registry
	FeatureFlagService *featureflags.Service

	// Live serves the websocket change stream. Optional.
	Live *live.Hub

	// Observers hear about manual status overrides.
	Observers []processor.StatusObserver

	// Ops dependencies. All optional.
	Checks      []handler.DependencyCheck
	Dispatchers *resilience.Registry
	Queue       interface{ Depth() int }
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "statuspage-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	// Initialize handlers
	opsConfig := handler.OpsConfig{
		Version:     cfg.Version,
		BuildTime:   cfg.BuildTime,
		Checks:      cfg.Checks,
		Dispatchers: cfg.Dispatchers,
		Queue:       cfg.Queue,
		Flags:       cfg.FeatureFlagService,
	}
	if cfg.Live != nil {
		opsConfig.Live = cfg.Live
	}
	opsHandler := handler.NewOpsHandler(opsConfig)
	statusHandler := handler.NewStatusHandler(cfg.Overview, cfg.Ledger, cfg.Uptime, cfg.Incidents, cfg.Logger)
	eventsHandler := handler.NewEventsHandler(cfg.Processor, cfg.Logger)
	subscriptionsHandler := handler.NewSubscriptionsHandler(cfg.Subscribers, cfg.Ledger, cfg.Logger)
	adminHandler := handler.NewAdminHandler(handler.AdminConfig{
		Incidents: cfg.Incidents,
		Ledger:    cfg.Ledger,
		Overview:  cfg.Overview,
		Observers: cfg.Observers,
		Logger:    cfg.Logger,
	})
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Overview, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Tokens)

	// Create rate limit middleware for different endpoint categories
	publicRateLimit := middleware.RateLimitByIP(middleware.PublicRateLimit)       // 120 req/min
	subscribeRateLimit := middleware.RateLimitByIP(middleware.SubscribeRateLimit) // 5 req/min
	ingestRateLimit := middleware.RateLimitBySubject(middleware.IngestRateLimit)  // 600 req/min per monitor
	adminRateLimit := middleware.RateLimitBySubject(middleware.AdminRateLimit)    // 60 req/min per operator

	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires an operator token
			r.With(authMiddleware, middleware.RequireRole(auth.RoleAdmin)).Get("/status", opsHandler.SystemStatus)
		})

		// Public status page
		r.Group(func(r chi.Router) {
			r.Use(publicRateLimit)

			r.Get("/status", statusHandler.GetStatusPage)
			r.Get("/status/overall", statusHandler.GetOverallStatus)
			if cfg.Live != nil {
				r.Get("/status/live", cfg.Live.ServeHTTP)
			}

			r.Get("/services", statusHandler.ListServices)
			r.Get("/services/{slug}", statusHandler.GetService)
			r.Get("/services/{slug}/uptime", statusHandler.GetServiceUptime)

			r.Get("/incidents/{incidentId}", statusHandler.GetIncident)
		})

		// Subscriptions (public) - strict rate limiting
		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(subscribeRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/", subscriptionsHandler.Subscribe)
			r.Post("/verify", subscriptionsHandler.Verify)
			r.Post("/unsubscribe", subscriptionsHandler.Unsubscribe)
		})

		// Health events from monitors
		r.With(
			authMiddleware,
			middleware.RequireRole(auth.RoleMonitor),
			ingestRateLimit,
			middleware.RequireJSON,
		).Post("/events", eventsHandler.ReportEvent)

		// Admin endpoints (operator tokens)
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireRole(auth.RoleAdmin))
			r.Use(adminRateLimit)
			r.Use(middleware.RequireJSON)

			r.Route("/incidents", func(r chi.Router) {
				r.Post("/", adminHandler.CreateIncident)
				r.Route("/{incidentId}", func(r chi.Router) {
					r.Post("/updates", adminHandler.AddIncidentUpdate)
					r.Post("/resolve", adminHandler.ResolveIncident)
					r.Put("/postmortem", adminHandler.SetPostmortem)
				})
			})

			r.Route("/services/{slug}", func(r chi.Router) {
				r.Put("/status", adminHandler.SetServiceStatus)
				r.Put("/visibility", adminHandler.SetServiceVisibility)
			})

			// Feature flags management
			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
				r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
			})
		})
	})

	return r
}
