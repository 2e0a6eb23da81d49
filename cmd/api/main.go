// Package main provides the entrypoint for the status page API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/api"
	"github.com/chainstatus/statuspage/internal/api/handler"
	"github.com/chainstatus/statuspage/internal/api/middleware"
	"github.com/chainstatus/statuspage/internal/auth"
	"github.com/chainstatus/statuspage/internal/cache"
	"github.com/chainstatus/statuspage/internal/config"
	"github.com/chainstatus/statuspage/internal/database"
	"github.com/chainstatus/statuspage/internal/featureflags"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/live"
	"github.com/chainstatus/statuspage/internal/notify"
	"github.com/chainstatus/statuspage/internal/overview"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/resilience"
	"github.com/chainstatus/statuspage/internal/subscriber"
	"github.com/chainstatus/statuspage/internal/telemetry"
	"github.com/chainstatus/statuspage/internal/uptime"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "statuspage-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting status page API")

	cfg := config.Load()

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		TLS:            cfg.Telemetry.TLS,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database and apply migrations
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	if cfg.InsecureSigningKey() {
		if cfg.Production() {
			log.Fatal().Msg("JWT_SIGNING_KEY must be set in production")
		}
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWT.SigningKey,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
	})

	checks := []handler.DependencyCheck{{Name: "database", Pinger: pool}}

	// Status page snapshot cache: Redis when configured, in-process otherwise
	var pageCache cache.Cache = cache.NewMemoryCache()
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cache.Config{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-memory status cache")
		} else {
			defer func() { _ = redisCache.Close() }()
			pageCache = redisCache
			checks = append(checks, handler.DependencyCheck{Name: "redis", Pinger: redisCache, Optional: true})
			log.Info().Msg("redis status cache connected")
		}
	}

	// Feature flags
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   30 * time.Second,
	})

	// Service ledger, seeded from the catalog when present
	serviceRepo := ledger.NewPostgresRepository(pool)
	serviceLocks := ledger.NewLocks()
	ledgerService := ledger.New(ledger.Config{Repository: serviceRepo, Locks: serviceLocks, Logger: log})
	if catalog, err := ledger.LoadCatalog(cfg.CatalogPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.CatalogPath).Msg("service catalog not loaded")
	} else if created, err := ledgerService.Seed(ctx, catalog); err != nil {
		log.Fatal().Err(err).Msg("failed to seed service catalog")
	} else {
		log.Info().Int("created", created).Int("services", len(catalog.Services)).Msg("service catalog applied")
	}

	incidentRepo := incident.NewPostgresRepository(pool)
	aggregator := uptime.NewAggregator(uptime.AggregatorConfig{
		Repository: uptime.NewPostgresRepository(pool),
		Logger:     log,
	})

	overviewService := overview.New(overview.Config{
		Services:  serviceRepo,
		Incidents: incidentRepo,
		Settings:  ffService,
		Cache:     pageCache,
		Logger:    log,
	})

	// Notification delivery
	dispatchers := resilience.NewRegistry()
	transport, err := notify.NewTransport(ctx, notify.TransportConfig{
		PubSubProjectID: cfg.PubSub.ProjectID,
		PubSubTopic:     cfg.PubSub.NotifyTopic,
		WebhookURL:      cfg.Notify.WebhookURL,
		WebhookSecret:   cfg.Notify.WebhookSecret,
		Registry:        dispatchers,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create notification transport")
	}
	defer transport.Close()
	log.Info().Str("transport", transport.Name).Msg("notification transport ready")
	dispatcher := transport.Dispatcher

	subscriberRegistry := subscriber.NewRegistry(subscriber.Config{
		Repository: subscriber.NewPostgresRepository(pool),
		Sender:     dispatcher,
		Logger:     log,
	})
	queue := notify.NewQueue(notify.QueueConfig{
		Fanout: notify.NewFanout(notify.FanoutConfig{
			Subscribers: subscriberRegistry,
			Dispatcher:  dispatcher,
			Flags:       ffService,
			Logger:      log,
		}),
		Workers: cfg.Notify.Workers,
		Buffer:  cfg.Notify.Buffer,
		Logger:  log,
	})

	hub := live.NewHub(live.Config{Logger: log})
	notifiers := incident.Notifiers{queue, hub, overviewService}
	observers := []processor.StatusObserver{hub, overviewService}

	incidentService := incident.NewService(incident.ServiceConfig{
		Repository: incidentRepo,
		Services:   serviceRepo,
		Notifier:   notifiers,
		Logger:     log,
		Locks:      serviceLocks,
	})
	eventProcessor := processor.New(processor.Config{
		Services:  serviceRepo,
		Uptime:    aggregator,
		Incidents: incidentRepo,
		Notifier:  notifiers,
		Observers: observers,
		Flags:     ffService,
		Logger:    log,
		Locks:     serviceLocks,
	})
	log.Info().Msg("status services initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		RequireTLS:         cfg.RequireTLS,
		Tokens:             jwtService,
		Ledger:             ledgerService,
		Overview:           overviewService,
		Uptime:             aggregator,
		Incidents:          incidentService,
		Processor:          eventProcessor,
		Subscribers:        subscriberRegistry,
		FeatureFlagService: ffService,
		Live:               hub,
		Observers:          observers,
		Checks:             checks,
		Dispatchers:        dispatchers,
		Queue:              queue,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := queue.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("notification queue did not drain")
	}

	log.Info().Msg("server stopped")
}
