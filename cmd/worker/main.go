// Package main provides the entrypoint for the status page worker: Pub/Sub
// health event ingestion and the scheduled uptime rollup.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/config"
	"github.com/chainstatus/statuspage/internal/database"
	"github.com/chainstatus/statuspage/internal/featureflags"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/notify"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/subscriber"
	"github.com/chainstatus/statuspage/internal/telemetry"
	"github.com/chainstatus/statuspage/internal/uptime"
	"github.com/chainstatus/statuspage/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "statuspage-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting status page worker")

	cfg := config.Load()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().Str("database", dbConfig.Database).Msg("database connected")

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   30 * time.Second,
	})

	transport, err := notify.NewTransport(ctx, notify.TransportConfig{
		PubSubProjectID: cfg.PubSub.ProjectID,
		PubSubTopic:     cfg.PubSub.NotifyTopic,
		WebhookURL:      cfg.Notify.WebhookURL,
		WebhookSecret:   cfg.Notify.WebhookSecret,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create notification transport")
	}
	defer transport.Close()

	queue := notify.NewQueue(notify.QueueConfig{
		Fanout: notify.NewFanout(notify.FanoutConfig{
			Subscribers: subscriber.NewRegistry(subscriber.Config{
				Repository: subscriber.NewPostgresRepository(pool),
				Sender:     transport.Dispatcher,
				Logger:     log,
			}),
			Dispatcher: transport.Dispatcher,
			Flags:      ffService,
			Logger:     log,
		}),
		Workers: cfg.Notify.Workers,
		Buffer:  cfg.Notify.Buffer,
		Logger:  log,
	})

	serviceRepo := ledger.NewPostgresRepository(pool)
	aggregator := uptime.NewAggregator(uptime.AggregatorConfig{
		Repository: uptime.NewPostgresRepository(pool),
		Logger:     log,
	})
	eventProcessor := processor.New(processor.Config{
		Services:  serviceRepo,
		Uptime:    aggregator,
		Incidents: incident.NewPostgresRepository(pool),
		Notifier:  queue,
		Flags:     ffService,
		Logger:    log,
	})
	rollupJob := worker.NewRollupJob(worker.RollupJobConfig{
		Config:   worker.RollupConfig{Interval: cfg.RollupInterval},
		Services: serviceRepo,
		Uptime:   aggregator,
		Logger:   log,
	})

	// Worker also exposes health endpoint for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s","notifyQueueDepth":%d}`, Version, queue.Depth())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go rollupJob.Start(ctx)

	if cfg.PubSub.ProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.EventSubscription,
			Processor:        eventProcessor,
			RollupJob:        rollupJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() { _ = handler.Close() }()

		go func() {
			if err := handler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - only running scheduled rollups")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	if err := queue.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("notification queue did not drain")
	}

	log.Info().Msg("worker stopped")
}
