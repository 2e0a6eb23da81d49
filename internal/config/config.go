// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSigningKey is used when JWT_SIGNING_KEY is unset. It is only
// acceptable in development.
const DefaultSigningKey = "local-dev-signing-key-change-in-production"

// AppConfig holds the settings shared by the api, worker and statusctl
// binaries.
type AppConfig struct {
	Env  string
	Port string

	// CatalogPath points at the YAML service catalog.
	CatalogPath string

	// RequireTLS rejects plain-HTTP requests that were not forwarded by a
	// TLS-terminating proxy.
	RequireTLS bool

	JWT       JWTConfig
	Telemetry TelemetryConfig
	Redis     RedisConfig
	PubSub    PubSubConfig
	Notify    NotifyConfig

	// RollupInterval is the period of the uptime rollup in the worker.
	RollupInterval time.Duration
}

// JWTConfig holds token verification settings.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
	TLS          bool
}

// RedisConfig holds the status page cache settings. An empty URL disables
// the Redis cache.
type RedisConfig struct {
	URL      string
	Password string
}

// PubSubConfig holds Pub/Sub settings. An empty ProjectID disables Pub/Sub.
type PubSubConfig struct {
	ProjectID         string
	EventSubscription string
	NotifyTopic       string
}

// NotifyConfig selects how notification requests leave the process.
type NotifyConfig struct {
	// WebhookURL, when set, receives notification envelopes over HTTP.
	WebhookURL    string
	WebhookSecret string

	Workers int
	Buffer  int
}

// Load reads .env (if present) and the environment.
func Load() AppConfig {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from the environment only.
func FromEnv() AppConfig {
	return AppConfig{
		Env:         getEnvOrDefault("APP_ENV", "development"),
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		CatalogPath: getEnvOrDefault("CATALOG_PATH", "services.yaml"),
		RequireTLS:  getBool("REQUIRE_TLS", false),
		JWT: JWTConfig{
			SigningKey: getEnvOrDefault("JWT_SIGNING_KEY", DefaultSigningKey),
			Issuer:     getEnvOrDefault("JWT_ISSUER", "https://status.chainstatus.io"),
			Audience:   getEnvOrDefault("JWT_AUDIENCE", "statuspage-api"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getFloat("OTEL_SAMPLE_RATIO", 1),
			TLS:          getBool("OTEL_EXPORTER_OTLP_TLS", false),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		PubSub: PubSubConfig{
			ProjectID:         os.Getenv("PUBSUB_PROJECT_ID"),
			EventSubscription: getEnvOrDefault("PUBSUB_EVENT_SUBSCRIPTION", "statuspage-events"),
			NotifyTopic:       os.Getenv("PUBSUB_NOTIFY_TOPIC"),
		},
		Notify: NotifyConfig{
			WebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("NOTIFY_WEBHOOK_SECRET"),
			Workers:       getInt("NOTIFY_WORKERS", 2),
			Buffer:        getInt("NOTIFY_BUFFER", 256),
		},
		RollupInterval: getDuration("ROLLUP_INTERVAL", 5*time.Minute),
	}
}

// Production reports whether the process runs in production.
func (c AppConfig) Production() bool {
	return c.Env == "production"
}

// InsecureSigningKey reports whether the development signing key is in use.
func (c AppConfig) InsecureSigningKey() bool {
	return c.JWT.SigningKey == DefaultSigningKey
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultValue
	}
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
