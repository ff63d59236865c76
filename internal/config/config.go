package config

import (
	"os"
	"strings"
	"time"

	"github.com/partsflow/storefront/backend/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// Environment
	Env string // "development" or "production"

	// Document store (system of record)
	DatabaseURL        string
	DBStatementTimeout time.Duration

	// Remote cache backend (REST key-value API)
	KVRestURL      string
	KVRestToken    string
	KVRequestRPS   float64 // requests per second to the cache backend
	KVBurstSize    int     // burst size for the cache backend rate limit
	HTTPMaxRetries int
	HTTPRetryBase  time.Duration
	HTTPTimeout    time.Duration
	LogHTTPRetries bool

	// Cache health gate (circuit breaker)
	HealthFailureThreshold int
	HealthSuccessThreshold int
	HealthRetryTimeout     time.Duration

	// Cache warming
	WarmInterval      time.Duration // minimum time between warm passes
	WarmProductLimit  int           // max products fetched per warm pass
	WarmCategoryLimit int           // max categories fetched per warm pass
	WarmSearchTerms   []string      // common search terms warmed each pass
	WarmLoopInterval  time.Duration // background warm loop tick

	// Orchestrator cleanup
	CleanupMaxKeys  int           // key-count threshold before search-cache trimming
	CleanupInterval time.Duration // background sweep tick

	// Batch logger
	LogBatchSize     int
	LogFlushInterval time.Duration

	// Admin API token for gating admin endpoints (Bearer token)
	AdminAPIToken string

	// Server
	ListenAddr string

	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENV")))
	if env == "" {
		env = "development"
	}
	cached = &Config{
		Env:                env,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBStatementTimeout: utils.GetEnvAsDuration("DB_STATEMENT_TIMEOUT", 25*time.Second),

		KVRestURL:      strings.TrimSpace(os.Getenv("KV_REST_API_URL")),
		KVRestToken:    strings.TrimSpace(os.Getenv("KV_REST_API_TOKEN")),
		KVRequestRPS:   utils.GetEnvAsFloat("KV_REQUEST_RPS", 100.0),
		KVBurstSize:    utils.GetEnvAsInt("KV_BURST_SIZE", 20),
		HTTPMaxRetries: utils.GetEnvAsInt("HTTP_MAX_RETRIES", 3),
		HTTPRetryBase:  utils.GetEnvAsDuration("HTTP_RETRY_BASE", 300*time.Millisecond),
		HTTPTimeout:    utils.GetEnvAsDuration("HTTP_TIMEOUT", 15*time.Second),
		LogHTTPRetries: utils.GetEnvAsBool("LOG_HTTP_RETRIES", false),

		HealthFailureThreshold: utils.GetEnvAsInt("CACHE_HEALTH_FAILURE_THRESHOLD", 3),
		HealthSuccessThreshold: utils.GetEnvAsInt("CACHE_HEALTH_SUCCESS_THRESHOLD", 2),
		HealthRetryTimeout:     utils.GetEnvAsDuration("CACHE_HEALTH_RETRY_TIMEOUT", 60*time.Second),

		WarmInterval:      utils.GetEnvAsDuration("CACHE_WARM_INTERVAL", 5*time.Minute),
		WarmProductLimit:  utils.GetEnvAsInt("CACHE_WARM_PRODUCT_LIMIT", 200),
		WarmCategoryLimit: utils.GetEnvAsInt("CACHE_WARM_CATEGORY_LIMIT", 50),
		WarmSearchTerms: utils.GetEnvAsSlice("CACHE_WARM_SEARCH_TERMS", []string{
			"filter", "brake", "oil", "battery", "spark", "belt", "pump", "sensor",
		}, ","),
		WarmLoopInterval: utils.GetEnvAsDuration("CACHE_WARM_LOOP_INTERVAL", 5*time.Minute),

		CleanupMaxKeys:  utils.GetEnvAsInt("CACHE_CLEANUP_MAX_KEYS", 10000),
		CleanupInterval: utils.GetEnvAsDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),

		LogBatchSize:     utils.GetEnvAsInt("LOG_BATCH_SIZE", 50),
		LogFlushInterval: utils.GetEnvAsDuration("LOG_FLUSH_INTERVAL", 30*time.Second),

		AdminAPIToken: strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		ListenAddr:    strings.TrimSpace(os.Getenv("LISTEN_ADDR")),

		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
	}
	if cached.ListenAddr == "" {
		cached.ListenAddr = ":8000"
	}
	return cached
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Reset clears the cached config. Intended for tests that mutate env vars.
func Reset() {
	cached = nil
}
