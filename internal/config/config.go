// Package config loads the rewards backend settings from the environment.
// Both the HTTP server and couponctl read the same variables, so a .env file
// configures either binary.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// CORSConfig lists browser origins allowed to call the API. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS, comma-separated
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig configures trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG
}

// IngestConfig tunes bulk coupon ingestion.
type IngestConfig struct {
	DefaultMode      string        // INGEST_DEFAULT_MODE: batch|individual
	MaxAttempts      int           // INGEST_MAX_ATTEMPTS per record in individual mode
	InitialBackoff   time.Duration // INGEST_INITIAL_BACKOFF
	MaxBackoff       time.Duration // INGEST_MAX_BACKOFF, at most 10s
	SuggestThreshold float64       // SUGGEST_THRESHOLD for "did you mean", in [0,1]
}

// maxBackoffCeiling bounds INGEST_MAX_BACKOFF.
const maxBackoffCeiling = 10 * time.Second

// Config is the full application configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	// WriteTimeout also bounds a streamed (SSE) ingestion.
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	GinMode        string

	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBPath         string
	UploadMaxBytes int64
	Ingest         IngestConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	// IdempotencyTTL is how long an upload's Idempotency-Key replays its run.
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// MustLoad is Load for main: it panics on a bad environment.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults and validates the result.
// Every malformed variable is reported, joined into one error.
func Load() (Config, error) {
	return load(newEnvReader())
}

func load(env *envReader) (Config, error) {
	cfg := Config{
		Port:              env.str("PORT", "8080"),
		ReadTimeout:       env.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: env.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      env.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       env.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    env.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           env.lower("GIN_MODE", "release"),

		LogLevel:       env.lower("LOG_LEVEL", "info"),
		LogPretty:      env.bool("LOG_PRETTY", false),
		SwaggerEnabled: env.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(env.str("API_BASE_PATH", "/api/v1")),

		DBPath:         env.str("DB_PATH", "app.db"),
		UploadMaxBytes: int64(env.int("UPLOAD_MAX_BYTES", 10<<20)),
		Ingest: IngestConfig{
			DefaultMode:      env.lower("INGEST_DEFAULT_MODE", "batch"),
			MaxAttempts:      env.int("INGEST_MAX_ATTEMPTS", 3),
			InitialBackoff:   env.dur("INGEST_INITIAL_BACKOFF", time.Second),
			MaxBackoff:       env.dur("INGEST_MAX_BACKOFF", maxBackoffCeiling),
			SuggestThreshold: env.float("SUGGEST_THRESHOLD", 0.5),
		},

		RateRPS:   env.float("RATE_RPS", 5),
		RateBurst: env.int("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: env.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: env.bool("ENABLE_HSTS", false),
			HSTSMaxAge: env.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: env.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     env.bool("OTEL_ENABLED", false),
			Endpoint:    env.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: env.str("OTEL_SERVICE_NAME", "go-rewards-backend"),
			SampleRatio: env.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	if err := errors.Join(env.errs...); err != nil {
		return cfg, err
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	return cfg, cfg.Validate()
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
		"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(c.UploadMaxBytes > 0, "UPLOAD_MAX_BYTES must be > 0")

	in := c.Ingest
	check(oneOf(in.DefaultMode, "batch", "individual"), "INGEST_DEFAULT_MODE must be batch or individual, got %q", in.DefaultMode)
	check(in.MaxAttempts >= 1, "INGEST_MAX_ATTEMPTS must be >= 1")
	if in.InitialBackoff <= 0 || in.MaxBackoff <= 0 {
		check(false, "ingest backoffs must be positive durations")
	} else {
		check(in.MaxBackoff <= maxBackoffCeiling, "INGEST_MAX_BACKOFF must be <= %s", maxBackoffCeiling)
		check(in.InitialBackoff <= in.MaxBackoff, "INGEST_INITIAL_BACKOFF must be <= INGEST_MAX_BACKOFF")
	}
	check(in.SuggestThreshold >= 0 && in.SuggestThreshold <= 1, "SUGGEST_THRESHOLD must be between 0 and 1")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool { return slices.Contains(allowed, v) }
