package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// fromMap loads a Config from vars alone, ignoring the process environment.
func fromMap(vars map[string]string) (Config, error) {
	return load(&envReader{lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := fromMap(nil)
	if err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DBPath != "app.db" || cfg.UploadMaxBytes != 10<<20 || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("app defaults: %+v", cfg)
	}
	want := IngestConfig{
		DefaultMode:      "batch",
		MaxAttempts:      3,
		InitialBackoff:   time.Second,
		MaxBackoff:       10 * time.Second,
		SuggestThreshold: 0.5,
	}
	if cfg.Ingest != want {
		t.Fatalf("ingest defaults = %+v", cfg.Ingest)
	}
	if cfg.OTEL.Enabled || !cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "go-rewards-backend" || cfg.OTEL.SampleRatio != 1 {
		t.Fatalf("otel defaults: %+v", cfg.OTEL)
	}
	if cfg.CORS.AllowedOrigins != nil || cfg.RateRPS != 5 || cfg.RateBurst != 10 {
		t.Fatalf("web defaults: %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := fromMap(map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"WRITE_TIMEOUT":               "5m",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "Warning",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "rewards/v2/",
		"DB_PATH":                     " coupons.sqlite ",
		"UPLOAD_MAX_BYTES":            "2048",
		"INGEST_DEFAULT_MODE":         " Individual ",
		"INGEST_MAX_ATTEMPTS":         "5",
		"INGEST_INITIAL_BACKOFF":      "200ms",
		"INGEST_MAX_BACKOFF":          "2s",
		"SUGGEST_THRESHOLD":           "0.4",
		"RATE_RPS":                    "0",
		"RATE_BURST":                  "1",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "off",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 5*time.Minute || cfg.MaxHeaderBytes != 8192 {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.GinMode != "release" || cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/rewards/v2" {
		t.Fatalf("normalization: %+v", cfg)
	}
	if cfg.DBPath != "coupons.sqlite" || cfg.UploadMaxBytes != 2048 {
		t.Fatalf("app: %+v", cfg)
	}
	want := IngestConfig{DefaultMode: "individual", MaxAttempts: 5, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second, SuggestThreshold: 0.4}
	if cfg.Ingest != want {
		t.Fatalf("ingest = %+v", cfg.Ingest)
	}
	if cfg.RateRPS != 0 || cfg.RateBurst != 1 {
		t.Fatalf("rate: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("origins = %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour || cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("security/idempotency: %+v", cfg)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_MalformedValuesAreReported(t *testing.T) {
	_, err := fromMap(map[string]string{
		"RATE_RPS":           "fast",
		"RATE_BURST":         "ten",
		"INGEST_MAX_BACKOFF": "10",
		"LOG_PRETTY":         "sometimes",
	})
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, want := range []string{
		`RATE_RPS: "fast" is not a number`,
		`RATE_BURST: "ten" is not an integer`,
		`INGEST_MAX_BACKOFF: "10" is not a duration`,
		`LOG_PRETTY: "sometimes" is not a boolean`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL must be one of"},
		{"blank port", map[string]string{"PORT": "   "}, ""},
		{"timeout", map[string]string{"IDLE_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES must be > 0"},
		{"upload cap", map[string]string{"UPLOAD_MAX_BYTES": "-1"}, "UPLOAD_MAX_BYTES must be > 0"},
		{"mode", map[string]string{"INGEST_DEFAULT_MODE": "parallel"}, `must be batch or individual, got "parallel"`},
		{"attempts", map[string]string{"INGEST_MAX_ATTEMPTS": "0"}, "INGEST_MAX_ATTEMPTS must be >= 1"},
		{"zero backoff", map[string]string{"INGEST_INITIAL_BACKOFF": "0s"}, "ingest backoffs must be positive"},
		{"backoff ceiling", map[string]string{"INGEST_MAX_BACKOFF": "11s"}, "INGEST_MAX_BACKOFF must be <= 10s"},
		{"backoff order", map[string]string{"INGEST_INITIAL_BACKOFF": "3s", "INGEST_MAX_BACKOFF": "2s"}, "INGEST_INITIAL_BACKOFF must be <= INGEST_MAX_BACKOFF"},
		{"threshold", map[string]string{"SUGGEST_THRESHOLD": "1.5"}, "SUGGEST_THRESHOLD must be between 0 and 1"},
		{"rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS must be >= 0"},
		{"burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST must be >= 1"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE must be >= 0"},
		{"idempotency", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL must be > 0"},
		{"sampler", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "2"}, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fromMap(tc.vars)
			if tc.want == "" {
				// blank values read as unset
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, err := fromMap(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg.RateBurst = 0
	cfg.Ingest.MaxAttempts = 0
	cfg.DBPath = " "

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	if n := len(strings.Split(err.Error(), "\n")); n != 3 {
		t.Fatalf("expected 3 joined errors, got %d: %v", n, err)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"/":         "/",
		" api/v1 ":  "/api/v1",
		"/api/v1/":  "/api/v1",
		"//api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("INGEST_DEFAULT_MODE", "individual")
	t.Setenv("SUGGEST_THRESHOLD", "0.7")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.DefaultMode != "individual" || cfg.Ingest.SuggestThreshold != 0.7 {
		t.Fatalf("env not read: %+v", cfg.Ingest)
	}
}

func TestMustLoad(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	_ = MustLoad()

	t.Setenv("INGEST_MAX_ATTEMPTS", "0")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad should panic on an invalid environment")
		}
	}()
	_ = MustLoad()
}
