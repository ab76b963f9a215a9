// Package config provides client configuration loaded from environment
// variables with defaults and validation. It centralizes the API endpoint,
// local storage path, timeouts, throttling, logging and observability
// settings.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the client.
type Config struct {
	// Remote API
	APIBaseURL    string        // e.g. http://localhost:8000/api
	HTTPTimeout   time.Duration // per REST call
	StreamTimeout time.Duration // whole writer_chat stream; 0 disables

	// Local storage
	DBPath string

	// Product list
	PageSize int

	// Throttling (0 RPS disables)
	RateRPS   float64
	RateBurst int

	// Logging
	LogLevel  string // debug|info|warn|error
	LogPretty bool

	// Observability
	MetricsFile string // node-exporter textfile; empty disables
	OTEL        OTELConfig

	// Mock backend
	MockAddr string
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		APIBaseURL:    strings.TrimRight(getenv("AUTOMARKET_API_URL", "http://localhost:8000/api"), "/"),
		HTTPTimeout:   getdur("HTTP_TIMEOUT", 30*time.Second),
		StreamTimeout: getdur("STREAM_TIMEOUT", 5*time.Minute),

		DBPath: getenv("AUTOMARKET_DB", defaultDBPath()),

		PageSize: getint("PAGE_SIZE", 10),

		RateRPS:   getfloat("RATE_RPS", 10),
		RateBurst: getint("RATE_BURST", 20),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		MetricsFile: getenv("METRICS_FILE", ""),
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "automarket"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},

		MockAddr: getenv("MOCK_ADDR", ":8000"),
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	return cfg, cfg.Validate()
}

// Validate checks ranges and required values.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if c.APIBaseURL == "" {
		return errors.New("AUTOMARKET_API_URL must not be empty")
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return errors.New("AUTOMARKET_API_URL must be an http(s) URL")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be a positive duration")
	}
	if c.StreamTimeout < 0 {
		return errors.New("STREAM_TIMEOUT must be >= 0")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("AUTOMARKET_DB must not be empty")
	}
	if c.PageSize < 1 {
		return errors.New("PAGE_SIZE must be >= 1")
	}
	if c.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if c.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".automarket", "automarket.db")
	}
	return filepath.Join(home, ".automarket", "automarket.db")
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
