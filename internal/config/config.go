package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Brandbeam gateway.
type Config struct {
	Port      int
	Version   string
	Backend   BackendConfig
	Quota     QuotaConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
}

// BackendConfig configures the generative backend connection.
type BackendConfig struct {
	Endpoint        string
	APIKey          string
	MaxOutputTokens int
	Timeout         time.Duration
}

// QuotaConfig configures per-tier quota ceilings and the fallback charge
// applied when the backend does not report usage.
type QuotaConfig struct {
	StarterCeiling int64
	GrowthCeiling  int64
	ScaleCeiling   int64
	FallbackCharge int64
	// SweepInterval is how often the billing-cycle janitor checks for
	// principals due a usage reset.
	SweepInterval time.Duration
	// RedisURL, when set, enables the Redis-backed usage counter cache.
	RedisURL string
}

type DatabaseConfig struct {
	// URL, when set, enables the PostgreSQL principal store.
	// Empty means the in-memory store (dev/tests).
	URL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("BRANDBEAM_PORT", 8080),
		Version: envStr("BRANDBEAM_VERSION", "0.4.0"),
		Backend: BackendConfig{
			Endpoint:        envStr("BRANDBEAM_BACKEND_ENDPOINT", "https://generativelanguage.googleapis.com"),
			APIKey:          envStr("BRANDBEAM_BACKEND_API_KEY", ""),
			MaxOutputTokens: envInt("BRANDBEAM_MAX_OUTPUT_TOKENS", 2048),
			Timeout:         envDur("BRANDBEAM_BACKEND_TIMEOUT", 120*time.Second),
		},
		Quota: QuotaConfig{
			StarterCeiling: envInt64("BRANDBEAM_QUOTA_STARTER", 50_000),
			GrowthCeiling:  envInt64("BRANDBEAM_QUOTA_GROWTH", 250_000),
			ScaleCeiling:   envInt64("BRANDBEAM_QUOTA_SCALE", 1_000_000),
			FallbackCharge: envInt64("BRANDBEAM_QUOTA_FALLBACK_CHARGE", 500),
			SweepInterval:  envDur("BRANDBEAM_QUOTA_SWEEP_INTERVAL", time.Hour),
			RedisURL:       envStr("BRANDBEAM_REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "brandbeam-gateway"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
