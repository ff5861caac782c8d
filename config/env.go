package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key, or fallback when unset or blank.
func EnvString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns key parsed as an int, or fallback.
func EnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring invalid integer env var", slog.String("key", key), slog.String("value", raw))
		return fallback
	}
	return v
}

// EnvFloat returns key parsed as a float, or fallback.
func EnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("ignoring invalid float env var", slog.String("key", key), slog.String("value", raw))
		return fallback
	}
	return v
}

// EnvDuration returns key parsed with time.ParseDuration, or fallback.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("ignoring invalid duration env var", slog.String("key", key), slog.String("value", raw))
		return fallback
	}
	return v
}

// EnvBool returns key parsed with strconv.ParseBool, or fallback.
func EnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("ignoring invalid boolean env var", slog.String("key", key), slog.String("value", raw))
		return fallback
	}
	return v
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv() {
	c.APIKey = EnvString("RAPIDAPI_KEY", c.APIKey)
	c.BaseURL = EnvString("CHARTS_BASE_URL", c.BaseURL)
	c.APIHost = EnvString("CHARTS_API_HOST", c.APIHost)
	c.UserAgent = EnvString("CHARTS_USER_AGENT", c.UserAgent)
	c.Timeout = EnvDuration("CHARTS_TIMEOUT", c.Timeout)
	c.MaxAttempts = EnvInt("CHARTS_MAX_ATTEMPTS", c.MaxAttempts)
	c.RetryBackoff = EnvDuration("CHARTS_RETRY_BACKOFF", c.RetryBackoff)
	c.RetryBackoffMax = EnvDuration("CHARTS_RETRY_BACKOFF_MAX", c.RetryBackoffMax)
	c.BreakerThreshold = EnvInt("CHARTS_BREAKER_THRESHOLD", c.BreakerThreshold)
	c.BreakerRecovery = EnvDuration("CHARTS_BREAKER_RECOVERY", c.BreakerRecovery)
	c.CurrentTTL = EnvDuration("CHARTS_CURRENT_TTL", c.CurrentTTL)
	c.HistoricalTTL = EnvDuration("CHARTS_HISTORICAL_TTL", c.HistoricalTTL)
	c.StaleRetention = EnvDuration("CHARTS_STALE_RETENTION", c.StaleRetention)
	c.RedisURL = EnvString("REDIS_URL", c.RedisURL)
	c.MemoryCacheSize = EnvInt("CHARTS_MEMORY_CACHE_SIZE", c.MemoryCacheSize)
	c.MetricsAddr = EnvString("CHARTS_METRICS_ADDR", c.MetricsAddr)
	c.Parallelism = EnvInt("CHARTS_PARALLELISM", c.Parallelism)

	c.Catalog.Enabled = EnvBool("APPLE_MUSIC_ENABLED", c.Catalog.Enabled)
	c.Catalog.BaseURL = EnvString("APPLE_MUSIC_BASE_URL", c.Catalog.BaseURL)
	c.Catalog.Storefront = EnvString("APPLE_MUSIC_STOREFRONT", c.Catalog.Storefront)
	c.Catalog.TeamID = EnvString("APPLE_MUSIC_TEAM_ID", c.Catalog.TeamID)
	c.Catalog.KeyID = EnvString("APPLE_MUSIC_KEY_ID", c.Catalog.KeyID)
	c.Catalog.PrivateKey = strings.ReplaceAll(EnvString("APPLE_MUSIC_PRIVATE_KEY", c.Catalog.PrivateKey), `\n`, "\n")
	c.Catalog.BatchSize = EnvInt("APPLE_MUSIC_BATCH_SIZE", c.Catalog.BatchSize)
	c.Catalog.BatchDelay = EnvDuration("APPLE_MUSIC_BATCH_DELAY", c.Catalog.BatchDelay)
}
