package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds chart client configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	APIHost   string
	ChartPath string
	UserAgent string

	Timeout         time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	RetryMultiplier float64
	RetryJitter     float64

	BreakerThreshold int
	BreakerRecovery  time.Duration

	CurrentTTL      time.Duration
	HistoricalTTL   time.Duration
	StaleRetention  time.Duration
	CacheTimeout    time.Duration
	RedisURL        string
	MemoryCacheSize int

	Catalog CatalogConfig

	OutputFile   string
	OutputFormat string // csv, json, or dual
	MetricsAddr  string
	Parallelism  int
	Verbose      bool
}

// CatalogConfig configures the optional enrichment catalog.
type CatalogConfig struct {
	Enabled    bool
	BaseURL    string
	Storefront string
	TeamID     string
	KeyID      string
	PrivateKey string // PEM encoded

	Timeout          time.Duration
	MaxAttempts      int
	BatchSize        int
	BatchDelay       time.Duration
	ResultTTL        time.Duration
	FailureTTL       time.Duration
	BreakerThreshold int
	BreakerRecovery  time.Duration
}

// HasCredentials reports whether a developer token can be signed.
func (c CatalogConfig) HasCredentials() bool {
	return c.TeamID != "" && c.KeyID != "" && c.PrivateKey != ""
}

// DefaultConfig returns defaults for the public chart API.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "https://billboard-charts-api.p.rapidapi.com",
		APIHost:   "billboard-charts-api.p.rapidapi.com",
		ChartPath: "/chart.php",
		UserAgent: "go-chart-client/1.0",

		Timeout:         15 * time.Second,
		MaxAttempts:     3,
		RetryBackoff:    time.Second,
		RetryBackoffMax: 10 * time.Second,
		RetryMultiplier: 2,
		RetryJitter:     0.1,

		BreakerThreshold: 3,
		BreakerRecovery:  30 * time.Second,

		CurrentTTL:      time.Hour,
		HistoricalTTL:   7 * 24 * time.Hour,
		StaleRetention:  24 * time.Hour,
		CacheTimeout:    2 * time.Second,
		MemoryCacheSize: 256,

		Catalog: CatalogConfig{
			Enabled:          true,
			BaseURL:          "https://api.music.apple.com",
			Storefront:       "us",
			Timeout:          10 * time.Second,
			MaxAttempts:      2,
			BatchSize:        5,
			BatchDelay:       100 * time.Millisecond,
			ResultTTL:        24 * time.Hour,
			FailureTTL:       5 * time.Minute,
			BreakerThreshold: 5,
			BreakerRecovery:  60 * time.Second,
		},

		OutputFile:   "output/charts.csv",
		OutputFormat: "csv",
		MetricsAddr:  ":9090",
		Parallelism:  2,
		Verbose:      false,
	}
}

// Validate ensures all configuration values are coherent. A missing API key
// is not an error here; fetches report it as not configured.
func (c *Config) Validate() error {
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if c.ChartPath == "" || c.ChartPath[0] != '/' {
		return fmt.Errorf("chart path must start with /")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return fmt.Errorf("retry jitter must be between 0 and 1")
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker threshold must be positive")
	}
	if c.BreakerRecovery <= 0 {
		return fmt.Errorf("breaker recovery must be positive")
	}
	if c.CurrentTTL <= 0 || c.HistoricalTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.StaleRetention < 0 {
		return fmt.Errorf("stale retention cannot be negative")
	}
	if c.CacheTimeout <= 0 {
		return fmt.Errorf("cache timeout must be positive")
	}
	if c.MemoryCacheSize <= 0 {
		return fmt.Errorf("memory cache size must be positive")
	}
	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
	}
	if err := c.Catalog.validate(); err != nil {
		return err
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func (c CatalogConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validateURL("catalog base URL", c.BaseURL); err != nil {
		return err
	}
	if c.Storefront == "" {
		return fmt.Errorf("catalog storefront cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("catalog max attempts must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("catalog batch size must be positive")
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("catalog batch delay cannot be negative")
	}
	if c.ResultTTL <= 0 || c.FailureTTL <= 0 {
		return fmt.Errorf("catalog cache TTLs must be positive")
	}
	if c.BreakerThreshold <= 0 || c.BreakerRecovery <= 0 {
		return fmt.Errorf("catalog breaker settings must be positive")
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
