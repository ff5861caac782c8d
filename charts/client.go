// Package charts implements the cache-aside chart client: cached reads,
// breaker-guarded retried upstream fetches and stale fallback.
package charts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-chart-client/cache"
	"github.com/aluiziolira/go-chart-client/config"
	"github.com/aluiziolira/go-chart-client/models"
	"github.com/aluiziolira/go-chart-client/parser"
	"github.com/aluiziolira/go-chart-client/resilience"
)

const (
	// DefaultChartID is fetched when no chart is named.
	DefaultChartID = "hot-100"
	// StaleQualityScore is reported for snapshots served by stale fallback.
	StaleQualityScore = 0.5
)

// Enricher decorates chart entries with data from another service. It must
// not fail; entries it cannot enrich are returned unchanged.
type Enricher interface {
	Enrich(ctx context.Context, entries []models.ChartEntry) []models.ChartEntry
}

// FetchOptions tune a single FetchChart call.
type FetchOptions struct {
	// Week selects a historical chart (YYYY-MM-DD). Empty means current.
	Week         string
	ForceRefresh bool
	// Timeout overrides the per-attempt timeout.
	Timeout time.Duration
	// SkipEnrichment returns entries without catalog matches. Enrichment
	// otherwise runs on every result, cache hits included, and a full chart
	// costs one batch pause per BatchSize entries (about 2s for 100 entries
	// at the defaults) even when lookups are cached.
	SkipEnrichment bool
}

// Client fetches charts through the cache, breaker and retry layers.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	store      cache.Store
	breaker    *resilience.Breaker
	enricher   Enricher
	metrics    *Metrics
	policy     resilience.Policy
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithCache sets the cache store. Without one every fetch goes upstream.
func WithCache(store cache.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithBreaker shares an existing breaker for the chart upstream.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithEnricher enables enrichment of returned entries.
func WithEnricher(e Enricher) Option {
	return func(c *Client) { c.enricher = e }
}

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records request, retry and breaker metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetryPolicy replaces the policy derived from the config.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient builds a Client from cfg. The API key may be empty; fetches that
// reach the upstream then fail as not configured.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, &ConfigError{Field: "config"}
	}
	if cfg.BaseURL == "" {
		return nil, &ConfigError{Field: "base URL"}
	}

	c := &Client{
		cfg: cfg,
		policy: resilience.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialDelay:   cfg.RetryBackoff,
			MaxDelay:       cfg.RetryBackoffMax,
			Multiplier:     cfg.RetryMultiplier,
			JitterFraction: cfg.RetryJitter,
			AttemptTimeout: cfg.Timeout,
			ShouldRetry:    resilience.ChartAPIRetryable,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Name:             "billboard",
			FailureThreshold: cfg.BreakerThreshold,
			RecoveryTimeout:  cfg.BreakerRecovery,
		})
	}
	if err := c.metrics.RegisterBreaker(c.breaker); err != nil {
		return nil, fmt.Errorf("register breaker metrics: %w", err)
	}
	return c, nil
}

// Breaker returns the breaker guarding the chart upstream.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// CacheKey returns the store key for a chart and week.
func CacheKey(chartID, week string) string {
	if week == "" {
		week = "current"
	}
	return fmt.Sprintf("billboard:chart:%s:%s", chartID, week)
}

func normalizeChartID(chartID string) string {
	if id := strings.TrimSpace(chartID); id != "" {
		return id
	}
	return DefaultChartID
}

// FetchChart returns the chart, from cache when fresh, otherwise from the
// upstream. When the upstream fails, a stale cached copy is served if one
// exists; otherwise a *FetchError is returned.
func (c *Client) FetchChart(ctx context.Context, chartID string, opts FetchOptions) (*models.FetchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	chartID = normalizeChartID(chartID)
	key := CacheKey(chartID, opts.Week)
	log := slog.With(
		slog.String("chart", chartID),
		slog.String("fetch_id", uuid.NewString()),
	)
	if opts.Week != "" {
		log = log.With(slog.String("week", opts.Week))
	}

	if !opts.ForceRefresh {
		if snap, ok := c.readCache(ctx, key, true, log); ok {
			c.metrics.IncRequest("cache_hit")
			log.Debug("chart served from cache")
			return c.finish(ctx, &models.FetchResult{
				Snapshot:        snap,
				ServedFromCache: true,
				QualityScore:    1,
			}, opts, start, log), nil
		}
	}

	if c.cfg.APIKey == "" {
		c.metrics.IncRequest("not_configured")
		err := &ConfigError{Field: "RAPIDAPI_KEY"}
		log.Error("chart API key not configured")
		return nil, &FetchError{Kind: KindNotConfigured, ChartID: chartID, Err: err}
	}

	attemptTimeout := c.policy.AttemptTimeout
	if opts.Timeout > 0 {
		attemptTimeout = opts.Timeout
	}
	policy := c.policy
	policy.AttemptTimeout = attemptTimeout
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.metrics.IncRetries()
		log.Warn("retrying chart fetch",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error_type", resilience.ErrorTypeLabel(err)),
			slog.Any("error", err),
		)
		if c.policy.OnRetry != nil {
			c.policy.OnRetry(err, attempt, delay)
		}
	}

	attempts := 0
	raw, err := resilience.Execute(c.breaker, func() (models.RawChart, error) {
		res, err := resilience.Run(ctx, policy, func(ctx context.Context) (models.RawChart, error) {
			return c.fetchRaw(ctx, chartID, opts.Week, attemptTimeout)
		})
		attempts = res.Attempts
		return res.Value, err
	})
	if err != nil {
		return c.fallback(ctx, chartID, key, attempts, err, opts, start, log)
	}

	snap := parser.Transform(raw, chartID)
	validation := parser.Validate(snap)
	score := parser.QualityScore(validation)
	if !validation.Valid {
		log.Warn("chart data quality issues",
			slog.Any("issues", validation.Issues),
			slog.Float64("quality", score),
		)
	}
	c.metrics.ObserveQuality(score)
	c.writeCache(ctx, key, snap, c.ttlFor(opts.Week), log)
	c.metrics.IncRequest("fetched")

	return c.finish(ctx, &models.FetchResult{
		Snapshot:       snap,
		AttemptCount:   attempts,
		WasTransformed: true,
		QualityScore:   score,
		Issues:         validation.Issues,
	}, opts, start, log), nil
}

func (c *Client) fallback(ctx context.Context, chartID, key string, attempts int, fetchErr error, opts FetchOptions, start time.Time, log *slog.Logger) (*models.FetchResult, error) {
	label := resilience.ErrorTypeLabel(fetchErr)
	c.metrics.IncError(label)
	log.Warn("chart fetch failed",
		slog.Int("attempts", attempts),
		slog.String("error_type", label),
		slog.Any("error", fetchErr),
	)

	if snap, ok := c.readCache(ctx, key, false, log); ok {
		c.metrics.IncRequest("stale")
		log.Info("serving stale chart from cache")
		return c.finish(ctx, &models.FetchResult{
			Snapshot:        snap,
			ServedFromCache: true,
			Stale:           true,
			AttemptCount:    attempts,
			QualityScore:    StaleQualityScore,
		}, opts, start, log), nil
	}

	c.metrics.IncRequest("failed")
	ferr := newFetchError(chartID, fetchErr)
	log.Error("chart unavailable", slog.String("kind", string(ferr.Kind)), slog.Any("error", fetchErr))
	return nil, ferr
}

func (c *Client) finish(ctx context.Context, result *models.FetchResult, opts FetchOptions, start time.Time, log *slog.Logger) *models.FetchResult {
	if c.enricher != nil && !opts.SkipEnrichment {
		snap := result.Snapshot.Clone()
		snap.Entries = c.enricher.Enrich(ctx, snap.Entries)
		result.Snapshot = snap
	}
	result.ResponseTime = time.Since(start)
	log.Info("chart fetch complete",
		slog.Bool("from_cache", result.ServedFromCache),
		slog.Bool("stale", result.Stale),
		slog.Int("attempts", result.AttemptCount),
		slog.Int("entries", len(result.Snapshot.Entries)),
		slog.Float64("quality", result.QualityScore),
		slog.Duration("elapsed", result.ResponseTime),
	)
	return result
}

func (c *Client) ttlFor(week string) time.Duration {
	if week != "" {
		return c.cfg.HistoricalTTL
	}
	return c.cfg.CurrentTTL
}

// InvalidateChart removes the cached copy of a chart.
func (c *Client) InvalidateChart(ctx context.Context, chartID, week string) error {
	if c.store == nil {
		return nil
	}
	key := CacheKey(normalizeChartID(chartID), week)
	cctx, cancel := c.cacheContext(ctx)
	defer cancel()
	if err := c.store.Delete(cctx, key); err != nil {
		c.metrics.IncCacheError("delete")
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}
