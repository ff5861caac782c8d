package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-chart-client/cache"
	"github.com/aluiziolira/go-chart-client/models"
	"github.com/aluiziolira/go-chart-client/resilience"
)

// Searcher looks up a song in the catalog. A nil match with a nil error
// means the catalog has no such song.
type Searcher interface {
	Search(ctx context.Context, title, artist string) (*models.CatalogMatch, error)
}

// Options configures a Service. Zero values take the defaults noted.
type Options struct {
	Store        cache.Store         // optional
	Breaker      *resilience.Breaker // default: CatalogAPIBreaker
	Policy       resilience.Policy   // default: CatalogAPIPolicy
	BatchSize    int                 // default 5
	BatchDelay   time.Duration
	ResultTTL    time.Duration // default 24h
	FailureTTL   time.Duration // default 5m
	CacheTimeout time.Duration // default 2s
	BaseURL      string
}

// Service enriches chart entries with catalog matches. Lookups are cached,
// breaker-guarded and retried; a failed lookup leaves the entry unmatched.
type Service struct {
	searcher Searcher
	opts     Options
}

// NewService builds a Service around searcher.
func NewService(searcher Searcher, opts Options) *Service {
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker(resilience.CatalogAPIBreaker())
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = resilience.CatalogAPIPolicy()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 24 * time.Hour
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = 5 * time.Minute
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = 2 * time.Second
	}
	return &Service{searcher: searcher, opts: opts}
}

// SearchKey returns the cache key for a lookup.
func SearchKey(title, artist string) string {
	return fmt.Sprintf("apple_music:search:%s:%s", title, artist)
}

// Enrich returns a copy of entries with Catalog filled where a match was
// found. Entries are processed in batches with a pause between batches.
func (s *Service) Enrich(ctx context.Context, entries []models.ChartEntry) []models.ChartEntry {
	out := make([]models.ChartEntry, len(entries))
	copy(out, entries)

	start := time.Now()
	matched := 0
	for lo := 0; lo < len(out); lo += s.opts.BatchSize {
		if lo > 0 && s.opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				slog.Warn("enrichment interrupted", slog.Int("processed", lo), slog.Any("error", ctx.Err()))
				return out
			case <-time.After(s.opts.BatchDelay):
			}
		}

		hi := min(lo+s.opts.BatchSize, len(out))
		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				out[i].Catalog = s.Lookup(ctx, out[i].Name, out[i].Artist)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, e := range out {
		if e.Catalog != nil {
			matched++
		}
	}
	slog.Debug("enrichment complete",
		slog.Int("entries", len(out)),
		slog.Int("matched", matched),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out
}

// Lookup returns the catalog match for one song, or nil on a miss or failure.
func (s *Service) Lookup(ctx context.Context, title, artist string) *models.CatalogMatch {
	key := SearchKey(title, artist)
	if match, ok := s.cached(ctx, key); ok {
		return match
	}

	match, err := resilience.Execute(s.opts.Breaker, func() (*models.CatalogMatch, error) {
		res, err := resilience.Run(ctx, s.opts.Policy, func(ctx context.Context) (*models.CatalogMatch, error) {
			return s.searcher.Search(ctx, title, artist)
		})
		return res.Value, err
	})
	if err != nil {
		slog.Warn("catalog lookup failed",
			slog.String("title", title),
			slog.String("artist", artist),
			slog.String("error_type", resilience.ErrorTypeLabel(err)),
			slog.Any("error", err),
		)
		if !resilience.IsCircuitOpen(err) && ctx.Err() == nil {
			s.remember(ctx, key, nil, s.opts.FailureTTL)
		}
		return nil
	}

	s.remember(ctx, key, match, s.opts.ResultTTL)
	return match
}

func (s *Service) cached(ctx context.Context, key string) (*models.CatalogMatch, bool) {
	if s.opts.Store == nil {
		return nil, false
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CacheTimeout)
	defer cancel()

	data, ok, err := s.opts.Store.Get(cctx, key)
	if err != nil {
		slog.Warn("catalog cache read failed", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var match *models.CatalogMatch
	if err := json.Unmarshal(data, &match); err != nil {
		return nil, false
	}
	return match, true
}

// remember caches match; a nil match is cached as a negative result.
func (s *Service) remember(ctx context.Context, key string, match *models.CatalogMatch, ttl time.Duration) {
	if s.opts.Store == nil {
		return
	}
	data, err := json.Marshal(match)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CacheTimeout)
	defer cancel()
	if err := s.opts.Store.Set(cctx, key, data, ttl); err != nil {
		slog.Warn("catalog cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Breaker returns the breaker guarding catalog lookups.
func (s *Service) Breaker() *resilience.Breaker {
	return s.opts.Breaker
}

// Health describes the catalog dependency.
func (s *Service) Health() models.DependencyHealth {
	bh := s.opts.Breaker.Health()
	hasCredentials := true
	if client, ok := s.searcher.(*CatalogClient); ok {
		hasCredentials = client.tokens != nil
	}
	return models.DependencyHealth{
		Name:                bh.Name,
		BaseURL:             s.opts.BaseURL,
		HasAPIKey:           hasCredentials,
		HasCache:            s.opts.Store != nil,
		BreakerState:        bh.State.String(),
		ConsecutiveFailures: bh.ConsecutiveFailures,
		LastTrip:            bh.LastTrip,
	}
}
