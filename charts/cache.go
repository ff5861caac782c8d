package charts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-chart-client/models"
)

// cacheEntry is the stored form of a snapshot. The store keeps it past
// FreshUntil so it can still serve as a stale fallback.
type cacheEntry struct {
	FreshUntil time.Time            `json:"fresh_until"`
	StoredAt   time.Time            `json:"stored_at"`
	Snapshot   models.ChartSnapshot `json:"snapshot"`
}

// cacheContext bounds a cache call independently of the caller's deadline.
func (c *Client) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CacheTimeout)
}

// readCache looks up key. With requireFresh, entries past their freshness
// window are treated as misses. Store failures are logged and reported as misses.
func (c *Client) readCache(ctx context.Context, key string, requireFresh bool, log *slog.Logger) (models.ChartSnapshot, bool) {
	if c.store == nil {
		return models.ChartSnapshot{}, false
	}

	cctx, cancel := c.cacheContext(ctx)
	defer cancel()

	data, ok, err := c.store.Get(cctx, key)
	if err != nil {
		c.metrics.IncCacheError("get")
		log.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		return models.ChartSnapshot{}, false
	}
	if !ok {
		return models.ChartSnapshot{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.metrics.IncCacheError("decode")
		log.Warn("discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		return models.ChartSnapshot{}, false
	}
	if requireFresh && !c.now().Before(entry.FreshUntil) {
		return models.ChartSnapshot{}, false
	}
	return entry.Snapshot, true
}

// writeCache stores snap as fresh for ttl and retained for StaleRetention
// beyond that. Failures are logged and ignored.
func (c *Client) writeCache(ctx context.Context, key string, snap models.ChartSnapshot, ttl time.Duration, log *slog.Logger) {
	if c.store == nil {
		return
	}

	now := c.now()
	data, err := json.Marshal(cacheEntry{
		FreshUntil: now.Add(ttl),
		StoredAt:   now,
		Snapshot:   snap,
	})
	if err != nil {
		c.metrics.IncCacheError("encode")
		log.Warn("cache encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}

	cctx, cancel := c.cacheContext(ctx)
	defer cancel()
	if err := c.store.Set(cctx, key, data, ttl+c.cfg.StaleRetention); err != nil {
		c.metrics.IncCacheError("set")
		log.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	log.Debug("chart cached", slog.String("key", key), slog.Duration("ttl", ttl))
}
