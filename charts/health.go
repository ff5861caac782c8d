package charts

import (
	"context"

	"github.com/aluiziolira/go-chart-client/cache"
	"github.com/aluiziolira/go-chart-client/models"
)

// HealthReporter is implemented by enrichers that can describe their dependency.
type HealthReporter interface {
	Health() models.DependencyHealth
}

// HealthReport summarizes the client's dependencies.
type HealthReport struct {
	Status         string                   `json:"status"`
	CacheReachable bool                     `json:"cache_reachable"`
	Upstream       models.DependencyHealth  `json:"upstream"`
	Enrichment     *models.DependencyHealth `json:"enrichment,omitempty"`
}

// Health reports "ok" when the API key is set and the cache answers,
// "degraded" otherwise.
func (c *Client) Health(ctx context.Context) HealthReport {
	reachable := c.cacheReachable(ctx)
	bh := c.breaker.Health()

	report := HealthReport{
		Status:         "degraded",
		CacheReachable: reachable,
		Upstream: models.DependencyHealth{
			Name:                bh.Name,
			BaseURL:             c.cfg.BaseURL,
			HasAPIKey:           c.cfg.APIKey != "",
			HasCache:            c.store != nil,
			BreakerState:        bh.State.String(),
			ConsecutiveFailures: bh.ConsecutiveFailures,
			LastTrip:            bh.LastTrip,
		},
	}
	if reporter, ok := c.enricher.(HealthReporter); ok {
		h := reporter.Health()
		report.Enrichment = &h
	}
	if report.Upstream.HasAPIKey && reachable {
		report.Status = "ok"
	}
	return report
}

func (c *Client) cacheReachable(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	pinger, ok := c.store.(cache.Pinger)
	if !ok {
		return true
	}
	cctx, cancel := c.cacheContext(ctx)
	defer cancel()
	return pinger.Ping(cctx) == nil
}
