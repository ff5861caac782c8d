package charts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-chart-client/models"
	"github.com/aluiziolira/go-chart-client/resilience"
)

const maxErrorBody = 1 << 10

// fetchRaw performs one upstream request. The attempt deadline comes from ctx.
func (c *Client) fetchRaw(ctx context.Context, chartID, week string, timeout time.Duration) (models.RawChart, error) {
	query := url.Values{}
	query.Set("id", chartID)
	if week != "" {
		query.Set("week", week)
	}
	endpoint := c.cfg.BaseURL + c.cfg.ChartPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build chart request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, resilience.ClassifyTransport(err, timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &resilience.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var raw models.RawChart
	if err := dec.Decode(&raw); err != nil {
		return nil, resilience.ClassifyTransport(fmt.Errorf("decode chart payload: %w", err), timeout)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode chart payload: empty body")
	}
	return raw, nil
}
