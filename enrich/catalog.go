package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-chart-client/models"
	"github.com/aluiziolira/go-chart-client/resilience"
)

const artworkSize = "1000x1000"

// Tokener supplies bearer tokens for catalog requests.
type Tokener interface {
	Token() (string, error)
}

// CatalogClient searches the catalog API for songs.
type CatalogClient struct {
	baseURL    string
	storefront string
	tokens     Tokener
	httpClient *http.Client
	timeout    time.Duration
}

// NewCatalogClient returns a client for baseURL. A nil httpClient uses a
// default client.
func NewCatalogClient(baseURL, storefront string, tokens Tokener, httpClient *http.Client, timeout time.Duration) *CatalogClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &CatalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		storefront: storefront,
		tokens:     tokens,
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// BaseURL returns the catalog endpoint.
func (c *CatalogClient) BaseURL() string {
	return c.baseURL
}

type searchResponse struct {
	Results struct {
		Songs struct {
			Data []songResource `json:"data"`
		} `json:"songs"`
	} `json:"results"`
}

type songResource struct {
	ID         string `json:"id"`
	Attributes struct {
		URL      string `json:"url"`
		Previews []struct {
			URL string `json:"url"`
		} `json:"previews"`
		Artwork struct {
			URL string `json:"url"`
		} `json:"artwork"`
	} `json:"attributes"`
}

// Search returns the best catalog match for a song, or nil when the catalog
// has none.
func (c *CatalogClient) Search(ctx context.Context, title, artist string) (*models.CatalogMatch, error) {
	if c.tokens == nil {
		return nil, ErrNoCredentials
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("term", strings.TrimSpace(title+" "+artist))
	query.Set("types", "songs")
	query.Set("limit", "1")
	endpoint := fmt.Sprintf("%s/v1/catalog/%s/search?%s", c.baseURL, url.PathEscape(c.storefront), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.ClassifyTransport(err, c.timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &resilience.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resilience.ClassifyTransport(fmt.Errorf("decode catalog response: %w", err), c.timeout)
	}
	if len(payload.Results.Songs.Data) == 0 {
		return nil, nil
	}

	song := payload.Results.Songs.Data[0]
	match := &models.CatalogMatch{
		ID:         song.ID,
		URL:        song.Attributes.URL,
		ArtworkURL: strings.Replace(song.Attributes.Artwork.URL, "{w}x{h}", artworkSize, 1),
	}
	if len(song.Attributes.Previews) > 0 {
		match.PreviewURL = song.Attributes.Previews[0].URL
	}
	return match, nil
}
