// Package models defines data structures shared by the chart client.
package models

import "time"

// RawChart is the loosely typed upstream payload as decoded from JSON.
// Numbers are kept as json.Number so the transformer can parse them leniently.
type RawChart map[string]any

// ChartEntry is one fully populated chart row.
type ChartEntry struct {
	Position         int           `json:"position"`
	Name             string        `json:"name"`
	Artist           string        `json:"artist"`
	ImageURL         string        `json:"image"`
	LastWeekPosition int           `json:"last_week_position"`
	PeakPosition     int           `json:"peak_position"`
	WeeksOnChart     int           `json:"weeks_on_chart"`
	PageURL          string        `json:"url"`
	Catalog          *CatalogMatch `json:"catalog,omitempty"`
}

// IsNew reports whether the entry did not chart the previous week.
func (e ChartEntry) IsNew() bool {
	return e.LastWeekPosition == 0
}

// ChartSnapshot is a transformed chart for a single week.
type ChartSnapshot struct {
	Info    string       `json:"info"`
	Title   string       `json:"title"`
	Week    string       `json:"week"`
	Entries []ChartEntry `json:"songs"`
}

// Clone returns a copy whose entries slice can be modified independently.
func (s ChartSnapshot) Clone() ChartSnapshot {
	out := s
	out.Entries = make([]ChartEntry, len(s.Entries))
	copy(out.Entries, s.Entries)
	return out
}

// Validation is the outcome of a data-quality check.
type Validation struct {
	Valid  bool
	Issues []string
}

// FetchResult wraps a snapshot with information about how it was obtained.
type FetchResult struct {
	Snapshot        ChartSnapshot
	ServedFromCache bool
	Stale           bool
	AttemptCount    int
	WasTransformed  bool
	QualityScore    float64
	Issues          []string
	ResponseTime    time.Duration
}

// DependencyHealth describes one external dependency for status reporting.
type DependencyHealth struct {
	Name                string    `json:"name"`
	BaseURL             string    `json:"base_url"`
	HasAPIKey           bool      `json:"has_api_key"`
	HasCache            bool      `json:"has_cache"`
	BreakerState        string    `json:"breaker_state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastTrip            time.Time `json:"last_trip,omitzero"`
}
