// Package parser turns loosely typed upstream chart payloads into complete
// snapshots and scores their quality.
package parser

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/go-chart-client/models"
)

// Placeholder values used when upstream data is missing or unusable.
const (
	PlaceholderImage   = "https://placeholder.com/image.jpg"
	PlaceholderPageURL = siteOrigin + "/charts/"
	PlaceholderName    = "No Data Available"
	UnknownArtist      = "Unknown Artist"
)

// Transform converts raw into a snapshot dated today (UTC) when the payload
// has no week. It never fails.
func Transform(raw models.RawChart, chartID string) models.ChartSnapshot {
	return TransformAt(raw, chartID, time.Now())
}

// TransformAt is Transform with an explicit clock.
func TransformAt(raw models.RawChart, chartID string, now time.Time) models.ChartSnapshot {
	ex := extractorFor(Classify(chartID))

	snap := models.ChartSnapshot{
		Info:  stringOr(raw["info"], "Chart information for "+chartID),
		Title: stringOr(raw["title"], DefaultTitle(chartID)),
		Week:  stringOr(raw["week"], now.UTC().Format(time.DateOnly)),
	}

	items, _ := raw["songs"].([]any)
	snap.Entries = make([]models.ChartEntry, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			slog.Warn("skipping malformed chart item",
				slog.String("chart", chartID),
				slog.Int("index", i),
				slog.String("type", fmt.Sprintf("%T", item)),
			)
			continue
		}
		entry, err := transformItem(ex, fields, i)
		if err != nil {
			slog.Warn("failed to transform chart item",
				slog.String("chart", chartID),
				slog.Int("index", i),
				slog.Any("error", err),
			)
			continue
		}
		snap.Entries = append(snap.Entries, entry)
	}

	if len(snap.Entries) == 0 {
		slog.Warn("no valid entries in chart payload", slog.String("chart", chartID))
		snap.Entries = append(snap.Entries, placeholderEntry())
	}
	return snap
}

// DefaultTitle is the title used when upstream omits one.
func DefaultTitle(chartID string) string {
	return "Billboard " + strings.ToUpper(strings.ReplaceAll(chartID, "-", " "))
}

func transformItem(ex extractor, item map[string]any, index int) (entry models.ChartEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic transforming item: %v", r)
		}
	}()

	position, ok := intValue(item["position"])
	if !ok || position <= 0 {
		position = index + 1
	}

	return models.ChartEntry{
		Position:         position,
		Name:             stringOr(item["name"], ex.fallbackName(position)),
		Artist:           ex.artist(item, position),
		ImageURL:         absoluteURL(item["image"], PlaceholderImage),
		LastWeekPosition: intOr(item["last_week_position"], 0, 0),
		PeakPosition:     intOr(item["peak_position"], position, 1),
		WeeksOnChart:     intOr(item["weeks_on_chart"], 1, 1),
		PageURL:          absoluteURL(item["url"], PlaceholderPageURL),
	}, nil
}

func placeholderEntry() models.ChartEntry {
	return models.ChartEntry{
		Position:         1,
		Name:             PlaceholderName,
		Artist:           "Billboard",
		ImageURL:         PlaceholderImage,
		LastWeekPosition: 0,
		PeakPosition:     1,
		WeeksOnChart:     1,
		PageURL:          siteOrigin,
	}
}
