// Package export writes fetched chart rows to CSV and JSON lines files.
package export

import (
	"strconv"

	"github.com/aluiziolira/go-chart-client/models"
)

// Row is one flattened chart entry.
type Row struct {
	ChartID          string `json:"chart_id"`
	ChartTitle       string `json:"chart_title"`
	Week             string `json:"week"`
	Position         int    `json:"position"`
	Name             string `json:"name"`
	Artist           string `json:"artist"`
	LastWeekPosition int    `json:"last_week_position"`
	PeakPosition     int    `json:"peak_position"`
	WeeksOnChart     int    `json:"weeks_on_chart"`
	IsNew            bool   `json:"is_new"`
	ImageURL         string `json:"image"`
	PageURL          string `json:"url"`
	CatalogID        string `json:"catalog_id,omitempty"`
	CatalogURL       string `json:"catalog_url,omitempty"`
	PreviewURL       string `json:"preview_url,omitempty"`
}

var csvHeader = []string{
	"chart_id", "chart_title", "week", "position", "name", "artist",
	"last_week_position", "peak_position", "weeks_on_chart", "is_new",
	"image", "url", "catalog_id", "catalog_url", "preview_url",
}

func (r Row) record() []string {
	return []string{
		r.ChartID,
		r.ChartTitle,
		r.Week,
		strconv.Itoa(r.Position),
		r.Name,
		r.Artist,
		strconv.Itoa(r.LastWeekPosition),
		strconv.Itoa(r.PeakPosition),
		strconv.Itoa(r.WeeksOnChart),
		strconv.FormatBool(r.IsNew),
		r.ImageURL,
		r.PageURL,
		r.CatalogID,
		r.CatalogURL,
		r.PreviewURL,
	}
}

// key identifies a row across charts and weeks.
func (r Row) key() string {
	return r.ChartID + "|" + r.Week + "|" + strconv.Itoa(r.Position)
}

// RowsFromSnapshot flattens snap into rows tagged with chartID.
func RowsFromSnapshot(chartID string, snap models.ChartSnapshot) []Row {
	rows := make([]Row, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		row := Row{
			ChartID:          chartID,
			ChartTitle:       snap.Title,
			Week:             snap.Week,
			Position:         e.Position,
			Name:             e.Name,
			Artist:           e.Artist,
			LastWeekPosition: e.LastWeekPosition,
			PeakPosition:     e.PeakPosition,
			WeeksOnChart:     e.WeeksOnChart,
			IsNew:            e.IsNew(),
			ImageURL:         e.ImageURL,
			PageURL:          e.PageURL,
		}
		if e.Catalog != nil {
			row.CatalogID = e.Catalog.ID
			row.CatalogURL = e.Catalog.URL
			row.PreviewURL = e.Catalog.PreviewURL
		}
		rows = append(rows, row)
	}
	return rows
}
