package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-chart-client/models"
)

func sampleSnapshot() models.ChartSnapshot {
	return models.ChartSnapshot{
		Info:  "Billboard Hot 100",
		Title: "Billboard Hot 100",
		Week:  "2025-03-01",
		Entries: []models.ChartEntry{
			{
				Position: 1, Name: "Die With A Smile", Artist: "Lady Gaga & Bruno Mars",
				ImageURL: "https://img.example.test/1.jpg", LastWeekPosition: 2, PeakPosition: 1, WeeksOnChart: 27,
				PageURL: "https://www.billboard.com/charts/hot-100",
				Catalog: &models.CatalogMatch{ID: "175", URL: "https://music.example.test/175", PreviewURL: "https://audio.example.test/175.m4a"},
			},
			{
				Position: 2, Name: "Luther", Artist: "Kendrick Lamar & SZA",
				ImageURL: "https://img.example.test/2.jpg", PeakPosition: 2, WeeksOnChart: 1,
				PageURL: "https://www.billboard.com/charts/hot-100",
			},
		},
	}
}

func TestRowsFromSnapshot(t *testing.T) {
	rows := RowsFromSnapshot("hot-100", sampleSnapshot())
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	first, second := rows[0], rows[1]
	if first.ChartID != "hot-100" || first.Week != "2025-03-01" || first.ChartTitle != "Billboard Hot 100" {
		t.Fatalf("unexpected chart fields: %+v", first)
	}
	if first.CatalogID != "175" || first.PreviewURL == "" {
		t.Fatalf("catalog fields not flattened: %+v", first)
	}
	if first.IsNew {
		t.Fatalf("entry with last week position should not be new")
	}
	if !second.IsNew || second.CatalogID != "" {
		t.Fatalf("unexpected second row: %+v", second)
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "charts.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("expected validation error for header-only file")
	}
	if err := writer.Write(RowsFromSnapshot("hot-100", sampleSnapshot())); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "chart_id" || records[0][3] != "position" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][3] != "1" || records[1][4] != "Die With A Smile" || records[1][12] != "175" {
		t.Fatalf("unexpected first record: %v", records[1])
	}
	if records[2][9] != "true" {
		t.Fatalf("is_new=%q, want true", records[2][9])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("expected validation error for empty file")
	}
	if err := writer.Write(RowsFromSnapshot("hot-100", sampleSnapshot())); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []Row
	for scanner.Scan() {
		var row Row
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, row)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("json lines=%d, want 2", len(decoded))
	}
	if decoded[1].Name != "Luther" || decoded[1].Position != 2 {
		t.Fatalf("unexpected row: %+v", decoded[1])
	}
}

func TestNewWriterDual(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "charts.csv")

	writer, err := NewWriter("DUAL", csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if _, ok := writer.(*DualWriter); !ok {
		t.Fatalf("writer=%T, want *DualWriter", writer)
	}
	if err := writer.Write(RowsFromSnapshot("hot-100", sampleSnapshot())); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	for _, path := range []string{csvPath, filepath.Join(dir, "charts.jsonl")} {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty", path)
		}
	}
}

func TestNewWriterUnsupportedFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "charts.xml")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
