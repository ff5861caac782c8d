package parser

import (
	"math"
	"testing"

	"github.com/aluiziolira/go-chart-client/models"
)

func entry(position int, name, artist string) models.ChartEntry {
	return models.ChartEntry{Position: position, Name: name, Artist: artist, PeakPosition: position, WeeksOnChart: 1}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		snap       models.ChartSnapshot
		wantIssues []string
	}{
		{
			name: "clean",
			snap: models.ChartSnapshot{Title: "Billboard Hot 100", Entries: []models.ChartEntry{
				entry(1, "A", "x"), entry(2, "B", "y"),
			}},
		},
		{
			name: "duplicate positions",
			snap: models.ChartSnapshot{Title: "Billboard Hot 100", Entries: []models.ChartEntry{
				entry(1, "A", "x"), entry(1, "B", "y"),
			}},
			wantIssues: []string{IssueDuplicatePositions},
		},
		{
			name:       "generic title and empty",
			snap:       models.ChartSnapshot{Title: GenericTitle},
			wantIssues: []string{IssueMissingTitle, IssueNoEntries},
		},
		{
			name: "mostly placeholders",
			snap: models.ChartSnapshot{Title: "T", Entries: []models.ChartEntry{
				entry(1, PlaceholderName, "x"), entry(2, "B", UnknownArtist), entry(3, "C", "z"),
			}},
			wantIssues: []string{IssuePlaceholderData},
		},
		{
			name: "exactly half placeholders",
			snap: models.ChartSnapshot{Title: "T", Entries: []models.ChartEntry{
				entry(1, PlaceholderName, "x"), entry(2, "B", "y"),
			}},
		},
		{
			name: "everything wrong",
			snap: models.ChartSnapshot{Title: "  ", Entries: []models.ChartEntry{
				entry(1, PlaceholderName, UnknownArtist), entry(1, "B", UnknownArtist),
			}},
			wantIssues: []string{IssueMissingTitle, IssuePlaceholderData, IssueDuplicatePositions},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.snap)
			if got.Valid != (len(tt.wantIssues) == 0) {
				t.Fatalf("valid = %v with issues %v", got.Valid, got.Issues)
			}
			if len(got.Issues) != len(tt.wantIssues) {
				t.Fatalf("issues = %v, want %v", got.Issues, tt.wantIssues)
			}
			for i := range tt.wantIssues {
				if got.Issues[i] != tt.wantIssues[i] {
					t.Fatalf("issues = %v, want %v", got.Issues, tt.wantIssues)
				}
			}
		})
	}
}

func TestValidatePlaceholderSnapshot(t *testing.T) {
	snap := TransformAt(models.RawChart{"songs": []any{nil}}, "hot-100", fixedNow)
	v := Validate(snap)
	if v.Valid {
		t.Fatalf("placeholder snapshot should not be valid")
	}
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		issues int
		want   float64
	}{
		{issues: 0, want: 1},
		{issues: 1, want: 0.8},
		{issues: 2, want: 0.6},
		{issues: 4, want: 0.2},
		{issues: 5, want: 0},
		{issues: 9, want: 0},
	}

	for _, tt := range tests {
		v := models.Validation{Issues: make([]string, tt.issues)}
		if got := QualityScore(v); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("QualityScore(%d issues) = %v, want %v", tt.issues, got, tt.want)
		}
	}
}
