package parser

import (
	"strings"

	"github.com/aluiziolira/go-chart-client/models"
)

// GenericTitle is the literal some upstream responses use for an unknown chart.
const GenericTitle = "Unknown"

// Validation issue descriptions.
const (
	IssueMissingTitle       = "missing or invalid chart title"
	IssueNoEntries          = "no songs in response"
	IssuePlaceholderData    = "more than 50% of songs have placeholder data"
	IssueDuplicatePositions = "duplicate chart positions detected"
)

// Validate runs every quality check against snap and reports all issues.
func Validate(snap models.ChartSnapshot) models.Validation {
	var issues []string

	if title := strings.TrimSpace(snap.Title); title == "" || title == GenericTitle {
		issues = append(issues, IssueMissingTitle)
	}
	if len(snap.Entries) == 0 {
		issues = append(issues, IssueNoEntries)
	}

	placeholders := 0
	seen := make(map[int]struct{}, len(snap.Entries))
	duplicate := false
	for _, e := range snap.Entries {
		if e.Name == PlaceholderName || e.Artist == UnknownArtist {
			placeholders++
		}
		if _, ok := seen[e.Position]; ok {
			duplicate = true
		}
		seen[e.Position] = struct{}{}
	}
	if placeholders*2 > len(snap.Entries) {
		issues = append(issues, IssuePlaceholderData)
	}
	if duplicate {
		issues = append(issues, IssueDuplicatePositions)
	}

	return models.Validation{Valid: len(issues) == 0, Issues: issues}
}

// QualityScore is 1 minus 0.2 per issue, clipped to [0,1].
func QualityScore(v models.Validation) float64 {
	score := 1 - 0.2*float64(len(v.Issues))
	return min(1, max(0, score))
}
