package parser

import (
	"fmt"
	"strings"
)

// Kind is the content type of a chart, derived from its identifier.
type Kind int

const (
	KindSong Kind = iota
	KindArtist
	KindAlbum
)

func (k Kind) String() string {
	switch k {
	case KindArtist:
		return "artist"
	case KindAlbum:
		return "album"
	default:
		return "song"
	}
}

// Classify maps a chart identifier to its content kind.
func Classify(chartID string) Kind {
	id := strings.ToLower(chartID)
	switch {
	case strings.Contains(id, "artist"):
		return KindArtist
	case strings.Contains(id, "album") || strings.Contains(id, "200"):
		return KindAlbum
	default:
		return KindSong
	}
}

// extractor resolves the kind-dependent fields of an entry.
type extractor interface {
	fallbackName(position int) string
	artist(item map[string]any, position int) string
}

func extractorFor(kind Kind) extractor {
	switch kind {
	case KindArtist:
		return artistExtractor{}
	case KindAlbum:
		return trackExtractor{prefix: "Album"}
	default:
		return trackExtractor{prefix: "Track"}
	}
}

// trackExtractor handles song and album charts, where the artist is a
// separate field or the tail of a "Title - Artist" name.
type trackExtractor struct {
	prefix string
}

func (e trackExtractor) fallbackName(position int) string {
	return fmt.Sprintf("%s %d", e.prefix, position)
}

func (trackExtractor) artist(item map[string]any, _ int) string {
	if artist, ok := stringValue(item["artist"]); ok {
		return artist
	}
	if name, ok := stringValue(item["name"]); ok {
		if _, tail, found := strings.Cut(name, " - "); found {
			if tail, _, _ = strings.Cut(tail, " - "); strings.TrimSpace(tail) != "" {
				return strings.TrimSpace(tail)
			}
		}
	}
	return UnknownArtist
}

// artistExtractor handles artist charts, which report the artist as "name".
type artistExtractor struct{}

func (artistExtractor) fallbackName(position int) string {
	return fmt.Sprintf("Artist %d", position)
}

func (e artistExtractor) artist(item map[string]any, position int) string {
	if name, ok := stringValue(item["name"]); ok {
		return name
	}
	if artist, ok := stringValue(item["artist"]); ok {
		return artist
	}
	return e.fallbackName(position)
}
