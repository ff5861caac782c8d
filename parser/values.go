package parser

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// siteOrigin resolves root-relative links in upstream payloads.
const siteOrigin = "https://www.billboard.com"

// stringValue returns the trimmed text of a scalar value. ok is false for
// missing, empty or non-scalar values.
func stringValue(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func stringOr(v any, fallback string) string {
	if s, ok := stringValue(v); ok {
		return s
	}
	return fallback
}

// intValue parses v leniently. Numbers truncate toward zero; strings use
// their leading integer ("12abc" is 12, "abc" is unparsable).
func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return clampInt(float64(n)), true
		}
		f, err := t.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return clampInt(math.Trunc(f)), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return clampInt(math.Trunc(t)), true
	case int:
		return t, true
	case string:
		return leadingInt(t)
	default:
		return 0, false
	}
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		// Only range errors reach here; saturate like a float parse would.
		if s[0] == '-' {
			return math.MinInt32, true
		}
		return math.MaxInt32, true
	}
	return clampInt(float64(n)), true
}

func clampInt(f float64) int {
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// intOr parses v and applies floor, falling back when unparsable.
func intOr(v any, fallback, floor int) int {
	n, ok := intValue(v)
	if !ok {
		n = fallback
	}
	return max(n, floor)
}

// absoluteURL normalizes v into an absolute http(s) URL, or returns fallback.
func absoluteURL(v any, fallback string) string {
	s, ok := stringValue(v)
	if !ok {
		return fallback
	}
	switch {
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case strings.HasPrefix(s, "/"):
		s = siteOrigin + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fallback
	}
	return s
}
