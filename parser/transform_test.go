package parser

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-chart-client/models"
)

var fixedNow = time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)

func decodeRaw(t *testing.T, payload string) models.RawChart {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var raw models.RawChart
	if err := dec.Decode(&raw); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return raw
}

func TestTransformMalformedSongItem(t *testing.T) {
	raw := decodeRaw(t, `{"songs":[{"position":"1","name":"Test","artist":null,"image":"//cdn.x.com/a.jpg"}]}`)

	snap := TransformAt(raw, "hot-100", fixedNow)
	if len(snap.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(snap.Entries))
	}

	want := models.ChartEntry{
		Position:         1,
		Name:             "Test",
		Artist:           "Unknown Artist",
		ImageURL:         "https://cdn.x.com/a.jpg",
		LastWeekPosition: 0,
		PeakPosition:     1,
		WeeksOnChart:     1,
		PageURL:          PlaceholderPageURL,
	}
	if got := snap.Entries[0]; got != want {
		t.Fatalf("entry = %+v, want %+v", got, want)
	}
}

func TestTransformTopLevelFallbacks(t *testing.T) {
	snap := TransformAt(models.RawChart{}, "hot-100", fixedNow)

	if snap.Info != "Chart information for hot-100" {
		t.Fatalf("info = %q", snap.Info)
	}
	if snap.Title != "Billboard HOT 100" {
		t.Fatalf("title = %q", snap.Title)
	}
	if snap.Week != "2024-03-09" {
		t.Fatalf("week = %q", snap.Week)
	}

	raw := decodeRaw(t, `{"info":"  The week's top songs ","title":"Billboard Hot 100™","week":"2024-03-02","songs":[]}`)
	snap = TransformAt(raw, "hot-100", fixedNow)
	if snap.Info != "The week's top songs" || snap.Title != "Billboard Hot 100™" || snap.Week != "2024-03-02" {
		t.Fatalf("snapshot header = %q / %q / %q", snap.Info, snap.Title, snap.Week)
	}
}

func TestTransformEmptyPayloadYieldsPlaceholder(t *testing.T) {
	payloads := map[string]string{
		"missing songs": `{}`,
		"empty songs":   `{"songs":[]}`,
		"all null":      `{"songs":[null,null,null]}`,
		"non objects":   `{"songs":[1,"two",[3]]}`,
		"songs object":  `{"songs":{"position":1}}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			snap := TransformAt(decodeRaw(t, payload), "hot-100", fixedNow)
			if len(snap.Entries) != 1 {
				t.Fatalf("entries = %d, want exactly 1 placeholder", len(snap.Entries))
			}
			e := snap.Entries[0]
			if e.Name != PlaceholderName || e.Artist != "Billboard" || e.Position != 1 || e.PageURL != "https://www.billboard.com" {
				t.Fatalf("placeholder = %+v", e)
			}
		})
	}
}

func TestTransformSkipsBadItemsKeepsOrder(t *testing.T) {
	raw := decodeRaw(t, `{"songs":[
		{"position":3,"name":"Third","artist":"C"},
		null,
		{"position":1,"name":"First","artist":"A"}
	]}`)

	snap := TransformAt(raw, "hot-100", fixedNow)
	if len(snap.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(snap.Entries))
	}
	if snap.Entries[0].Name != "Third" || snap.Entries[1].Name != "First" {
		t.Fatalf("order not preserved: %+v", snap.Entries)
	}
}

func TestTransformPositions(t *testing.T) {
	raw := decodeRaw(t, `{"songs":[
		{"position":"abc","name":"A","artist":"x"},
		{"position":0,"name":"B","artist":"x"},
		{"position":-4,"name":"C","artist":"x"},
		{"position":"12abc","name":"D","artist":"x"},
		{"position":7.9,"name":"E","artist":"x"},
		{"name":"F","artist":"x"}
	]}`)

	snap := TransformAt(raw, "hot-100", fixedNow)
	want := []int{1, 2, 3, 12, 7, 6}
	for i, w := range want {
		if got := snap.Entries[i].Position; got != w {
			t.Fatalf("entry %d position = %d, want %d", i, got, w)
		}
	}
}

func TestTransformChartStatistics(t *testing.T) {
	raw := decodeRaw(t, `{"songs":[
		{"position":5,"name":"A","artist":"x","last_week_position":"3","peak_position":"2","weeks_on_chart":"10"},
		{"position":6,"name":"B","artist":"x","last_week_position":null,"peak_position":"n/a","weeks_on_chart":""},
		{"position":7,"name":"C","artist":"x","last_week_position":-2,"peak_position":0,"weeks_on_chart":0}
	]}`)

	snap := TransformAt(raw, "hot-100", fixedNow)
	tests := []struct {
		lastWeek, peak, weeks int
	}{
		{lastWeek: 3, peak: 2, weeks: 10},
		{lastWeek: 0, peak: 6, weeks: 1},
		{lastWeek: 0, peak: 1, weeks: 1},
	}
	for i, tt := range tests {
		e := snap.Entries[i]
		if e.LastWeekPosition != tt.lastWeek || e.PeakPosition != tt.peak || e.WeeksOnChart != tt.weeks {
			t.Fatalf("entry %d stats = %d/%d/%d, want %d/%d/%d", i,
				e.LastWeekPosition, e.PeakPosition, e.WeeksOnChart, tt.lastWeek, tt.peak, tt.weeks)
		}
	}
	if !snap.Entries[1].IsNew() {
		t.Fatalf("entry without last week position should be new")
	}
}

func TestTransformURLs(t *testing.T) {
	tests := []struct {
		name      string
		image     string
		wantImage string
	}{
		{name: "absolute", image: `"https://cdn.example.com/a.jpg"`, wantImage: "https://cdn.example.com/a.jpg"},
		{name: "protocol relative", image: `"//cdn.example.com/a.jpg"`, wantImage: "https://cdn.example.com/a.jpg"},
		{name: "root relative", image: `"/img/a.jpg"`, wantImage: "https://www.billboard.com/img/a.jpg"},
		{name: "garbage", image: `"not a url"`, wantImage: PlaceholderImage},
		{name: "other scheme", image: `"ftp://cdn.example.com/a.jpg"`, wantImage: PlaceholderImage},
		{name: "null", image: `null`, wantImage: PlaceholderImage},
		{name: "number", image: `42`, wantImage: PlaceholderImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := decodeRaw(t, `{"songs":[{"position":1,"name":"A","artist":"x","image":`+tt.image+`,"url":"/charts/hot-100"}]}`)
			e := TransformAt(raw, "hot-100", fixedNow).Entries[0]
			if e.ImageURL != tt.wantImage {
				t.Fatalf("image = %q, want %q", e.ImageURL, tt.wantImage)
			}
			if e.PageURL != "https://www.billboard.com/charts/hot-100" {
				t.Fatalf("page url = %q", e.PageURL)
			}
		})
	}
}

func TestTransformKinds(t *testing.T) {
	tests := []struct {
		name       string
		chartID    string
		item       string
		wantName   string
		wantArtist string
	}{
		{name: "song split title", chartID: "hot-100", item: `{"position":1,"name":"Flowers - Miley Cyrus"}`, wantName: "Flowers - Miley Cyrus", wantArtist: "Miley Cyrus"},
		{name: "song explicit artist", chartID: "hot-100", item: `{"position":1,"name":"Flowers - X","artist":"Miley Cyrus"}`, wantName: "Flowers - X", wantArtist: "Miley Cyrus"},
		{name: "song missing name", chartID: "hot-100", item: `{"position":4,"artist":"Y"}`, wantName: "Track 4", wantArtist: "Y"},
		{name: "album missing name", chartID: "billboard-200", item: `{"position":2}`, wantName: "Album 2", wantArtist: UnknownArtist},
		{name: "artist uses name", chartID: "artist-100", item: `{"position":1,"name":"SZA","artist":"ignored"}`, wantName: "SZA", wantArtist: "SZA"},
		{name: "artist falls back to artist field", chartID: "artist-100", item: `{"position":1,"name":"  ","artist":"SZA"}`, wantName: "Artist 1", wantArtist: "SZA"},
		{name: "artist nothing", chartID: "artist-100", item: `{"position":9}`, wantName: "Artist 9", wantArtist: "Artist 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := TransformAt(decodeRaw(t, `{"songs":[`+tt.item+`]}`), tt.chartID, fixedNow).Entries[0]
			if e.Name != tt.wantName || e.Artist != tt.wantArtist {
				t.Fatalf("name/artist = %q/%q, want %q/%q", e.Name, e.Artist, tt.wantName, tt.wantArtist)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"hot-100":              KindSong,
		"artist-100":           KindArtist,
		"billboard-200":        KindAlbum,
		"top-album-sales":      KindAlbum,
		"streaming-songs":      KindSong,
		"Emerging-Artists":     KindArtist,
		"billboard-global-200": KindAlbum,
	}
	for id, want := range tests {
		if got := Classify(id); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", id, got, want)
		}
	}
}

func TestIntValue(t *testing.T) {
	tests := []struct {
		in     any
		want   int
		wantOK bool
	}{
		{in: json.Number("12"), want: 12, wantOK: true},
		{in: json.Number("3.99"), want: 3, wantOK: true},
		{in: json.Number("-2.5"), want: -2, wantOK: true},
		{in: " 8 ", want: 8, wantOK: true},
		{in: "12abc", want: 12, wantOK: true},
		{in: "+4", want: 4, wantOK: true},
		{in: "abc", wantOK: false},
		{in: "-", wantOK: false},
		{in: "", wantOK: false},
		{in: nil, wantOK: false},
		{in: true, wantOK: false},
		{in: 6.0, want: 6, wantOK: true},
	}

	for _, tt := range tests {
		got, ok := intValue(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Fatalf("intValue(%#v) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
