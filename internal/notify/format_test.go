package notify

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/vladse1/CHP/internal/model"
)

func sampleRecord() *model.IncidentRecord {
	return &model.IncidentRecord{
		Number:       "0042",
		Time:         "6:41 PM",
		Type:         "Trfc Collision-Unkn Inj",
		Location:     "US-101 N / Lombard St",
		LocationDesc: "JNO LOMBARD ST",
		Area:         "San Francisco",
		CommCenter:   "Golden Gate",
	}
}

func TestDirectionsURL(t *testing.T) {
	u := DirectionsURL(model.Coordinates{Lat: 37.7749, Lon: -122.4194})
	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&destination=37.7749,-122.4194&travelmode=driving", u)
}

func TestFormat_WithCoordinates(t *testing.T) {
	rec := sampleRecord()
	rec.Coordinates = &model.Coordinates{Lat: 34.05, Lon: -118.25}

	text := NewFormatter(700).Format(rec)

	assert.Contains(t, text,
		"https://www.google.com/maps/dir/?api=1&destination=34.05,-118.25&travelmode=driving")
	assert.Contains(t, text, "6:41 PM")
	assert.Contains(t, text, "San Francisco")
	assert.Contains(t, text, "Trfc Collision-Unkn Inj")
	assert.Contains(t, text, "US-101 N / Lombard St")
	assert.Contains(t, text, "JNO LOMBARD ST")
}

func TestFormat_NoCoordinates(t *testing.T) {
	text := NewFormatter(700).Format(sampleRecord())

	assert.NotContains(t, text, "maps")
	assert.NotContains(t, text, "http")
	assert.NotContains(t, text, "Directions")
}

func TestFormat_EscapesPageText(t *testing.T) {
	rec := sampleRecord()
	rec.LocationDesc = `<b>NB & "SB"</b>`

	text := NewFormatter(700).Format(rec)

	assert.Contains(t, text, "&lt;b&gt;NB &amp; &#34;SB&#34;&lt;/b&gt;")
	assert.NotContains(t, text, "<b>NB")
}

func TestFormat_AreaFallsBackToCenter(t *testing.T) {
	rec := sampleRecord()
	rec.Area = ""

	text := NewFormatter(700).Format(rec)
	assert.Contains(t, text, "Golden Gate")
}

func TestFormat_TypeIcons(t *testing.T) {
	rec := sampleRecord()
	text := NewFormatter(700).Format(rec)
	assert.Contains(t, text, "🚨")

	rec.Type = "Hit and Run w/Injuries"
	text = NewFormatter(700).Format(rec)
	assert.Contains(t, text, "🚗")
}

func TestFormat_DetailLines(t *testing.T) {
	rec := sampleRecord()
	rec.Details = []string{
		"6:41 PM 12 [5] VEH BLOCKING #2",
		"6:45 PM 18 [9] 1185 ENRT",
	}

	text := NewFormatter(700).Format(rec)

	assert.Contains(t, text, "Detail Information")
	assert.Contains(t, text, "› 6:41 PM: [5] VEH BLOCKING #2")
	assert.Contains(t, text, "› 6:45 PM: [9] 1185 ENRT")
	// The facts summary gets its own block above the raw lines.
	assert.Contains(t, text, "Scene:")
	assert.Contains(t, text, "blocking")
}

func TestFormat_DetailCap(t *testing.T) {
	rec := sampleRecord()
	for i := 0; i < 50; i++ {
		rec.Details = append(rec.Details, strings.Repeat("Z", 40))
	}

	text := NewFormatter(100).Format(rec)

	// 43 chars per quoted line leaves room for exactly two under a 100 cap.
	assert.Equal(t, 2, strings.Count(text, "› "))
	assert.Contains(t, text, "… (truncated)")
}

func TestFormat_NeverExceedsHardLimit(t *testing.T) {
	rec := sampleRecord()
	rec.Coordinates = &model.Coordinates{Lat: 34.05, Lon: -118.25}
	long := strings.Repeat("A", 300)
	for i := 0; i < 40; i++ {
		rec.Details = append(rec.Details, long)
	}

	text := NewFormatter(100000).Format(rec)

	assert.LessOrEqual(t, utf8.RuneCountInString(text), 4096)
	assert.Contains(t, text, "… (truncated)")
}
