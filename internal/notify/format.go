// Package notify renders incident records as Telegram messages and
// delivers them.
package notify

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vladse1/CHP/internal/incident"
	"github.com/vladse1/CHP/internal/model"
)

// tgHardLimit is Telegram's sendMessage text cap, counted in characters
// rather than bytes.
const tgHardLimit = 4096

const (
	sceneHeader  = "\n\n<b>📌 Scene:</b>\n"
	mapHeader    = "\n\n<b>🗺️ Directions:</b>\n"
	detailHeader = "\n\n<b>📝 Detail Information:</b>\n"
)

// detailTimeRE rewrites CAD's "6:41 PM 12 <text>" detail prefix (timestamp
// followed by a sequence number) into the readable "6:41 PM: <text>".
var detailTimeRE = regexp.MustCompile(`(?i)^([0-9]{1,2}:[0-9]{2}\s*(?:AM|PM))\s+\d+\s+`)

// DirectionsURL returns the driving-directions link for c. The parameter
// order and the literal "lat,lon" comma are a compatibility contract, so
// the URL is assembled by plain concatenation with no re-encoding.
func DirectionsURL(c model.Coordinates) string {
	return "https://www.google.com/maps/dir/?api=1&destination=" + c.String() + "&travelmode=driving"
}

// Formatter renders records as Telegram-HTML text.
type Formatter struct {
	maxDetailChars int
}

// NewFormatter creates a formatter capping the detail block at
// maxDetailChars characters.
func NewFormatter(maxDetailChars int) *Formatter {
	return &Formatter{maxDetailChars: maxDetailChars}
}

// Format renders one record. Page-derived values are HTML-escaped; the
// directions URL appears only when coordinates were resolved.
func (f *Formatter) Format(rec *model.IncidentRecord) string {
	area := rec.Area
	if area == "" {
		area = rec.CommCenter
	}

	var head strings.Builder
	head.WriteString("⏳ " + html.EscapeString(rec.Time) + " | 🏙 " + html.EscapeString(area) + "\n")
	if rec.Type != "" {
		if icon := typeIcon(rec.Type); icon != "" {
			head.WriteString(icon + " ")
		}
		head.WriteString(html.EscapeString(rec.Type) + "\n")
	}
	head.WriteString("\n📍 " + html.EscapeString(rec.Location))
	if rec.LocationDesc != "" {
		head.WriteString(" — " + html.EscapeString(rec.LocationDesc))
	}

	skeleton := head.String()
	if summary := incident.ParseFacts(rec.Details).Summary(); summary != "" {
		skeleton += sceneHeader + summary
	}
	if rec.HasCoordinates() {
		skeleton += mapHeader + DirectionsURL(*rec.Coordinates)
	}

	// Give the detail block whatever room the hard limit leaves.
	leftover := tgHardLimit - utf8.RuneCountInString(skeleton) - utf8.RuneCountInString(detailHeader)
	budget := f.maxDetailChars
	if leftover < budget {
		budget = leftover
	}

	text := skeleton
	if details := quoteLines(rec.Details, budget); details != "" {
		text = skeleton + detailHeader + details
	}
	if utf8.RuneCountInString(text) > tgHardLimit {
		if details := quoteLines(rec.Details, budget*8/10); details != "" {
			text = skeleton + detailHeader + details
		} else {
			text = skeleton
		}
	}
	if utf8.RuneCountInString(text) > tgHardLimit {
		runes := []rune(text)
		text = string(runes[:tgHardLimit-1]) + "…"
	}
	return text
}

func typeIcon(incidentType string) string {
	switch {
	case strings.Contains(incidentType, "Collision"):
		return "🚨"
	case strings.Contains(incidentType, "Hit") && strings.Contains(incidentType, "Run"):
		return "🚗"
	default:
		return ""
	}
}

// quoteLines renders detail lines as an escaped "› " blockquote within
// limit characters, marking any cut with an ellipsis line.
func quoteLines(lines []string, limit int) string {
	if limit <= 0 || len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	total := 0
	for _, ln := range lines {
		s := strings.TrimSpace(ln)
		if s == "" {
			continue
		}
		s = detailTimeRE.ReplaceAllString(s, "$1: ")
		chunk := "› " + html.EscapeString(s) + "\n"
		n := utf8.RuneCountInString(chunk)
		if total+n > limit {
			b.WriteString("… (truncated)")
			break
		}
		b.WriteString(chunk)
		total += n
	}
	return b.String()
}
