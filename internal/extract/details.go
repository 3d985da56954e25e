package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	detailStartPat = regexp.MustCompile(`(?i)detail\s+information`)
	detailEndPat   = regexp.MustCompile(`(?i)unit\s+information`)
)

// DetailLines returns the incident-history lines of a detail panel: the
// text between the "Detail Information" and "Unit Information" headings,
// cleaned, deduplicated, in page order. Site chrome that bleeds into the
// region is dropped.
func DetailLines(panel *html.Node) []string {
	var out []string
	seen := make(map[string]bool)
	capturing := false
	for _, ln := range BlockLines(panel) {
		if !capturing {
			if detailStartPat.MatchString(ln) {
				capturing = true
			}
			continue
		}
		if detailEndPat.MatchString(ln) || strings.HasPrefix(ln, "Click on Details") {
			break
		}
		if isChromeLine(ln) || seen[ln] {
			continue
		}
		seen[ln] = true
		out = append(out, ln)
	}
	return out
}

func isChromeLine(ln string) bool {
	return strings.HasPrefix(ln, "| Contact Us") ||
		strings.HasSuffix(ln, "CHP Mobile Traffic") ||
		strings.HasSuffix(ln, "CHP Home Page")
}
