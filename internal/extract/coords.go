package extract

import (
	"regexp"
	"strconv"

	"golang.org/x/net/html"

	"github.com/vladse1/CHP/internal/model"
)

var (
	// latLonLabel matches the coordinate label CAD renders on detail panels.
	latLonLabel = regexp.MustCompile(`(?i)lat\s*/\s*lon`)

	// coordPat matches two comma/space-separated decimal numbers.
	coordPat = regexp.MustCompile(`([-+]?\d+\.\d+)[ ,]+([-+]?\d+\.\d+)`)
)

// ResolveCoordinates extracts a latitude/longitude pair from the hyperlink
// within or adjacent to the fragment's "Lat/Lon" label. The pair may be
// encoded in the link target or its visible text. Malformed or missing
// coordinate text yields ok=false; coordinates are best-effort enrichment,
// never required for a record to be valid.
func ResolveCoordinates(fragment *html.Node) (model.Coordinates, bool) {
	label, ok := findLabel(fragment, latLonLabel)
	if !ok {
		return model.Coordinates{}, false
	}
	for _, a := range linksNear(label) {
		if c, ok := parseCoordPair(Attr(a, "href")); ok {
			return c, true
		}
		if c, ok := parseCoordPair(NodeText(a)); ok {
			return c, true
		}
	}
	return model.Coordinates{}, false
}

// linksNear collects anchors in widening scopes around the label element:
// the label's own subtree, its following siblings, then the same for up to
// two ancestors. That covers the label and link sharing a cell, sitting in
// adjacent cells, or split across a row.
func linksNear(label *html.Node) []*html.Node {
	var anchors []*html.Node
	seen := make(map[*html.Node]bool)

	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && !seen[n] {
			seen[n] = true
			anchors = append(anchors, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}

	el := label
	for depth := 0; el != nil && depth < 3; depth++ {
		collect(el)
		for s := el.NextSibling; s != nil; s = s.NextSibling {
			collect(s)
		}
		el = el.Parent
	}
	return anchors
}

func parseCoordPair(s string) (model.Coordinates, bool) {
	m := coordPat.FindStringSubmatch(s)
	if m == nil {
		return model.Coordinates{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return model.Coordinates{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return model.Coordinates{}, false
	}
	return model.Coordinates{Lat: lat, Lon: lon}, true
}
