// Package extract locates incident fields in CAD markup by label text and
// relative position, never by fixed element identifiers. Every lookup is
// best-effort: a field the page does not expose is omitted, not an error.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/vladse1/CHP/internal/model"
)

// A Rule extracts one named field from a document fragment. Extract is a
// pure function returning the value and whether it was found.
type Rule struct {
	Field   string
	Extract func(n *html.Node) (string, bool)
}

// Apply evaluates rules in order against n and collects the fields that
// succeeded. Later rules never overwrite an earlier success for the same
// field; empty values count as absent.
func Apply(n *html.Node, rules []Rule) map[string]string {
	out := make(map[string]string, len(rules))
	for _, r := range rules {
		if _, dup := out[r.Field]; dup {
			continue
		}
		if v, ok := r.Extract(n); ok && v != "" {
			out[r.Field] = v
		}
	}
	return out
}

// Column returns a rule function reading the idx'th cell of a table row.
func Column(idx int) func(*html.Node) (string, bool) {
	return func(tr *html.Node) (string, bool) {
		cells := childCells(tr)
		if idx < 0 || idx >= len(cells) {
			return "", false
		}
		v := NodeText(cells[idx])
		return v, v != ""
	}
}

// Labeled returns a rule function that finds an element whose text matches
// labelPat and yields the cleaned text of the element following it: the
// next cell in a table row, or the next sibling elsewhere.
func Labeled(labelPat *regexp.Regexp) func(*html.Node) (string, bool) {
	return func(root *html.Node) (string, bool) {
		label, ok := findLabel(root, labelPat)
		if !ok {
			return "", false
		}
		for s := label.NextSibling; s != nil; s = s.NextSibling {
			if s.Type != html.ElementNode {
				continue
			}
			if v := NodeText(s); v != "" {
				return v, true
			}
		}
		if label.Parent != nil {
			for s := label.Parent.NextSibling; s != nil; s = s.NextSibling {
				if s.Type != html.ElementNode {
					continue
				}
				if v := NodeText(s); v != "" {
					return v, true
				}
			}
		}
		return "", false
	}
}

// findLabel returns the parent element of the first text node under root
// matching pat.
func findLabel(root *html.Node, pat *regexp.Regexp) (*html.Node, bool) {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.TextNode && pat.MatchString(n.Data) {
			found = n.Parent
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found, found != nil
}

// Grid is the located incident table with its header-resolved column map.
type Grid struct {
	node    *html.Node
	columns map[string]int
}

// headerFields maps header text to canonical field names. More specific
// patterns come first so "Location Desc." does not resolve as the location
// column.
var headerFields = []struct {
	substr string
	also   string
	field  string
}{
	{"loc", "desc", model.FieldLocationDesc},
	{"location", "", model.FieldLocation},
	{"time", "", model.FieldTime},
	{"type", "", model.FieldType},
	{"area", "", model.FieldArea},
	{"no", "", model.FieldNumber},
}

// defaultColumns is the grid layout assumed when headers cannot be resolved:
// a leading details-link column followed by the standard CAD columns.
var defaultColumns = map[string]int{
	model.FieldNumber:       1,
	model.FieldTime:         2,
	model.FieldType:         3,
	model.FieldLocation:     4,
	model.FieldLocationDesc: 5,
	model.FieldArea:         6,
}

// FindGrid locates the incident table in doc: first by an id containing
// "gvIncidents", then by any table whose headers mention time, type, and a
// location-like column. ok is false when no table qualifies.
func FindGrid(doc *html.Node) (*Grid, bool) {
	var byID, byHeader *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			if byID == nil && strings.Contains(strings.ToLower(Attr(n, "id")), "gvincidents") {
				byID = n
			} else if byHeader == nil {
				joined := strings.ToLower(strings.Join(headerTexts(n), " "))
				if strings.Contains(joined, "time") && strings.Contains(joined, "type") && strings.Contains(joined, "loc") {
					byHeader = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	node := byID
	if node == nil {
		node = byHeader
	}
	if node == nil {
		return nil, false
	}
	return &Grid{node: node, columns: resolveColumns(headerRowTexts(node))}, true
}

// Rows returns the grid's data rows: every row holding at least two data
// cells, which excludes the header row and pager/footer rows.
func (g *Grid) Rows() []*html.Node {
	var rows []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if cells := childCells(n); len(cells) >= 2 && cells[0].Data == "td" {
				rows = append(rows, n)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(g.node)
	return rows
}

// Fields extracts the canonical fields from one grid row by resolved column
// position. Cells that are missing or empty are omitted from the result.
func (g *Grid) Fields(tr *html.Node) map[string]string {
	rules := make([]Rule, 0, len(g.columns))
	for field, idx := range g.columns {
		rules = append(rules, Rule{Field: field, Extract: Column(idx)})
	}
	return Apply(tr, rules)
}

// postbackPat pulls the event target out of a WebForms details link.
var postbackPat = regexp.MustCompile(`__doPostBack\('([^']+)'`)

// DetailTarget returns the postback event target of the row's details
// anchor, used to fetch the incident's detail panel. ok is false for rows
// without a details link.
func DetailTarget(tr *html.Node) (string, bool) {
	var target string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if target != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if m := postbackPat.FindStringSubmatch(Attr(n, "href")); m != nil {
				target = m[1]
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tr)
	return target, target != ""
}

// resolveColumns maps canonical field names to column indexes by loose
// header-substring matching, falling back to the standard CAD positions for
// fields no header claimed.
func resolveColumns(headers []string) map[string]int {
	columns := make(map[string]int, len(defaultColumns))
	for i, h := range headers {
		t := strings.ToLower(h)
		for _, hf := range headerFields {
			if _, taken := columns[hf.field]; taken {
				continue
			}
			if strings.Contains(t, hf.substr) && (hf.also == "" || strings.Contains(t, hf.also)) {
				columns[hf.field] = i
				break
			}
		}
	}
	for field, idx := range defaultColumns {
		if _, ok := columns[field]; !ok {
			columns[field] = idx
		}
	}
	return columns
}

// headerTexts returns the text of every th under the table, in document
// order.
func headerTexts(table *html.Node) []string {
	var texts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "th" {
			texts = append(texts, NodeText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return texts
}

// headerRowTexts returns the cell texts of the table's first header row.
func headerRowTexts(table *html.Node) []string {
	var row *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if row != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "tr" {
			for _, c := range childCells(n) {
				if c.Data == "th" {
					row = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	if row == nil {
		return nil
	}
	var texts []string
	for _, c := range childCells(row) {
		texts = append(texts, NodeText(c))
	}
	return texts
}

// childCells returns the direct td/th children of a row element.
func childCells(tr *html.Node) []*html.Node {
	var cells []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, c)
		}
	}
	return cells
}
