package extract

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// cellCleaner decomposes text and strips combining marks so cell content
// compares predictably regardless of how the page encodes it.
var cellCleaner = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CleanText normalizes scraped text: strips combining marks, maps
// non-breaking and other unicode spaces to plain spaces, and collapses
// whitespace runs.
func CleanText(s string) string {
	out, _, err := transform.String(cellCleaner, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// NodeText returns the cleaned visible text beneath n, skipping script and
// style subtrees.
func NodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return CleanText(sb.String())
}

// blockTags are elements that terminate a text line when rendering markup
// into lines.
var blockTags = map[string]bool{
	"table": true, "tr": true, "ul": true, "ol": true, "li": true,
	"p": true, "div": true, "section": true, "header": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// BlockLines renders the visible text beneath n as cleaned lines, breaking
// at block-level elements and <br>. Empty lines are dropped.
func BlockLines(n *html.Node) []string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "br":
				sb.WriteByte('\n')
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			sb.WriteByte('\n')
		} else if n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th") {
			// Keep adjacent cell texts from running together.
			sb.WriteByte(' ')
		}
	}
	walk(n)

	raw := strings.Split(sb.String(), "\n")
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		if cleaned := CleanText(ln); cleaned != "" {
			lines = append(lines, cleaned)
		}
	}
	return lines
}

// Attr returns the value of the named attribute of n, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
