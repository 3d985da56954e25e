package cad

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/vladse1/CHP/internal/extract"
)

// stateFields are the WebForms bookkeeping inputs the server expects echoed
// back on every postback. Fields the page does not render are sent empty.
var stateFields = []string{
	"__EVENTTARGET",
	"__EVENTARGUMENT",
	"__LASTFOCUS",
	"__VIEWSTATE",
	"__VIEWSTATEGENERATOR",
	"__EVENTVALIDATION",
}

// buttonLabelPat matches submit controls that apply the center selection.
var buttonLabelPat = regexp.MustCompile(`(?i)\b(OK|Apply|Go|View|Load)\b`)

// collectStateFields reads the WebForms state inputs from a page.
func collectStateFields(doc *html.Node) url.Values {
	values := url.Values{}
	for _, name := range stateFields {
		values.Set(name, "")
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			name := extract.Attr(n, "name")
			for _, want := range stateFields {
				if name == want {
					values.Set(name, extract.Attr(n, "value"))
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return values
}

// findCenterSelect locates the communications center dropdown. With a
// target center it prefers whichever select offers that center as an
// option; otherwise, and as a fallback, it matches the control's name.
func findCenterSelect(doc *html.Node, center string) (*html.Node, bool) {
	var byOption, byName *html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "select" {
			if byName == nil {
				nameID := strings.ToLower(extract.Attr(n, "name") + " " + extract.Attr(n, "id"))
				if strings.Contains(nameID, "comcenter") {
					byName = n
				}
			}
			if byOption == nil && center != "" {
				if _, ok := optionValue(n, center); ok {
					byOption = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if byOption != nil {
		return byOption, true
	}
	if byName != nil {
		return byName, true
	}
	return nil, false
}

// optionValue returns the submit value of the dropdown option whose text
// equals center, case-insensitively. Options without a value attribute
// submit their text.
func optionValue(sel *html.Node, center string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(center))

	var found string
	var ok bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if ok {
			return
		}
		if n.Type == html.ElementNode && n.Data == "option" {
			text := extract.NodeText(n)
			if strings.ToLower(text) == want {
				if v, has := attrValue(n, "value"); has {
					found = v
				} else {
					found = text
				}
				ok = true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	return found, ok
}

// optionTexts returns the non-empty option labels of a select, in order.
func optionTexts(sel *html.Node) []string {
	var texts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			if text := extract.NodeText(n); text != "" {
				texts = append(texts, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	return texts
}

// submitButtons returns the names of submit controls labeled like an apply
// button, in page order.
func submitButtons(doc *html.Node) []string {
	var names []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input":
				kind := strings.ToLower(extract.Attr(n, "type"))
				if (kind == "submit" || kind == "button") &&
					buttonLabelPat.MatchString(extract.Attr(n, "value")) {
					if name := extract.Attr(n, "name"); name != "" {
						names = append(names, name)
					}
				}
			case "button":
				if buttonLabelPat.MatchString(extract.NodeText(n)) {
					if name := extract.Attr(n, "name"); name != "" {
						names = append(names, name)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return names
}

// attrValue is like extract.Attr but reports whether the attribute exists,
// which matters for options that submit their text.
func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
