package incident

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// TypeFilter admits incidents whose type matches a configured pattern.
// A nil filter and an empty pattern admit everything.
type TypeFilter struct {
	re *regexp.Regexp
}

// NewTypeFilter compiles pattern case-insensitively, e.g.
// "Collision|Hit & Run".
func NewTypeFilter(pattern string) (*TypeFilter, error) {
	if strings.TrimSpace(pattern) == "" {
		return &TypeFilter{}, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, eris.Wrap(err, "incident: compile type filter")
	}
	return &TypeFilter{re: re}, nil
}

// Match reports whether an incident of the given type should be forwarded.
func (f *TypeFilter) Match(incidentType string) bool {
	if f == nil || f.re == nil {
		return true
	}
	return f.re.MatchString(incidentType)
}
