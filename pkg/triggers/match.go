package triggers

import (
	"regexp"
	"strings"
	"sync"
)

// Location is the page address patterns are matched against.
type Location struct {
	Path string
	// Query is the raw query string without the leading '?'.
	Query string
}

// Full returns the path with its query string.
func (l Location) Full() string {
	if l.Query == "" {
		return l.Path
	}
	return l.Path + "?" + l.Query
}

var patterns sync.Map // string -> *regexp.Regexp

// MatchPattern reports whether pattern selects loc. An empty pattern or "*"
// matches every page. Otherwise the pattern must equal the path or the path
// with its query, or, when it contains '*' or '?', match either of them as a
// wildcard where '*' is any run of characters and '?' is a literal question
// mark.
func MatchPattern(pattern string, loc Location) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	return matchLocation(pattern, loc)
}

// Excluded reports whether any of excludes matches loc. Unlike MatchPattern
// an empty list never matches.
func Excluded(excludes []string, loc Location) bool {
	for _, exclude := range excludes {
		if exclude = strings.TrimSpace(exclude); exclude != "" && matchLocation(exclude, loc) {
			return true
		}
	}
	return false
}

func matchLocation(pattern string, loc Location) bool {
	full := loc.Full()
	if pattern == loc.Path || pattern == full {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return false
	}
	re := compilePattern(pattern)
	return re.MatchString(loc.Path) || re.MatchString(full)
}

func compilePattern(pattern string) *regexp.Regexp {
	if cached, ok := patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	actual, _ := patterns.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp)
}
