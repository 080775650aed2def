package audit

import (
	"net/url"
	"path"
	"strings"
)

// DefaultTargetURL is the API operation audited when nothing else is configured.
const DefaultTargetURL = "http://localhost:5214/api/InventoryStock/GetInventoryStockSummary"

// DefaultTargetHints is the canonical hint list. Variants such as a trailing "/"
// or "?" and the lower-cased name are already covered by a case-insensitive
// substring match on these two.
var DefaultTargetHints = []string{"GetInventoryStockSummary", "GetInventoryStock"}

// Matcher decides whether a URL refers to the target API. It over-matches on
// purpose: the target may be reached through other hosts, paths or query strings.
type Matcher struct {
	target string
	hints  []string
}

// NewMatcher builds a Matcher. With no hints, the last path segment of the
// target URL becomes the only hint.
func NewMatcher(target string, hints []string) Matcher {
	m := Matcher{target: target}
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			m.hints = append(m.hints, strings.ToLower(h))
		}
	}
	if len(m.hints) == 0 {
		if seg := lastPathSegment(target); seg != "" {
			m.hints = []string{strings.ToLower(seg)}
		}
	}
	return m
}

// Target returns the configured target URL.
func (m Matcher) Target() string { return m.target }

// Matches reports whether rawURL equals the target or contains any hint.
func (m Matcher) Matches(rawURL string) bool {
	if rawURL == m.target {
		return true
	}
	lower := strings.ToLower(rawURL)
	for _, h := range m.hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// TargetFilter narrows a Matcher to one HTTP method. An empty Method accepts any.
type TargetFilter struct {
	Matcher Matcher
	Method  string
}

// Accept reports whether the hit is a call to the target endpoint.
func (f TargetFilter) Accept(h Hit) bool {
	if f.Method != "" && !strings.EqualFold(h.Method, f.Method) {
		return false
	}
	return f.Matcher.Matches(h.URL)
}

// Select returns the hits accepted by the filter, preserving order.
func (f TargetFilter) Select(hits []Hit) []Hit {
	out := make([]Hit, 0)
	for _, h := range hits {
		if f.Accept(h) {
			out = append(out, h)
		}
	}
	return out
}

func lastPathSegment(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return ""
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
