// Package report renders frozen hit logs and storage audits for the console.
// Only masked tokens and fingerprints are ever written.
package report

import (
	"time"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/secrets"
)

const (
	DefaultRecentLimit = 20
	DefaultTargetLimit = 10
)

// Summary aggregates one phase's hit log.
type Summary struct {
	Title      string      `json:"title"`
	Total      int         `json:"total"`
	WithBearer int         `json:"with_bearer"`
	WithTenant int         `json:"with_tenant"`
	Recent     []audit.Hit `json:"recent"`
}

// Summarize counts the hits and keeps the last recent of them in order. A
// non-positive recent uses DefaultRecentLimit.
func Summarize(title string, hits []audit.Hit, recent int) Summary {
	if recent <= 0 {
		recent = DefaultRecentLimit
	}
	s := Summary{Title: title, Total: len(hits)}
	for _, h := range hits {
		if h.HasBearer {
			s.WithBearer++
		}
		if h.HasTenant() {
			s.WithTenant++
		}
	}
	s.Recent = tail(hits, recent)
	return s
}

// TargetHit is a target match prepared for display. Claims come from an
// unverified decode of the token and are informational only.
type TargetHit struct {
	audit.Hit
	Claims *secrets.Claims `json:"claims,omitempty"`
}

// Targets lists the requests that reached the audited operation.
type Targets struct {
	Title    string      `json:"title"`
	Endpoint string      `json:"endpoint"`
	Method   string      `json:"method,omitempty"`
	Total    int         `json:"total"`
	Hits     []TargetHit `json:"hits"`
}

// SelectTargets applies the filter and keeps the last limit matches. A
// non-positive limit uses DefaultTargetLimit.
func SelectTargets(title string, filter audit.TargetFilter, hits []audit.Hit, limit int) Targets {
	if limit <= 0 {
		limit = DefaultTargetLimit
	}
	matched := filter.Select(hits)
	t := Targets{
		Title:    title,
		Endpoint: filter.Matcher.Target(),
		Method:   filter.Method,
		Total:    len(matched),
		Hits:     make([]TargetHit, 0, limit),
	}
	for _, h := range tail(matched, limit) {
		th := TargetHit{Hit: h}
		if c, ok := secrets.PeekClaims(h.Token()); ok {
			th.Claims = &c
		}
		t.Hits = append(t.Hits, th)
	}
	return t
}

// Expired reports whether the hit's token carried an expiry before now.
func (t TargetHit) Expired(now time.Time) bool {
	return t.Claims != nil && t.Claims.Expired(now)
}

func tail(hits []audit.Hit, n int) []audit.Hit {
	if len(hits) > n {
		hits = hits[len(hits)-n:]
	}
	out := make([]audit.Hit, len(hits))
	copy(out, hits)
	return out
}
