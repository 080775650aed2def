package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/clientstate"
)

// Format selects the console rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const (
	rule    = "============================================================"
	missing = "-"
	absent  = "no"
)

// Printer writes reports to w in one format. JSON output is one document per
// line so a run's sections can be streamed through jq.
type Printer struct {
	w      io.Writer
	format Format
	now    func() time.Time
}

// NewPrinter returns a Printer. Unknown formats fall back to text.
func NewPrinter(w io.Writer, format Format) *Printer {
	if format != FormatJSON {
		format = FormatText
	}
	return &Printer{w: w, format: format, now: time.Now}
}

// Summary writes a phase summary.
func (p *Printer) Summary(s Summary) error {
	if p.format == FormatJSON {
		return p.json("summary", s)
	}
	var b strings.Builder
	WriteSummary(&b, s)
	return p.write(&b)
}

// Targets writes the target-only view.
func (p *Printer) Targets(t Targets) error {
	if p.format == FormatJSON {
		return p.json("targets", t)
	}
	var b strings.Builder
	writeTargets(&b, t, p.now())
	return p.write(&b)
}

// Storage writes a storage and cookie audit.
func (p *Printer) Storage(r clientstate.Report) error {
	if p.format == FormatJSON {
		return p.json("storage", r)
	}
	var b strings.Builder
	WriteStorage(&b, r)
	return p.write(&b)
}

func (p *Printer) json(kind string, v interface{}) error {
	doc := struct {
		Kind string      `json:"kind"`
		Data interface{} `json:"data"`
	}{kind, v}
	return json.NewEncoder(p.w).Encode(doc)
}

func (p *Printer) write(b *strings.Builder) error {
	_, err := io.WriteString(p.w, b.String())
	return err
}

func header(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n=== %s ===\n%s\n", rule, title, rule)
}

func orDash(s *string) string {
	if s == nil {
		return missing
	}
	return *s
}

func orAbsent(s *string) string {
	if s == nil {
		return absent
	}
	return *s
}

// WriteSummary renders totals followed by the recent hits, oldest first.
func WriteSummary(b *strings.Builder, s Summary) {
	header(b, s.Title)
	fmt.Fprintf(b, "Total captured: %d\n", s.Total)
	fmt.Fprintf(b, "With bearer:    %d\n", s.WithBearer)
	fmt.Fprintf(b, "With tenant:    %d\n", s.WithTenant)

	if s.Total == 0 {
		b.WriteString("No requests captured.\n")
		return
	}

	fmt.Fprintf(b, "\nLast %d requests:\n\n", len(s.Recent))
	for _, h := range s.Recent {
		writeHit(b, h)
	}
}

func writeHit(b *strings.Builder, h audit.Hit) {
	fmt.Fprintf(b, "[+%5dms] %s %s\n", h.OffsetMillis, h.Method, h.URL)
	fmt.Fprintf(b, "   Bearer: %s (hash:%s)\n", orAbsent(h.BearerMasked), orDash(h.BearerHash))
	fmt.Fprintf(b, "   Tenant: %s (hash:%s)\n", orAbsent(h.TenantID), orDash(h.TenantHash))
	fmt.Fprintf(b, "   Origin: %s | Referer: %s\n\n", orDash(h.Origin), orDash(h.Referer))
}

func writeTargets(b *strings.Builder, t Targets, now time.Time) {
	title := t.Title
	if title == "" {
		title = "Target endpoint only"
	}
	header(b, title)
	fmt.Fprintf(b, "Endpoint (base): %s\n", t.Endpoint)
	fmt.Fprintf(b, "Occurrences: %d\n", t.Total)

	if t.Total == 0 {
		b.WriteString("\nNo request to the target endpoint was captured.\n")
		return
	}

	b.WriteString("\n")
	for _, th := range t.Hits {
		fmt.Fprintf(b, "%s %s\n", th.Method, th.URL)
		fmt.Fprintf(b, "   Bearer: %s\n", orAbsent(th.BearerMasked))
		fmt.Fprintf(b, "   Tenant: %s\n", orAbsent(th.TenantID))
		if th.Claims != nil && !th.Claims.ExpiresAt.IsZero() {
			state := "valid"
			if th.Expired(now) {
				state = "expired"
			}
			fmt.Fprintf(b, "   Expires: %s (%s)\n", th.Claims.ExpiresAt.UTC().Format(time.RFC3339), state)
		}
		b.WriteString("\n")
	}
}

// WriteStorage renders the three storage groups. A nil group was not read.
func WriteStorage(b *strings.Builder, r clientstate.Report) {
	header(b, "LocalStorage and cookie audit")
	writeGroup(b, "LocalStorage", r.LocalStorage, "empty")
	writeGroup(b, "SessionStorage", r.SessionStorage, "empty")
	writeGroup(b, "Cookies", r.Cookies, "no cookies")
}

func writeGroup(b *strings.Builder, title string, entries []clientstate.Entry, emptyNote string) {
	fmt.Fprintf(b, "\n%s:\n", title)
	switch {
	case entries == nil:
		b.WriteString("   not checked\n")
		return
	case len(entries) == 0:
		fmt.Fprintf(b, "   %s\n", emptyNote)
		return
	}

	for _, e := range entries {
		if e.Source == clientstate.SourceCookie {
			fmt.Fprintf(b, "\n   Name: %s\n", e.Key)
			fmt.Fprintf(b, "      Domain: %s\n", e.Domain)
		} else {
			fmt.Fprintf(b, "\n   Key: %s\n", e.Key)
		}
		fmt.Fprintf(b, "      Value: %s\n", e.DisplayValue)
		fmt.Fprintf(b, "      Hash: %s\n", e.ValueHash)
		if e.Source == clientstate.SourceCookie {
			fmt.Fprintf(b, "      HttpOnly: %t\n", e.HTTPOnly)
			fmt.Fprintf(b, "      Secure: %t\n", e.Secure)
			fmt.Fprintf(b, "      SameSite: %s\n", e.SameSite)
		} else {
			fmt.Fprintf(b, "      Length: %d chars\n", e.Length)
		}
		if e.LooksLikeToken {
			b.WriteString("      LOOKS LIKE TOKEN\n")
		}
		if e.LooksLikeTenant {
			b.WriteString("      LOOKS LIKE TENANT ID\n")
		}
	}
}
