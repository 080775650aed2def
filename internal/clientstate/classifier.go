// Package clientstate flags local storage, session storage and cookie entries
// that look like tokens or tenant identifiers. The checks are shape heuristics
// only: nothing is decoded, verified or validated against a schema.
package clientstate

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ramonfullstack/automation-scripts/internal/secrets"
)

// Source identifies where an entry was read from.
type Source string

const (
	SourceLocalStorage   Source = "localStorage"
	SourceSessionStorage Source = "sessionStorage"
	SourceCookie         Source = "cookie"
)

const (
	jwtMinLength    = 100
	displayMaxLen   = 50
	displayHeadLen  = 30
	displayTailLen  = 15
	displayEllipsis = "..."
)

var (
	tokenKeyHints  = []string{"token", "jwt", "auth"}
	tenantKeyHints = []string{"tenant", "organization"}

	guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Cookie is one browser cookie as reported by the snapshot provider.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// Entry is a classified key/value pair. Value is raw and must not be printed;
// DisplayValue and ValueHash are the printable forms.
type Entry struct {
	Source          Source `json:"source"`
	Key             string `json:"key"`
	Value           string `json:"-"`
	Domain          string `json:"domain,omitempty"`
	HTTPOnly        bool   `json:"http_only,omitempty"`
	Secure          bool   `json:"secure,omitempty"`
	SameSite        string `json:"same_site,omitempty"`
	Length          int    `json:"length"`
	DisplayValue    string `json:"display_value"`
	ValueHash       string `json:"value_hash"`
	LooksLikeToken  bool   `json:"looks_like_token"`
	LooksLikeTenant bool   `json:"looks_like_tenant"`
}

// LooksLikeToken reports whether key names a credential or value has the
// three-segment shape of a JWT.
func LooksLikeToken(key, value string) bool {
	if containsAny(strings.ToLower(key), tokenKeyHints) {
		return true
	}
	return utf8.RuneCountInString(value) > jwtMinLength && len(strings.Split(value, ".")) == 3
}

// LooksLikeTenant reports whether key names a tenant or value is a GUID.
func LooksLikeTenant(key, value string) bool {
	if containsAny(strings.ToLower(key), tenantKeyHints) {
		return true
	}
	return guidPattern.MatchString(value)
}

// DisplayValue shortens long values to their first 30 and last 15 characters.
// Lengths count runes so multi-byte text is never split.
func DisplayValue(value string) string {
	if utf8.RuneCountInString(value) <= displayMaxLen {
		return value
	}
	r := []rune(value)
	return string(r[:displayHeadLen]) + displayEllipsis + string(r[len(r)-displayTailLen:])
}

// ClassifyPair classifies one storage key/value pair.
func ClassifyPair(source Source, key, value string) Entry {
	return Entry{
		Source:          source,
		Key:             key,
		Value:           value,
		Length:          utf8.RuneCountInString(value),
		DisplayValue:    DisplayValue(value),
		ValueHash:       secrets.Fingerprint(value),
		LooksLikeToken:  LooksLikeToken(key, value),
		LooksLikeTenant: LooksLikeTenant(key, value),
	}
}

// ClassifyStorage classifies every pair of a storage mapping, sorted by key.
// A nil or empty mapping yields an empty, non-nil slice.
func ClassifyStorage(source Source, items map[string]string) []Entry {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, ClassifyPair(source, k, items[k]))
	}
	return out
}

// ClassifyCookies classifies cookies in the order given.
func ClassifyCookies(cookies []Cookie) []Entry {
	out := make([]Entry, 0, len(cookies))
	for _, c := range cookies {
		e := ClassifyPair(SourceCookie, c.Name, c.Value)
		e.Domain = c.Domain
		e.HTTPOnly = c.HTTPOnly
		e.Secure = c.Secure
		e.SameSite = c.SameSite
		out = append(out, e)
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
