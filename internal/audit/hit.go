// Package audit classifies observed outgoing requests into Hit records and keeps
// the ordered log for one observation phase.
package audit

// RequestEvent is one outgoing request as delivered by a network event source.
type RequestEvent struct {
	Method  string
	URL     string
	Headers map[string]string
}

// Hit is the classified, immutable record of one observed request.
// BearerMasked, BearerHash and BearerToken are set together or not at all;
// the same holds for TenantID and TenantHash.
type Hit struct {
	OffsetMillis int64   `json:"offset_ms"`
	Label        string  `json:"label"`
	Method       string  `json:"method"`
	URL          string  `json:"url"`
	HasBearer    bool    `json:"has_bearer"`
	BearerMasked *string `json:"bearer_masked"`
	BearerHash   *string `json:"bearer_hash"`
	// BearerToken is the raw secret. It is never serialized.
	BearerToken *string `json:"-"`
	TenantID    *string `json:"tenant_id"`
	TenantHash  *string `json:"tenant_hash"`
	Origin      *string `json:"origin"`
	Referer     *string `json:"referer"`
}

// HasTenant reports whether a tenant identifier was found on the request.
func (h Hit) HasTenant() bool {
	return h.TenantID != nil
}

// Token returns the raw bearer token, or "" when the request carried none.
func (h Hit) Token() string {
	if h.BearerToken == nil {
		return ""
	}
	return *h.BearerToken
}

// Tenant returns the tenant identifier, or "" when the request carried none.
func (h Hit) Tenant() string {
	if h.TenantID == nil {
		return ""
	}
	return *h.TenantID
}

func strPtr(s string) *string {
	return &s
}
