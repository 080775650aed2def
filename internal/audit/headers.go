package audit

import (
	"strings"

	"github.com/ramonfullstack/automation-scripts/internal/secrets"
)

// DefaultTenantHeaders is the canonical lookup order for tenant identifier headers.
var DefaultTenantHeaders = []string{"x-tenantid", "x-tenant-id", "tenantid", "tenant_id"}

// Classification holds the credential-related fields of a Hit before it is
// positioned in a log.
type Classification struct {
	HasBearer    bool
	BearerMasked *string
	BearerHash   *string
	BearerToken  *string
	TenantID     *string
	TenantHash   *string
	Origin       *string
	Referer      *string
}

// ClassifyHeaders inspects one request's headers for a bearer Authorization value
// and a tenant identifier. Header names are matched case-insensitively and
// tenantHeaders is tried in order; a nil list falls back to DefaultTenantHeaders.
func ClassifyHeaders(headers map[string]string, tenantHeaders []string) Classification {
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lower[strings.ToLower(k)] = v
	}
	if tenantHeaders == nil {
		tenantHeaders = DefaultTenantHeaders
	}

	var c Classification

	if auth, ok := lower["authorization"]; ok {
		token, isBearer := secrets.ExtractBearerToken(auth)
		masked, _ := secrets.MaskBearerHeader(auth)
		if isBearer {
			c.HasBearer = true
			c.BearerToken = strPtr(token)
			c.BearerMasked = strPtr(masked)
			c.BearerHash = strPtr(secrets.Fingerprint(auth))
		}
	}

	for _, name := range tenantHeaders {
		if v := lower[strings.ToLower(name)]; v != "" {
			c.TenantID = strPtr(v)
			c.TenantHash = strPtr(secrets.Fingerprint(v))
			break
		}
	}

	if v := lower["origin"]; v != "" {
		c.Origin = strPtr(v)
	}
	if v := lower["referer"]; v != "" {
		c.Referer = strPtr(v)
	}
	return c
}
