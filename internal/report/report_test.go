package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/clientstate"
)

func sp(s string) *string { return &s }

func plainHit(i int) audit.Hit {
	return audit.Hit{OffsetMillis: int64(i), Label: "ERP", Method: "GET", URL: fmt.Sprintf("https://erp/api/%d", i)}
}

func bearerHit(url, token, tenant string) audit.Hit {
	return audit.Hit{
		Label: "ERP", Method: "POST", URL: url, HasBearer: true,
		BearerMasked: sp("Bearer [short-token]"), BearerHash: sp("aaaaaaaaaaaa"), BearerToken: sp(token),
		TenantID: sp(tenant), TenantHash: sp("bbbbbbbbbbbb"),
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "erp",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestSummarize(t *testing.T) {
	t.Run("counts and keeps the last entries in order", func(t *testing.T) {
		var hits []audit.Hit
		for i := 0; i < 25; i++ {
			hits = append(hits, plainHit(i))
		}
		hits = append(hits, bearerHit("https://erp/x", "tok", "t1"))

		s := Summarize("ERP", hits, 20)
		assert.Equal(t, 26, s.Total)
		assert.Equal(t, 1, s.WithBearer)
		assert.Equal(t, 1, s.WithTenant)
		require.Len(t, s.Recent, 20)
		assert.Equal(t, int64(6), s.Recent[0].OffsetMillis)
		assert.Equal(t, "https://erp/x", s.Recent[19].URL)
	})

	t.Run("empty log", func(t *testing.T) {
		s := Summarize("Swagger", nil, 0)
		assert.Zero(t, s.Total)
		assert.Empty(t, s.Recent)
	})

	t.Run("recent is a copy", func(t *testing.T) {
		hits := []audit.Hit{plainHit(1)}
		s := Summarize("x", hits, 5)
		s.Recent[0].URL = "changed"
		assert.Equal(t, "https://erp/api/1", hits[0].URL)
	})
}

func TestSelectTargets(t *testing.T) {
	filter := audit.TargetFilter{Matcher: audit.NewMatcher(audit.DefaultTargetURL, audit.DefaultTargetHints), Method: "POST"}
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	hits := []audit.Hit{
		plainHit(1),
		bearerHit("https://api/InventoryStock/GetInventoryStockSummary", signedToken(t, exp), "t1"),
		{Method: "GET", URL: "https://api/GetInventoryStock"},
		bearerHit("https://api/getinventorystock?x=1", "opaque", "t2"),
	}

	targets := SelectTargets("ERP target", filter, hits, 10)
	assert.Equal(t, "ERP target", targets.Title)
	assert.Equal(t, audit.DefaultTargetURL, targets.Endpoint)
	assert.Equal(t, 2, targets.Total)
	require.Len(t, targets.Hits, 2)

	require.NotNil(t, targets.Hits[0].Claims)
	assert.Equal(t, "erp", targets.Hits[0].Claims.Issuer)
	assert.False(t, targets.Hits[0].Expired(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, targets.Hits[0].Expired(exp.Add(time.Second)))
	assert.Nil(t, targets.Hits[1].Claims, "opaque tokens carry no claims")

	limited := SelectTargets("", filter, hits, 1)
	assert.Equal(t, 2, limited.Total)
	require.Len(t, limited.Hits, 1)
	assert.Equal(t, "t2", limited.Hits[0].Tenant())
}

func TestWriteSummary(t *testing.T) {
	t.Run("no requests", func(t *testing.T) {
		var b strings.Builder
		WriteSummary(&b, Summarize("Frontend", nil, 20))
		assert.Contains(t, b.String(), "=== Frontend ===")
		assert.Contains(t, b.String(), "No requests captured.")
	})

	t.Run("never prints the raw token", func(t *testing.T) {
		var b strings.Builder
		WriteSummary(&b, Summarize("ERP", []audit.Hit{bearerHit("https://erp/x", "super-secret-token-value", "t1"), plainHit(7)}, 20))

		out := b.String()
		assert.NotContains(t, out, "super-secret-token-value")
		assert.Contains(t, out, "Bearer: Bearer [short-token] (hash:aaaaaaaaaaaa)")
		assert.Contains(t, out, "Tenant: t1 (hash:bbbbbbbbbbbb)")
		assert.Contains(t, out, "[+    7ms] GET https://erp/api/7")
		assert.Contains(t, out, "Bearer: no (hash:-)")
		assert.Contains(t, out, "Origin: - | Referer: -")
	})
}

func TestWriteStorage(t *testing.T) {
	report := clientstate.Classify(clientstate.Snapshot{
		LocalStorage:   map[string]string{"access_token": "abc"},
		SessionStorage: map[string]string{},
	})

	var b strings.Builder
	WriteStorage(&b, report)
	out := b.String()

	assert.Contains(t, out, "Key: access_token")
	assert.Contains(t, out, "LOOKS LIKE TOKEN")
	assert.Contains(t, out, "SessionStorage:\n   empty")
	assert.Contains(t, out, "Cookies:\n   not checked")
}

func TestPrinter(t *testing.T) {
	t.Run("text targets", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, "unknown")
		require.NoError(t, p.Targets(Targets{Endpoint: audit.DefaultTargetURL}))
		assert.Contains(t, buf.String(), "=== Target endpoint only ===")
		assert.Contains(t, buf.String(), "No request to the target endpoint was captured.")
	})

	t.Run("json documents omit secrets", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatJSON)
		require.NoError(t, p.Summary(Summarize("ERP", []audit.Hit{bearerHit("https://erp/x", "raw-secret", "t1")}, 20)))
		require.NoError(t, p.Storage(clientstate.Report{Cookies: []clientstate.Entry{}}))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.NotContains(t, buf.String(), "raw-secret")

		var doc struct {
			Kind string  `json:"kind"`
			Data Summary `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &doc))
		assert.Equal(t, "summary", doc.Kind)
		assert.Equal(t, 1, doc.Data.WithBearer)
		assert.Nil(t, doc.Data.Recent[0].BearerToken)
	})
}
