package secrets

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	t.Run("deterministic and fixed length", func(t *testing.T) {
		a := Fingerprint("Bearer abc")
		b := Fingerprint("Bearer abc")
		assert.Equal(t, a, b)
		assert.Len(t, a, FingerprintLength)
		assert.Regexp(t, `^[0-9a-f]{12}$`, a)
	})

	t.Run("known digest prefix", func(t *testing.T) {
		// sha256("") = e3b0c44298fc1c149afbf4c8996fb924...
		assert.Equal(t, "e3b0c44298fc", Fingerprint(""))
	})

	t.Run("different inputs differ", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("tenant-a"), Fingerprint("tenant-b"))
	})
}

func TestMaskBearerHeader(t *testing.T) {
	longToken := "eyJhbGciOiJIUzI1NiJ9.MIDDLE-SECRET-PART.signature-tail"

	testCases := []struct {
		name     string
		header   string
		expected string
		ok       bool
	}{
		{name: "empty header", header: "", ok: false},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", ok: false},
		{name: "no space after scheme", header: "Bearertoken", ok: false},
		{name: "short token", header: "Bearer abc123", expected: ShortTokenPlaceholder, ok: true},
		{name: "lower case scheme", header: "bearer abc123", expected: ShortTokenPlaceholder, ok: true},
		{name: "long token", header: "Bearer " + longToken, expected: "Bearer eyJhbGciOiJI...ure-tail", ok: true},
		{name: "upper case scheme with padding", header: "BEARER   " + longToken + "  ", expected: "Bearer eyJhbGciOiJI...ure-tail", ok: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			masked, ok := MaskBearerHeader(tc.header)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, masked)
		})
	}
}

func TestMaskBearerHeader_NeverLeaksShortSecrets(t *testing.T) {
	for n := 1; n < 20; n++ {
		token := strings.Repeat("z", n)
		masked, ok := MaskBearerHeader("Bearer " + token)
		require.True(t, ok)
		assert.Equal(t, ShortTokenPlaceholder, masked)
		assert.NotContains(t, masked, "z")
	}
}

func TestMaskBearerHeader_HidesMiddle(t *testing.T) {
	token := "AAAAAAAAAAAA" + "SECRETMIDDLE" + "BBBBBBBB"
	masked, ok := MaskBearerHeader("Bearer " + token)
	require.True(t, ok)

	assert.Equal(t, "Bearer AAAAAAAAAAAA...BBBBBBBB", masked)
	assert.NotContains(t, masked, "SECRETMIDDLE")
}

func TestMaskBearerHeader_MultiByte(t *testing.T) {
	// 19 characters is still too short even though it is 38 bytes.
	masked, ok := MaskBearerHeader("Bearer " + strings.Repeat("ñ", 19))
	require.True(t, ok)
	assert.Equal(t, ShortTokenPlaceholder, masked)

	token := strings.Repeat("á", 12) + "meio-secreto" + strings.Repeat("ü", 8)
	masked, ok = MaskBearerHeader("Bearer " + token)
	require.True(t, ok)
	assert.Equal(t, "Bearer "+strings.Repeat("á", 12)+"..."+strings.Repeat("ü", 8), masked)
	assert.True(t, utf8.ValidString(masked))
}

func TestExtractBearerToken(t *testing.T) {
	t.Run("round trips the token", func(t *testing.T) {
		token := "abcdefghijklmnopqrstuvwxyz0123456789"
		got, ok := ExtractBearerToken("Bearer " + token)
		require.True(t, ok)
		assert.Equal(t, token, got)
	})

	t.Run("trims whitespace", func(t *testing.T) {
		got, ok := ExtractBearerToken("bEaReR \t tok \n")
		require.True(t, ok)
		assert.Equal(t, "tok", got)
	})

	t.Run("rejects non bearer schemes", func(t *testing.T) {
		_, ok := ExtractBearerToken("Token abc")
		assert.False(t, ok)
		_, ok = ExtractBearerToken("")
		assert.False(t, ok)
	})
}

func TestPeekClaims(t *testing.T) {
	exp := time.Now().Add(-time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "https://idp.example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	t.Run("decodes registered claims without verification", func(t *testing.T) {
		claims, ok := PeekClaims(signed)
		require.True(t, ok)
		assert.Equal(t, "https://idp.example.com", claims.Issuer)
		assert.True(t, claims.ExpiresAt.Equal(exp))
		assert.True(t, claims.Expired(time.Now()))
	})

	t.Run("opaque tokens are not claims", func(t *testing.T) {
		_, ok := PeekClaims("opaque-reference-token")
		assert.False(t, ok)
	})

	t.Run("zero expiry never expires", func(t *testing.T) {
		assert.False(t, Claims{}.Expired(time.Now()))
	})
}
