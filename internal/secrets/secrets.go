// Package secrets turns sensitive header and storage values into forms that are
// safe to print: short fingerprints and masked bearer headers.
package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const (
	// FingerprintLength is the number of hex characters kept from the digest.
	FingerprintLength = 12

	// ShortTokenPlaceholder replaces tokens too short to mask partially.
	ShortTokenPlaceholder = "Bearer [short-token]"

	bearerPrefix   = "bearer "
	minMaskableLen = 20
	maskHeadLen    = 12
	maskTailLen    = 8
	maskSeparator  = "..."
)

// Fingerprint returns a short, deterministic SHA-256 prefix of value. It is meant
// for humans comparing "same secret?" across log lines, not for security decisions.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// ExtractBearerToken returns the raw token carried by an Authorization header value.
// The result is the unmasked secret and must only flow to the capture sink.
func ExtractBearerToken(authHeader string) (string, bool) {
	if !isBearer(authHeader) {
		return "", false
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):]), true
}

// MaskBearerHeader returns a display form of a bearer Authorization header.
// Tokens shorter than 20 characters collapse to ShortTokenPlaceholder.
func MaskBearerHeader(authHeader string) (string, bool) {
	token, ok := ExtractBearerToken(authHeader)
	if !ok {
		return "", false
	}
	if utf8.RuneCountInString(token) < minMaskableLen {
		return ShortTokenPlaceholder, true
	}
	r := []rune(token)
	return "Bearer " + string(r[:maskHeadLen]) + maskSeparator + string(r[len(r)-maskTailLen:]), true
}

// isBearer reports whether the header starts with "Bearer " in any case.
func isBearer(authHeader string) bool {
	return len(authHeader) >= len(bearerPrefix) &&
		strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix)
}
