package secrets

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the non-sensitive subset of a JWT payload shown next to a masked token.
type Claims struct {
	Issuer    string    `json:"iss,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

// Expired reports whether the token carried an expiry that is before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// PeekClaims decodes a bearer token as a JWT without verifying its signature.
// Opaque or malformed tokens return false; the result never feeds classification.
func PeekClaims(token string) (Claims, bool) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	registered := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, registered); err != nil {
		return Claims{}, false
	}

	var c Claims
	c.Issuer = registered.Issuer
	if registered.IssuedAt != nil {
		c.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		c.ExpiresAt = registered.ExpiresAt.Time
	}
	return c, true
}
