// Package token reads claims from a bearer credential without verifying it.
// The client never holds the signing key; claims are only used to notice a
// credential the server will reject anyway.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ErrOpaque is returned for credentials that are not JWTs.
var ErrOpaque = errors.New("credential is not a JWT")

// Claims is the subset of registered claims the client cares about.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the token carries no exp
}

// Expired reports whether the credential is past its exp at now.
func (c Claims) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Inspect parses raw unverified and extracts its registered claims.
func Inspect(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Count(raw, ".") != 2 {
		return Claims{}, ErrOpaque
	}

	registered := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, registered); err != nil {
		return Claims{}, errors.Wrap(ErrOpaque, err.Error())
	}

	claims := Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}
