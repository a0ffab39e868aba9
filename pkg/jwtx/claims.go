package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Per-tenant configuration may override these.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultIDTokenTTL is the default lifetime for ID tokens.
	DefaultIDTokenTTL = time.Hour
)

// AccessClaims is the JWT payload of an access token, following the
// RFC 9068 profile (scope as a space-delimited string, client_id, tid
// for the owning tenant).
type AccessClaims struct {
	jwt.RegisteredClaims

	// Scope is the space-delimited granted scope.
	Scope string `json:"scope,omitempty"`

	// ClientID identifies the client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// TenantID identifies the tenant the token belongs to.
	TenantID string `json:"tid,omitempty"`
}

// NewAccessClaims builds minimally-correct access token claims.
func NewAccessClaims(
	issuer, subject, tenantID, clientID string,
	scopes []string,
	audience []string,
	ttl time.Duration,
	now time.Time,
) AccessClaims {
	return AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Scope:    strings.Join(scopes, " "),
		ClientID: clientID,
		TenantID: tenantID,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
