package domain

import "time"

// Tenant is the per-tenant authorization server configuration. Every
// repository query and every issued token is scoped to one of these.
type Tenant struct {
	ID     string
	Issuer string

	// SupportedClaims is the server's claims_supported list. A claim
	// outside it is never embedded, whatever the scopes say.
	SupportedClaims []string

	// IDTokenStrictMode requires claims to be explicitly requested via
	// the claims parameter; scope membership alone is not sufficient.
	IDTokenStrictMode bool

	SigningAlgorithm string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	IDTokenTTL      time.Duration
	AuthCodeTTL     time.Duration

	// CibaInterval and CibaExpiry override the backchannel defaults
	// when non-zero.
	CibaInterval time.Duration
	CibaExpiry   time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SupportsClaim reports whether the claim is in claims_supported.
func (t Tenant) SupportsClaim(name string) bool {
	for _, c := range t.SupportedClaims {
		if c == name {
			return true
		}
	}
	return false
}
