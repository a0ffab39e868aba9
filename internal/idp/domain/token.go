package domain

import "time"

// AccessToken is an issued access token: the signed JWT, its fingerprint
// for storage lookups, and its expiry.
type AccessToken struct {
	Value     string
	Hash      string
	ExpiresAt time.Time
}

// RefreshToken is the stored half of an issued refresh token. Only the
// fingerprint is persisted; the opaque value goes to the client once and
// is never recoverable. Refresh tokens are single-use: redemption mints a
// replacement and deletes the OAuthToken carrying this one.
type RefreshToken struct {
	Hash      string
	ExpiresAt time.Time
}

// IsExpired reports whether the refresh token has passed its expiry.
func (t RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// OAuthToken is the result of a token issuance: the minted tokens plus
// the grant they were minted from. The grant travels with the token so a
// refresh can re-mint without re-consulting the original flow.
type OAuthToken struct {
	ID           string
	TenantID     string
	AccessToken  AccessToken
	RefreshToken *RefreshToken
	IDToken      string
	Grant        AuthorizationGrant
	CreatedAt    time.Time
}

// HasRefreshToken reports whether a refresh token was issued.
func (t OAuthToken) HasRefreshToken() bool { return t.RefreshToken != nil }
