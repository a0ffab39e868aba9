package domain

import "time"

// DefaultAuthorizationCodeTTL bounds how long an issued code stays
// redeemable when the tenant does not configure a TTL.
const DefaultAuthorizationCodeTTL = 10 * time.Minute

// Authentication records how and when the user authenticated for the
// flow that produced a grant. It feeds the ID token's auth_time, amr and
// acr claims.
type Authentication struct {
	Time    time.Time
	Methods []string
	ACR     string
}

// AuthorizationRequest is the persisted authorization-endpoint request an
// authorization code was issued against. It is kept until the code is
// redeemed because ID-token construction needs the nonce and the
// requested claims, and redirect_uri verification needs the original
// value.
type AuthorizationRequest struct {
	ID           string
	TenantID     string
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scopes       []string
	Nonce        string
	State        string

	// RequestedIDTokenClaims / RequestedUserinfoClaims are the claim
	// names the client explicitly asked for via the claims parameter.
	RequestedIDTokenClaims  ClaimSet
	RequestedUserinfoClaims ClaimSet

	CreatedAt time.Time
}

// IsOIDC reports whether the request asked for the openid scope.
func (r AuthorizationRequest) IsOIDC() bool {
	for _, s := range r.Scopes {
		if s == "openid" {
			return true
		}
	}
	return false
}

// AuthorizationCodeGrant binds an issued authorization code to the grant
// it represents. Exactly one redemption is valid; consumption deletes the
// row so a second attempt finds nothing.
type AuthorizationCodeGrant struct {
	ID                     string
	TenantID               string
	CodeHash               string
	AuthorizationRequestID string
	RedirectURI            string
	Grant                  AuthorizationGrant
	Authentication         Authentication
	ExpiresAt              time.Time
	CreatedAt              time.Time
}

// IsExpired reports whether the code has passed its expiry.
func (g AuthorizationCodeGrant) IsExpired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}
