package domain

import "time"

// OAuth grant type identifiers.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	GrantTypeCiba              = "urn:openid:params:grant-type:ciba"
)

// AuthorizationGrant is an immutable snapshot of an authorization
// decision: what a user (or, for client_credentials, nobody) authorized a
// client to do. Grant services create one at issuance time; "updates"
// always go through Merge and produce a new value.
type AuthorizationGrant struct {
	TenantID  string   `json:"tenant_id"`
	User      User     `json:"user,omitzero"` // zero-valued for client_credentials
	ClientID  string   `json:"client_id"`
	GrantType string   `json:"grant_type"`
	Scopes    []string `json:"scopes"`

	IDTokenClaims  ClaimSet `json:"id_token_claims,omitzero"`
	UserinfoClaims ClaimSet `json:"userinfo_claims,omitzero"`

	// CustomProperties carries opaque extension key/values attached by
	// the issuing flow (e.g. federation provider ids).
	CustomProperties map[string]string `json:"custom_properties,omitempty"`

	// AuthorizationDetails carries RFC 9396 rich authorization request
	// entries as opaque JSON objects.
	AuthorizationDetails []map[string]any `json:"authorization_details,omitempty"`

	// ConsentClaims lists claim names the user explicitly consented to.
	ConsentClaims []string `json:"consent_claims,omitempty"`
}

// HasUser reports whether the grant is bound to a resource owner.
func (g AuthorizationGrant) HasUser() bool { return g.User.Exists() }

// HasScope reports whether the grant includes the given scope.
func (g AuthorizationGrant) HasScope(scope string) bool {
	for _, s := range g.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsOIDC reports whether the grant carries the openid scope.
func (g AuthorizationGrant) IsOIDC() bool { return g.HasScope("openid") }

// Merge returns a new grant whose scope and claim sets are the union of
// both grants. Identity fields (tenant, client, user) come from the
// receiver; the other grant's user fills in only when the receiver has
// none. Merging never removes anything: incremental consent is monotonic.
func (g AuthorizationGrant) Merge(other AuthorizationGrant) AuthorizationGrant {
	merged := g

	merged.Scopes = unionStrings(g.Scopes, other.Scopes)
	merged.IDTokenClaims = g.IDTokenClaims.Merge(other.IDTokenClaims)
	merged.UserinfoClaims = g.UserinfoClaims.Merge(other.UserinfoClaims)
	merged.ConsentClaims = unionStrings(g.ConsentClaims, other.ConsentClaims)

	if !g.User.Exists() {
		merged.User = other.User
	}

	if len(other.CustomProperties) > 0 {
		props := make(map[string]string, len(g.CustomProperties)+len(other.CustomProperties))
		for k, v := range g.CustomProperties {
			props[k] = v
		}
		for k, v := range other.CustomProperties {
			props[k] = v
		}
		merged.CustomProperties = props
	}

	if len(other.AuthorizationDetails) > 0 {
		details := make([]map[string]any, 0, len(g.AuthorizationDetails)+len(other.AuthorizationDetails))
		details = append(details, g.AuthorizationDetails...)
		details = append(details, other.AuthorizationDetails...)
		merged.AuthorizationDetails = details
	}

	return merged
}

// AuthorizationGranted is the durable consent record for a
// (tenant, client, user) key. At most one active record exists per key;
// every new grant for the same key replaces it with a merged version.
type AuthorizationGranted struct {
	ID        string
	TenantID  string
	ClientID  string
	UserID    string
	Grant     AuthorizationGrant
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Merge returns a new record with the fresh grant unioned in. The record
// identity is preserved; only the accumulated grant changes.
func (a AuthorizationGranted) Merge(grant AuthorizationGrant) AuthorizationGranted {
	merged := a
	merged.Grant = a.Grant.Merge(grant)
	return merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range b {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
