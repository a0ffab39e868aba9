package domain

import "time"

// Client is a tenant-scoped client configuration. Client authentication
// happens outside this core; by the time a grant service sees a Client it
// is a pre-verified fact.
type Client struct {
	ID           string
	TenantID     string
	Name         string
	SecretHash   string // empty for public clients
	Scopes       []string
	GrantTypes   []string
	RedirectURIs []string

	// BackchannelUserCode indicates the client sends a user_code with
	// CIBA requests, verified against the user's registered secret.
	BackchannelUserCode bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllowsGrantType reports whether the client may use the grant type.
// A client with no grant type list may use any.
func (c Client) AllowsGrantType(grantType string) bool {
	if len(c.GrantTypes) == 0 {
		return true
	}
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether the URI is registered for the client.
func (c Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// FilterScopes intersects the requested scopes with the client's allowed
// scopes. An empty request grants everything the client is allowed.
func (c Client) FilterScopes(requested []string) []string {
	if len(requested) == 0 {
		return append([]string(nil), c.Scopes...)
	}

	allowed := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		allowed[s] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		if _, ok := allowed[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
