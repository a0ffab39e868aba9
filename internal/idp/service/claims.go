package service

import (
	"github.com/relayid/grantd/internal/idp/domain"
)

// Standard OIDC scope values that carry claim groups.
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
	ScopePhone   = "phone"
	ScopeAddress = "address"
)

// ResponseTypeIDToken is the implicit id_token-only response type. With
// no access token in play there is no userinfo call, so explicitly
// requested claims are honored alongside scope-derived ones.
const ResponseTypeIDToken = "id_token"

// claimRule binds a claim name to the scope that carries it. Claims with
// no carrying scope (verified_claims) are included only when explicitly
// requested via the claims parameter, never via scope.
type claimRule struct {
	name  string
	scope string
}

// claimRules is the full resolution table. Each claim's inclusion is
// decided independently against its own requested flag and its own
// carrying scope; no claim's decision ever reads another claim's flag.
var claimRules = []claimRule{
	{name: "name", scope: ScopeProfile},
	{name: "given_name", scope: ScopeProfile},
	{name: "family_name", scope: ScopeProfile},
	{name: "middle_name", scope: ScopeProfile},
	{name: "nickname", scope: ScopeProfile},
	{name: "preferred_username", scope: ScopeProfile},
	{name: "profile", scope: ScopeProfile},
	{name: "picture", scope: ScopeProfile},
	{name: "website", scope: ScopeProfile},
	{name: "gender", scope: ScopeProfile},
	{name: "birthdate", scope: ScopeProfile},
	{name: "zoneinfo", scope: ScopeProfile},
	{name: "locale", scope: ScopeProfile},
	{name: "updated_at", scope: ScopeProfile},

	{name: "email", scope: ScopeEmail},
	{name: "email_verified", scope: ScopeEmail},

	{name: "phone_number", scope: ScopePhone},
	{name: "phone_number_verified", scope: ScopePhone},

	{name: "address", scope: ScopeAddress},

	{name: "verified_claims"}, // explicit request only
}

// ClaimsResolver computes the claim names a grant is entitled to. The
// per-claim decision, in order:
//
//  1. A claim outside the tenant's claims_supported list is never
//     included, whatever the request says.
//  2. verified_claims (and any other rule without a carrying scope) is
//     included iff explicitly requested, independent of scope and mode.
//  3. In the id_token-only implicit flow, inclusion follows the carrying
//     scope OR an explicit request.
//  4. In strict mode, inclusion requires the claim be explicitly present
//     in the requested claims; scope alone is not sufficient.
//  5. Otherwise inclusion follows scope membership alone.
type ClaimsResolver struct{}

// Resolve computes one claim set. strictMode is the tenant's ID-token
// strict flag for the ID-token target and false for userinfo.
func (ClaimsResolver) Resolve(
	tenant domain.Tenant,
	scopes []string,
	responseType string,
	requested domain.ClaimSet,
	strictMode bool,
) domain.ClaimSet {
	granted := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		granted[s] = struct{}{}
	}

	var names []string
	for _, rule := range claimRules {
		if !tenant.SupportsClaim(rule.name) {
			continue
		}

		scopeGranted := false
		if rule.scope != "" {
			_, scopeGranted = granted[rule.scope]
		}

		if includeClaim(rule, scopeGranted, requested.Contains(rule.name), responseType, strictMode) {
			names = append(names, rule.name)
		}
	}
	return domain.NewClaimSet(names...)
}

// ClaimsRequest is the parsed claims-parameter content: which claims the
// client explicitly asked for, per target.
type ClaimsRequest struct {
	IDToken  domain.ClaimSet
	Userinfo domain.ClaimSet
}

// ResolvedClaims is the two-target resolver output, ready to be attached
// to a grant.
type ResolvedClaims struct {
	IDToken  domain.ClaimSet
	Userinfo domain.ClaimSet
}

// ResolveGrant computes both targets: the ID-token set under the
// tenant's strict-mode flag, the userinfo set never strict.
func (r ClaimsResolver) ResolveGrant(
	tenant domain.Tenant,
	scopes []string,
	responseType string,
	requested ClaimsRequest,
) ResolvedClaims {
	return ResolvedClaims{
		IDToken:  r.Resolve(tenant, scopes, responseType, requested.IDToken, tenant.IDTokenStrictMode),
		Userinfo: r.Resolve(tenant, scopes, "", requested.Userinfo, false),
	}
}

func includeClaim(rule claimRule, scopeGranted, requested bool, responseType string, strictMode bool) bool {
	if rule.scope == "" {
		return requested
	}
	if responseType == ResponseTypeIDToken {
		return scopeGranted || requested
	}
	if strictMode {
		return requested
	}
	return scopeGranted
}
