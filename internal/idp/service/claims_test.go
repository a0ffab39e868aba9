package service

import (
	"testing"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/stretchr/testify/require"
)

func claimsTenant(strict bool) domain.Tenant {
	return domain.Tenant{
		ID:     "tenant",
		Issuer: "https://idp.test",
		SupportedClaims: []string{
			"name", "given_name", "family_name", "website",
			"email", "email_verified", "phone_number", "verified_claims",
		},
		IDTokenStrictMode: strict,
	}
}

func TestClaimsResolverDefaultModeFollowsScope(t *testing.T) {
	t.Parallel()
	var r ClaimsResolver

	set := r.Resolve(claimsTenant(false), []string{"openid", "profile"}, "", domain.ClaimSet{}, false)

	require.True(t, set.Contains("name"))
	require.True(t, set.Contains("family_name"))
	require.True(t, set.Contains("website"))
	require.False(t, set.Contains("email"), "email scope not granted")
	require.False(t, set.Contains("phone_number"), "phone scope not granted")
}

func TestClaimsResolverFiltersUnsupportedClaims(t *testing.T) {
	t.Parallel()
	var r ClaimsResolver

	tenant := claimsTenant(false)
	tenant.SupportedClaims = []string{"name"}

	set := r.Resolve(tenant, []string{"profile", "email"}, "", domain.NewClaimSet("email", "given_name"), false)

	require.Equal(t, []string{"name"}, set.Names())
}

func TestClaimsResolverStrictModeRequiresExplicitRequest(t *testing.T) {
	t.Parallel()
	var r ClaimsResolver

	tenant := claimsTenant(true)
	requested := domain.NewClaimSet("family_name", "phone_number")

	set := r.Resolve(tenant, []string{"profile", "email", "phone"}, "", requested, true)

	// Each claim is decided on its own requested flag, whatever its
	// neighbours in the rule table were granted.
	require.True(t, set.Contains("family_name"))
	require.True(t, set.Contains("phone_number"))
	require.False(t, set.Contains("name"), "scope alone is not enough in strict mode")
	require.False(t, set.Contains("given_name"))
	require.False(t, set.Contains("website"))
	require.False(t, set.Contains("email"))
}

func TestClaimsResolverIDTokenOnlyFlowHonorsScopeAndRequest(t *testing.T) {
	t.Parallel()
	var r ClaimsResolver

	requested := domain.NewClaimSet("email")
	set := r.Resolve(claimsTenant(false), []string{"openid", "profile"}, ResponseTypeIDToken, requested, false)

	// With no access token there is no userinfo call, so both the
	// carrying scope and the explicit request count.
	require.True(t, set.Contains("name"), "scope-derived")
	require.True(t, set.Contains("email"), "explicitly requested without its scope")
	require.False(t, set.Contains("phone_number"))
}

func TestClaimsResolverVerifiedClaimsRequiresExplicitRequest(t *testing.T) {
	t.Parallel()
	var r ClaimsResolver

	tenant := claimsTenant(false)
	allScopes := []string{"openid", "profile", "email", "phone", "address"}

	set := r.Resolve(tenant, allScopes, "", domain.ClaimSet{}, false)
	require.False(t, set.Contains("verified_claims"), "no scope carries verified_claims")

	set = r.Resolve(tenant, nil, "", domain.NewClaimSet("verified_claims"), false)
	require.True(t, set.Contains("verified_claims"))
}

func TestResolveGrantAppliesStrictModeOnlyToIDToken(t *testing.T) {
	t.Parallel()
	var r ClaimsResolver

	tenant := claimsTenant(true)
	resolved := r.ResolveGrant(tenant, []string{"openid", "profile"}, "", ClaimsRequest{})

	// Strict mode with nothing requested: ID token gets no claims, but
	// the userinfo target still follows scope.
	require.True(t, resolved.IDToken.IsEmpty())
	require.True(t, resolved.Userinfo.Contains("name"))
	require.True(t, resolved.Userinfo.Contains("family_name"))
}
