package service

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/pkg/oauthx"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationCodeExchange(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	factory := newTestFactory(t)
	svc := newTokenService(st, factory)

	tenant := seedTenant(t, st)
	client := seedClient(t, st, tenant)
	user := seedUser(t, st, tenant)

	issued := issueCode(t, st, tenant, client, user, "openid profile")

	result, err := svc.Exchange(ctx, TokenRequest{
		TenantID:     tenant.ID,
		GrantType:    domain.GrantTypeAuthorizationCode,
		ClientID:     client.ID,
		ClientSecret: testClientSecret,
		Code:         issued.Code,
		RedirectURI:  "https://app.test/callback",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token.AccessToken.Value)
	require.NotEmpty(t, result.RefreshValue)
	require.NotEmpty(t, result.Token.IDToken, "openid grant with a user gets an ID token")

	// The ID token carries the nonce from the originating request.
	parsed, err := jwt.Parse(result.Token.IDToken, factory.KeyManager.Keyfunc())
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "test-nonce", claims["nonce"])
	require.Equal(t, user.ID, claims["sub"])
	require.Equal(t, tenant.Issuer, claims["iss"])

	// Consent record was consolidated for the (client, user) pair.
	granted, err := st.Granted().GetGrantedByKey(ctx, tenant.ID, client.ID, user.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"openid", "profile"}, granted.Grant.Scopes)
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(st, newTestFactory(t))

	tenant := seedTenant(t, st)
	client := seedClient(t, st, tenant)
	user := seedUser(t, st, tenant)

	issued := issueCode(t, st, tenant, client, user, "openid")

	req := TokenRequest{
		TenantID:     tenant.ID,
		GrantType:    domain.GrantTypeAuthorizationCode,
		ClientID:     client.ID,
		ClientSecret: testClientSecret,
		Code:         issued.Code,
		RedirectURI:  "https://app.test/callback",
	}

	_, err := svc.Exchange(ctx, req)
	require.NoError(t, err)

	_, err = svc.Exchange(ctx, req)
	require.ErrorIs(t, err, oauthx.ErrInvalidGrant, "a replayed code must fail")
}

func TestAuthorizationCodeRejectsMismatches(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(st, newTestFactory(t))

	tenant := seedTenant(t, st)
	client := seedClient(t, st, tenant)
	other := seedClient(t, st, tenant, func(c *domain.Client) { c.Name = "other-client" })
	user := seedUser(t, st, tenant)

	t.Run("wrong redirect_uri", func(t *testing.T) {
		issued := issueCode(t, st, tenant, client, user, "openid")
		_, err := svc.Exchange(ctx, TokenRequest{
			TenantID:     tenant.ID,
			GrantType:    domain.GrantTypeAuthorizationCode,
			ClientID:     client.ID,
			ClientSecret: testClientSecret,
			Code:         issued.Code,
			RedirectURI:  "https://evil.test/callback",
		})
		require.ErrorIs(t, err, oauthx.ErrInvalidGrant)
	})

	t.Run("wrong client", func(t *testing.T) {
		issued := issueCode(t, st, tenant, client, user, "openid")
		_, err := svc.Exchange(ctx, TokenRequest{
			TenantID:     tenant.ID,
			GrantType:    domain.GrantTypeAuthorizationCode,
			ClientID:     other.ID,
			ClientSecret: testClientSecret,
			Code:         issued.Code,
			RedirectURI:  "https://app.test/callback",
		})
		require.ErrorIs(t, err, oauthx.ErrInvalidGrant)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.Exchange(ctx, TokenRequest{
			TenantID:     tenant.ID,
			GrantType:    domain.GrantTypeAuthorizationCode,
			ClientID:     client.ID,
			ClientSecret: testClientSecret,
			Code:         "never-issued",
			RedirectURI:  "https://app.test/callback",
		})
		require.ErrorIs(t, err, oauthx.ErrInvalidGrant)
	})
}

func TestAuthorizeServiceRejectsUnknownScopeAndRedirect(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	tenant := seedTenant(t, st)
	client := seedClient(t, st, tenant)
	user := seedUser(t, st, tenant)

	svc := &AuthorizeService{Store: st, Claims: ClaimsResolver{}}

	_, err := svc.IssueCode(ctx, AuthorizeParams{
		TenantID:    tenant.ID,
		ClientID:    client.ID,
		UserID:      user.ID,
		RedirectURI: "https://app.test/callback",
		Scope:       "not-a-registered-scope",
	})
	require.ErrorIs(t, err, oauthx.ErrInvalidScope)

	_, err = svc.IssueCode(ctx, AuthorizeParams{
		TenantID:    tenant.ID,
		ClientID:    client.ID,
		UserID:      user.ID,
		RedirectURI: "https://unregistered.test/cb",
		Scope:       "openid",
	})
	require.ErrorIs(t, err, oauthx.ErrInvalidRequest)
}
