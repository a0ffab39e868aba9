package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/pkg/jwtx"
	"github.com/relayid/grantd/pkg/oauthx"
	"github.com/stretchr/testify/require"
)

func factoryFixtures() (domain.Tenant, domain.Client, domain.User) {
	tenant := domain.Tenant{
		ID:               "tenant-1",
		Issuer:           "https://idp.test",
		SigningAlgorithm: jwtx.AlgorithmES256,
	}
	client := domain.Client{ID: "client-1", TenantID: tenant.ID}
	user := domain.User{
		ID:       "user-1",
		TenantID: tenant.ID,
		Username: "alice",
		Profile: map[string]any{
			"name":  "Alice Example",
			"email": "alice@example.test",
		},
	}
	return tenant, client, user
}

func TestTokenFactoryMintAccessToken(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	tenant, client, user := factoryFixtures()

	grant := domain.AuthorizationGrant{
		TenantID:  tenant.ID,
		User:      user,
		ClientID:  client.ID,
		GrantType: domain.GrantTypePassword,
		Scopes:    []string{"openid", "profile"},
	}

	issued, err := factory.Mint(ctx, tenant, client, grant, MintOptions{})
	require.NoError(t, err)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, issued.ExpiresIn)
	require.NotEmpty(t, issued.Token.AccessToken.Hash)

	var claims jwtx.AccessClaims
	_, err = jwt.ParseWithClaims(issued.Token.AccessToken.Value, &claims, factory.KeyManager.Keyfunc())
	require.NoError(t, err)
	require.Equal(t, tenant.Issuer, claims.Issuer)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, "openid profile", claims.Scope)
	require.Equal(t, client.ID, claims.ClientID)
	require.Equal(t, tenant.ID, claims.TenantID)
}

func TestTokenFactoryIDTokenClaimEmbedding(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	tenant, client, user := factoryFixtures()

	grant := domain.AuthorizationGrant{
		TenantID:      tenant.ID,
		User:          user,
		ClientID:      client.ID,
		GrantType:     domain.GrantTypeAuthorizationCode,
		Scopes:        []string{"openid"},
		IDTokenClaims: domain.NewClaimSet("name"),
	}

	authTime := time.Now().Add(-time.Minute).Truncate(time.Second)
	issued, err := factory.Mint(ctx, tenant, client, grant, MintOptions{
		Nonce: "nonce-123",
		Authentication: &domain.Authentication{
			Time:    authTime,
			Methods: []string{"pwd", "otp"},
			ACR:     "urn:mace:incommon:iap:silver",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token.IDToken)

	parsed, err := jwt.Parse(issued.Token.IDToken, factory.KeyManager.Keyfunc())
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)

	require.Equal(t, "nonce-123", claims["nonce"])
	require.EqualValues(t, authTime.Unix(), claims["auth_time"])
	require.Equal(t, []any{"pwd", "otp"}, claims["amr"])
	require.Equal(t, "urn:mace:incommon:iap:silver", claims["acr"])

	// Only the resolved claim names are embedded, whatever else the
	// profile holds.
	require.Equal(t, "Alice Example", claims["name"])
	require.NotContains(t, claims, "email")
}

func TestTokenFactorySkipsIDTokenWithoutUserOrOpenID(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	tenant, client, user := factoryFixtures()

	t.Run("no user", func(t *testing.T) {
		grant := domain.AuthorizationGrant{
			TenantID:  tenant.ID,
			ClientID:  client.ID,
			GrantType: domain.GrantTypeClientCredentials,
			Scopes:    []string{"openid"},
		}
		issued, err := factory.Mint(ctx, tenant, client, grant, MintOptions{})
		require.NoError(t, err)
		require.Empty(t, issued.Token.IDToken)
	})

	t.Run("no openid scope", func(t *testing.T) {
		grant := domain.AuthorizationGrant{
			TenantID:  tenant.ID,
			User:      user,
			ClientID:  client.ID,
			GrantType: domain.GrantTypePassword,
			Scopes:    []string{"profile"},
		}
		issued, err := factory.Mint(ctx, tenant, client, grant, MintOptions{})
		require.NoError(t, err)
		require.Empty(t, issued.Token.IDToken)
	})
}

func TestTokenFactoryUnknownAlgorithmIsServerError(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	tenant, client, user := factoryFixtures()
	tenant.SigningAlgorithm = jwtx.AlgorithmRS256 // no RS256 key generated

	grant := domain.AuthorizationGrant{
		TenantID:  tenant.ID,
		User:      user,
		ClientID:  client.ID,
		GrantType: domain.GrantTypePassword,
		Scopes:    []string{"profile"},
	}

	_, err := factory.Mint(ctx, tenant, client, grant, MintOptions{})
	require.ErrorIs(t, err, oauthx.ErrServerError)
}

func TestTokenFactoryRefreshTokenOptIn(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	tenant, client, user := factoryFixtures()

	grant := domain.AuthorizationGrant{
		TenantID:  tenant.ID,
		User:      user,
		ClientID:  client.ID,
		GrantType: domain.GrantTypePassword,
		Scopes:    []string{"profile"},
	}

	withoutRefresh, err := factory.Mint(ctx, tenant, client, grant, MintOptions{})
	require.NoError(t, err)
	require.Empty(t, withoutRefresh.RefreshValue)
	require.False(t, withoutRefresh.Token.HasRefreshToken())

	withRefresh, err := factory.Mint(ctx, tenant, client, grant, MintOptions{WithRefreshToken: true})
	require.NoError(t, err)
	require.NotEmpty(t, withRefresh.RefreshValue)
	require.True(t, withRefresh.Token.HasRefreshToken())
	require.NotEqual(t, withRefresh.RefreshValue, withRefresh.Token.RefreshToken.Hash,
		"only the fingerprint is stored")
}
