package service

import (
	"context"
	"errors"
	"testing"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/oauthx"
	"github.com/stretchr/testify/require"
)

func TestClientCredentialsExchange(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(st, newTestFactory(t))

	tenant := seedTenant(t, st)
	client := seedClient(t, st, tenant)

	issued, err := svc.Exchange(ctx, TokenRequest{
		TenantID:     tenant.ID,
		GrantType:    domain.GrantTypeClientCredentials,
		ClientID:     client.ID,
		ClientSecret: testClientSecret,
		Scope:        "api:read",
	})
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token.AccessToken.Value)
	require.Empty(t, issued.RefreshValue, "machine grants never get refresh tokens")
	require.Empty(t, issued.Token.IDToken, "no resource owner, no ID token")
	require.False(t, issued.Token.Grant.HasUser())

	// No consent record either: there is no user to consolidate for.
	_, err = st.Granted().GetGrantedByKey(ctx, tenant.ID, client.ID, "")
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestClientCredentialsRejectsPublicClients(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(st, newTestFactory(t))

	tenant := seedTenant(t, st)
	public := seedClient(t, st, tenant, func(c *domain.Client) { c.SecretHash = "" })

	_, err := svc.Exchange(ctx, TokenRequest{
		TenantID:  tenant.ID,
		GrantType: domain.GrantTypeClientCredentials,
		ClientID:  public.ID,
		Scope:     "api:read",
	})
	require.ErrorIs(t, err, oauthx.ErrUnauthorizedClient)
}

func TestClientCredentialsRejectsForeignScopes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(st, newTestFactory(t))

	tenant := seedTenant(t, st)
	client := seedClient(t, st, tenant)

	_, err := svc.Exchange(ctx, TokenRequest{
		TenantID:     tenant.ID,
		GrantType:    domain.GrantTypeClientCredentials,
		ClientID:     client.ID,
		ClientSecret: testClientSecret,
		Scope:        "admin:everything",
	})
	require.ErrorIs(t, err, oauthx.ErrInvalidScope)
}
