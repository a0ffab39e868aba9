package service

import (
	"context"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/oauthx"
)

// ClientCredentialsGrantService implements machine-to-machine issuance.
// The client is the subject: no user, no refresh token, no ID token, and
// never a consent record.
type ClientCredentialsGrantService struct {
	Store   store.Store
	Factory *TokenFactory
}

func (s *ClientCredentialsGrantService) GrantType() string {
	return domain.GrantTypeClientCredentials
}

func (s *ClientCredentialsGrantService) Exchange(ctx context.Context, ex GrantExchange) (IssuedToken, error) {
	now := time.Now()

	// Public clients cannot prove their identity, which is the whole
	// point of this grant.
	if ex.Client.SecretHash == "" {
		return IssuedToken{}, oauthx.ErrUnauthorizedClient
	}

	scopes := ex.Client.FilterScopes(ex.Request.Scopes())
	if len(scopes) == 0 {
		return IssuedToken{}, oauthx.ErrInvalidScope
	}

	grant := domain.AuthorizationGrant{
		TenantID:  ex.Tenant.ID,
		ClientID:  ex.Client.ID,
		GrantType: domain.GrantTypeClientCredentials,
		Scopes:    scopes,
	}

	issued, err := s.Factory.Mint(ctx, ex.Tenant, ex.Client, grant, MintOptions{Now: now})
	if err != nil {
		return IssuedToken{}, err
	}

	if err := s.Store.OAuthTokens().CreateOAuthToken(ctx, issued.Token); err != nil {
		return IssuedToken{}, serverError(ctx, "persist client_credentials token", err)
	}

	return issued, nil
}
