package service

import (
	"context"
	"errors"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/cryptox"
	"github.com/relayid/grantd/pkg/oauthx"
)

// ErrUserNotAuthenticated is the delegate's not-found sentinel: wrong
// username and wrong password are indistinguishable to the caller, which
// turns both into a uniform invalid_grant.
var ErrUserNotAuthenticated = errors.New("service: user not authenticated")

// PasswordVerifier authenticates a resource owner for the password
// grant. Implementations return ErrUserNotAuthenticated for any
// credential failure.
type PasswordVerifier interface {
	FindAndAuthenticate(ctx context.Context, tenantID, username, password string) (domain.User, error)
}

// StorePasswordVerifier is the default PasswordVerifier: username lookup
// plus argon2id verification against the stored hash.
type StorePasswordVerifier struct {
	Store store.Store
}

func (v *StorePasswordVerifier) FindAndAuthenticate(ctx context.Context, tenantID, username, password string) (domain.User, error) {
	user, err := v.Store.Users().GetUserByUsername(ctx, tenantID, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotAuthenticated
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" || cryptox.VerifySecret(password, user.PasswordHash) != nil {
		return domain.User{}, ErrUserNotAuthenticated
	}
	return user, nil
}

// PasswordGrantService implements the resource owner password grant via
// an authentication delegate.
type PasswordGrantService struct {
	Store    store.Store
	Factory  *TokenFactory
	Verifier PasswordVerifier

	Claims       ClaimsResolver
	Consolidator GrantConsolidator
}

func (s *PasswordGrantService) GrantType() string {
	return domain.GrantTypePassword
}

func (s *PasswordGrantService) Exchange(ctx context.Context, ex GrantExchange) (IssuedToken, error) {
	now := time.Now()
	req := ex.Request

	if req.Username == "" || req.Password == "" {
		return IssuedToken{}, oauthx.ErrInvalidRequest.WithDescription("username and password are required")
	}

	user, err := s.Verifier.FindAndAuthenticate(ctx, ex.Tenant.ID, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserNotAuthenticated) {
			return IssuedToken{}, oauthx.ErrInvalidGrant
		}
		return IssuedToken{}, serverError(ctx, "authenticate resource owner", err)
	}

	scopes := ex.Client.FilterScopes(req.Scopes())
	if len(scopes) == 0 {
		return IssuedToken{}, oauthx.ErrInvalidScope
	}

	resolved := s.Claims.ResolveGrant(ex.Tenant, scopes, "", ClaimsRequest{})

	grant := domain.AuthorizationGrant{
		TenantID:       ex.Tenant.ID,
		User:           user,
		ClientID:       ex.Client.ID,
		GrantType:      domain.GrantTypePassword,
		Scopes:         scopes,
		IDTokenClaims:  resolved.IDToken,
		UserinfoClaims: resolved.Userinfo,
	}

	var issued IssuedToken
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		issued, err = s.Factory.Mint(ctx, ex.Tenant, ex.Client, grant, MintOptions{
			WithRefreshToken: true,
			Authentication: &domain.Authentication{
				Time:    now,
				Methods: []string{"pwd"},
			},
			Now: now,
		})
		if err != nil {
			return err
		}

		if err := s.Consolidator.Consolidate(ctx, tx, grant, now); err != nil {
			return err
		}
		return tx.OAuthTokens().CreateOAuthToken(ctx, issued.Token)
	})
	if err != nil {
		return IssuedToken{}, mapExchangeError(ctx, "password exchange", err)
	}

	return issued, nil
}
