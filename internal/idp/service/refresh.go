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

// RefreshTokenGrantService implements single-use refresh token rotation:
// every redemption consumes the presented token's record and mints a
// replacement. A replayed refresh token finds no record and fails with
// invalid_grant, indistinguishable from a token that never existed.
type RefreshTokenGrantService struct {
	Store   store.Store
	Factory *TokenFactory
}

func (s *RefreshTokenGrantService) GrantType() string {
	return domain.GrantTypeRefreshToken
}

func (s *RefreshTokenGrantService) Exchange(ctx context.Context, ex GrantExchange) (IssuedToken, error) {
	now := time.Now()
	req := ex.Request

	if req.RefreshToken == "" {
		return IssuedToken{}, oauthx.ErrInvalidRequest.WithDescription("refresh_token is required")
	}

	refreshHash := cryptox.Fingerprint(req.RefreshToken)

	var issued IssuedToken
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		prior, err := tx.OAuthTokens().GetOAuthTokenByRefreshHash(ctx, ex.Tenant.ID, refreshHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return oauthx.ErrInvalidGrant
			}
			return err
		}

		if prior.Grant.ClientID != ex.Client.ID {
			return oauthx.ErrInvalidGrant
		}
		if prior.RefreshToken == nil || prior.RefreshToken.IsExpired(now) {
			return oauthx.ErrInvalidGrant
		}

		grant := prior.Grant
		grant.GrantType = domain.GrantTypeRefreshToken

		// Scope narrowing: a refresh may request a subset of the granted
		// scope, never more. The narrowed scope sticks to the rotated
		// token.
		if requested := req.Scopes(); len(requested) > 0 {
			narrowed, ok := narrowScopes(prior.Grant.Scopes, requested)
			if !ok {
				return oauthx.ErrInvalidScope
			}
			grant.Scopes = narrowed
		}

		if err := tx.OAuthTokens().ConsumeOAuthToken(ctx, ex.Tenant.ID, prior.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return oauthx.ErrInvalidGrant
			}
			return err
		}

		issued, err = s.Factory.Mint(ctx, ex.Tenant, ex.Client, grant, MintOptions{
			WithRefreshToken: true,
			Now:              now,
		})
		if err != nil {
			return err
		}

		return tx.OAuthTokens().CreateOAuthToken(ctx, issued.Token)
	})
	if err != nil {
		return IssuedToken{}, mapExchangeError(ctx, "refresh_token exchange", err)
	}

	return issued, nil
}

// narrowScopes returns the requested scopes when every one of them is in
// granted; ok is false when the request tries to widen.
func narrowScopes(granted, requested []string) ([]string, bool) {
	allowed := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		allowed[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := allowed[s]; !ok {
			return nil, false
		}
	}
	return requested, true
}
