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

// AuthorizationCodeGrantService redeems one-time authorization codes.
//
// The whole redemption runs inside a single store transaction in a fixed
// order: verify, consume the code, mint, consolidate consent, persist
// the token, drop the originating request. A replayed code fails at the
// consume step and rolls everything back, so double redemption can never
// yield two token sets.
type AuthorizationCodeGrantService struct {
	Store        store.Store
	Factory      *TokenFactory
	Consolidator GrantConsolidator
}

func (s *AuthorizationCodeGrantService) GrantType() string {
	return domain.GrantTypeAuthorizationCode
}

func (s *AuthorizationCodeGrantService) Exchange(ctx context.Context, ex GrantExchange) (IssuedToken, error) {
	now := time.Now()
	req := ex.Request

	if req.Code == "" {
		return IssuedToken{}, oauthx.ErrInvalidRequest.WithDescription("code is required")
	}

	codeHash := cryptox.Fingerprint(req.Code)

	var issued IssuedToken
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		codeGrant, err := tx.AuthorizationCodes().GetAuthorizationCodeGrantByHash(ctx, ex.Tenant.ID, codeHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return oauthx.ErrInvalidGrant
			}
			return err
		}

		// Missing, expired, consumed and mismatched all collapse into the
		// same invalid_grant; a caller must not learn which one it was.
		if codeGrant.Grant.ClientID != ex.Client.ID {
			return oauthx.ErrInvalidGrant
		}
		if codeGrant.RedirectURI != "" && codeGrant.RedirectURI != req.RedirectURI {
			return oauthx.ErrInvalidGrant
		}
		if codeGrant.IsExpired(now) {
			return oauthx.ErrInvalidGrant
		}

		if err := tx.AuthorizationCodes().ConsumeAuthorizationCodeGrant(ctx, ex.Tenant.ID, codeGrant.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return oauthx.ErrInvalidGrant
			}
			return err
		}

		var nonce string
		if codeGrant.AuthorizationRequestID != "" {
			authReq, err := tx.AuthorizationRequests().GetAuthorizationRequestByID(ctx, ex.Tenant.ID, codeGrant.AuthorizationRequestID)
			switch {
			case err == nil:
				nonce = authReq.Nonce
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		issued, err = s.Factory.Mint(ctx, ex.Tenant, ex.Client, codeGrant.Grant, MintOptions{
			WithRefreshToken: true,
			Nonce:            nonce,
			Authentication:   &codeGrant.Authentication,
			Now:              now,
		})
		if err != nil {
			return err
		}

		if err := s.Consolidator.Consolidate(ctx, tx, codeGrant.Grant, now); err != nil {
			return err
		}

		if err := tx.OAuthTokens().CreateOAuthToken(ctx, issued.Token); err != nil {
			return err
		}

		if codeGrant.AuthorizationRequestID != "" {
			err := tx.AuthorizationRequests().DeleteAuthorizationRequest(ctx, ex.Tenant.ID, codeGrant.AuthorizationRequestID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return IssuedToken{}, mapExchangeError(ctx, "authorization_code exchange", err)
	}

	return issued, nil
}

// mapExchangeError passes oauthx errors through untouched and collapses
// everything else into server_error after logging.
func mapExchangeError(ctx context.Context, op string, err error) error {
	var oe *oauthx.Error
	if errors.As(err, &oe) {
		return err
	}
	return serverError(ctx, op, err)
}
