package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/cryptox"
	"github.com/relayid/grantd/pkg/idx"
	"github.com/relayid/grantd/pkg/oauthx"
)

// AuthorizeService issues authorization codes: the precursor artifact
// the authorization_code grant later redeems. The authorization endpoint
// UI (login, consent) lives outside this core; by the time IssueCode is
// called the user has authenticated and approved the request.
type AuthorizeService struct {
	Store  store.Store
	Claims ClaimsResolver
}

// AuthorizeParams is an approved authorization request.
type AuthorizeParams struct {
	TenantID     string
	ClientID     string
	UserID       string
	RedirectURI  string
	ResponseType string
	Scope        string
	Nonce        string
	State        string

	// RequestedIDTokenClaims / RequestedUserinfoClaims carry the claims
	// parameter content, already split per target.
	RequestedIDTokenClaims  []string
	RequestedUserinfoClaims []string

	// Authentication records how the user authenticated.
	Authentication domain.Authentication
}

// IssuedCode is the result of code issuance. Code is the plaintext
// authorization code, returned exactly once; storage holds only its
// fingerprint.
type IssuedCode struct {
	Code      string
	RequestID string
	ExpiresAt time.Time
}

// IssueCode persists the authorization request and a one-time code bound
// to the grant it represents.
func (s *AuthorizeService) IssueCode(ctx context.Context, p AuthorizeParams) (IssuedCode, error) {
	now := time.Now()

	tenant, err := s.Store.Tenants().GetTenantByID(ctx, p.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedCode{}, oauthx.ErrInvalidRequest.WithDescription("unknown tenant")
		}
		return IssuedCode{}, serverError(ctx, "load tenant", err)
	}

	client, err := s.Store.Clients().GetClientByID(ctx, tenant.ID, p.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedCode{}, oauthx.ErrInvalidClient
		}
		return IssuedCode{}, serverError(ctx, "load client", err)
	}
	if p.RedirectURI != "" && !client.HasRedirectURI(p.RedirectURI) {
		return IssuedCode{}, oauthx.ErrInvalidRequest.WithDescription("redirect_uri is not registered")
	}

	user, err := s.Store.Users().GetUserByID(ctx, tenant.ID, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedCode{}, oauthx.ErrInvalidRequest.WithDescription("unknown user")
		}
		return IssuedCode{}, serverError(ctx, "load user", err)
	}

	scopes := client.FilterScopes(splitScope(p.Scope))
	if len(scopes) == 0 {
		return IssuedCode{}, oauthx.ErrInvalidScope
	}

	requested := ClaimsRequest{
		IDToken:  domain.NewClaimSet(p.RequestedIDTokenClaims...),
		Userinfo: domain.NewClaimSet(p.RequestedUserinfoClaims...),
	}
	resolved := s.Claims.ResolveGrant(tenant, scopes, p.ResponseType, requested)

	grant := domain.AuthorizationGrant{
		TenantID:       tenant.ID,
		User:           user,
		ClientID:       client.ID,
		GrantType:      domain.GrantTypeAuthorizationCode,
		Scopes:         scopes,
		IDTokenClaims:  resolved.IDToken,
		UserinfoClaims: resolved.Userinfo,
	}

	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return IssuedCode{}, serverError(ctx, "generate authorization code", err)
	}

	ttl := tenant.AuthCodeTTL
	if ttl <= 0 {
		ttl = domain.DefaultAuthorizationCodeTTL
	}

	request := domain.AuthorizationRequest{
		ID:                      idx.New().String(),
		TenantID:                tenant.ID,
		ClientID:                client.ID,
		RedirectURI:             p.RedirectURI,
		ResponseType:            p.ResponseType,
		Scopes:                  scopes,
		Nonce:                   p.Nonce,
		State:                   p.State,
		RequestedIDTokenClaims:  requested.IDToken,
		RequestedUserinfoClaims: requested.Userinfo,
		CreatedAt:               now,
	}

	codeGrant := domain.AuthorizationCodeGrant{
		ID:                     idx.New().String(),
		TenantID:               tenant.ID,
		CodeHash:               cryptox.Fingerprint(code),
		AuthorizationRequestID: request.ID,
		RedirectURI:            p.RedirectURI,
		Grant:                  grant,
		Authentication:         p.Authentication,
		ExpiresAt:              now.Add(ttl),
		CreatedAt:              now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AuthorizationRequests().CreateAuthorizationRequest(ctx, request); err != nil {
			return err
		}
		return tx.AuthorizationCodes().CreateAuthorizationCodeGrant(ctx, codeGrant)
	})
	if err != nil {
		return IssuedCode{}, serverError(ctx, "persist authorization code", err)
	}

	return IssuedCode{
		Code:      code,
		RequestID: request.ID,
		ExpiresAt: codeGrant.ExpiresAt,
	}, nil
}

func splitScope(scope string) []string {
	return dedupe(strings.Fields(scope))
}
