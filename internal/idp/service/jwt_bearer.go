package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/oauthx"
	"github.com/relayid/grantd/pkg/slogx"
)

// ErrFederatedUserNotFound is the user-finding delegate's sentinel for
// an assertion subject with no local account.
var ErrFederatedUserNotFound = errors.New("service: federated user not found")

// FederatedUserFinder maps a verified assertion subject to a local user.
type FederatedUserFinder interface {
	FindFederatedUser(ctx context.Context, tenantID, providerID, subject string) (domain.User, error)
}

// StoreFederatedUserFinder is the default finder: the asserted subject
// is looked up as a local username.
type StoreFederatedUserFinder struct {
	Store store.Store
}

func (f *StoreFederatedUserFinder) FindFederatedUser(ctx context.Context, tenantID, providerID, subject string) (domain.User, error) {
	user, err := f.Store.Users().GetUserByUsername(ctx, tenantID, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrFederatedUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// JWTBearerGrantService implements the jwt-bearer assertion grant: a
// trusted external signer (federation partner IdP or provisioned device)
// presents a signed JWT instead of user credentials.
//
// Verification material comes from the federation's JWKS endpoint via a
// background-refreshing cache. An unreachable partner is a request-time
// condition and maps to invalid_grant, never server_error.
type JWTBearerGrantService struct {
	Store   store.Store
	Factory *TokenFactory
	Finder  FederatedUserFinder

	Claims       ClaimsResolver
	Consolidator GrantConsolidator

	// FetchTimeout bounds a single JWKS fetch. Defaults to 10s.
	FetchTimeout time.Duration

	// AcceptableSkew tolerates clock drift on exp/iat checks.
	AcceptableSkew time.Duration

	mu         sync.Mutex
	cache      *jwk.Cache
	registered map[string]struct{}
}

func (s *JWTBearerGrantService) GrantType() string {
	return domain.GrantTypeJWTBearer
}

func (s *JWTBearerGrantService) Exchange(ctx context.Context, ex GrantExchange) (IssuedToken, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)
	req := ex.Request

	if req.Assertion == "" {
		return IssuedToken{}, oauthx.ErrInvalidRequest.WithDescription("assertion is required")
	}

	// The issuer decides which federation's keys verify the assertion,
	// so it has to be read before any signature check.
	unverified, err := jwt.ParseInsecure([]byte(req.Assertion))
	if err != nil || unverified.Issuer() == "" {
		return IssuedToken{}, oauthx.ErrInvalidGrant
	}

	federation, err := s.Store.Federations().GetFederationByIssuer(ctx, ex.Tenant.ID, unverified.Issuer())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedToken{}, oauthx.ErrInvalidGrant
		}
		return IssuedToken{}, serverError(ctx, "load federation", err)
	}

	keySet, err := s.verificationKeys(ctx, federation)
	if err != nil {
		l.Info("federation JWKS fetch failed",
			slog.String("tenant_id", ex.Tenant.ID),
			slog.String("issuer", federation.Issuer),
			slog.Any("error", err))
		return IssuedToken{}, oauthx.ErrInvalidGrant
	}

	skew := s.AcceptableSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}

	verified, err := jwt.Parse([]byte(req.Assertion),
		jwt.WithKeySet(keySet, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithAudience(ex.Tenant.Issuer),
		jwt.WithAcceptableSkew(skew),
	)
	if err != nil {
		return IssuedToken{}, oauthx.ErrInvalidGrant
	}

	subject := assertionSubject(verified, federation.ResolveSubjectClaim())
	if subject == "" {
		return IssuedToken{}, oauthx.ErrInvalidGrant
	}

	user, err := s.Finder.FindFederatedUser(ctx, ex.Tenant.ID, federation.ResolveProviderID(), subject)
	if err != nil {
		if errors.Is(err, ErrFederatedUserNotFound) {
			return IssuedToken{}, oauthx.ErrInvalidGrant
		}
		return IssuedToken{}, serverError(ctx, "find federated user", err)
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
		GrantType:      domain.GrantTypeJWTBearer,
		Scopes:         scopes,
		IDTokenClaims:  resolved.IDToken,
		UserinfoClaims: resolved.Userinfo,
		CustomProperties: map[string]string{
			"federation_issuer":   federation.Issuer,
			"federation_provider": federation.ResolveProviderID(),
			"federation_subject":  subject,
		},
	}

	var issued IssuedToken
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		issued, err = s.Factory.Mint(ctx, ex.Tenant, ex.Client, grant, MintOptions{Now: now})
		if err != nil {
			return err
		}
		if err := s.Consolidator.Consolidate(ctx, tx, grant, now); err != nil {
			return err
		}
		return tx.OAuthTokens().CreateOAuthToken(ctx, issued.Token)
	})
	if err != nil {
		return IssuedToken{}, mapExchangeError(ctx, "jwt-bearer exchange", err)
	}

	return issued, nil
}

// verificationKeys returns the federation's cached JWKS, registering the
// URI on first use.
func (s *JWTBearerGrantService) verificationKeys(ctx context.Context, federation domain.Federation) (jwk.Set, error) {
	if federation.JWKSURI == "" {
		return nil, errors.New("federation has no jwks_uri")
	}

	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s.mu.Lock()
	if s.cache == nil {
		s.cache = jwk.NewCache(context.Background())
		s.registered = make(map[string]struct{})
	}
	if _, ok := s.registered[federation.JWKSURI]; !ok {
		err := s.cache.Register(federation.JWKSURI,
			jwk.WithHTTPClient(&http.Client{Timeout: timeout}),
			jwk.WithMinRefreshInterval(15*time.Minute),
		)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.registered[federation.JWKSURI] = struct{}{}
	}
	cache := s.cache
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return cache.Get(fetchCtx, federation.JWKSURI)
}

func assertionSubject(token jwt.Token, claim string) string {
	if claim == "sub" {
		return token.Subject()
	}
	v, ok := token.Get(claim)
	if !ok {
		return ""
	}
	subject, _ := v.(string)
	return subject
}
