package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/pkg/cryptox"
	"github.com/relayid/grantd/pkg/idx"
	"github.com/relayid/grantd/pkg/jwtx"
)

// TokenFactory mints the three token kinds from an authorization grant.
// It signs and fingerprints but never persists; strategies store the
// resulting OAuthToken themselves, inside their redemption transaction.
type TokenFactory struct {
	KeyManager *jwtx.KeyManager
}

// MintOptions tunes a single mint call.
type MintOptions struct {
	// WithRefreshToken mints an opaque rotated refresh token alongside
	// the access token.
	WithRefreshToken bool

	// Nonce is echoed into the ID token when present.
	Nonce string

	// Authentication feeds the ID token's auth_time/amr/acr claims.
	Authentication *domain.Authentication

	// Now anchors every lifetime computation.
	Now time.Time
}

// Mint issues tokens for the grant. An ID token is included iff the
// grant carries the openid scope and a resource owner. A signing key
// missing for the tenant's configured algorithm is a server
// misconfiguration: the client sees only server_error.
func (f *TokenFactory) Mint(
	ctx context.Context,
	tenant domain.Tenant,
	client domain.Client,
	grant domain.AuthorizationGrant,
	opts MintOptions,
) (IssuedToken, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	signer, err := f.KeyManager.SignerFor(tenant.SigningAlgorithm)
	if err != nil {
		return IssuedToken{}, serverError(ctx, "resolve signing key", err)
	}

	accessTTL := tenant.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}

	subject := grant.User.ID
	if subject == "" {
		subject = client.ID
	}

	claims := jwtx.NewAccessClaims(
		tenant.Issuer,
		subject,
		tenant.ID,
		client.ID,
		grant.Scopes,
		[]string{client.ID},
		accessTTL,
		now,
	)

	signedAccess, err := signer.Sign(claims)
	if err != nil {
		return IssuedToken{}, serverError(ctx, "sign access token", err)
	}

	token := domain.OAuthToken{
		ID:       idx.New().String(),
		TenantID: tenant.ID,
		AccessToken: domain.AccessToken{
			Value:     signedAccess,
			Hash:      cryptox.Fingerprint(signedAccess),
			ExpiresAt: now.Add(accessTTL),
		},
		Grant:     grant,
		CreatedAt: now,
	}

	issued := IssuedToken{Token: token, ExpiresIn: accessTTL}

	if opts.WithRefreshToken {
		refreshTTL := tenant.RefreshTokenTTL
		if refreshTTL <= 0 {
			refreshTTL = jwtx.DefaultRefreshTokenTTL
		}

		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return IssuedToken{}, serverError(ctx, "generate refresh token", err)
		}

		issued.RefreshValue = opaque
		issued.Token.RefreshToken = &domain.RefreshToken{
			Hash:      cryptox.Fingerprint(opaque),
			ExpiresAt: now.Add(refreshTTL),
		}
	}

	if grant.IsOIDC() && grant.HasUser() {
		idToken, err := f.mintIDToken(signer, tenant, client, grant, opts, now)
		if err != nil {
			return IssuedToken{}, serverError(ctx, "sign id token", err)
		}
		issued.Token.IDToken = idToken
	}

	return issued, nil
}

// mintIDToken builds the OIDC ID token. Profile values are copied for
// exactly the claim names the grant's resolved ID-token set allows.
func (f *TokenFactory) mintIDToken(
	signer jwtx.Signer,
	tenant domain.Tenant,
	client domain.Client,
	grant domain.AuthorizationGrant,
	opts MintOptions,
	now time.Time,
) (string, error) {
	ttl := tenant.IDTokenTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultIDTokenTTL
	}

	claims := jwt.MapClaims{
		"iss": tenant.Issuer,
		"sub": grant.User.ID,
		"aud": client.ID,
		"azp": client.ID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}

	if opts.Nonce != "" {
		claims["nonce"] = opts.Nonce
	}
	if auth := opts.Authentication; auth != nil {
		if !auth.Time.IsZero() {
			claims["auth_time"] = auth.Time.Unix()
		}
		if len(auth.Methods) > 0 {
			claims["amr"] = auth.Methods
		}
		if auth.ACR != "" {
			claims["acr"] = auth.ACR
		}
	}

	for _, name := range grant.IDTokenClaims.Names() {
		if v, ok := grant.User.Claim(name); ok {
			claims[name] = v
		}
	}

	return signer.Sign(claims)
}
