package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/cryptox"
	"github.com/relayid/grantd/pkg/oauthx"
	"github.com/relayid/grantd/pkg/slogx"
)

// TokenRequest carries the parsed token endpoint parameters. The HTTP
// layer fills in whatever the form contained; each strategy validates the
// fields it needs.
type TokenRequest struct {
	TenantID     string
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code
	Code        string
	RedirectURI string

	// refresh_token
	RefreshToken string

	// password
	Username string
	Password string

	// jwt-bearer
	Assertion string

	// ciba
	AuthReqID string

	// Scope is the raw space-delimited scope parameter.
	Scope string
}

// Scopes returns the requested scopes split and deduplicated.
func (r TokenRequest) Scopes() []string {
	return dedupe(strings.Fields(r.Scope))
}

// GrantExchange is what a strategy receives: the resolved tenant and
// client plus the raw request. Tenant and client lookups and client
// authentication happen once, in the token service, before dispatch.
type GrantExchange struct {
	Tenant  domain.Tenant
	Client  domain.Client
	Request TokenRequest
}

// IssuedToken is the outcome of a successful exchange. RefreshValue is
// the plaintext refresh token, present exactly once; only its fingerprint
// is ever stored.
type IssuedToken struct {
	Token        domain.OAuthToken
	RefreshValue string
	ExpiresIn    time.Duration
}

// TokenGrantStrategy implements one grant type end to end: validate the
// request, redeem precursors, mint tokens, persist.
type TokenGrantStrategy interface {
	GrantType() string
	Exchange(ctx context.Context, ex GrantExchange) (IssuedToken, error)
}

// Registry maps grant_type values to their strategies. It is built once
// at startup and read-only afterwards.
type Registry struct {
	strategies map[string]TokenGrantStrategy
}

// NewRegistry builds a registry from the given strategies. Registering
// two strategies for the same grant type is a wiring bug, so it panics.
func NewRegistry(strategies ...TokenGrantStrategy) *Registry {
	m := make(map[string]TokenGrantStrategy, len(strategies))
	for _, s := range strategies {
		if _, dup := m[s.GrantType()]; dup {
			panic("duplicate grant strategy for " + s.GrantType())
		}
		m[s.GrantType()] = s
	}
	return &Registry{strategies: m}
}

// StrategyFor returns the strategy registered for the grant type.
func (r *Registry) StrategyFor(grantType string) (TokenGrantStrategy, bool) {
	s, ok := r.strategies[grantType]
	return s, ok
}

// GrantTypes lists the registered grant type identifiers.
func (r *Registry) GrantTypes() []string {
	out := make([]string, 0, len(r.strategies))
	for gt := range r.strategies {
		out = append(out, gt)
	}
	return out
}

// TokenService is the token endpoint core: it resolves the tenant,
// authenticates the client, checks the grant type is allowed, and hands
// off to the registered strategy.
type TokenService struct {
	Store    store.Store
	Registry *Registry
}

// Exchange processes one token request.
func (s *TokenService) Exchange(ctx context.Context, req TokenRequest) (IssuedToken, error) {
	l := slogx.FromContext(ctx)

	if req.GrantType == "" {
		return IssuedToken{}, oauthx.ErrInvalidRequest.WithDescription("grant_type is required")
	}
	if req.ClientID == "" {
		return IssuedToken{}, oauthx.ErrInvalidRequest.WithDescription("client_id is required")
	}

	tenant, client, err := resolveClient(ctx, s.Store, req.TenantID, req.ClientID, req.ClientSecret)
	if err != nil {
		return IssuedToken{}, err
	}

	if !client.AllowsGrantType(req.GrantType) {
		return IssuedToken{}, oauthx.ErrUnauthorizedClient
	}

	strategy, ok := s.Registry.StrategyFor(req.GrantType)
	if !ok {
		l.Info("unsupported grant type requested",
			slog.String("tenant_id", tenant.ID),
			slog.String("grant_type", req.GrantType))
		return IssuedToken{}, oauthx.ErrUnsupportedGrantType
	}

	return strategy.Exchange(ctx, GrantExchange{
		Tenant:  tenant,
		Client:  client,
		Request: req,
	})
}

// resolveClient loads the tenant and client and, for confidential
// clients, verifies the presented secret. Shared by the token endpoint
// and the backchannel request endpoint.
func resolveClient(ctx context.Context, st store.Store, tenantID, clientID, clientSecret string) (domain.Tenant, domain.Client, error) {
	l := slogx.FromContext(ctx)

	tenant, err := st.Tenants().GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Tenant{}, domain.Client{}, oauthx.ErrInvalidRequest.WithDescription("unknown tenant")
		}
		return domain.Tenant{}, domain.Client{}, serverError(ctx, "load tenant", err)
	}

	client, err := st.Clients().GetClientByID(ctx, tenant.ID, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Tenant{}, domain.Client{}, oauthx.ErrInvalidClient
		}
		return domain.Tenant{}, domain.Client{}, serverError(ctx, "load client", err)
	}

	// Confidential clients must present their secret.
	if client.SecretHash != "" {
		if clientSecret == "" || cryptox.VerifySecret(clientSecret, client.SecretHash) != nil {
			l.Info("client authentication failed",
				slog.String("tenant_id", tenant.ID),
				slog.String("client_id", client.ID))
			return domain.Tenant{}, domain.Client{}, oauthx.ErrInvalidClient
		}
	}

	return tenant, client, nil
}

// serverError logs the underlying cause and returns the generic
// server_error sentinel. Details never reach the client.
func serverError(ctx context.Context, op string, err error) error {
	slogx.FromContext(ctx).Error("token exchange failed",
		slog.String("op", op),
		slog.Any("error", err))
	return oauthx.ErrServerError
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
