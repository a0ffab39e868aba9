package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/cryptox"
	"github.com/relayid/grantd/pkg/idx"
	"github.com/relayid/grantd/pkg/oauthx"
	"github.com/relayid/grantd/pkg/slogx"
)

// ErrUnknownUser is the hint resolver's sentinel for a hint that matches
// no user.
var ErrUnknownUser = errors.New("service: unknown user")

// CibaHints carries the user-identifying hints of a backchannel request.
// Exactly one must be present.
type CibaHints struct {
	LoginHint      string
	LoginHintToken string
	IDTokenHint    string
}

func (h CibaHints) count() int {
	n := 0
	for _, v := range []string{h.LoginHint, h.LoginHintToken, h.IDTokenHint} {
		if v != "" {
			n++
		}
	}
	return n
}

// CibaHintResolver resolves a hint to the target user. Implementations
// return ErrUnknownUser when the hint identifies nobody.
type CibaHintResolver interface {
	ResolveUser(ctx context.Context, tenantID string, hints CibaHints) (domain.User, error)
}

// StoreHintResolver is the default resolver: login_hint is treated as a
// local username. Token-shaped hints need deployment-specific handling
// and fall through to ErrUnknownUser here.
type StoreHintResolver struct {
	Store store.Store
}

func (r *StoreHintResolver) ResolveUser(ctx context.Context, tenantID string, hints CibaHints) (domain.User, error) {
	if hints.LoginHint == "" {
		return domain.User{}, ErrUnknownUser
	}
	user, err := r.Store.Users().GetUserByUsername(ctx, tenantID, hints.LoginHint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnknownUser
		}
		return domain.User{}, err
	}
	return user, nil
}

// CibaNotifier delivers the out-of-band "someone wants you to approve
// this" signal to the user's device. Called fire-and-forget; failures
// are logged, never surfaced to the requesting client.
type CibaNotifier interface {
	NotifyAuthorizationRequested(ctx context.Context, tenant domain.Tenant, user domain.User, request domain.BackchannelAuthRequest, grant domain.CibaGrant)
}

// LogNotifier is the default notifier: it records the event in the log.
// Real deployments plug in push or SMS delivery.
type LogNotifier struct{}

func (LogNotifier) NotifyAuthorizationRequested(ctx context.Context, tenant domain.Tenant, user domain.User, request domain.BackchannelAuthRequest, grant domain.CibaGrant) {
	slogx.FromContext(ctx).Info("backchannel authorization requested",
		slog.String("tenant_id", tenant.ID),
		slog.String("user_id", user.ID),
		slog.String("client_id", request.ClientID),
		slog.String("binding_message", request.BindingMessage),
		slog.String("auth_req_id", grant.AuthReqID))
}

// errAlreadyDecided is returned when a decision arrives for a grant that
// is no longer in the requested state. Decisions are single-shot.
var errAlreadyDecided = oauthx.NewError(http.StatusConflict, oauthx.ErrorCodeInvalidRequest,
	"the authorization request has already been decided")

// BackchannelService runs the CIBA request and decision phases. Token
// redemption lives in CibaGrantService, behind the grant registry.
type BackchannelService struct {
	Store    store.Store
	Hints    CibaHintResolver
	Notifier CibaNotifier
	Claims   ClaimsResolver
}

// BackchannelRequestParams is a parsed bc-authorize request.
type BackchannelRequestParams struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string

	Hints          CibaHints
	BindingMessage string
	UserCode       string

	// RequestedExpiry is the client's requested auth_req_id lifetime.
	// Zero means the tenant default.
	RequestedExpiry time.Duration
}

// BackchannelAuthorization is the successful bc-authorize outcome.
type BackchannelAuthorization struct {
	AuthReqID string
	ExpiresIn time.Duration
	Interval  time.Duration
}

// RequestAuthorization validates a backchannel request, persists the
// pending grant and kicks off the user notification.
func (s *BackchannelService) RequestAuthorization(ctx context.Context, p BackchannelRequestParams) (BackchannelAuthorization, error) {
	now := time.Now()

	tenant, client, err := resolveClient(ctx, s.Store, p.TenantID, p.ClientID, p.ClientSecret)
	if err != nil {
		return BackchannelAuthorization{}, err
	}
	if !client.AllowsGrantType(domain.GrantTypeCiba) {
		return BackchannelAuthorization{}, oauthx.ErrUnauthorizedClient
	}

	if p.Hints.count() != 1 {
		return BackchannelAuthorization{}, oauthx.ErrInvalidRequest.WithDescription(
			"exactly one of login_hint, login_hint_token or id_token_hint is required")
	}

	scopes := client.FilterScopes(splitScope(p.Scope))
	if !containsScope(scopes, ScopeOpenID) {
		return BackchannelAuthorization{}, oauthx.ErrInvalidScope.WithDescription("openid scope is required")
	}

	user, err := s.Hints.ResolveUser(ctx, tenant.ID, p.Hints)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return BackchannelAuthorization{}, oauthx.ErrUnknownUserID
		}
		return BackchannelAuthorization{}, serverError(ctx, "resolve backchannel hint", err)
	}

	if client.BackchannelUserCode {
		if p.UserCode == "" {
			return BackchannelAuthorization{}, oauthx.ErrInvalidUserCode.WithDescription("user_code is required")
		}
		if user.UserCodeSecret == "" || !totp.Validate(p.UserCode, user.UserCodeSecret) {
			return BackchannelAuthorization{}, oauthx.ErrInvalidUserCode
		}
	}

	interval := tenant.CibaInterval
	if interval <= 0 {
		interval = domain.DefaultCibaInterval
	}
	expiry := p.RequestedExpiry
	if expiry <= 0 {
		expiry = tenant.CibaExpiry
	}
	if expiry <= 0 {
		expiry = domain.DefaultCibaExpiry
	}

	authReqID, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return BackchannelAuthorization{}, serverError(ctx, "generate auth_req_id", err)
	}

	request := domain.BackchannelAuthRequest{
		ID:              idx.New().String(),
		TenantID:        tenant.ID,
		ClientID:        client.ID,
		Scopes:          scopes,
		LoginHint:       p.Hints.LoginHint,
		LoginHintToken:  p.Hints.LoginHintToken,
		IDTokenHint:     p.Hints.IDTokenHint,
		BindingMessage:  p.BindingMessage,
		UserCode:        p.UserCode,
		RequestedExpiry: expiry,
		ExpiresAt:       now.Add(expiry),
		CreatedAt:       now,
	}

	grant := domain.CibaGrant{
		ID:        idx.New().String(),
		TenantID:  tenant.ID,
		AuthReqID: authReqID,
		ClientID:  client.ID,
		RequestID: request.ID,
		Status:    domain.CibaStatusRequested,
		Interval:  interval,
		Grant: domain.AuthorizationGrant{
			TenantID:  tenant.ID,
			User:      user,
			ClientID:  client.ID,
			GrantType: domain.GrantTypeCiba,
			Scopes:    scopes,
		},
		ExpiresAt: now.Add(expiry),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackchannelRequests().CreateBackchannelRequest(ctx, request); err != nil {
			return err
		}
		return tx.CibaGrants().CreateCibaGrant(ctx, grant)
	})
	if err != nil {
		return BackchannelAuthorization{}, serverError(ctx, "persist backchannel request", err)
	}

	// Fire and forget: the client's response never waits on delivery.
	notifyCtx := slogx.WithContext(context.Background(), slogx.FromContext(ctx))
	go func() {
		notifyCtx, cancel := context.WithTimeout(notifyCtx, 30*time.Second)
		defer cancel()
		s.Notifier.NotifyAuthorizationRequested(notifyCtx, tenant, user, request, grant)
	}()

	return BackchannelAuthorization{
		AuthReqID: authReqID,
		ExpiresIn: expiry,
		Interval:  interval,
	}, nil
}

// Authorize records the end user's approval: requested→authorized, with
// the fully resolved grant attached. Terminal; a second decision fails.
func (s *BackchannelService) Authorize(ctx context.Context, tenantID, authReqID string) error {
	now := time.Now()

	tenant, err := s.Store.Tenants().GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return oauthx.ErrInvalidRequest.WithDescription("unknown tenant")
		}
		return serverError(ctx, "load tenant", err)
	}

	grant, err := s.Store.CibaGrants().GetCibaGrantByAuthReqID(ctx, tenantID, authReqID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return oauthx.ErrInvalidGrant
		}
		return serverError(ctx, "load ciba grant", err)
	}
	if grant.IsExpired(now) {
		return oauthx.ErrExpiredToken
	}

	resolved := s.Claims.ResolveGrant(tenant, grant.Grant.Scopes, "", ClaimsRequest{})
	authorized := grant.Grant
	authorized.IDTokenClaims = resolved.IDToken
	authorized.UserinfoClaims = resolved.Userinfo

	err = s.Store.CibaGrants().TransitionCibaGrant(ctx, tenantID, grant.ID,
		domain.CibaStatusRequested, domain.CibaStatusAuthorized, authorized)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errAlreadyDecided
		}
		if errors.Is(err, store.ErrNotFound) {
			return oauthx.ErrInvalidGrant
		}
		return serverError(ctx, "authorize ciba grant", err)
	}
	return nil
}

// Deny records the end user's refusal: requested→denied. Terminal.
func (s *BackchannelService) Deny(ctx context.Context, tenantID, authReqID string) error {
	now := time.Now()

	grant, err := s.Store.CibaGrants().GetCibaGrantByAuthReqID(ctx, tenantID, authReqID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return oauthx.ErrInvalidGrant
		}
		return serverError(ctx, "load ciba grant", err)
	}
	if grant.IsExpired(now) {
		return oauthx.ErrExpiredToken
	}

	err = s.Store.CibaGrants().TransitionCibaGrant(ctx, tenantID, grant.ID,
		domain.CibaStatusRequested, domain.CibaStatusDenied, grant.Grant)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errAlreadyDecided
		}
		if errors.Is(err, store.ErrNotFound) {
			return oauthx.ErrInvalidGrant
		}
		return serverError(ctx, "deny ciba grant", err)
	}
	return nil
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
