package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/cryptox"
	"github.com/relayid/grantd/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingCleanupRemovesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	tenant := seedTenant(t, st)
	client := seedClient(t, st, tenant)
	user := seedUser(t, st, tenant)

	now := time.Now().UTC()
	grant := domain.AuthorizationGrant{
		TenantID:  tenant.ID,
		User:      user,
		ClientID:  client.ID,
		GrantType: domain.GrantTypeAuthorizationCode,
		Scopes:    []string{"openid"},
	}

	expiredCode := domain.AuthorizationCodeGrant{
		ID:        idx.New().String(),
		TenantID:  tenant.ID,
		CodeHash:  cryptox.Fingerprint("expired-code"),
		Grant:     grant,
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, st.AuthorizationCodes().CreateAuthorizationCodeGrant(ctx, expiredCode))

	liveCode := domain.AuthorizationCodeGrant{
		ID:        idx.New().String(),
		TenantID:  tenant.ID,
		CodeHash:  cryptox.Fingerprint("live-code"),
		Grant:     grant,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, st.AuthorizationCodes().CreateAuthorizationCodeGrant(ctx, liveCode))

	expiredCiba := domain.CibaGrant{
		ID:        idx.New().String(),
		TenantID:  tenant.ID,
		AuthReqID: "expired-auth-req",
		ClientID:  client.ID,
		Status:    domain.CibaStatusRequested,
		Interval:  domain.DefaultCibaInterval,
		Grant:     grant,
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, st.CibaGrants().CreateCibaGrant(ctx, expiredCiba))

	svc := NewHousekeepingService(st, slog.Default(), time.Hour)
	svc.cleanup()

	_, err := st.AuthorizationCodes().GetAuthorizationCodeGrantByHash(ctx, tenant.ID, expiredCode.CodeHash)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.AuthorizationCodes().GetAuthorizationCodeGrantByHash(ctx, tenant.ID, liveCode.CodeHash)
	require.NoError(t, err, "unexpired records survive cleanup")

	_, err = st.CibaGrants().GetCibaGrantByAuthReqID(ctx, tenant.ID, expiredCiba.AuthReqID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestHousekeepingReclaimsRequestRecords(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	tenant := seedTenant(t, st, func(tn *domain.Tenant) { tn.AuthCodeTTL = time.Nanosecond })
	client := seedClient(t, st, tenant)
	user := seedUser(t, st, tenant)

	// A code that expires unredeemed must not strand its request row:
	// the code sweep runs first, then the orphan sweep picks up the
	// request it left behind.
	stale := issueCode(t, st, tenant, client, user, "openid")
	time.Sleep(time.Millisecond)

	liveTenant := seedTenant(t, st)
	liveClient := seedClient(t, st, liveTenant)
	liveUser := seedUser(t, st, liveTenant)
	live := issueCode(t, st, liveTenant, liveClient, liveUser, "openid")

	now := time.Now().UTC()
	expiredRequest := domain.BackchannelAuthRequest{
		ID:        idx.New().String(),
		TenantID:  tenant.ID,
		ClientID:  client.ID,
		Scopes:    []string{"openid"},
		LoginHint: user.Username,
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, st.BackchannelRequests().CreateBackchannelRequest(ctx, expiredRequest))

	svc := NewHousekeepingService(st, slog.Default(), time.Hour)
	svc.cleanup()

	_, err := st.AuthorizationRequests().GetAuthorizationRequestByID(ctx, tenant.ID, stale.RequestID)
	require.ErrorIs(t, err, store.ErrNotFound, "orphaned request rows are reclaimed with their code")

	_, err = st.AuthorizationRequests().GetAuthorizationRequestByID(ctx, liveTenant.ID, live.RequestID)
	require.NoError(t, err, "requests backing live codes survive")

	err = st.BackchannelRequests().DeleteBackchannelRequest(ctx, tenant.ID, expiredRequest.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "expired backchannel requests are swept")
}

func TestHousekeepingStartStop(t *testing.T) {
	st := newTestStore(t)

	svc := NewHousekeepingService(st, slog.Default(), time.Hour)
	svc.Start()
	svc.Stop()
}
