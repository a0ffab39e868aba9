package sqlite

import (
	"context"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
)

type backchannelRequestsRepo struct {
	db dbtx
}

func (r *backchannelRequestsRepo) CreateBackchannelRequest(ctx context.Context, req domain.BackchannelAuthRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO backchannel_requests (id, tenant_id, client_id, scopes, login_hint,
		        login_hint_token, id_token_hint, binding_message, user_code,
		        requested_expiry_seconds, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.TenantID,
		req.ClientID,
		joinStrings(req.Scopes),
		req.LoginHint,
		req.LoginHintToken,
		req.IDTokenHint,
		req.BindingMessage,
		req.UserCode,
		durationSeconds(req.RequestedExpiry),
		req.ExpiresAt.UTC(),
		req.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *backchannelRequestsRepo) DeleteBackchannelRequest(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM backchannel_requests WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *backchannelRequestsRepo) DeleteExpiredBackchannelRequests(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM backchannel_requests WHERE expires_at < ?`, now.UTC())
	return err
}
