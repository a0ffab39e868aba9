package sqlite

import (
	"context"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
)

type cibaGrantsRepo struct {
	db dbtx
}

func (r *cibaGrantsRepo) CreateCibaGrant(ctx context.Context, g domain.CibaGrant) error {
	payload, err := marshalGrant(g.Grant)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO ciba_grants (id, tenant_id, auth_req_id, client_id, request_id, status,
		        interval_seconds, grant_payload, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.TenantID,
		g.AuthReqID,
		g.ClientID,
		g.RequestID,
		string(g.Status),
		durationSeconds(g.Interval),
		payload,
		g.ExpiresAt.UTC(),
		g.CreatedAt.UTC(),
		g.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *cibaGrantsRepo) GetCibaGrantByAuthReqID(ctx context.Context, tenantID, authReqID string) (domain.CibaGrant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, auth_req_id, client_id, request_id, status, interval_seconds,
		        grant_payload, expires_at, created_at, updated_at
		 FROM ciba_grants WHERE tenant_id = ? AND auth_req_id = ?`, tenantID, authReqID)

	var (
		g        domain.CibaGrant
		status   string
		interval int64
		payload  string
	)
	err := row.Scan(
		&g.ID,
		&g.TenantID,
		&g.AuthReqID,
		&g.ClientID,
		&g.RequestID,
		&status,
		&interval,
		&payload,
		&g.ExpiresAt,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return domain.CibaGrant{}, mapNotFound(err)
	}

	g.Status = domain.CibaGrantStatus(status)
	g.Interval = secondsDuration(interval)
	g.Grant, err = unmarshalGrant(payload)
	if err != nil {
		return domain.CibaGrant{}, err
	}
	return g, nil
}

// TransitionCibaGrant moves the grant between statuses. The WHERE clause
// guards on the expected current status, so a second decision for the
// same grant updates zero rows and surfaces as ErrConflict; a grant that
// vanished entirely surfaces as ErrNotFound.
func (r *cibaGrantsRepo) TransitionCibaGrant(ctx context.Context, tenantID, id string, from, to domain.CibaGrantStatus, grant domain.AuthorizationGrant) error {
	payload, err := marshalGrant(grant)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE ciba_grants SET status = ?, grant_payload = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		string(to), payload, time.Now().UTC(), tenantID, id, string(from))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a decided grant from a missing one.
		var exists int
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ciba_grants WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	return nil
}

func (r *cibaGrantsRepo) ConsumeCibaGrant(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ciba_grants WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *cibaGrantsRepo) DeleteExpiredCibaGrants(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM ciba_grants WHERE expires_at < ?`, now.UTC())
	return err
}
