package sqlite

import (
	"context"

	"github.com/relayid/grantd/internal/idp/domain"
)

type grantedRepo struct {
	db dbtx
}

func (r *grantedRepo) GetGrantedByKey(ctx context.Context, tenantID, clientID, userID string) (domain.AuthorizationGranted, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, client_id, user_id, grant_payload, created_at, updated_at
		 FROM authorization_granted WHERE tenant_id = ? AND client_id = ? AND user_id = ?`,
		tenantID, clientID, userID)

	var (
		g       domain.AuthorizationGranted
		payload string
	)
	err := row.Scan(
		&g.ID,
		&g.TenantID,
		&g.ClientID,
		&g.UserID,
		&payload,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return domain.AuthorizationGranted{}, mapNotFound(err)
	}

	g.Grant, err = unmarshalGrant(payload)
	if err != nil {
		return domain.AuthorizationGranted{}, err
	}
	return g, nil
}

// UpsertGranted writes the consent record for its (tenant, client, user)
// key, replacing the accumulated grant on conflict. The record id and
// created_at survive the replace so the record keeps its identity across
// merges.
func (r *grantedRepo) UpsertGranted(ctx context.Context, g domain.AuthorizationGranted) error {
	payload, err := marshalGrant(g.Grant)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO authorization_granted (id, tenant_id, client_id, user_id, grant_payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, client_id, user_id)
		 DO UPDATE SET grant_payload = excluded.grant_payload, updated_at = excluded.updated_at`,
		g.ID,
		g.TenantID,
		g.ClientID,
		g.UserID,
		payload,
		g.CreatedAt.UTC(),
		g.UpdatedAt.UTC(),
	)
	return err
}
