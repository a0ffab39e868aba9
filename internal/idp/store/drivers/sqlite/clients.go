package sqlite

import (
	"context"
	"database/sql"

	"github.com/relayid/grantd/internal/idp/domain"
)

type clientsRepo struct {
	db dbtx
}

func (r *clientsRepo) GetClientByID(ctx context.Context, tenantID, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, secret_hash, scopes, grant_types, redirect_uris,
		        backchannel_user_code, created_at, updated_at
		 FROM clients WHERE tenant_id = ? AND id = ?`, tenantID, id)

	var (
		c            domain.Client
		secretHash   sql.NullString
		scopes       string
		grantTypes   string
		redirectURIs string
	)
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&secretHash,
		&scopes,
		&grantTypes,
		&redirectURIs,
		&c.BackchannelUserCode,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}

	c.SecretHash = mapNullString(secretHash)
	c.Scopes = splitAndFilter(scopes)
	c.GrantTypes = splitAndFilter(grantTypes)
	c.RedirectURIs = splitAndFilter(redirectURIs)
	return c, nil
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (id, tenant_id, name, secret_hash, scopes, grant_types,
		                      redirect_uris, backchannel_user_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.TenantID,
		c.Name,
		mapStringNull(c.SecretHash),
		joinStrings(c.Scopes),
		joinStrings(c.GrantTypes),
		joinStrings(c.RedirectURIs),
		c.BackchannelUserCode,
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}
