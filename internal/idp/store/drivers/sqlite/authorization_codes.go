package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
)

type authorizationCodesRepo struct {
	db dbtx
}

func (r *authorizationCodesRepo) CreateAuthorizationCodeGrant(ctx context.Context, g domain.AuthorizationCodeGrant) error {
	payload, err := marshalGrant(g.Grant)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO authorization_codes (id, tenant_id, code_hash, authorization_request_id,
		        redirect_uri, grant_payload, auth_time, auth_methods, auth_acr, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.TenantID,
		g.CodeHash,
		g.AuthorizationRequestID,
		g.RedirectURI,
		payload,
		g.Authentication.Time.UTC(),
		joinStrings(g.Authentication.Methods),
		g.Authentication.ACR,
		g.ExpiresAt.UTC(),
		g.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCodeGrantByHash(ctx context.Context, tenantID, codeHash string) (domain.AuthorizationCodeGrant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, code_hash, authorization_request_id, redirect_uri,
		        grant_payload, auth_time, auth_methods, auth_acr, expires_at, created_at
		 FROM authorization_codes WHERE tenant_id = ? AND code_hash = ?`, tenantID, codeHash)

	var (
		g       domain.AuthorizationCodeGrant
		payload string
		methods string
	)
	err := row.Scan(
		&g.ID,
		&g.TenantID,
		&g.CodeHash,
		&g.AuthorizationRequestID,
		&g.RedirectURI,
		&payload,
		&g.Authentication.Time,
		&methods,
		&g.Authentication.ACR,
		&g.ExpiresAt,
		&g.CreatedAt,
	)
	if err != nil {
		return domain.AuthorizationCodeGrant{}, mapNotFound(err)
	}

	g.Grant, err = unmarshalGrant(payload)
	if err != nil {
		return domain.AuthorizationCodeGrant{}, err
	}
	g.Authentication.Methods = splitAndFilter(methods)
	return g, nil
}

// ConsumeAuthorizationCodeGrant deletes the code row iff it still exists.
// The rows-affected check is what makes redemption exactly-once: of two
// racing redeemers inside their transactions, only one delete takes.
func (r *authorizationCodesRepo) ConsumeAuthorizationCodeGrant(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodeGrants(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < ?`, now.UTC())
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
