package sqlite

import (
	"context"

	"github.com/relayid/grantd/internal/idp/domain"
)

type authorizationRequestsRepo struct {
	db dbtx
}

func (r *authorizationRequestsRepo) CreateAuthorizationRequest(ctx context.Context, req domain.AuthorizationRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO authorization_requests (id, tenant_id, client_id, redirect_uri, response_type,
		        scopes, nonce, state, requested_id_token_claims, requested_userinfo_claims, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.TenantID,
		req.ClientID,
		req.RedirectURI,
		req.ResponseType,
		joinStrings(req.Scopes),
		req.Nonce,
		req.State,
		req.RequestedIDTokenClaims.String(),
		req.RequestedUserinfoClaims.String(),
		req.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *authorizationRequestsRepo) GetAuthorizationRequestByID(ctx context.Context, tenantID, id string) (domain.AuthorizationRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, client_id, redirect_uri, response_type, scopes, nonce, state,
		        requested_id_token_claims, requested_userinfo_claims, created_at
		 FROM authorization_requests WHERE tenant_id = ? AND id = ?`, tenantID, id)

	var (
		req            domain.AuthorizationRequest
		scopes         string
		idTokenClaims  string
		userinfoClaims string
	)
	err := row.Scan(
		&req.ID,
		&req.TenantID,
		&req.ClientID,
		&req.RedirectURI,
		&req.ResponseType,
		&scopes,
		&req.Nonce,
		&req.State,
		&idTokenClaims,
		&userinfoClaims,
		&req.CreatedAt,
	)
	if err != nil {
		return domain.AuthorizationRequest{}, mapNotFound(err)
	}

	req.Scopes = splitAndFilter(scopes)
	req.RequestedIDTokenClaims = domain.ParseClaimSet(idTokenClaims)
	req.RequestedUserinfoClaims = domain.ParseClaimSet(userinfoClaims)
	return req, nil
}

func (r *authorizationRequestsRepo) DeleteAuthorizationRequest(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_requests WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteOrphanedAuthorizationRequests reclaims request rows whose code
// is gone. Run after the expired-code sweep; requests and codes are
// inserted in the same transaction, so nothing live matches.
func (r *authorizationRequestsRepo) DeleteOrphanedAuthorizationRequests(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_requests
		 WHERE NOT EXISTS (
		     SELECT 1 FROM authorization_codes c
		      WHERE c.tenant_id = authorization_requests.tenant_id
		        AND c.authorization_request_id = authorization_requests.id)`)
	return err
}
