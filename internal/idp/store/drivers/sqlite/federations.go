package sqlite

import (
	"context"

	"github.com/relayid/grantd/internal/idp/domain"
)

type federationsRepo struct {
	db dbtx
}

func (r *federationsRepo) GetFederationByIssuer(ctx context.Context, tenantID, issuer string) (domain.Federation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, issuer, type, jwks_uri, provider_id, subject_claim, created_at
		 FROM federations WHERE tenant_id = ? AND issuer = ?`, tenantID, issuer)

	var f domain.Federation
	err := row.Scan(
		&f.ID,
		&f.TenantID,
		&f.Issuer,
		&f.Type,
		&f.JWKSURI,
		&f.ProviderID,
		&f.SubjectClaim,
		&f.CreatedAt,
	)
	if err != nil {
		return domain.Federation{}, mapNotFound(err)
	}
	return f, nil
}

func (r *federationsRepo) CreateFederation(ctx context.Context, f domain.Federation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO federations (id, tenant_id, issuer, type, jwks_uri, provider_id, subject_claim, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.TenantID,
		f.Issuer,
		f.Type,
		f.JWKSURI,
		f.ProviderID,
		f.SubjectClaim,
		f.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}
