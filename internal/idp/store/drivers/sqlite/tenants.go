package sqlite

import (
	"context"

	"github.com/relayid/grantd/internal/idp/domain"
)

type tenantsRepo struct {
	db dbtx
}

const tenantColumns = `id, issuer, supported_claims, id_token_strict_mode, signing_algorithm,
	access_token_ttl_seconds, refresh_token_ttl_seconds, id_token_ttl_seconds,
	auth_code_ttl_seconds, ciba_interval_seconds, ciba_expiry_seconds,
	created_at, updated_at`

func (r *tenantsRepo) GetTenantByID(ctx context.Context, id string) (domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

func (r *tenantsRepo) CreateTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Issuer,
		joinStrings(t.SupportedClaims),
		t.IDTokenStrictMode,
		t.SigningAlgorithm,
		durationSeconds(t.AccessTokenTTL),
		durationSeconds(t.RefreshTokenTTL),
		durationSeconds(t.IDTokenTTL),
		durationSeconds(t.AuthCodeTTL),
		durationSeconds(t.CibaInterval),
		durationSeconds(t.CibaExpiry),
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *tenantsRepo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (domain.Tenant, error) {
	var (
		t               domain.Tenant
		supportedClaims string
		accessTTL       int64
		refreshTTL      int64
		idTokenTTL      int64
		authCodeTTL     int64
		cibaInterval    int64
		cibaExpiry      int64
	)
	err := row.Scan(
		&t.ID,
		&t.Issuer,
		&supportedClaims,
		&t.IDTokenStrictMode,
		&t.SigningAlgorithm,
		&accessTTL,
		&refreshTTL,
		&idTokenTTL,
		&authCodeTTL,
		&cibaInterval,
		&cibaExpiry,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}

	t.SupportedClaims = splitAndFilter(supportedClaims)
	t.AccessTokenTTL = secondsDuration(accessTTL)
	t.RefreshTokenTTL = secondsDuration(refreshTTL)
	t.IDTokenTTL = secondsDuration(idTokenTTL)
	t.AuthCodeTTL = secondsDuration(authCodeTTL)
	t.CibaInterval = secondsDuration(cibaInterval)
	t.CibaExpiry = secondsDuration(cibaExpiry)
	return t, nil
}
