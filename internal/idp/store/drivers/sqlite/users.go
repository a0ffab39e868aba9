package sqlite

import (
	"context"

	"github.com/relayid/grantd/internal/idp/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, tenant_id, username, password_hash, profile, user_code_secret, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, tenantID, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, tenantID, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND username = ?`, tenantID, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	profile, err := marshalProfile(u.Profile)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.TenantID,
		u.Username,
		u.PasswordHash,
		profile,
		u.UserCodeSecret,
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u       domain.User
		profile string
	)
	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Username,
		&u.PasswordHash,
		&profile,
		&u.UserCodeSecret,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Profile, err = unmarshalProfile(profile)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
