package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
)

type oauthTokensRepo struct {
	db dbtx
}

func (r *oauthTokensRepo) CreateOAuthToken(ctx context.Context, t domain.OAuthToken) error {
	payload, err := marshalGrant(t.Grant)
	if err != nil {
		return err
	}

	var (
		refreshHash   sql.NullString
		refreshExpiry sql.NullTime
	)
	if t.RefreshToken != nil {
		refreshHash = sql.NullString{String: t.RefreshToken.Hash, Valid: true}
		refreshExpiry = sql.NullTime{Time: t.RefreshToken.ExpiresAt.UTC(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (id, tenant_id, access_token_hash, access_expires_at,
		        refresh_token_hash, refresh_expires_at, id_token, grant_payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.TenantID,
		t.AccessToken.Hash,
		t.AccessToken.ExpiresAt.UTC(),
		refreshHash,
		refreshExpiry,
		t.IDToken,
		payload,
		t.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *oauthTokensRepo) GetOAuthTokenByRefreshHash(ctx context.Context, tenantID, refreshHash string) (domain.OAuthToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, access_token_hash, access_expires_at,
		        refresh_token_hash, refresh_expires_at, id_token, grant_payload, created_at
		 FROM oauth_tokens WHERE tenant_id = ? AND refresh_token_hash = ?`, tenantID, refreshHash)

	var (
		t             domain.OAuthToken
		storedRefresh sql.NullString
		refreshExpiry sql.NullTime
		payload       string
	)
	err := row.Scan(
		&t.ID,
		&t.TenantID,
		&t.AccessToken.Hash,
		&t.AccessToken.ExpiresAt,
		&storedRefresh,
		&refreshExpiry,
		&t.IDToken,
		&payload,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.OAuthToken{}, mapNotFound(err)
	}

	if storedRefresh.Valid {
		t.RefreshToken = &domain.RefreshToken{
			Hash:      storedRefresh.String,
			ExpiresAt: refreshExpiry.Time,
		}
	}
	t.Grant, err = unmarshalGrant(payload)
	if err != nil {
		return domain.OAuthToken{}, err
	}
	return t, nil
}

// ConsumeOAuthToken deletes the token record iff it still exists. Refresh
// rotation rides on this: the replayed refresh token's row is already
// gone, so the second redemption gets ErrNotFound.
func (r *oauthTokensRepo) ConsumeOAuthToken(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteExpiredOAuthTokens drops tokens whose access token and refresh
// token (when present) have both expired.
func (r *oauthTokensRepo) DeleteExpiredOAuthTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens
		 WHERE access_expires_at < ?
		   AND (refresh_expires_at IS NULL OR refresh_expires_at < ?)`,
		now.UTC(), now.UTC())
	return err
}
