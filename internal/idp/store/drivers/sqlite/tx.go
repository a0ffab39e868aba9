package sqlite

import (
	"context"
	"database/sql"

	"github.com/relayid/grantd/internal/idp/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // nothing to close; caller will commit/rollback and outer DB stays open

// Ping is a no-op for transactions. The connection is already established
// when the transaction is created, so we just return nil.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return sql.ErrTxDone
}

func (t *txStore) Tenants() store.Tenants { return &tenantsRepo{db: t.tx} }
func (t *txStore) Clients() store.Clients { return &clientsRepo{db: t.tx} }
func (t *txStore) Users() store.Users     { return &usersRepo{db: t.tx} }
func (t *txStore) AuthorizationRequests() store.AuthorizationRequests {
	return &authorizationRequestsRepo{db: t.tx}
}
func (t *txStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{db: t.tx}
}
func (t *txStore) BackchannelRequests() store.BackchannelRequests {
	return &backchannelRequestsRepo{db: t.tx}
}
func (t *txStore) CibaGrants() store.CibaGrants   { return &cibaGrantsRepo{db: t.tx} }
func (t *txStore) Granted() store.Granted         { return &grantedRepo{db: t.tx} }
func (t *txStore) OAuthTokens() store.OAuthTokens { return &oauthTokensRepo{db: t.tx} }
func (t *txStore) Federations() store.Federations { return &federationsRepo{db: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // no-op; migrations should be applied before starting a tx
