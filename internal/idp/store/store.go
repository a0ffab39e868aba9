package store

import (
	"context"
	"errors"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports a conditional write that found the row in a
	// different state than expected (e.g. deciding an already-decided
	// CIBA grant).
	ErrConflict = errors.New("store: conflicting state")
)

// Store is the root data access interface. Every method is scoped to a
// tenant. Concrete drivers (sqlite today) implement this; sub-repositories
// keep concerns tidy and testable.
type Store interface {
	Tenants() Tenants
	Clients() Clients
	Users() Users
	AuthorizationRequests() AuthorizationRequests
	AuthorizationCodes() AuthorizationCodes
	BackchannelRequests() BackchannelRequests
	CibaGrants() CibaGrants
	Granted() Granted
	OAuthTokens() OAuthTokens
	Federations() Federations

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn
	// returns an error and committing otherwise. Every precursor
	// redemption sequence (read, verify, mint, consume) runs under this.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Tenants interface {
	GetTenantByID(ctx context.Context, id string) (domain.Tenant, error)
	CreateTenant(ctx context.Context, t domain.Tenant) error
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
}

type Clients interface {
	GetClientByID(ctx context.Context, tenantID, id string) (domain.Client, error)
	CreateClient(ctx context.Context, c domain.Client) error
}

type Users interface {
	GetUserByID(ctx context.Context, tenantID, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, tenantID, username string) (domain.User, error)
	CreateUser(ctx context.Context, u domain.User) error
}

type AuthorizationRequests interface {
	CreateAuthorizationRequest(ctx context.Context, r domain.AuthorizationRequest) error
	GetAuthorizationRequestByID(ctx context.Context, tenantID, id string) (domain.AuthorizationRequest, error)
	DeleteAuthorizationRequest(ctx context.Context, tenantID, id string) error

	// DeleteOrphanedAuthorizationRequests removes request rows no code
	// references anymore. Redemption deletes the request with its code;
	// codes that expire unredeemed are swept by housekeeping, which then
	// calls this to reclaim the request rows they leave behind. Requests
	// are inserted atomically with their code, so a row without a code is
	// always garbage.
	DeleteOrphanedAuthorizationRequests(ctx context.Context) error
}

type AuthorizationCodes interface {
	CreateAuthorizationCodeGrant(ctx context.Context, g domain.AuthorizationCodeGrant) error

	// GetAuthorizationCodeGrantByHash fetches a code by its fingerprint
	// when redeeming.
	GetAuthorizationCodeGrantByHash(ctx context.Context, tenantID, codeHash string) (domain.AuthorizationCodeGrant, error)

	// ConsumeAuthorizationCodeGrant deletes the grant iff it still
	// exists, returning ErrNotFound otherwise. Combined with WithTx this
	// is the exactly-once redemption guard: of two concurrent redeemers,
	// one consumes and one gets ErrNotFound.
	ConsumeAuthorizationCodeGrant(ctx context.Context, tenantID, id string) error

	DeleteExpiredAuthorizationCodeGrants(ctx context.Context, now time.Time) error
}

type BackchannelRequests interface {
	CreateBackchannelRequest(ctx context.Context, r domain.BackchannelAuthRequest) error

	// DeleteBackchannelRequest removes a request when its grant is
	// consumed, returning ErrNotFound when housekeeping got there first.
	DeleteBackchannelRequest(ctx context.Context, tenantID, id string) error

	DeleteExpiredBackchannelRequests(ctx context.Context, now time.Time) error
}

type CibaGrants interface {
	CreateCibaGrant(ctx context.Context, g domain.CibaGrant) error
	GetCibaGrantByAuthReqID(ctx context.Context, tenantID, authReqID string) (domain.CibaGrant, error)

	// TransitionCibaGrant moves a grant from one status to another,
	// persisting the (possibly enriched) authorization grant. The update
	// is conditional on the current status: a grant already out of the
	// `from` state yields ErrConflict, so decisions are single-shot.
	TransitionCibaGrant(ctx context.Context, tenantID, id string, from, to domain.CibaGrantStatus, grant domain.AuthorizationGrant) error

	// ConsumeCibaGrant deletes the grant iff it still exists, returning
	// ErrNotFound otherwise. Same exactly-once discipline as codes.
	ConsumeCibaGrant(ctx context.Context, tenantID, id string) error

	DeleteExpiredCibaGrants(ctx context.Context, now time.Time) error
}

type Granted interface {
	// GetGrantedByKey returns the durable consent record for a
	// (tenant, client, user) key.
	GetGrantedByKey(ctx context.Context, tenantID, clientID, userID string) (domain.AuthorizationGranted, error)

	// UpsertGranted inserts or replaces the record for its key. Callers
	// run this inside WithTx together with the read that produced the
	// merge, serializing concurrent writers for the same key.
	UpsertGranted(ctx context.Context, g domain.AuthorizationGranted) error
}

type OAuthTokens interface {
	CreateOAuthToken(ctx context.Context, t domain.OAuthToken) error

	// GetOAuthTokenByRefreshHash looks up a token by the fingerprint of
	// its refresh token, for the refresh_token grant.
	GetOAuthTokenByRefreshHash(ctx context.Context, tenantID, refreshHash string) (domain.OAuthToken, error)

	// ConsumeOAuthToken deletes the token iff it still exists, returning
	// ErrNotFound otherwise. Refresh rotation consumes the old token
	// under WithTx so a replayed refresh token fails.
	ConsumeOAuthToken(ctx context.Context, tenantID, id string) error

	DeleteExpiredOAuthTokens(ctx context.Context, now time.Time) error
}

type Federations interface {
	GetFederationByIssuer(ctx context.Context, tenantID, issuer string) (domain.Federation, error)
	CreateFederation(ctx context.Context, f domain.Federation) error
}
