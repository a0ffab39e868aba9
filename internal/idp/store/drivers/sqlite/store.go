package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so repositories work
// unchanged inside and outside transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite serializes writers anyway, and a single pooled connection
	// keeps :memory: databases coherent across the pool.
	db.SetMaxOpenConns(1)

	// Enforce FKs and keep concurrent readers happy.
	pragmas := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{
		db:  db,
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err // rollback happens in defer
	}

	return tx.Commit()
}

func (s *Store) Tenants() store.Tenants { return &tenantsRepo{db: s.db} }
func (s *Store) Clients() store.Clients { return &clientsRepo{db: s.db} }
func (s *Store) Users() store.Users     { return &usersRepo{db: s.db} }
func (s *Store) AuthorizationRequests() store.AuthorizationRequests {
	return &authorizationRequestsRepo{db: s.db}
}
func (s *Store) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{db: s.db}
}
func (s *Store) BackchannelRequests() store.BackchannelRequests {
	return &backchannelRequestsRepo{db: s.db}
}
func (s *Store) CibaGrants() store.CibaGrants   { return &cibaGrantsRepo{db: s.db} }
func (s *Store) Granted() store.Granted         { return &grantedRepo{db: s.db} }
func (s *Store) OAuthTokens() store.OAuthTokens { return &oauthTokensRepo{db: s.db} }
func (s *Store) Federations() store.Federations { return &federationsRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func mapNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func mapStringNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func joinStrings(values []string) string {
	return strings.Join(values, " ")
}

func splitAndFilter(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Fields(s)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

// marshalGrant serializes the authorization grant payload column. Grants
// are stored as JSON because their shape (nested user snapshot, claim
// sets, rich authorization details) does not decompose into columns.
func marshalGrant(g domain.AuthorizationGrant) (string, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal grant payload: %w", err)
	}
	return string(raw), nil
}

func unmarshalGrant(raw string) (domain.AuthorizationGrant, error) {
	var g domain.AuthorizationGrant
	if raw == "" {
		return g, nil
	}
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return domain.AuthorizationGrant{}, fmt.Errorf("unmarshal grant payload: %w", err)
	}
	return g, nil
}

func marshalProfile(profile map[string]any) (string, error) {
	if len(profile) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("marshal user profile: %w", err)
	}
	return string(raw), nil
}

func unmarshalProfile(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var profile map[string]any
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("unmarshal user profile: %w", err)
	}
	return profile, nil
}

func secondsDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

func durationSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
