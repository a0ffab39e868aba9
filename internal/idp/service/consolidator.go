package service

import (
	"context"
	"errors"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/idx"
)

// GrantConsolidator maintains the durable consent record per
// (tenant, client, user). Every user-bound issuance merges its grant into
// the record; scopes and claims only ever accumulate.
type GrantConsolidator struct{}

// Consolidate reads, merges and writes the consent record. It must run
// on the same transaction as the rest of the issuance so concurrent
// grants for the same key serialize instead of losing updates.
//
// Grants without a resource owner (client_credentials) are never
// consolidated; the call is a no-op.
func (GrantConsolidator) Consolidate(ctx context.Context, tx store.Tx, grant domain.AuthorizationGrant, now time.Time) error {
	if !grant.HasUser() {
		return nil
	}

	existing, err := tx.Granted().GetGrantedByKey(ctx, grant.TenantID, grant.ClientID, grant.User.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.Granted().UpsertGranted(ctx, domain.AuthorizationGranted{
			ID:        idx.New().String(),
			TenantID:  grant.TenantID,
			ClientID:  grant.ClientID,
			UserID:    grant.User.ID,
			Grant:     grant,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	merged := existing.Merge(grant)
	merged.UpdatedAt = now
	return tx.Granted().UpsertGranted(ctx, merged)
}
