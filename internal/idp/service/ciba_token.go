package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/oauthx"
	"golang.org/x/time/rate"
)

// pollPacer enforces the per-auth_req_id polling interval handed to the
// client at request time. One limiter per key; faster polls get
// slow_down.
type pollPacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPollPacer() *pollPacer {
	return &pollPacer{limiters: make(map[string]*rate.Limiter)}
}

// allow reports whether a poll for the key is within its interval. The
// first poll for a key always passes.
func (p *pollPacer) allow(key string, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}

	p.mu.Lock()
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		p.limiters[key] = limiter
	}
	p.mu.Unlock()

	return limiter.Allow()
}

// forget drops a key's limiter once its grant reached a terminal state.
func (p *pollPacer) forget(key string) {
	p.mu.Lock()
	delete(p.limiters, key)
	p.mu.Unlock()
}

// CibaGrantService redeems decided backchannel grants at the token
// endpoint. Clients poll with their auth_req_id; the pending grant's
// status maps onto the CIBA error vocabulary until an authorized grant
// is consumed for tokens.
type CibaGrantService struct {
	Store        store.Store
	Factory      *TokenFactory
	Consolidator GrantConsolidator

	pacerOnce sync.Once
	pacer     *pollPacer
}

func (s *CibaGrantService) GrantType() string {
	return domain.GrantTypeCiba
}

func (s *CibaGrantService) Exchange(ctx context.Context, ex GrantExchange) (IssuedToken, error) {
	now := time.Now()
	req := ex.Request

	if req.AuthReqID == "" {
		return IssuedToken{}, oauthx.ErrInvalidRequest.WithDescription("auth_req_id is required")
	}

	s.pacerOnce.Do(func() { s.pacer = newPollPacer() })

	grant, err := s.Store.CibaGrants().GetCibaGrantByAuthReqID(ctx, ex.Tenant.ID, req.AuthReqID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedToken{}, oauthx.ErrInvalidGrant
		}
		return IssuedToken{}, serverError(ctx, "load ciba grant", err)
	}
	if grant.ClientID != ex.Client.ID {
		return IssuedToken{}, oauthx.ErrInvalidGrant
	}

	pacerKey := ex.Tenant.ID + "/" + req.AuthReqID
	if !s.pacer.allow(pacerKey, grant.Interval) {
		return IssuedToken{}, oauthx.ErrSlowDown
	}

	// Expiry is evaluated lazily; nothing marks rows expired in the
	// background before housekeeping collects them. The limiter goes
	// with the grant or it would outlive every abandoned auth_req_id.
	if grant.IsExpired(now) {
		s.pacer.forget(pacerKey)
		return IssuedToken{}, oauthx.ErrExpiredToken
	}

	switch grant.Status {
	case domain.CibaStatusRequested:
		return IssuedToken{}, oauthx.ErrAuthorizationPending

	case domain.CibaStatusDenied:
		// Deliver the denial once, then the grant is gone and later
		// polls see invalid_grant.
		err := s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.CibaGrants().ConsumeCibaGrant(ctx, ex.Tenant.ID, grant.ID); err != nil {
				return err
			}
			return s.deleteRequest(ctx, tx, ex.Tenant.ID, grant.RequestID)
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return IssuedToken{}, serverError(ctx, "consume denied ciba grant", err)
		}
		s.pacer.forget(pacerKey)
		return IssuedToken{}, oauthx.ErrAccessDenied

	case domain.CibaStatusAuthorized:
		issued, err := s.redeem(ctx, ex, grant, now)
		if err != nil {
			return IssuedToken{}, err
		}
		s.pacer.forget(pacerKey)
		return issued, nil

	default:
		return IssuedToken{}, serverError(ctx, "ciba grant state",
			errors.New("unexpected status "+string(grant.Status)))
	}
}

// deleteRequest reclaims the originating backchannel request when the
// grant is consumed. Housekeeping may have swept it already; that is
// not an error.
func (s *CibaGrantService) deleteRequest(ctx context.Context, tx store.Tx, tenantID, requestID string) error {
	if requestID == "" {
		return nil
	}
	err := tx.BackchannelRequests().DeleteBackchannelRequest(ctx, tenantID, requestID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// redeem consumes the authorized grant and mints tokens, all inside one
// transaction: of two racing polls, exactly one gets tokens.
func (s *CibaGrantService) redeem(ctx context.Context, ex GrantExchange, grant domain.CibaGrant, now time.Time) (IssuedToken, error) {
	var issued IssuedToken
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CibaGrants().ConsumeCibaGrant(ctx, ex.Tenant.ID, grant.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return oauthx.ErrInvalidGrant
			}
			return err
		}
		if err := s.deleteRequest(ctx, tx, ex.Tenant.ID, grant.RequestID); err != nil {
			return err
		}

		var err error
		issued, err = s.Factory.Mint(ctx, ex.Tenant, ex.Client, grant.Grant, MintOptions{
			WithRefreshToken: true,
			Authentication: &domain.Authentication{
				Time:    grant.UpdatedAt, // decision time
				Methods: []string{"ciba"},
			},
			Now: now,
		})
		if err != nil {
			return err
		}

		if err := s.Consolidator.Consolidate(ctx, tx, grant.Grant, now); err != nil {
			return err
		}
		return tx.OAuthTokens().CreateOAuthToken(ctx, issued.Token)
	})
	if err != nil {
		return IssuedToken{}, mapExchangeError(ctx, "ciba exchange", err)
	}
	return issued, nil
}
