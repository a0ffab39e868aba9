package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/relayid/grantd/internal/idp/store"
)

// HousekeepingService periodically deletes expired database records so
// codes, CIBA grants and tokens don't accumulate forever. Expiry checks
// at read time stay authoritative; this only reclaims storage.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down and blocks until any in-progress cleanup
// has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup deletes expired records. Each deletion is independent;
// failures in one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now()
	s.Logger.Info("starting housekeeping cleanup")

	if err := s.Store.AuthorizationCodes().DeleteExpiredAuthorizationCodeGrants(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired authorization codes", "error", err)
	}

	// After the codes: request rows whose code expired unredeemed are
	// now orphans (redemption deletes the request itself).
	if err := s.Store.AuthorizationRequests().DeleteOrphanedAuthorizationRequests(ctx); err != nil {
		s.Logger.Error("failed to delete orphaned authorization requests", "error", err)
	}

	if err := s.Store.CibaGrants().DeleteExpiredCibaGrants(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired ciba grants", "error", err)
	}

	if err := s.Store.BackchannelRequests().DeleteExpiredBackchannelRequests(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired backchannel requests", "error", err)
	}

	if err := s.Store.OAuthTokens().DeleteExpiredOAuthTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired tokens", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed")
}
