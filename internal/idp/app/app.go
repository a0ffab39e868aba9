package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/relayid/grantd/internal/idp/http"
	"github.com/relayid/grantd/internal/idp/service"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/internal/idp/store/drivers/sqlite"
	"github.com/relayid/grantd/pkg/jwtx"
	"github.com/relayid/grantd/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the grant engine together: storage, signing keys,
// grant strategies and the HTTP surface.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	keyManager *jwtx.KeyManager

	tokenService        *service.TokenService
	authorizeService    *service.AuthorizeService
	backchannelService  *service.BackchannelService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "grantd",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: cfg.Algorithms,
		NumKeys:    cfg.NumKeys,
		RSABits:    cfg.RSABits,
	})
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("grant engine starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server, background workers and the
// database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down grant engine...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("grant engine stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	factory := &service.TokenFactory{KeyManager: app.keyManager}
	consolidator := service.GrantConsolidator{}
	claims := service.ClaimsResolver{}

	registry := service.NewRegistry(
		&service.AuthorizationCodeGrantService{
			Store:        app.db,
			Factory:      factory,
			Consolidator: consolidator,
		},
		&service.RefreshTokenGrantService{
			Store:   app.db,
			Factory: factory,
		},
		&service.ClientCredentialsGrantService{
			Store:   app.db,
			Factory: factory,
		},
		&service.PasswordGrantService{
			Store:        app.db,
			Factory:      factory,
			Verifier:     &service.StorePasswordVerifier{Store: app.db},
			Claims:       claims,
			Consolidator: consolidator,
		},
		&service.JWTBearerGrantService{
			Store:        app.db,
			Factory:      factory,
			Finder:       &service.StoreFederatedUserFinder{Store: app.db},
			Claims:       claims,
			Consolidator: consolidator,
		},
		&service.CibaGrantService{
			Store:        app.db,
			Factory:      factory,
			Consolidator: consolidator,
		},
	)

	app.tokenService = &service.TokenService{
		Store:    app.db,
		Registry: registry,
	}

	app.authorizeService = &service.AuthorizeService{
		Store:  app.db,
		Claims: claims,
	}

	app.backchannelService = &service.BackchannelService{
		Store:    app.db,
		Hints:    &service.StoreHintResolver{Store: app.db},
		Notifier: service.LogNotifier{},
		Claims:   claims,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.AuthorizeService = app.authorizeService
	router.BackchannelService = app.backchannelService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
