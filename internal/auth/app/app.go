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

	httpapi "github.com/aussiebroadwan/stepup/internal/auth/http"
	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/mysql"
	redisstore "github.com/aussiebroadwan/stepup/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/stepup/pkg/cryptox"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager

	// Services
	authService         *service.AuthService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := cryptox.SetPasswordAlgorithm(cfg.PasswordAlgorithm); err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitStepUpKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.keyManager = keyManager

	app.initServices()
	if err := app.initHTTP(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			app.housekeepingService.Stop()
			_ = app.db.Close()
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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
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

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase opens the user store, applies migrations and, for the redis
// backend, moves sessions out of the database.
func (app *Application) initDatabase() error {
	var db store.Store
	switch app.cfg.DatabaseDriver {
	case DriverMemory:
		app.logger.Warn("using in-memory store; all data is lost on restart")
		db = memory.NewStore()
	case DriverMySQL:
		st, err := mysql.NewStore(app.cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db = st
	default:
		st, err := sqlite.NewStore(app.cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db = st
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database ready", "driver", app.cfg.DatabaseDriver)

	if app.cfg.SessionBackend == SessionBackendRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := redisstore.NewClient(ctx, app.cfg.RedisURL)
		if err != nil {
			_ = db.Close()
			return err
		}
		db = store.WithSessions(db, redisstore.NewSessions(client), client.Close)
		app.logger.Info("sessions stored in redis")
	}

	app.db = db
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	activation, _ := service.ParseMFAActivation(app.cfg.MFAActivation) // checked by Validate

	sessions := service.NewSessionManager(app.db, app.cfg.SessionTTL, app.cfg.StoreTimeout)
	app.authService = &service.AuthService{
		Store:    app.db,
		Sessions: sessions,
		MFA: &service.MFAService{
			Store:        app.db,
			Issuer:       app.cfg.MFAIssuer,
			Activation:   activation,
			StoreTimeout: app.cfg.StoreTimeout,
		},
		StepUp: &service.StepUpIssuer{
			KeyManager: app.keyManager,
			Issuer:     app.cfg.Issuer,
			TTL:        jwtx.DefaultStepUpTTL,
		},
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	hashKey := []byte(app.cfg.SessionSecret)
	if len(hashKey) == 0 {
		key, err := cryptox.RandomBytes(64)
		if err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		hashKey = key
		app.logger.Warn("AUTH_SESSION_SECRET not set; generated a per-process cookie key, sessions will not survive a restart")
	}

	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.db,
		app.logger,
		app.cfg.CORSOrigin,
	)

	router.AuthService = app.authService
	router.Cookies = httpapi.NewSessionCodec(httpapi.CookieOptions{
		Name:     app.cfg.SessionCookie,
		HashKey:  hashKey,
		BlockKey: []byte(app.cfg.SessionEncryptionKey),
		Secure:   app.cfg.CookieSecure,
		MaxAge:   app.cfg.SessionTTL,
	})
	router.DistinctLoginErrors = app.cfg.DistinctLoginErrors
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
