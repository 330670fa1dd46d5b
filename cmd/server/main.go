// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "pos-sync-service/docs"
	"pos-sync-service/internal/config"
	"pos-sync-service/internal/database"
	"pos-sync-service/internal/lease"
	"pos-sync-service/internal/model"
	"pos-sync-service/internal/network"
	"pos-sync-service/internal/remote"
	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/routes"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	redis    *redis.Client
	router   *routes.Router

	store   *repository.LocalStore
	owner   lease.Lease
	remote  *remote.Client
	monitor *network.Monitor
	engine  *service.SyncEngine
	catalog *service.CatalogService
}

// @title POS Sync Service API
// @version 1.0.0
// @description Local API of the offline-first order sync engine running next to the cashier UI

// @contact.name POS Sync Service Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Application stopped with error", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "pos-sync-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}

	if err := app.initializeLease(); err != nil {
		return nil, fmt.Errorf("failed to initialize sync lease: %w", err)
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeStore opens the durable store backend and runs migrations for
// the postgres backend.
func (app *Application) initializeStore() error {
	var durable repository.DurableStore

	switch app.config.Store.Backend {
	case "postgres":
		db, err := database.NewConnection(app.config, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		app.database = db

		migrator := database.NewMigrator(db, app.logger, &app.config.Database)
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}

		durable = repository.NewPostgresStore(db, app.logger)
	default:
		durable = repository.NewMemoryStore()
		app.logger.Warn("Local store is in memory; orders do not survive a restart")
	}

	app.store = repository.NewLocalStore(durable, app.logger)

	app.logger.Info("Local store initialized successfully",
		zap.String("backend", app.config.Store.Backend),
	)
	return nil
}

// initializeLease picks the sync owner lease backend
func (app *Application) initializeLease() error {
	key := app.config.GetOwnerKey()

	switch app.config.Sync.Lease {
	case "redis":
		app.redis = lease.NewRedisClient(app.config)
		redisLease := lease.NewRedisLease(app.redis, key, app.logger)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisLease.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", app.config.GetRedisAddr(), err)
		}
		app.owner = redisLease
	default:
		app.owner = lease.NewMemoryRegistry().Lease(key)
	}

	app.logger.Info("Sync lease initialized",
		zap.String("backend", app.config.Sync.Lease),
		zap.String("owner_key", key),
		zap.String("owner", app.owner.Owner()),
	)
	return nil
}

// initializeServices wires the remote client, monitor, engine and catalog
func (app *Application) initializeServices() {
	tokens := remote.NewJWTSource(
		app.config.Security.JWTSecret,
		app.config.Security.JWTExpiration,
		app.config.Remote.TerminalID,
		app.config.Remote.StoreID,
	)
	app.remote = remote.NewClient(app.config.Remote, tokens, app.logger)

	app.monitor = network.NewMonitor(
		app.config.Network,
		app.remote,
		network.NewInterfaceDetector(app.logger),
		app.logger,
	)

	app.engine = service.NewSyncEngine(
		app.store,
		app.remote,
		app.monitor,
		app.owner,
		app.config.Sync,
		app.logger,
	)
	app.engine.OnAlert(func(alert model.Alert) {
		app.logger.Warn("Cashier alert raised",
			zap.String("level", string(alert.Level)),
			zap.String("code", alert.Code),
			zap.String("order_id", alert.OrderID),
			zap.String("message", alert.Message),
		)
	})

	app.catalog = service.NewCatalogService(
		app.store,
		app.remote,
		app.monitor,
		app.config.Catalog,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.store,
		app.engine,
		app.catalog,
		app.monitor,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// Start runs the background services and the HTTP server until a shutdown
// signal arrives or the server fails.
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.monitor.Start()
	if err := app.engine.Start(ctx); err != nil {
		app.shutdown("sync engine failed to start")
		return fmt.Errorf("failed to start sync engine: %w", err)
	}
	app.catalog.Start()

	app.logger.Info("Background services started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("Shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			app.logger.Error("HTTP server shutdown error", zap.Error(err))
		} else {
			app.logger.Info("HTTP server stopped")
		}
		return nil
	})

	err := g.Wait()

	reason := "shutdown signal received"
	if err != nil {
		reason = err.Error()
	}
	app.shutdown(reason)

	return err
}

// shutdown stops the background services and releases resources. Pending
// orders stay in the local store for the next start.
func (app *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(app.logger, "pos-sync-service")
	serviceLogger.LogServiceStop(reason)

	app.router.Close()
	app.catalog.Stop()
	app.engine.Stop()
	app.monitor.Stop()

	if err := app.store.Close(); err != nil {
		app.logger.Error("Local store close error", zap.Error(err))
	} else {
		app.logger.Info("Local store closed")
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Redis close error", zap.Error(err))
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
