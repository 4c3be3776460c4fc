/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the parts ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, optional .env)
  2. Initialize logger
  3. Open SQLite store and apply migrations
  4. Choose part locks: Redis when REDIS_URL is set, in-process otherwise
  5. Wire inventory, event bus, metrics, low-stock watcher, reconciler
  6. Configure HTTP router
  7. Start server with graceful shutdown

CONFIGURATION (environment):
  PORT                  HTTP server port (default: 8080)
  DATABASE_PATH         SQLite database path (default: partsledger.db)
                        Use ":memory:" for an in-memory database
  REDIS_URL             Redis for cross-process part locks (optional)
  RECONCILE_INTERVAL    Drift audit interval, 0 disables (default: 1h)
  LOG_LEVEL, ENVIRONMENT, CORS_ALLOWED_ORIGINS, RATE_LIMIT_PER_MINUTE,
  LOCK_TTL, LOCK_BACKOFF, DEFAULT_MIN_STOCK
  See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconciler and drain the event bus
  4. Close Redis and database connections
  5. Exit

EXAMPLES:
  # Run with file database
  DATABASE_PATH=./data/parts.db ./server

  # Throwaway database with demo scenarios
  DATABASE_PATH=:memory: ENVIRONMENT=development ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/fieldops/partsledger/api"
	"github.com/fieldops/partsledger/config"
	"github.com/fieldops/partsledger/events"
	"github.com/fieldops/partsledger/inventory"
	"github.com/fieldops/partsledger/lock"
	"github.com/fieldops/partsledger/logging"
	"github.com/fieldops/partsledger/metrics"
	"github.com/fieldops/partsledger/store/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.ValidateForProduction(cfg); err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"database":    cfg.DatabasePath,
	}).Info("starting parts ledger")

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	opts := []inventory.Option{inventory.WithDefaultMinStock(cfg.DefaultMinStock)}

	// Part locks
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		opts = append(opts, inventory.WithLocker(lock.NewRedis(rdb, cfg.LockTTL, cfg.LockBackoff, log)))
		log.Info("using redis part locks")
	} else {
		log.Info("using in-process part locks")
	}

	// Events and metrics
	bus := events.NewBus(log)
	m := metrics.New()
	opts = append(opts, inventory.WithPublisher(inventory.Publishers{bus, m}))

	inv := inventory.New(store, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := &events.LowStockWatcher{
		Catalog: inv.Catalog,
		Log:     log,
		OnLow: func(context.Context, inventory.Part) {
			m.LowStockAlerts.Inc()
		},
	}
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		if err := watcher.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("low stock watcher stopped")
		}
	}()

	// Reconciler
	reconciler := api.NewReconciler(inv.Catalog, inv.Ledger, log)
	reconciler.Interval = cfg.ReconcileInterval
	reconciler.OnDrift = func(inventory.Drift) { m.ReconcileDrift.Inc() }
	reconciler.OnRun = func(api.ReconcileReport) { m.ReconcileRuns.Inc() }
	reconciler.Start()

	// Initialize handler
	handler := api.NewHandler(inv, reconciler, log)
	handler.Metrics = m
	handler.Health = store
	handler.HideInternalErrors = cfg.IsProduction()

	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins:     cfg.AllowedOrigins(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		IsDevelopment:      cfg.Environment == config.EnvDevelopment,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down server")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	reconciler.Stop()
	cancel()
	if err := bus.Close(); err != nil {
		log.WithError(err).Error("failed to close event bus")
	}
	<-watcherDone

	log.Info("server stopped")
	return nil
}
