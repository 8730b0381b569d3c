package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/config"
	httptransport "github.com/Mostafa-DE/gatherly-sub002/internal/http"
	"github.com/Mostafa-DE/gatherly-sub002/internal/logging"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/postgres"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/sqlite"
	"github.com/Mostafa-DE/gatherly-sub002/internal/telemetry"
)

const serviceName = "gatherly"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(os.Stdout, level, serviceName)
	if err != nil {
		logger.Warn("unknown log level, using info", "error", err)
	}
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(store, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("gatherly API listening", "addr", server.Addr, "driver", cfg.DBDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("gatherly API stopped")
	return nil
}

// openStore opens the configured database. Both drivers apply the embedded
// migrations before returning.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN}, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		return store, nil
	case config.DriverSQLite, "":
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath, BusyTimeout: cfg.SQLiteBusyTimeout}, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
}

func newHandler(store persistence.Store, cfg config.Config, logger *slog.Logger) http.Handler {
	cache := application.NewConflictCache(cfg.ConflictCacheSize, cfg.ConflictCacheTTL)
	now := time.Now

	sessionService := application.NewSessionService(store, cache, application.NewID, now, logger)
	participationService := application.NewParticipationService(store, cache, application.NewID, now, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:       httptransport.NewSessionHandler(sessionService, logger),
		Participations: httptransport.NewParticipationHandler(participationService, sessionService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Trace(serviceName + "/http"),
			httptransport.RequestLogger(logger),
			httptransport.RequirePrincipal(logger),
		},
	})
}
