package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rfsnab/auth/internal/pkg/metrics"
	"github.com/rfsnab/auth/internal/pkg/middleware"
	"github.com/rfsnab/auth/internal/pkg/router"
	"github.com/rfsnab/auth/internal/pkg/token"
	"github.com/rfsnab/auth/internal/services/users/internal/config"
	"github.com/rfsnab/auth/internal/services/users/internal/rest"
	"github.com/rfsnab/auth/internal/services/users/internal/service"
	"github.com/rfsnab/auth/internal/services/users/internal/store"
)

func run(ctx context.Context) error {
	cfg := config.FromEnv()
	setupLogger(cfg.LogLevel)

	slog.Info("starting users service", "store", cfg.Store.Driver)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	keys, err := token.LoadKeys(cfg.JWT.Secret, cfg.JWT.PrivateKeyFile, cfg.JWT.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load jwt keys: %w", err)
	}
	tokens := token.NewService(token.Config{
		Keys:       keys,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})

	ids := service.NewIdentity(
		service.WithStore(st),
		service.WithStoreTimeout(cfg.Store.Timeout),
		service.WithRoleCache(cfg.Store.RoleCacheKeys),
	)
	defer ids.Close()

	m := metrics.New("users")
	bearer := middleware.NewBearerAuth(tokens, ids).WithObserver(func(s middleware.State) {
		m.AuthOutcome(string(s))
	})

	api := rest.NewAPI(ids, service.NewReconciler(ids), middleware.Authenticate(bearer.Stage()))

	rt := router.New()
	rt.Use(middleware.Recover(), middleware.Log(), m.Middleware())
	rest.Health(rt, ids)
	rt.Handle("GET /metrics", m.Handler())
	rt.Handle("/v1/users/", api)
	rt.Handle("/internal/auth/", api)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      rt,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		slog.Warn("using in-memory user store, data is lost on restart")
		return store.NewMemoryStore("ROLE_USER"), func() {}, nil
	case "postgres":
		db, err := store.NewPostgresDB(ctx, store.PostgresConfig{
			Host:         cfg.DB.Host,
			Port:         cfg.DB.Port,
			User:         cfg.DB.User,
			Password:     cfg.DB.Password,
			DB:           cfg.DB.Name,
			SSLMode:      cfg.DB.SSLMode,
			MaxOpenConns: cfg.DB.MaxOpenConns,
			MaxIdleConns: cfg.DB.MaxIdleConns,
			ConnLifetime: cfg.DB.ConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to db: %w", err)
		}

		if cfg.DB.Migrate {
			if err := store.Migrate(db, cfg.DB.MigrationsDir); err != nil {
				closeDB(db)
				return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
			}
			slog.Info("database migrations applied", "dir", cfg.DB.MigrationsDir)
		}

		return store.NewPostgresStore(db), func() { closeDB(db) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close db", "error", err)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("users service terminated with error", "error", err)
		os.Exit(1)
	}
}
