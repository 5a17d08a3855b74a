package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/rfsnab/auth/internal/pkg/metrics"
	"github.com/rfsnab/auth/internal/pkg/middleware"
	"github.com/rfsnab/auth/internal/pkg/router"
	"github.com/rfsnab/auth/internal/pkg/token"
	"github.com/rfsnab/auth/internal/services/auth/internal/config"
	"github.com/rfsnab/auth/internal/services/auth/internal/identity"
	"github.com/rfsnab/auth/internal/services/auth/internal/oauth"
	"github.com/rfsnab/auth/internal/services/auth/internal/otc"
	"github.com/rfsnab/auth/internal/services/auth/internal/provider"
	"github.com/rfsnab/auth/internal/services/auth/internal/rest"
	"github.com/rfsnab/auth/internal/services/auth/internal/service"
)

type readyFunc func(ctx context.Context) error

func (f readyFunc) Ready(ctx context.Context) error {
	return f(ctx)
}

func run(ctx context.Context) error {
	cfg := config.FromEnv()
	setupLogger(cfg.LogLevel)

	slog.Info("starting auth service", "users", cfg.Users.URL.String())

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

	origins, err := parseOrigins(cfg.OAuth.RedirectOrigins)
	if err != nil {
		return err
	}

	auth := oauth.NewAuthenticator()
	if err := registerProviders(ctx, auth, cfg); err != nil {
		return fmt.Errorf("failed to register oauth providers: %w", err)
	}

	codes := otc.NewRedis(otc.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.OTC.TTL,
	})
	defer func() {
		if err := codes.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}()

	users := identity.NewRemote(cfg.Users.URL, cfg.Users.Timeout)
	m := metrics.New("auth")

	gw := service.NewGateway(
		service.WithUsers(users),
		service.WithTokens(tokens),
		service.WithAuthenticator(auth),
		service.WithOTC(codes),
		service.WithRedirectOrigins(origins...),
		service.WithIssueObserver(m.TokenIssued),
	)

	api := rest.NewAPI(gw)
	if !cfg.OAuth.SecureCookies {
		slog.Warn("oauth state cookies are sent over plain http")
		api = api.InsecureCookies()
	}

	rt := router.New()
	rt.Use(middleware.Recover(), middleware.Log(), m.Middleware())
	rest.Health(rt, users, readyFunc(codes.Ping))
	rt.Handle("GET /metrics", m.Handler())
	rt.Handle("/v1/auth/", api)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      rt,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpSrv.Addr, "providers", auth.Providers())
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

// registerProviders enables every provider that has client credentials configured
func registerProviders(ctx context.Context, auth *oauth.Authenticator, cfg config.Config) error {
	if g := cfg.OAuth.Google; g.Enabled() {
		prvGoogle, err := provider.NewGoogle(ctx, provider.GoogleConfig{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RedirectURL:  g.RedirectURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create google oauth provider: %w", err)
		}

		if err := auth.Use("google", prvGoogle); err != nil {
			return err
		}
	}

	if y := cfg.OAuth.Yandex; y.Enabled() {
		prvYandex := provider.NewYandex(provider.YandexConfig{
			ClientID:     y.ClientID,
			ClientSecret: y.ClientSecret,
			RedirectURL:  y.RedirectURL,
		})

		if err := auth.Use("yandex", prvYandex); err != nil {
			return err
		}
	}

	if len(auth.Providers()) == 0 {
		slog.Warn("no oauth providers configured, federated login is disabled")
	}

	return nil
}

func parseOrigins(raw []string) ([]*url.URL, error) {
	origins := make([]*url.URL, 0, len(raw))
	for _, o := range raw {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid redirect origin %q", o)
		}
		origins = append(origins, u)
	}

	return origins, nil
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
		slog.Error("auth service terminated with error", "error", err)
		os.Exit(1)
	}
}
