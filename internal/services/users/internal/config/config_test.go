package config_test

import (
	"testing"
	"time"

	"github.com/rfsnab/auth/internal/services/users/internal/config"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("HTTP_LISTEN_ADDR", ":9091")
	t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "15s")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_NAME", "n")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MIGRATE", "true")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_ISSUER", "auth")
	t.Setenv("JWT_ACCESS_TTL", "20m")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORE_TIMEOUT", "500ms")
	t.Setenv("ROLE_CACHE_KEYS", "128")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := config.FromEnv()

	require.Equal(t, ":9091", cfg.HTTP.ListenAddr)
	require.Equal(t, 15*time.Second, cfg.HTTP.ShutdownTimeout)
	require.Equal(t, "db", cfg.DB.Host)
	require.Equal(t, "6543", cfg.DB.Port)
	require.Equal(t, "u", cfg.DB.User)
	require.Equal(t, "p", cfg.DB.Password)
	require.Equal(t, "n", cfg.DB.Name)
	require.Equal(t, 7, cfg.DB.MaxOpenConns)
	require.True(t, cfg.DB.Migrate)
	require.Equal(t, "secret", cfg.JWT.Secret)
	require.Equal(t, "auth", cfg.JWT.Issuer)
	require.Equal(t, 20*time.Minute, cfg.JWT.AccessTTL)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, 500*time.Millisecond, cfg.Store.Timeout)
	require.Equal(t, int64(128), cfg.Store.RoleCacheKeys)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := config.FromEnv()

	require.Equal(t, ":8081", cfg.HTTP.ListenAddr)
	require.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, 3*time.Second, cfg.Store.Timeout)
	require.Equal(t, time.Hour, cfg.JWT.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	require.False(t, cfg.DB.Migrate)
	require.Equal(t, "info", cfg.LogLevel)
}
