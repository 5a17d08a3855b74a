package config

import (
	"time"

	"github.com/rfsnab/auth/internal/pkg/env"
)

type Config struct {
	HTTP     httpConfig
	DB       dbConfig
	JWT      jwtConfig
	Store    storeConfig
	LogLevel string
}

type httpConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type dbConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	ConnLifetime  time.Duration
	Migrate       bool
	MigrationsDir string
}

type jwtConfig struct {
	Secret         string
	PublicKeyFile  string
	PrivateKeyFile string
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

type storeConfig struct {
	// Driver is "postgres" or "memory"
	Driver        string
	Timeout       time.Duration
	RoleCacheKeys int64
}

func FromEnv() Config {
	return Config{
		HTTP: httpConfig{
			ListenAddr:      env.String("HTTP_LISTEN_ADDR", ":8081"),
			ReadTimeout:     env.Duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.Duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     env.Duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.Duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: dbConfig{
			Host:          env.String("DB_HOST", "localhost"),
			Port:          env.String("DB_PORT", "5432"),
			User:          env.String("DB_USER", "users"),
			Password:      env.String("DB_PASSWORD", ""),
			Name:          env.String("DB_NAME", "users"),
			SSLMode:       env.String("DB_SSLMODE", "disable"),
			MaxOpenConns:  env.Int("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:  env.Int("DB_MAX_IDLE_CONNS", 5),
			ConnLifetime:  env.Duration("DB_CONN_LIFETIME", 30*time.Minute),
			Migrate:       env.Bool("DB_MIGRATE", false),
			MigrationsDir: env.String("DB_MIGRATIONS_DIR", "internal/services/users/db/migrations"),
		},
		JWT: jwtConfig{
			Secret:         env.String("JWT_SECRET", ""),
			PublicKeyFile:  env.String("JWT_PUBLIC_KEY_FILE", ""),
			PrivateKeyFile: env.String("JWT_PRIVATE_KEY_FILE", ""),
			Issuer:         env.String("JWT_ISSUER", ""),
			AccessTTL:      env.Duration("JWT_ACCESS_TTL", time.Hour),
			RefreshTTL:     env.Duration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Store: storeConfig{
			Driver:        env.String("STORE_DRIVER", "postgres"),
			Timeout:       env.Duration("STORE_TIMEOUT", 3*time.Second),
			RoleCacheKeys: env.Int64("ROLE_CACHE_KEYS", 64),
		},
		LogLevel: env.String("LOG_LEVEL", "info"),
	}
}
