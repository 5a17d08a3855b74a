package config

import (
	"net/url"
	"time"

	"github.com/rfsnab/auth/internal/pkg/env"
)

type Config struct {
	HTTP     httpConfig
	JWT      jwtConfig
	Users    usersConfig
	OAuth    oauthConfig
	Redis    redisConfig
	OTC      otcConfig
	LogLevel string
}

type httpConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type jwtConfig struct {
	Secret         string
	PublicKeyFile  string
	PrivateKeyFile string
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

type usersConfig struct {
	URL     *url.URL
	Timeout time.Duration
}

type oauthConfig struct {
	Google providerConfig
	Yandex providerConfig
	// SecureCookies marks the state cookies Secure; disable only for plain HTTP development setups
	SecureCookies bool
	// RedirectOrigins lists absolute origins a login may return to, besides local paths
	RedirectOrigins []string
}

type providerConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the provider has credentials configured
func (p providerConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type redisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type otcConfig struct {
	TTL time.Duration
}

func FromEnv() Config {
	return Config{
		HTTP: httpConfig{
			ListenAddr:      env.String("HTTP_LISTEN_ADDR", ":8080"),
			ReadTimeout:     env.Duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.Duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     env.Duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.Duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		JWT: jwtConfig{
			Secret:         env.String("JWT_SECRET", ""),
			PublicKeyFile:  env.String("JWT_PUBLIC_KEY_FILE", ""),
			PrivateKeyFile: env.String("JWT_PRIVATE_KEY_FILE", ""),
			Issuer:         env.String("JWT_ISSUER", ""),
			AccessTTL:      env.Duration("JWT_ACCESS_TTL", time.Hour),
			RefreshTTL:     env.Duration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Users: usersConfig{
			URL:     env.URL("USER_SERVICE_URL", &url.URL{Scheme: "http", Host: "localhost:8081"}),
			Timeout: env.Duration("USER_SERVICE_TIMEOUT", 5*time.Second),
		},
		OAuth: oauthConfig{
			Google: providerConfig{
				ClientID:     env.String("OAUTH_GOOGLE_CLIENT_ID", ""),
				ClientSecret: env.String("OAUTH_GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  env.String("OAUTH_GOOGLE_REDIRECT_URL", ""),
			},
			Yandex: providerConfig{
				ClientID:     env.String("OAUTH_YANDEX_CLIENT_ID", ""),
				ClientSecret: env.String("OAUTH_YANDEX_CLIENT_SECRET", ""),
				RedirectURL:  env.String("OAUTH_YANDEX_REDIRECT_URL", ""),
			},
			SecureCookies:   env.Bool("OAUTH_SECURE_COOKIES", true),
			RedirectOrigins: env.Strings("OAUTH_REDIRECT_ORIGINS", nil),
		},
		Redis: redisConfig{
			Host:     env.String("REDIS_HOST", "localhost"),
			Port:     env.String("REDIS_PORT", "6379"),
			Password: env.String("REDIS_PASSWORD", ""),
			DB:       env.Int("REDIS_DB", 0),
		},
		OTC: otcConfig{
			TTL: env.Duration("OTC_TTL", 30*time.Second),
		},
		LogLevel: env.String("LOG_LEVEL", "info"),
	}
}
