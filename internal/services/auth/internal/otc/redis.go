package otc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rfsnab/auth/internal/pkg/token"
)

const keyPrefix = "otc:"

var ErrCodeNotFound = errors.New("code not found")

// Redis keeps one-time codes that stand in for a token pair during a redirect.
// A code can be redeemed once and disappears after the configured TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return NewRedisWithClient(rdb, cfg.TTL)
}

func NewRedisWithClient(rdb *redis.Client, ttl time.Duration) *Redis {
	if rdb == nil {
		panic("redis client is required")
	}
	if ttl <= 0 {
		panic("code ttl must be positive")
	}

	return &Redis{
		rdb: rdb,
		ttl: ttl,
	}
}

type codeEntry struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

func (r *Redis) CreateCode(ctx context.Context, p token.Pair) (string, error) {
	b, err := json.Marshal(codeEntry{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
	})
	if err != nil {
		return "", fmt.Errorf("serialize tokens: %w", err)
	}

	for range 3 {
		code := generateCode()
		ok, err := r.rdb.SetNX(ctx, keyPrefix+code, b, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("store code in redis: %w", err)
		}
		if ok {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique code")
}

// RedeemCode returns the pair behind code and deletes it atomically
func (r *Redis) RedeemCode(ctx context.Context, code string) (token.Pair, error) {
	if code == "" {
		return token.Pair{}, ErrCodeNotFound
	}

	val, err := r.rdb.GetDel(ctx, keyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return token.Pair{}, ErrCodeNotFound
		}

		return token.Pair{}, fmt.Errorf("retrieve code from redis: %w", err)
	}

	var ce codeEntry
	if err := json.Unmarshal(val, &ce); err != nil {
		return token.Pair{}, fmt.Errorf("deserialize code entry: %w", err)
	}

	return token.Pair{
		AccessToken:  ce.AccessToken,
		RefreshToken: ce.RefreshToken,
		ExpiresIn:    ce.ExpiresIn,
	}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func generateCode() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
