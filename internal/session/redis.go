package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/firesafely/marketplace/pkg/common"
	"github.com/firesafely/marketplace/pkg/config"
	"github.com/redis/go-redis/v9"
)

const (
	tokenKey          = "session:token"
	professionalIDKey = "session:professional_id"
)

// RedisStore reads session credentials from Redis, where the login flow
// persists them. It implements Store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client (tests use redismock).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Token(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, tokenKey).Result()
	if err == redis.Nil || token == "" {
		return "", common.NewNotAuthenticatedError("no session token")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	if tokenExpired(token) {
		return "", common.NewNotAuthenticatedError("session expired")
	}
	return token, nil
}

func (r *RedisStore) ProfessionalID(ctx context.Context) (int64, error) {
	value, err := r.client.Get(ctx, professionalIDKey).Result()
	if err == redis.Nil || value == "" {
		return 0, common.NewNotAuthenticatedError("no professional identifier")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read professional id: %w", err)
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id == 0 {
		return 0, common.NewNotAuthenticatedError("malformed professional identifier")
	}
	return id, nil
}

// SetSession persists a fresh login with the given time-to-live.
func (r *RedisStore) SetSession(ctx context.Context, token string, professionalID int64, ttl time.Duration) error {
	if err := r.client.Set(ctx, tokenKey, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}
	if err := r.client.Set(ctx, professionalIDKey, strconv.FormatInt(professionalID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store professional id: %w", err)
	}
	return nil
}

// Clear discards the session on logout.
func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, tokenKey, professionalIDKey).Err()
}

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
