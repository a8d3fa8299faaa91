package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/onboarding/pkg/config"
)

// ThrottleRepository is the authoritative server-side cooldown for resend
// requests. The client-side cooldown timer is advisory UX only.
type ThrottleRepository interface {
	// Allow reports whether a resend for this email is permitted, and if so
	// opens a new cooldown window.
	Allow(ctx context.Context, email string, window time.Duration) (bool, error)
}

type throttleRepository struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	return redis.NewClient(opts), nil
}

func NewThrottleRepository(client *redis.Client) ThrottleRepository {
	return &throttleRepository{client: client}
}

func (r *throttleRepository) Allow(ctx context.Context, email string, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	key := "resend_cooldown:" + email
	ok, err := r.client.SetNX(ctx, key, time.Now().Unix(), window).Result()
	if err != nil {
		// Fail open: a broken throttle must not block signups.
		return true, err
	}
	return ok, nil
}

// RedisIdempotencyStore backs the POST idempotency middleware.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}
