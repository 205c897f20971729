package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig configures the redis settings backend
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	Prefix     string
}

// RedisBackend stores each scope as one redis hash
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to redis and verifies the connection
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "trellis:settings"
	}

	return &RedisBackend{client: client, prefix: prefix}, nil
}

// Client exposes the redis client for health checks
func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

func (r *RedisBackend) hash(scope string) string {
	return r.prefix + ":" + scope
}

func (r *RedisBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.hash(scope), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return value, true, nil
}

func (r *RedisBackend) Put(ctx context.Context, scope, key, value string) error {
	if err := r.client.HSet(ctx, r.hash(scope), key, value).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, scope, key string) error {
	if err := r.client.HDel(ctx, r.hash(scope), key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Keys(ctx context.Context, scope string) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.hash(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys failed: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
