package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("redis: key not found")

// Options selects the redis server. Addr may be host:port or a redis:// URL.
type Options struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key this client touches.
	KeyPrefix string
}

type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(opts Options) (*RedisClient, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	var ro *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{Addr: addr, DB: opts.DB}
	}
	if opts.Password != "" {
		ro.Password = opts.Password
	}

	return &RedisClient{client: redis.NewClient(ro), prefix: opts.KeyPrefix}, nil
}

func (r *RedisClient) key(k string) string {
	return r.prefix + k
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, expiration).Err()
}

// Get returns ErrNotFound for a missing key.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *RedisClient) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Expire resets the TTL of key and reports whether the key exists.
func (r *RedisClient) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return r.client.Expire(ctx, r.key(key), expiration).Result()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
