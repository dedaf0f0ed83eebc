package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nonprofit-site/backend/internal/models"
	"nonprofit-site/backend/pkg/cache"
	"nonprofit-site/backend/shared/redis"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps session records with an idle TTL. Save refreshes the TTL.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps sessions in process. Suitable for a single instance.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewMemoryStore(c *cache.Cache, ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: c, ttl: ttl}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := v.(models.Session)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *models.Session) error {
	m.cache.SetWithExpiration(s.ID, *s, m.ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// RedisStore shares sessions between instances.
type RedisStore struct {
	client *redis.RedisClient
	ttl    time.Duration
}

func NewRedisStore(client *redis.RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, id)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *models.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, s.ID, raw, r.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, id)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
