package session

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces session ids in Redis.
const KeyPrefix = "mnemosyne:session:"

// Store remembers which token ids are still live.
type Store interface {
	Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error
	// Lookup returns the user id bound to tokenID, or "" if revoked or expired.
	Lookup(ctx context.Context, tokenID string) (string, error)
	Delete(ctx context.Context, tokenID string) error
}

// RedisStore keeps sessions in Redis with a key TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, KeyPrefix+tokenID, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, tokenID string) (string, error) {
	userID, err := s.client.Get(ctx, KeyPrefix+tokenID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	return userID, nil
}

func (s *RedisStore) Delete(ctx context.Context, tokenID string) error {
	return s.client.Del(ctx, KeyPrefix+tokenID).Err()
}

// MemoryStore keeps sessions in process. Sessions do not survive restarts
// and are not shared between replicas.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates an in-memory store that purges expired sessions
// every cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Save(_ context.Context, tokenID, userID string, ttl time.Duration) error {
	s.c.Set(tokenID, userID, ttl)
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, tokenID string) (string, error) {
	v, ok := s.c.Get(tokenID)
	if !ok {
		return "", nil
	}
	return v.(string), nil
}

func (s *MemoryStore) Delete(_ context.Context, tokenID string) error {
	s.c.Delete(tokenID)
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
