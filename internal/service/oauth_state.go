package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prperemyshlev/photo-enhancer/pkg/database"
)

// StateStore keeps OAuth state values until the provider redirects back
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	// Consume removes state and reports whether it was present
	Consume(ctx context.Context, state string) (bool, error)
}

// RedisStateStore is a StateStore backed by Redis keys with a TTL
type RedisStateStore struct {
	redis *database.Redis
}

// NewRedisStateStore creates a state store on redis
func NewRedisStateStore(redis *database.Redis) *RedisStateStore {
	return &RedisStateStore{redis: redis}
}

func stateKey(state string) string {
	return fmt.Sprintf("oauth:state:%s", state)
}

// Save stores state for ttl
func (s *RedisStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.redis.Client.Set(ctx, stateKey(state), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// Consume deletes state atomically so it can be used only once
func (s *RedisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	err := s.redis.Client.GetDel(ctx, stateKey(state)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return true, nil
}
