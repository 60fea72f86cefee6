package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/cart"
)

// RedisCartStore keeps each session's cart as one JSON value that expires after ttl.
type RedisCartStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCartStore(rdb *redis.Client, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{rdb: rdb, ttl: ttl}
}

func cartKey(sessionID string) string { return "cart:" + sessionID }

func (s *RedisCartStore) Load(ctx context.Context, sessionID string) (*cart.Cart, error) {
	raw, err := s.rdb.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &cart.Cart{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading cart: %w", err)
	}
	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	return &c, nil
}

func (s *RedisCartStore) Save(ctx context.Context, sessionID string, c *cart.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	return s.rdb.Set(ctx, cartKey(sessionID), raw, s.ttl).Err()
}

func (s *RedisCartStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, cartKey(sessionID)).Err()
}

var _ cart.Store = (*RedisCartStore)(nil)
