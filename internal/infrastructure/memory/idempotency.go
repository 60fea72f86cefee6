package memory

import (
	"context"
	"sync"
)

// IdempotencyStore is the in-process counterpart of the Redis store. Entries never expire.
type IdempotencyStore struct {
	mu    sync.Mutex
	locks map[string]struct{}
	memo  map[string]string
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		locks: map[string]struct{}{},
		memo:  map[string]string{},
	}
}

func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + ":" + key
	if _, held := s.locks[k]; held {
		return false, nil
	}
	s.locks[k] = struct{}{}
	return true, nil
}

func (s *IdempotencyStore) Unlock(ctx context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, scope+":"+key)
	return nil
}

func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo[scope+":"+key] = value
	return nil
}

func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.memo[scope+":"+key]
	return v, ok, nil
}
