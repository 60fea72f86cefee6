package cart

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]Cart{}}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.carts[sessionID]
	out := Cart{Lines: append([]Line(nil), c.Lines...)}
	return &out, nil
}

func (s *MemoryStore) Save(ctx context.Context, sessionID string, cart *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[sessionID] = Cart{Lines: append([]Line(nil), cart.Lines...)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}
