package trust

import (
	"context"
	"sync"
)

// Store persists developer identities.
type Store interface {
	Get(ctx context.Context, uid string) (*Identity, error)
	Put(ctx context.Context, identity Identity) error
}

type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[string]Identity)}
}

func (s *InMemoryStore) Get(_ context.Context, uid string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[uid]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (s *InMemoryStore) Put(_ context.Context, identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.UID] = identity
	return nil
}
