package registry

import (
	"context"
	"sync"

	"pinksync/pkg/domain"
)

type InMemoryStore struct {
	mu           sync.RWMutex
	declarations map[domain.AppID]Declaration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{declarations: make(map[domain.AppID]Declaration)}
}

func (s *InMemoryStore) Get(_ context.Context, appID domain.AppID) (*Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.declarations[appID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *InMemoryStore) Put(_ context.Context, declaration Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declarations[declaration.AppID] = declaration
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Declaration, 0, len(s.declarations))
	for _, d := range s.declarations {
		out = append(out, d)
	}
	return out, nil
}
