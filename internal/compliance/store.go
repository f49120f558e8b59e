package compliance

import (
	"context"
	"sync"

	"pinksync/pkg/domain"
)

// Store persists compliance records. Records are projections of the ledger
// and can be rebuilt, so the in-memory store is sufficient for a single node.
type Store interface {
	Get(ctx context.Context, appID domain.AppID) (*Record, error)
	Put(ctx context.Context, rec Record) error
}

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.AppID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.AppID]Record)}
}

func (s *InMemoryStore) Get(_ context.Context, appID domain.AppID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[appID]
	if !ok {
		return nil, nil
	}
	rec.Violations = append([]Violation(nil), rec.Violations...)
	return &rec, nil
}

func (s *InMemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Violations = append([]Violation(nil), rec.Violations...)
	s.records[rec.AppID] = rec
	return nil
}
