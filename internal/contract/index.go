package contract

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenEvent records an accepted event for idempotency checks. The index is a
// projection of the ledger and is rebuilt from it on startup.
type SeenEvent struct {
	EventID    string
	PayloadSum string
	Signature  string
	LedgerSeq  uint64
}

// Index answers "has this event_id been accepted before".
type Index interface {
	Lookup(ctx context.Context, eventID string) (*SeenEvent, error)
	Record(ctx context.Context, seen SeenEvent) error
}

// InMemoryIndex is the authoritative in-process index.
type InMemoryIndex struct {
	mu   sync.RWMutex
	seen map[string]SeenEvent
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{seen: make(map[string]SeenEvent)}
}

func (i *InMemoryIndex) Lookup(_ context.Context, eventID string) (*SeenEvent, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.seen[eventID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (i *InMemoryIndex) Record(_ context.Context, seen SeenEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seen[seen.EventID] = seen
	return nil
}

// CachedIndex puts an LRU in front of a slower index so the hot duplicate
// check stays off the backing store.
type CachedIndex struct {
	inner Index
	cache *lru.Cache[string, SeenEvent]
}

func NewCachedIndex(inner Index, size int) (*CachedIndex, error) {
	cache, err := lru.New[string, SeenEvent](size)
	if err != nil {
		return nil, err
	}
	return &CachedIndex{inner: inner, cache: cache}, nil
}

func (c *CachedIndex) Lookup(ctx context.Context, eventID string) (*SeenEvent, error) {
	if s, ok := c.cache.Get(eventID); ok {
		return &s, nil
	}
	s, err := c.inner.Lookup(ctx, eventID)
	if err != nil || s == nil {
		return s, err
	}
	c.cache.Add(eventID, *s)
	return s, nil
}

func (c *CachedIndex) Record(ctx context.Context, seen SeenEvent) error {
	if err := c.inner.Record(ctx, seen); err != nil {
		return err
	}
	c.cache.Add(seen.EventID, seen)
	return nil
}
