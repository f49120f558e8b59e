package ledger

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore keeps the chain in a slice. Entries are copied on read so
// callers cannot mutate committed state.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if want := uint64(len(s.entries)) + 1; entry.Seq != want {
		return fmt.Errorf("out-of-order append: got seq %d, want %d", entry.Seq, want)
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) Head(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	head := s.entries[len(s.entries)-1]
	return &head, nil
}

func (s *InMemoryStore) Range(_ context.Context, from, to uint64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from < 1 {
		from = 1
	}
	if to > uint64(len(s.entries)) {
		to = uint64(len(s.entries))
	}
	if from > to {
		return nil, nil
	}
	return append([]Entry{}, s.entries[from-1:to]...), nil
}

func (s *InMemoryStore) SetMirrorStatus(_ context.Context, seq uint64, status MirrorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < 1 || seq > uint64(len(s.entries)) {
		return fmt.Errorf("unknown seq %d", seq)
	}
	s.entries[seq-1].MirrorStatus = status
	return nil
}

// Tamper overwrites a committed entry's payload. Test hook for chain
// verification; never called by production code.
func (s *InMemoryStore) Tamper(seq uint64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[seq-1].Payload = payload
}
