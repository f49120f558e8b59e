package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dErrors "pinksync/pkg/domain-errors"
)

// Service owns the chain tail. Append is the single global serialization point
// in the broker; the critical section covers hash computation and the local
// commit only. Mirroring happens off the append path.
type Service struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	headSeq  uint64
	headHash string

	mirrorQueue chan Entry
}

type Option func(*Service)

// WithMirrorQueueSize overrides the default mirror buffer.
func WithMirrorQueueSize(n int) Option {
	return func(s *Service) {
		s.mirrorQueue = make(chan Entry, n)
	}
}

// NewService restores the chain head from the store so appends resume the
// chain rather than forking it.
func NewService(ctx context.Context, store Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		store:       store,
		logger:      logger,
		headHash:    genesisHash,
		mirrorQueue: make(chan Entry, 1024),
	}
	for _, opt := range opts {
		opt(s)
	}

	head, err := store.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore ledger head: %w", err)
	}
	if head != nil {
		s.headSeq = head.Seq
		s.headHash = head.EntryHash
	}
	return s, nil
}

// Append marshals the payload, links it to the chain, and commits locally
// before returning. The committed entry is queued for mirroring; a full queue
// marks the entry failed rather than blocking the caller.
func (s *Service) Append(ctx context.Context, entryType EntryType, payload any) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, dErrors.Wrap(dErrors.CodeInternal, "marshal ledger payload", err)
	}

	s.mu.Lock()
	entry := Entry{
		Seq:          s.headSeq + 1,
		PrevHash:     s.headHash,
		Type:         entryType,
		Payload:      raw,
		MirrorStatus: MirrorPending,
		RecordedAt:   time.Now().UTC(),
	}
	entry.EntryHash = chainHash(entry.PrevHash, entry.Type, entry.Payload)

	if err := s.store.Append(ctx, entry); err != nil {
		s.mu.Unlock()
		return Entry{}, dErrors.Wrap(dErrors.CodeInternal, "commit ledger entry", err)
	}
	s.headSeq = entry.Seq
	s.headHash = entry.EntryHash
	s.mu.Unlock()

	select {
	case s.mirrorQueue <- entry:
	default:
		s.logger.Warn("mirror queue full, entry left pending", "seq", entry.Seq)
	}

	return entry, nil
}

// VerifyChain recomputes hashes across [from, to] and returns the first
// mismatching sequence number, or nil when the range is intact.
func (s *Service) VerifyChain(ctx context.Context, from, to uint64) (*uint64, error) {
	if from < 1 {
		from = 1
	}
	if to == 0 {
		s.mu.Lock()
		to = s.headSeq
		s.mu.Unlock()
	}
	if to < from {
		return nil, nil
	}

	// Fetch one extra entry so the first link can be checked against its
	// actual predecessor.
	fetchFrom := from
	if fetchFrom > 1 {
		fetchFrom--
	}
	entries, err := s.store.Range(ctx, fetchFrom, to)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "read ledger range", err)
	}

	prevHash := genesisHash
	for _, e := range entries {
		if e.Seq < from {
			prevHash = e.EntryHash
			continue
		}
		if e.PrevHash != prevHash || chainHash(e.PrevHash, e.Type, e.Payload) != e.EntryHash {
			seq := e.Seq
			return &seq, nil
		}
		prevHash = e.EntryHash
	}
	return nil, nil
}

// Range exposes committed entries for projections and operators.
func (s *Service) Range(ctx context.Context, from, to uint64) ([]Entry, error) {
	return s.store.Range(ctx, from, to)
}

// Head returns the current tail sequence number.
func (s *Service) Head() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headSeq
}
