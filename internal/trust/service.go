package trust

import (
	"context"
	"log/slog"
	"time"

	"pinksync/internal/ledger"
	"pinksync/internal/platform/keyed"
	dErrors "pinksync/pkg/domain-errors"
)

const maxUIDLength = 128

// Ledger is the slice of the audit ledger the trust service writes through.
type Ledger interface {
	Append(ctx context.Context, entryType ledger.EntryType, payload any) (ledger.Entry, error)
}

// Service manages identities and score updates. Updates for the same uid are
// serialized through a keyed mutex so concurrent contributions from the same
// developer never lose increments.
type Service struct {
	store  Store
	ledger Ledger
	logger *slog.Logger
	locks  *keyed.Mutex
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, led Ledger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: led,
		logger: logger,
		locks:  keyed.NewMutex(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validUID(uid string) error {
	if uid == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "uid cannot be empty")
	}
	if len(uid) > maxUIDLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "uid exceeds %d characters", maxUIDLength)
	}
	return nil
}

// Register creates an identity with a zero score. Registering an existing uid
// returns the existing identity unchanged.
func (s *Service) Register(ctx context.Context, uid string) (*Identity, error) {
	if err := validUID(uid); err != nil {
		return nil, err
	}
	s.locks.Lock(uid)
	defer s.locks.Unlock(uid)

	existing, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load identity", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now().UTC()
	id := Identity{UID: uid, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Put(ctx, id); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store identity", err)
	}
	s.logger.InfoContext(ctx, "identity registered", "uid", uid)
	return &id, nil
}

// Resolve returns the identity for a uid. Unknown uids are a distinct error
// code: the automation pipeline treats them differently from low scores.
func (s *Service) Resolve(ctx context.Context, uid string) (*Identity, error) {
	if err := validUID(uid); err != nil {
		return nil, err
	}
	id, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load identity", err)
	}
	if id == nil {
		return nil, dErrors.Newf(dErrors.CodeUnknownIdentity, "identity %s is not registered", uid)
	}
	return id, nil
}

// trustUpdateRecord is the ledger payload for score changes.
type trustUpdateRecord struct {
	UID     string `json:"uid"`
	Action  string `json:"action"`
	Commits int    `json:"commits,omitempty"`
	Delta   int64  `json:"delta"`
	Score   int64  `json:"score"`
}

// Update applies one contribution to an identity. The score floors at zero
// and the resulting state is ledgered.
func (s *Service) Update(ctx context.Context, uid string, c Contribution) (*Identity, error) {
	if err := validUID(uid); err != nil {
		return nil, err
	}
	delta, err := c.Delta()
	if err != nil {
		return nil, err
	}

	s.locks.Lock(uid)
	defer s.locks.Unlock(uid)

	id, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load identity", err)
	}
	if id == nil {
		return nil, dErrors.Newf(dErrors.CodeUnknownIdentity, "identity %s is not registered", uid)
	}

	id.TrustScore += delta
	if id.TrustScore < 0 {
		id.TrustScore = 0
	}
	id.Contributions++
	id.UpdatedAt = s.now().UTC()

	if err := s.store.Put(ctx, *id); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store identity", err)
	}
	if _, err := s.ledger.Append(ctx, ledger.TypeTrustUpdate, trustUpdateRecord{
		UID:     uid,
		Action:  string(c.Action),
		Commits: c.Commits,
		Delta:   delta,
		Score:   id.TrustScore,
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "trust score updated",
		"uid", uid,
		"action", string(c.Action),
		"delta", delta,
		"score", id.TrustScore,
	)
	return id, nil
}
