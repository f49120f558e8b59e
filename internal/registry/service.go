package registry

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"pinksync/internal/ledger"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// Ledger is the slice of the audit ledger the registry writes through.
type Ledger interface {
	Append(ctx context.Context, entryType ledger.EntryType, payload any) (ledger.Entry, error)
}

// Service manages capability declarations.
type Service struct {
	store  Store
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, ledger Ledger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// registrationRecord is the ledger payload for registry changes. Fixed field
// order keeps chain hashes reproducible.
type registrationRecord struct {
	AppID        string   `json:"app_id"`
	Capabilities []string `json:"capabilities"`
	Level        string   `json:"level"`
	Version      string   `json:"version"`
	Flags        []string `json:"flags"`
	Status       string   `json:"status"`
}

// Register is an idempotent upsert. registered_at is preserved across repeated
// calls; updated_at always refreshes. A deregistered app re-registers as
// active while keeping its original registered_at.
func (s *Service) Register(ctx context.Context, d Declaration) (*Declaration, error) {
	if len(d.Capabilities) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "capabilities cannot be empty")
	}
	for _, c := range d.Capabilities {
		if !c.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown capability %q", c)
		}
	}
	if !d.Level.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid compliance_level")
	}

	now := s.now().UTC()
	existing, err := s.store.Get(ctx, d.AppID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load declaration", err)
	}

	d.Status = StatusActive
	d.UpdatedAt = now
	if existing != nil {
		d.RegisteredAt = existing.RegisteredAt
	} else {
		d.RegisteredAt = now
	}
	sort.Strings(d.Flags)

	if err := s.store.Put(ctx, d); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store declaration", err)
	}

	if _, err := s.ledger.Append(ctx, ledger.TypeRegistration, s.record(d)); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "capability declaration registered",
		"app_id", d.AppID.String(),
		"level", d.Level.String(),
		"capabilities", len(d.Capabilities),
	)
	return &d, nil
}

// Query returns declarations matching any combination of filter fields.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Declaration, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list declarations", err)
	}
	var out []Declaration
	for _, d := range all {
		if d.Status == StatusActive && filter.Matches(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}

// Get returns the declaration for an app regardless of status.
func (s *Service) Get(ctx context.Context, appID domain.AppID) (*Declaration, error) {
	d, err := s.store.Get(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load declaration", err)
	}
	return d, nil
}

// Deregister soft-deletes a declaration. The record is kept so history stays
// explicable.
func (s *Service) Deregister(ctx context.Context, appID domain.AppID) error {
	existing, err := s.store.Get(ctx, appID)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "load declaration", err)
	}
	if existing == nil {
		return dErrors.Newf(dErrors.CodeNotFound, "app %s is not registered", appID)
	}
	existing.Status = StatusDeregistered
	existing.UpdatedAt = s.now().UTC()

	if err := s.store.Put(ctx, *existing); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "store declaration", err)
	}
	_, err = s.ledger.Append(ctx, ledger.TypeDeregistration, s.record(*existing))
	return err
}

func (s *Service) record(d Declaration) registrationRecord {
	caps := make([]string, len(d.Capabilities))
	for i, c := range d.Capabilities {
		caps[i] = c.String()
	}
	sort.Strings(caps)
	return registrationRecord{
		AppID:        d.AppID.String(),
		Capabilities: caps,
		Level:        d.Level.String(),
		Version:      d.Version,
		Flags:        d.Flags,
		Status:       string(d.Status),
	}
}
