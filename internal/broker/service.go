// Package broker is the event intake path: validate, commit to the ledger,
// sign, then fan out. Acceptance returns to the submitter before any delivery
// work happens.
package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pinksync/internal/contract"
	"pinksync/internal/ledger"
	"pinksync/internal/platform/metrics"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// Ledger is the slice of the audit ledger the broker uses: the write path
// plus the range scan that rebuilds the idempotency index at startup.
type Ledger interface {
	Append(ctx context.Context, entryType ledger.EntryType, payload any) (ledger.Entry, error)
	Range(ctx context.Context, from, to uint64) ([]ledger.Entry, error)
	Head() uint64
}

// Compliance is the slice of the compliance engine the broker notifies.
type Compliance interface {
	NoteEvent(ctx context.Context, appID domain.AppID, intent domain.Intent) error
}

// Publisher fans accepted events out to subscriptions. Must never block.
type Publisher interface {
	Publish(ctx context.Context, event contract.Event)
}

// Receipt is the submitter-facing result of one submission.
type Receipt struct {
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
	Signature string `json:"signature,omitempty"`
	LedgerID  uint64 `json:"ledger_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`

	// Violation is set on rejections so transports can map status codes.
	Violation *contract.Violation `json:"-"`
}

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Service accepts accessibility events.
type Service struct {
	validator  *contract.Validator
	index      contract.Index
	ledger     Ledger
	compliance Compliance
	publisher  Publisher
	signingKey []byte
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

// WithMetrics attaches intake counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(validator *contract.Validator, index contract.Index, led Ledger, comp Compliance, pub Publisher, signingKey []byte, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		validator:  validator,
		index:      index,
		ledger:     led,
		compliance: comp,
		publisher:  pub,
		signingKey: signingKey,
		logger:     logger,
		tracer:     otel.Tracer("pinksync/broker"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acceptedRecord is the ledger payload for accepted events. The raw metadata
// is not copied into the chain; the payload digest pins it.
type acceptedRecord struct {
	EventID    string `json:"event_id"`
	AppID      string `json:"app_id"`
	UserID     string `json:"user_id,omitempty"`
	Intent     string `json:"intent"`
	Timestamp  string `json:"timestamp"`
	Level      string `json:"compliance_level,omitempty"`
	PayloadSum string `json:"payload_sum"`
	Signature  string `json:"signature"`
}

// rejectedRecord is the ledger payload for contract violations.
type rejectedRecord struct {
	EventID string `json:"event_id,omitempty"`
	AppID   string `json:"app_id,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Accept validates one submission and commits the outcome. Both acceptance
// and rejection produce exactly one ledger entry; byte-identical duplicates
// replay the original receipt and produce none.
func (s *Service) Accept(ctx context.Context, sub contract.Submission) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "broker.accept",
		trace.WithAttributes(attribute.String("event.app_id", sub.AppID)))
	defer span.End()

	result, violation, err := s.validator.Validate(ctx, sub)
	if err != nil {
		return nil, err
	}
	if violation != nil {
		return s.rejectSubmission(ctx, sub, violation)
	}

	// Idempotent replay: same event_id, same payload, original receipt.
	if result.Duplicate != nil {
		return &Receipt{
			EventID:   result.Duplicate.EventID,
			Status:    StatusAccepted,
			Signature: result.Duplicate.Signature,
			LedgerID:  result.Duplicate.LedgerSeq,
		}, nil
	}

	event := result.Event
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	signature := s.sign(event)

	entry, err := s.ledger.Append(ctx, ledger.TypeEventAccepted, acceptedRecord{
		EventID:    event.EventID,
		AppID:      event.AppID.String(),
		UserID:     event.UserID.String(),
		Intent:     event.Intent.String(),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Level:      event.Level.String(),
		PayloadSum: event.PayloadSum,
		Signature:  signature,
	})
	if err != nil {
		return nil, err
	}

	if err := s.index.Record(ctx, contract.SeenEvent{
		EventID:    event.EventID,
		PayloadSum: event.PayloadSum,
		Signature:  signature,
		LedgerSeq:  entry.Seq,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to record event in idempotency index",
			"event_id", event.EventID, "error", err)
	}
	if err := s.compliance.NoteEvent(ctx, event.AppID, event.Intent); err != nil {
		// The event is already committed; compliance catches up on replay.
		s.logger.ErrorContext(ctx, "failed to note event for compliance",
			"app_id", event.AppID.String(), "error", err)
	}
	if s.metrics != nil {
		s.metrics.EventsAccepted.Inc()
		s.metrics.LedgerEntries.Inc()
	}

	s.publisher.Publish(ctx, event)

	s.logger.InfoContext(ctx, "event accepted",
		"event_id", event.EventID,
		"app_id", event.AppID.String(),
		"intent", event.Intent.String(),
		"ledger_id", entry.Seq,
	)
	return &Receipt{
		EventID:   event.EventID,
		Status:    StatusAccepted,
		Signature: signature,
		LedgerID:  entry.Seq,
	}, nil
}

func (s *Service) rejectSubmission(ctx context.Context, sub contract.Submission, violation *contract.Violation) (*Receipt, error) {
	if _, err := s.ledger.Append(ctx, ledger.TypeEventRejected, rejectedRecord{
		EventID: sub.EventID,
		AppID:   sub.AppID,
		Reason:  string(violation.Reason),
		Message: violation.Message,
	}); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.EventsRejected.WithLabelValues(string(violation.Reason)).Inc()
		s.metrics.LedgerEntries.Inc()
	}
	s.logger.WarnContext(ctx, "event rejected",
		"app_id", sub.AppID,
		"reason", string(violation.Reason),
	)
	return &Receipt{
		EventID:   sub.EventID,
		Status:    StatusRejected,
		Reason:    string(violation.Reason),
		Message:   violation.Message,
		Violation: violation,
	}, nil
}

// SubmitBatch accepts submissions independently; one bad event never blocks
// its neighbors.
func (s *Service) SubmitBatch(ctx context.Context, subs []contract.Submission) ([]Receipt, error) {
	receipts := make([]Receipt, 0, len(subs))
	for _, sub := range subs {
		r, err := s.Accept(ctx, sub)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *r)
	}
	return receipts, nil
}

// ReplayIndex rebuilds the idempotency index from the ledger. Called once at
// startup before the intake surface opens.
func (s *Service) ReplayIndex(ctx context.Context) error {
	head := s.ledger.Head()
	if head == 0 {
		return nil
	}
	entries, err := s.ledger.Range(ctx, 1, head)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "replay ledger", err)
	}
	replayed := 0
	for _, entry := range entries {
		if entry.Type != ledger.TypeEventAccepted {
			continue
		}
		var rec acceptedRecord
		if err := json.Unmarshal(entry.Payload, &rec); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "decode accepted event payload", err)
		}
		if err := s.index.Record(ctx, contract.SeenEvent{
			EventID:    rec.EventID,
			PayloadSum: rec.PayloadSum,
			Signature:  rec.Signature,
			LedgerSeq:  entry.Seq,
		}); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "rebuild idempotency index", err)
		}
		replayed++
	}
	s.logger.InfoContext(ctx, "idempotency index rebuilt", "events", replayed, "head", head)
	return nil
}

// sign computes the HMAC receipt signature over the event identity and its
// canonical payload digest.
func (s *Service) sign(event contract.Event) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(event.EventID))
	mac.Write([]byte(event.PayloadSum))
	return hex.EncodeToString(mac.Sum(nil))
}
