package broker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinksync/internal/contract"
	"pinksync/internal/ledger"
	"pinksync/internal/registry"
	"pinksync/pkg/domain"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeRegistry struct {
	declarations map[domain.AppID]*registry.Declaration
}

func (f *fakeRegistry) Get(_ context.Context, appID domain.AppID) (*registry.Declaration, error) {
	return f.declarations[appID], nil
}

type fakeCompliance struct {
	mu    sync.Mutex
	noted []domain.Intent
}

func (f *fakeCompliance) NoteEvent(_ context.Context, _ domain.AppID, intent domain.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noted = append(f.noted, intent)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []contract.Event
}

func (f *fakePublisher) Publish(_ context.Context, event contract.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type brokerFixture struct {
	service    *Service
	ledger     *ledger.Service
	compliance *fakeCompliance
	publisher  *fakePublisher
	index      *contract.InMemoryIndex
}

func newFixture(t *testing.T) *brokerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led, err := ledger.NewService(context.Background(), ledger.NewInMemoryStore(), logger)
	require.NoError(t, err)

	reg := &fakeRegistry{declarations: map[domain.AppID]*registry.Declaration{
		"health-portal-v2": {
			AppID:        "health-portal-v2",
			Capabilities: []domain.Intent{domain.IntentVisualOnly},
			Level:        domain.LevelGold,
			Status:       registry.StatusActive,
			RegisteredAt: testNow.Add(-90 * 24 * time.Hour),
		},
	}}
	index := contract.NewInMemoryIndex()
	validator := contract.NewValidator(reg, index, 5*time.Minute, 8192,
		contract.WithClock(func() time.Time { return testNow }))

	f := &brokerFixture{
		ledger:     led,
		compliance: &fakeCompliance{},
		publisher:  &fakePublisher{},
		index:      index,
	}
	f.service = NewService(validator, index, led, f.compliance, f.publisher,
		[]byte("test-signing-key"), logger)
	return f
}

func goldSubmission() contract.Submission {
	return contract.Submission{
		EventID:         "evt-gold-001",
		AppID:           "health-portal-v2",
		UserID:          "user-12345",
		Intent:          "visual_only",
		Timestamp:       testNow.Add(-time.Minute),
		Metadata:        json.RawMessage(`{"severity":"required"}`),
		ComplianceLevel: "gold",
	}
}

func TestAccept_GoldEventScenario(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.service.Accept(context.Background(), goldSubmission())
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, receipt.Status)
	assert.Equal(t, "evt-gold-001", receipt.EventID)
	assert.NotEmpty(t, receipt.Signature)
	assert.Equal(t, uint64(1), receipt.LedgerID)

	// Exactly one new ledger entry, one compliance note, one publication.
	assert.Equal(t, uint64(1), f.ledger.Head())
	assert.Equal(t, []domain.Intent{domain.IntentVisualOnly}, f.compliance.noted)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "evt-gold-001", f.publisher.events[0].EventID)
}

func TestAccept_GeneratesEventIDWhenAbsent(t *testing.T) {
	f := newFixture(t)
	sub := goldSubmission()
	sub.EventID = ""

	receipt, err := f.service.Accept(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, receipt.Status)
	assert.NotEmpty(t, receipt.EventID)
}

func TestAccept_ViolationIsLedgeredAndNotPublished(t *testing.T) {
	f := newFixture(t)
	sub := goldSubmission()
	sub.Intent = "audio_only"

	receipt, err := f.service.Accept(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, receipt.Status)
	assert.Equal(t, string(contract.ReasonUnknownIntent), receipt.Reason)
	require.NotNil(t, receipt.Violation)

	// Rejection writes its own ledger entry; nothing flows downstream.
	assert.Equal(t, uint64(1), f.ledger.Head())
	assert.Empty(t, f.compliance.noted)
	assert.Empty(t, f.publisher.events)
}

func TestAccept_DuplicateReplaysOriginalReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Accept(ctx, goldSubmission())
	require.NoError(t, err)

	replay, err := f.service.Accept(ctx, goldSubmission())
	require.NoError(t, err)
	assert.Equal(t, first.Signature, replay.Signature)
	assert.Equal(t, first.LedgerID, replay.LedgerID)

	// Replay commits nothing and delivers nothing new.
	assert.Equal(t, uint64(1), f.ledger.Head())
	assert.Len(t, f.publisher.events, 1)
	assert.Len(t, f.compliance.noted, 1)
}

func TestAccept_ConflictingDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Accept(ctx, goldSubmission())
	require.NoError(t, err)

	conflicting := goldSubmission()
	conflicting.Metadata = json.RawMessage(`{"severity":"optional"}`)
	receipt, err := f.service.Accept(ctx, conflicting)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, receipt.Status)
	assert.Equal(t, string(contract.ReasonConflictingDuplicate), receipt.Reason)
}

func TestSubmitBatch_EventsAreIndependent(t *testing.T) {
	f := newFixture(t)

	bad := goldSubmission()
	bad.EventID = "evt-bad"
	bad.AppID = "ghost-app"
	good := goldSubmission()

	receipts, err := f.service.SubmitBatch(context.Background(), []contract.Submission{bad, good})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, StatusRejected, receipts[0].Status)
	assert.Equal(t, StatusAccepted, receipts[1].Status)
}

func TestReplayIndex_RestoresIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Accept(ctx, goldSubmission())
	require.NoError(t, err)

	// Fresh index, same ledger: simulates a restart.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := &fakeRegistry{declarations: map[domain.AppID]*registry.Declaration{
		"health-portal-v2": {
			AppID:        "health-portal-v2",
			Capabilities: []domain.Intent{domain.IntentVisualOnly},
			Level:        domain.LevelGold,
			Status:       registry.StatusActive,
			RegisteredAt: testNow.Add(-90 * 24 * time.Hour),
		},
	}}
	index := contract.NewInMemoryIndex()
	validator := contract.NewValidator(reg, index, 5*time.Minute, 8192,
		contract.WithClock(func() time.Time { return testNow }))
	svc := NewService(validator, index, f.ledger, &fakeCompliance{}, &fakePublisher{},
		[]byte("test-signing-key"), logger)

	require.NoError(t, svc.ReplayIndex(ctx))

	replay, err := svc.Accept(ctx, goldSubmission())
	require.NoError(t, err)
	assert.Equal(t, first.Signature, replay.Signature)
	assert.Equal(t, first.LedgerID, replay.LedgerID)
	assert.Equal(t, uint64(1), f.ledger.Head())
}
