package trust

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinksync/internal/ledger"
	dErrors "pinksync/pkg/domain-errors"
)

type recordingLedger struct {
	mu      sync.Mutex
	entries []ledger.EntryType
}

func (l *recordingLedger) Append(_ context.Context, t ledger.EntryType, _ any) (ledger.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, t)
	return ledger.Entry{Seq: uint64(len(l.entries))}, nil
}

func newTestService(t *testing.T) (*Service, *recordingLedger) {
	t.Helper()
	led := &recordingLedger{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(NewInMemoryStore(), led, logger), led
}

func TestContributionDelta(t *testing.T) {
	tests := []struct {
		name string
		c    Contribution
		want int64
	}{
		{"commits scale by two", Contribution{Action: ActionCodeContribution, Commits: 7}, 14},
		{"zero commits", Contribution{Action: ActionCodeContribution}, 0},
		{"pr merged", Contribution{Action: ActionPRMerged}, 10},
		{"release published", Contribution{Action: ActionReleasePublished}, 25},
		{"dao participation", Contribution{Action: ActionDAOParticipation}, 5},
		{"community help", Contribution{Action: ActionCommunityHelp}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.c.Delta()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Contribution{Action: "starred_repo"}.Delta()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRegister_IsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "dev-alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.TrustScore)

	_, err = svc.Update(ctx, "dev-alice", Contribution{Action: ActionPRMerged})
	require.NoError(t, err)

	again, err := svc.Register(ctx, "dev-alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.TrustScore)
}

func TestUpdate_OrderIndependentTotal(t *testing.T) {
	contributions := []Contribution{
		{Action: ActionCodeContribution, Commits: 5},
		{Action: ActionPRMerged},
		{Action: ActionReleasePublished},
		{Action: ActionCommunityHelp},
	}
	want := int64(10 + 10 + 25 + 3)

	forward, _ := newTestService(t)
	reverse, _ := newTestService(t)
	ctx := context.Background()
	_, err := forward.Register(ctx, "dev-bob")
	require.NoError(t, err)
	_, err = reverse.Register(ctx, "dev-bob")
	require.NoError(t, err)

	for _, c := range contributions {
		_, err := forward.Update(ctx, "dev-bob", c)
		require.NoError(t, err)
	}
	for i := len(contributions) - 1; i >= 0; i-- {
		_, err := reverse.Update(ctx, "dev-bob", contributions[i])
		require.NoError(t, err)
	}

	f, err := forward.Resolve(ctx, "dev-bob")
	require.NoError(t, err)
	r, err := reverse.Resolve(ctx, "dev-bob")
	require.NoError(t, err)
	assert.Equal(t, want, f.TrustScore)
	assert.Equal(t, want, r.TrustScore)
}

func TestUpdate_ConcurrentContributionsAllLand(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "dev-carol")
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, "dev-carol", Contribution{Action: ActionCommunityHelp})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	id, err := svc.Resolve(ctx, "dev-carol")
	require.NoError(t, err)
	assert.Equal(t, int64(3*workers), id.TrustScore)
	assert.Equal(t, int64(workers), id.Contributions)
	assert.Len(t, led.entries, workers)
}

func TestUpdate_UnknownIdentity(t *testing.T) {
	svc, led := newTestService(t)

	_, err := svc.Update(context.Background(), "dev-ghost", Contribution{Action: ActionPRMerged})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownIdentity))
	assert.Empty(t, led.entries)
}

func TestResolve_Timestamps(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	led := &recordingLedger{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(NewInMemoryStore(), led, logger, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := svc.Register(ctx, "dev-dana")
	require.NoError(t, err)
	id, err := svc.Resolve(ctx, "dev-dana")
	require.NoError(t, err)
	assert.Equal(t, now, id.CreatedAt)
	assert.Equal(t, now, id.UpdatedAt)
}
