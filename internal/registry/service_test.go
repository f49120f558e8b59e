package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinksync/internal/ledger"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

func newTestService(t *testing.T, now func() time.Time) (*Service, *ledger.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led, err := ledger.NewService(context.Background(), ledger.NewInMemoryStore(), logger)
	require.NoError(t, err)
	return NewService(NewInMemoryStore(), led, logger, WithClock(now)), led
}

func declaration() Declaration {
	return Declaration{
		AppID:        "health-portal-v2",
		Capabilities: []domain.Intent{domain.IntentVisualOnly, domain.IntentCaptionsMandatory},
		Level:        domain.LevelGold,
		Version:      "2.1.0",
		Flags:        []string{"sign_language_support"},
	}
}

// Re-registering with an identical declaration is idempotent: registered_at
// unchanged, updated_at refreshed, no duplicate record created.
func TestRegister_IdempotentUpsert(t *testing.T) {
	clock := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, func() time.Time { return clock })
	ctx := context.Background()

	first, err := svc.Register(ctx, declaration())
	require.NoError(t, err)
	assert.Equal(t, clock, first.RegisteredAt)

	clock = clock.Add(48 * time.Hour)
	second, err := svc.Register(ctx, declaration())
	require.NoError(t, err)

	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, clock, second.UpdatedAt)

	all, err := svc.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegister_RejectsUnknownCapability(t *testing.T) {
	svc, _ := newTestService(t, time.Now)

	d := declaration()
	d.Capabilities = append(d.Capabilities, domain.Intent("audio_only"))
	_, err := svc.Register(context.Background(), d)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestQuery_FilterCombinations(t *testing.T) {
	svc, _ := newTestService(t, time.Now)
	ctx := context.Background()

	_, err := svc.Register(ctx, declaration())
	require.NoError(t, err)
	_, err = svc.Register(ctx, Declaration{
		AppID:        "video-platform",
		Capabilities: []domain.Intent{domain.IntentSignLanguage},
		Level:        domain.LevelSilver,
		Version:      "1.0.0",
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   []domain.AppID
	}{
		{"empty matches all", Filter{}, []domain.AppID{"health-portal-v2", "video-platform"}},
		{"by app id", Filter{AppID: "video-platform"}, []domain.AppID{"video-platform"}},
		{"by intent", Filter{Intent: domain.IntentCaptionsMandatory}, []domain.AppID{"health-portal-v2"}},
		{"by level", Filter{Level: domain.LevelSilver}, []domain.AppID{"video-platform"}},
		{"no match", Filter{Intent: domain.IntentReducedMotion}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Query(ctx, tt.filter)
			require.NoError(t, err)
			var ids []domain.AppID
			for _, d := range got {
				ids = append(ids, d.AppID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestDeregister_SoftDelete(t *testing.T) {
	svc, led := newTestService(t, time.Now)
	ctx := context.Background()

	_, err := svc.Register(ctx, declaration())
	require.NoError(t, err)

	require.NoError(t, svc.Deregister(ctx, "health-portal-v2"))

	// Hidden from queries but the record survives.
	visible, err := svc.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	kept, err := svc.Get(ctx, "health-portal-v2")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, StatusDeregistered, kept.Status)

	// Registration + deregistration both hit the ledger.
	assert.Equal(t, uint64(2), led.Head())
}

func TestDeregister_UnknownApp(t *testing.T) {
	svc, _ := newTestService(t, time.Now)
	err := svc.Deregister(context.Background(), "ghost-app")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
