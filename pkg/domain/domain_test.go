package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pinksync/pkg/domain-errors"
)

// TestParseAppID_Invariants validates the boundary invariant:
// app ids are 3-64 chars of [a-zA-Z0-9_-].
func TestParseAppID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "health-portal-v2", false},
		{"valid underscore", "video_platform", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 65), true},
		{"path traversal", "../../etc/passwd", true},
		{"sql injection", "'; DROP TABLE apps;--", true},
		{"whitespace", "health portal", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseAppID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, AppID(tt.input), id)
		})
	}
}

func TestParseUserID_EmptyIsAnonymous(t *testing.T) {
	id, err := ParseUserID("")
	require.NoError(t, err)
	assert.Equal(t, UserID(""), id)
}

func TestParseIntent_Allowlist(t *testing.T) {
	for _, intent := range Intents() {
		parsed, err := ParseIntent(intent.String())
		require.NoError(t, err)
		assert.Equal(t, intent, parsed)
	}

	_, err := ParseIntent("audio_only")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestLevel_Ordering(t *testing.T) {
	assert.Less(t, LevelBronze.Rank(), LevelSilver.Rank())
	assert.Less(t, LevelSilver.Rank(), LevelGold.Rank())
	assert.Less(t, LevelGold.Rank(), LevelPlatinum.Rank())

	next, ok := LevelGold.Next()
	require.True(t, ok)
	assert.Equal(t, LevelPlatinum, next)

	_, ok = LevelPlatinum.Next()
	assert.False(t, ok)
}
