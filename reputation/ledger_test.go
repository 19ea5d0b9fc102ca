package reputation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/store/memory"
)

func TestGrant(t *testing.T) {
	tests := []struct {
		activity modguard.ActivityType
		want     int
	}{
		{modguard.ActivityMessage, 2},
		{modguard.ActivityReaction, 1},
		{modguard.ActivityHelpful, 5},
		{modguard.ActivityAchievement, 10},
	}
	for _, tt := range tests {
		t.Run(string(tt.activity), func(t *testing.T) {
			l := NewLedger(memory.New(), DefaultConfig())
			c, err := l.Grant(context.Background(), "u1", tt.activity)
			require.NoError(t, err)
			if c.Event.Score != tt.want {
				t.Errorf("Grant(%s) score = %d, want %d", tt.activity, c.Event.Score, tt.want)
			}
		})
	}
}

func TestGrant_UnknownActivity(t *testing.T) {
	l := NewLedger(memory.New(), DefaultConfig())
	_, err := l.Grant(context.Background(), "u1", "karma-farming")
	assert.True(t, modguard.IsValidationError(err))
}

func TestGrant_RequiresUser(t *testing.T) {
	l := NewLedger(memory.New(), DefaultConfig())
	_, err := l.Grant(context.Background(), "", modguard.ActivityMessage)
	assert.True(t, modguard.IsValidationError(err))
}

func TestAdjust_LevelBoundary(t *testing.T) {
	st := memory.New()
	var events []hooks.ReputationEvent
	l := NewLedger(st, Config{Hooks: hooks.FuncHooks{
		OnReputationChangedFunc: func(ctx context.Context, e hooks.ReputationEvent) error {
			events = append(events, e)
			return nil
		},
	}})
	ctx := context.Background()

	_, err := l.Adjust(ctx, "u1", "", 99)
	require.NoError(t, err)
	s, err := l.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, modguard.LevelNewcomer, s.Level)

	c, err := l.Grant(ctx, "u1", modguard.ActivityReaction)
	require.NoError(t, err)
	assert.Equal(t, modguard.LevelNewcomer, c.Previous)
	assert.Equal(t, modguard.LevelRegular, c.Level)

	require.Len(t, events, 2)
	assert.False(t, events[0].LevelChanged())
	assert.True(t, events[1].LevelChanged())
	assert.Len(t, st.ReputationEvents(), 2)
}

func TestGet_UnknownUser(t *testing.T) {
	l := NewLedger(memory.New(), DefaultConfig())
	s, err := l.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Score)
	assert.Equal(t, modguard.LevelNewcomer, s.Level)
}

func TestGrant_KeepsSanctionState(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	muted := modguard.NewUserModerationStatus("u1")
	muted.Status = modguard.StatusMuted
	muted.TotalWarnings = 2
	require.NoError(t, st.UpsertUserStatus(ctx, muted))

	l := NewLedger(st, DefaultConfig())
	_, err := l.Grant(ctx, "u1", modguard.ActivityHelpful)
	require.NoError(t, err)

	got, err := st.GetUserStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, modguard.StatusMuted, got.Status)
	assert.Equal(t, 2, got.TotalWarnings)
	assert.Equal(t, 5, got.ReputationScore)
}
