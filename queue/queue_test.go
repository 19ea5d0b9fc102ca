package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/sanction"
	"github.com/heibot/modguard/store"
	"github.com/heibot/modguard/store/memory"
)

type testEnv struct {
	store   *memory.Store
	queue   *Service
	machine *sanction.Machine
	now     *time.Time
	events  []hooks.QueueItemEvent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{now: &now}
	env.store = memory.NewWithClock(func() time.Time { return *env.now })
	env.machine = sanction.New(env.store, sanction.Config{})
	record := func(ctx context.Context, e hooks.QueueItemEvent) error {
		env.events = append(env.events, e)
		return nil
	}
	env.queue = New(env.store, Config{
		Sanctioner: env.machine,
		Hooks:      hooks.FuncHooks{OnQueueItemEnqueuedFunc: record, OnQueueItemDisposedFunc: record},
	})
	return env
}

func (e *testEnv) tick(d time.Duration) {
	*e.now = e.now.Add(d)
}

func (e *testEnv) enqueue(t *testing.T, id string, priority int, author string) modguard.QueueItem {
	t.Helper()
	item, err := e.queue.Enqueue(context.Background(), modguard.QueueItem{
		ID:            id,
		ContentID:     "c-" + id,
		ContentType:   "message",
		ContentText:   "text " + id,
		AuthorID:      author,
		PriorityLevel: priority,
		Reason:        "Profanity (severity 3)",
	})
	require.NoError(t, err)
	e.tick(time.Second)
	return item
}

func TestPriority(t *testing.T) {
	tests := []struct {
		name string
		v    modguard.Verdict
		want int
	}{
		{"auto blocked", modguard.Verdict{AutoBlocked: true, ConfidenceScore: 100}, PriorityCritical},
		{"high confidence", modguard.Verdict{Flagged: true, ConfidenceScore: 80}, PriorityHigh},
		{"flagged", modguard.Verdict{Flagged: true, ConfidenceScore: 79}, PriorityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Priority(tt.v); got != tt.want {
				t.Errorf("Priority() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestItemFromVerdict(t *testing.T) {
	v := modguard.Verdict{
		Flagged:         true,
		ConfidenceScore: 75,
		Violations:      []modguard.Violation{{Label: "Repeated characters"}, {Label: "Too many links"}},
	}

	item := ItemFromVerdict("hello", modguard.Identity{ID: "u1", Authenticated: true}, modguard.ContentMeta{}, v)
	assert.Equal(t, "u1", item.AuthorID)
	assert.NotEmpty(t, item.ContentID)
	assert.Equal(t, "message", item.ContentType)
	assert.Equal(t, "Repeated characters; Too many links", item.Reason)
	assert.True(t, item.AutoFlagged)

	anon := ItemFromVerdict("hello", modguard.Identity{ID: "tok"}, modguard.ContentMeta{ContentID: "m1"}, v)
	assert.Empty(t, anon.AuthorID)
	assert.Equal(t, "m1", anon.ContentID)
}

func TestDequeueNext_Ordering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.queue.DequeueNext(ctx)
	assert.ErrorIs(t, err, modguard.ErrQueueEmpty)

	env.enqueue(t, "old-high", 2, "")
	env.enqueue(t, "low", 1, "")
	env.enqueue(t, "new-high", 2, "")

	next, err := env.queue.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-high", next.ID)

	list, err := env.queue.ListPending(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, it := range list {
		ids[i] = it.ID
	}
	assert.Equal(t, []string{"new-high", "old-high", "low"}, ids)
}

func TestDisposition_Approved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enqueue(t, "q1", 1, "u1")

	ok, err := env.queue.Disposition(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeApproved, Notes: "fine"})
	require.NoError(t, err)
	assert.True(t, ok)

	item, err := env.queue.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, modguard.QueueApproved, item.Status)
	assert.Equal(t, "fine", item.ModeratorNotes)

	status, err := env.machine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.TotalWarnings)

	// terminal
	ok, err = env.queue.Disposition(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeRejected})
	assert.False(t, ok)
	assert.ErrorIs(t, err, modguard.ErrQueueItemClosed)
}

func TestDisposition_RejectedWarnsAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enqueue(t, "q1", 1, "u1")

	res, err := env.queue.Dispose(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeRejected, ModeratorID: "mod"})
	require.NoError(t, err)
	require.NotNil(t, res.Sanction)
	assert.Equal(t, modguard.QueueRejected, res.Item.Status)

	status, err := env.machine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalWarnings)

	history, err := env.machine.History(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Profanity (severity 3)", history[0].Reason)
	assert.Equal(t, "mod", history[0].ModeratorID)
}

func TestDisposition_RejectedWithDurationMutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enqueue(t, "q1", 1, "u1")
	start := *env.now

	dur := 30
	_, err := env.queue.Dispose(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeRejected, DurationMinutes: &dur})
	require.NoError(t, err)

	status, err := env.machine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.IsMuted(start.Add(29*time.Minute)))
	assert.False(t, status.IsMuted(start.Add(31*time.Minute)))
}

func TestDisposition_RejectedWithDurationBannedAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.machine.Apply(ctx, sanction.Command{TargetUserID: "u1", Action: modguard.ActionBan, Reason: "spam"})
	require.NoError(t, err)
	env.enqueue(t, "q1", 1, "u1")

	dur := 60
	ok, err := env.queue.Disposition(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeRejected, DurationMinutes: &dur})
	require.NoError(t, err)
	assert.True(t, ok)

	item, err := env.queue.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, modguard.QueueRejected, item.Status)

	status, err := env.machine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, modguard.StatusBanned, status.Status)
	assert.Nil(t, status.BannedUntil)
	assert.Nil(t, status.MutedUntil)
	assert.Equal(t, 1, status.TotalWarnings)
}

func TestRejectionSanction(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute).UnixMilli()
	future := now.Add(time.Hour).UnixMilli()
	dur := 30
	item := modguard.QueueItem{ID: "q1", AuthorID: "u1"}

	tests := []struct {
		name     string
		author   modguard.UserModerationStatus
		duration *int
		want     modguard.ActionType
	}{
		{"active no duration", modguard.UserModerationStatus{Status: modguard.StatusActive}, nil, modguard.ActionWarn},
		{"active with duration", modguard.UserModerationStatus{Status: modguard.StatusActive}, &dur, modguard.ActionMute},
		{"muted with duration", modguard.UserModerationStatus{Status: modguard.StatusMuted, MutedUntil: &future}, &dur, modguard.ActionMute},
		{"banned with duration", modguard.UserModerationStatus{Status: modguard.StatusBanned}, &dur, modguard.ActionWarn},
		{"suspended with duration", modguard.UserModerationStatus{Status: modguard.StatusSuspended, SuspendedUntil: &future}, &dur, modguard.ActionWarn},
		{"expired ban with duration", modguard.UserModerationStatus{Status: modguard.StatusBanned, BannedUntil: &past}, &dur, modguard.ActionMute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := RejectionSanction(item, Disposition{DurationMinutes: tt.duration}, tt.author, now)
			if cmd.Action != tt.want {
				t.Errorf("RejectionSanction() action = %v, want %v", cmd.Action, tt.want)
			}
			if cmd.Action == modguard.ActionWarn && cmd.DurationMinutes != nil {
				t.Error("RejectionSanction() warn carries a duration")
			}
			if err := cmd.Validate(); err != nil {
				t.Errorf("RejectionSanction() command invalid: %v", err)
			}
		})
	}
}

func TestDisposition_RejectedWithoutAuthor(t *testing.T) {
	env := newTestEnv(t)
	env.enqueue(t, "q1", 1, "")

	res, err := env.queue.Dispose(context.Background(), Disposition{ItemID: "q1", Outcome: modguard.OutcomeRejected})
	require.NoError(t, err)
	assert.Nil(t, res.Sanction)
}

func TestDisposition_Escalated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enqueue(t, "q1", 1, "u1")
	env.enqueue(t, "q2", 2, "u2")

	ok, err := env.queue.Disposition(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeEscalated, Notes: "needs senior"})
	require.NoError(t, err)
	assert.True(t, ok)

	item, err := env.queue.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, modguard.QueuePending, item.Status)
	assert.Equal(t, 2, item.PriorityLevel)

	// escalate again, now above q2
	_, err = env.queue.Disposition(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeEscalated})
	require.NoError(t, err)
	next, err := env.queue.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "q1", next.ID)
	assert.Equal(t, 3, next.PriorityLevel)
	assert.Equal(t, "needs senior", next.ModeratorNotes)
}

func TestDisposition_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.queue.Disposition(ctx, Disposition{ItemID: "q1", Outcome: "maybe"})
	assert.ErrorIs(t, err, modguard.ErrInvalidOutcome)

	_, err = env.queue.Disposition(ctx, Disposition{ItemID: "missing", Outcome: modguard.OutcomeApproved})
	assert.True(t, modguard.IsNotFound(err))
}

type failingSanctioner struct{}

func (failingSanctioner) ApplyTx(ctx context.Context, tx store.Store, cmd sanction.Command) (*sanction.Outcome, error) {
	return nil, errors.New("sanction store down")
}

func (failingSanctioner) Emit(ctx context.Context, out *sanction.Outcome) {}

func TestDisposition_SanctionFailureRollsBack(t *testing.T) {
	st := memory.New()
	svc := New(st, Config{Sanctioner: failingSanctioner{}})
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, modguard.QueueItem{ID: "q1", ContentID: "c1", AuthorID: "u1"})
	require.NoError(t, err)

	ok, err := svc.Disposition(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeRejected})
	assert.False(t, ok)
	require.Error(t, err)

	item, err := svc.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, modguard.QueuePending, item.Status)
}

func TestDisposition_RejectWithoutSanctioner(t *testing.T) {
	svc := New(memory.New(), Config{})
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, modguard.QueueItem{ID: "q1", ContentID: "c1", AuthorID: "u1"})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, modguard.QueueItem{ID: "q2", ContentID: "c2"})
	require.NoError(t, err)

	_, err = svc.Dispose(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeRejected})
	assert.ErrorIs(t, err, modguard.ErrSanctionerNotConfigured)

	res, err := svc.Dispose(ctx, Disposition{ItemID: "q2", Outcome: modguard.OutcomeRejected})
	require.NoError(t, err)
	assert.Equal(t, modguard.QueueRejected, res.Item.Status)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)
	env.enqueue(t, "q1", 1, "")
	_, err := env.queue.Disposition(context.Background(), Disposition{ItemID: "q1", Outcome: modguard.OutcomeApproved, ModeratorID: "mod"})
	require.NoError(t, err)

	require.Len(t, env.events, 2)
	assert.Equal(t, hooks.KindQueueEnqueued, env.events[0].Kind)
	assert.Equal(t, hooks.KindQueueDisposed, env.events[1].Kind)
	assert.Equal(t, modguard.OutcomeApproved, env.events[1].Outcome)
	assert.NotEqual(t, env.events[0].EventID, env.events[1].EventID)
}

func TestEvents_EscalationsWithinOneTick(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enqueue(t, "q1", 1, "")

	// the clock does not move between the two escalations
	for i := 0; i < 2; i++ {
		_, err := env.queue.Disposition(ctx, Disposition{ItemID: "q1", Outcome: modguard.OutcomeEscalated})
		require.NoError(t, err)
	}

	require.Len(t, env.events, 3)
	assert.NotEqual(t, env.events[1].EventID, env.events[2].EventID)
}
