package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/engine"
	"github.com/heibot/modguard/filters"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/queue"
	"github.com/heibot/modguard/ratelimit"
	"github.com/heibot/modguard/sanction"
	"github.com/heibot/modguard/scoring"
	"github.com/heibot/modguard/store"
	"github.com/heibot/modguard/store/memory"
)

// ============================================================
// Test helpers
// ============================================================

type env struct {
	client   *Client
	store    *memory.Store
	registry *filters.Registry
	persist  []Message
	verdicts []hooks.VerdictEvent
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()
	e := &env{store: memory.New()}
	ctx := context.Background()

	require.NoError(t, e.store.UpsertFilter(ctx, modguard.ContentFilter{ID: "p-darn", Type: modguard.FilterProfanity, Pattern: "darn", Severity: 3, Active: true}))
	require.NoError(t, e.store.UpsertFilter(ctx, modguard.ContentFilter{ID: "k-fool", Type: modguard.FilterKeyword, Pattern: "fool", Severity: 2, Active: true}))

	e.registry = filters.NewRegistry(e.store, filters.DefaultConfig())
	require.NoError(t, e.registry.Refresh(ctx))

	limiter := ratelimit.New(e.store, ratelimit.DefaultConfig())
	eng := engine.New(limiter, scoring.New(e.registry, scoring.DefaultWeights()), engine.Config{})

	opts := DefaultOptions()
	opts.Store = e.store
	opts.Engine = eng
	opts.Sink = MessageSinkFunc(func(ctx context.Context, msg Message) error {
		e.persist = append(e.persist, msg)
		return nil
	})
	opts.Hooks = hooks.FuncHooks{OnVerdictFunc: func(ctx context.Context, ev hooks.VerdictEvent) error {
		e.verdicts = append(e.verdicts, ev)
		return nil
	}}
	if mutate != nil {
		mutate(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)
	e.client = c.WithFilterReloader(e.registry)
	return e
}

var (
	alice    = modguard.Identity{ID: "alice", Authenticated: true}
	guest    = modguard.Identity{ID: "guest-token"}
	flagText = "WOWWWWW LOOK HTTPS://A.CO HTTPS://B.CO HTTPS://C.CO"
)

func TestNew_RequiresStoreAndEngine(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, modguard.ErrStoreNotConfigured)

	_, err = New(Options{Store: memory.New()})
	assert.ErrorIs(t, err, modguard.ErrMissingConfig)
}

// ============================================================
// EvaluateMessage
// ============================================================

func TestEvaluateMessage_Clean(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	res, err := e.client.EvaluateMessage(ctx, "hello everyone", alice, modguard.ContentMeta{ContentID: "m1"})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
	assert.Nil(t, res.QueueItem)
	assert.Empty(t, res.Reason)
	require.Len(t, e.persist, 1)
	assert.Equal(t, "hello everyone", e.persist[0].Text)

	standing, err := e.client.UserReputation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, standing.Score)

	require.Len(t, e.verdicts, 1)
	assert.Equal(t, "m1", e.verdicts[0].Content.ContentID)
}

func TestEvaluateMessage_FlaggedIsQueuedAndPersisted(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	res, err := e.client.EvaluateMessage(ctx, flagText, alice, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
	assert.True(t, res.Verdict.Flagged)
	require.NotNil(t, res.QueueItem)
	assert.Equal(t, queue.PriorityNormal, res.QueueItem.PriorityLevel)
	assert.Equal(t, "alice", res.QueueItem.AuthorID)
	assert.Len(t, e.persist, 1)

	next, err := e.client.NextQueueItem(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.QueueItem.ID, next.ID)
}

func TestEvaluateMessage_BlockedIsQueuedNotPersisted(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	res, err := e.client.EvaluateMessage(ctx, "you darn fool!!!!!!", alice, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.False(t, res.Verdict.Allowed)
	assert.True(t, res.Verdict.AutoBlocked)
	assert.Equal(t, "This message is not allowed", res.Reason)
	assert.NotContains(t, res.Reason, "darn")
	require.NotNil(t, res.QueueItem)
	assert.Equal(t, queue.PriorityCritical, res.QueueItem.PriorityLevel)
	assert.Empty(t, e.persist)

	standing, err := e.client.UserReputation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, standing.Score)
	assert.Nil(t, res.Sanction, "no escalation without a policy")
}

func TestEvaluateMessage_AutoBlockEscalates(t *testing.T) {
	e := newEnv(t, func(o *Options) {
		o.Policy = sanction.ThresholdPolicy{WarnOnAutoBlock: true}
	})

	res, err := e.client.EvaluateMessage(context.Background(), "you darn fool!!!!!!", alice, modguard.ContentMeta{})
	require.NoError(t, err)
	require.NotNil(t, res.Sanction)
	assert.Equal(t, 1, res.Sanction.Status().TotalWarnings)
}

func TestEvaluateMessage_RateLimitedIsNotQueued(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := e.client.EvaluateMessage(ctx, "hi", guest, modguard.ContentMeta{})
		require.NoError(t, err)
	}
	res, err := e.client.EvaluateMessage(ctx, "hi", guest, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.True(t, res.Verdict.RateLimited)
	assert.Equal(t, "You are sending messages too quickly", res.Reason)
	assert.Nil(t, res.QueueItem)

	_, err = e.client.NextQueueItem(ctx)
	assert.ErrorIs(t, err, modguard.ErrQueueEmpty)
}

func TestEvaluateMessage_AnonymousFlaggedHasNoAuthor(t *testing.T) {
	e := newEnv(t, nil)

	res, err := e.client.EvaluateMessage(context.Background(), flagText, guest, modguard.ContentMeta{})
	require.NoError(t, err)
	require.NotNil(t, res.QueueItem)
	assert.Empty(t, res.QueueItem.AuthorID)
}

func TestEvaluateMessage_RestrictedAuthor(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.client.ApplySanction(ctx, SanctionInput{TargetUserID: "alice", Action: modguard.ActionMute, Reason: "spam"})
	require.NoError(t, err)

	res, err := e.client.EvaluateMessage(ctx, "hello", alice, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.False(t, res.Verdict.Allowed)
	assert.True(t, res.Verdict.Restricted)
	assert.Equal(t, 100, res.Verdict.ConfidenceScore)
	assert.Equal(t, "You cannot post right now", res.Reason)
	assert.Empty(t, e.persist)

	_, err = e.client.ApplySanction(ctx, SanctionInput{TargetUserID: "alice", Action: modguard.ActionUnmute})
	require.NoError(t, err)
	res, err = e.client.EvaluateMessage(ctx, "hello", alice, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
}

func TestEvaluateMessage_ShadowBanned(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.client.SetShadowBan(ctx, "alice", true)
	require.NoError(t, err)

	res, err := e.client.EvaluateMessage(ctx, "hello", alice, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
	assert.True(t, res.Shadowed)
	require.Len(t, e.persist, 1)
	assert.True(t, e.persist[0].Shadowed)
	require.Len(t, e.verdicts, 1)
	assert.True(t, e.verdicts[0].Shadowed)

	status, err := e.client.UserStatus(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, status.IsShadowBanned)
	assert.Equal(t, modguard.StatusActive, status.Status)
}

type brokenStatusStore struct {
	*memory.Store
}

func (brokenStatusStore) GetUserStatus(ctx context.Context, userID string) (*modguard.UserModerationStatus, error) {
	return nil, errors.New("connection reset")
}

var _ store.Store = brokenStatusStore{}

func TestEvaluateMessage_StatusLookupFailsClosed(t *testing.T) {
	st := brokenStatusStore{Store: memory.New()}
	eng := engine.New(nil, scoring.New(filters.NewRegistry(nil, filters.DefaultConfig()), scoring.DefaultWeights()), engine.Config{})
	c, err := New(Options{Store: st, Engine: eng})
	require.NoError(t, err)

	res, err := c.EvaluateMessage(context.Background(), "hello", alice, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.False(t, res.Verdict.Allowed)
	assert.True(t, res.Verdict.Restricted)

	res, err = c.EvaluateMessage(context.Background(), "hello", guest, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed, "anonymous identities have no status to look up")
}

func TestEvaluateMessage_SinkFailureKeepsVerdict(t *testing.T) {
	e := newEnv(t, func(o *Options) {
		o.Sink = MessageSinkFunc(func(ctx context.Context, msg Message) error {
			return errors.New("disk full")
		})
	})

	res, err := e.client.EvaluateMessage(context.Background(), "hello", alice, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
}

func TestEvaluateMessage_EmptyText(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.client.EvaluateMessage(context.Background(), "", alice, modguard.ContentMeta{})
	assert.ErrorIs(t, err, modguard.ErrEmptyText)
}

// ============================================================
// Moderator operations
// ============================================================

func TestEvaluateMessage_RepeatedContentEmitsDistinctEvents(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	meta := modguard.ContentMeta{ContentID: "m1"}

	first, err := e.client.EvaluateMessage(ctx, "hello there", alice, meta)
	require.NoError(t, err)
	second, err := e.client.EvaluateMessage(ctx, "hello there", alice, meta)
	require.NoError(t, err)

	require.Len(t, e.verdicts, 2)
	assert.NotEqual(t, first.EvaluationID, second.EvaluationID)
	assert.Equal(t, first.EvaluationID, e.verdicts[0].EvaluationID)
	assert.Equal(t, second.EvaluationID, e.verdicts[1].EvaluationID)
	assert.NotEqual(t, e.verdicts[0].EventID, e.verdicts[1].EventID)
}

func TestQueueDisposition_RejectWarnsAuthor(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	res, err := e.client.EvaluateMessage(ctx, flagText, alice, modguard.ContentMeta{})
	require.NoError(t, err)
	require.NotNil(t, res.QueueItem)

	ok, err := e.client.QueueDisposition(ctx, queue.Disposition{ItemID: res.QueueItem.ID, Outcome: modguard.OutcomeRejected, ModeratorID: "mod"})
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := e.client.UserStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalWarnings)

	history, err := e.client.UserHistory(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Verdict.Summary(), history[0].Reason)
}

func TestApplySanction_TimedBan(t *testing.T) {
	e := newEnv(t, nil)
	dur := 60

	status, err := e.client.ApplySanction(context.Background(), SanctionInput{TargetUserID: "bob", Action: modguard.ActionBan, DurationMinutes: &dur})
	require.NoError(t, err)
	require.NotNil(t, status.BannedUntil)
	assert.True(t, status.IsBanned(time.Now()))
	assert.False(t, status.IsBanned(time.Now().Add(61*time.Minute)))
}

func TestRecordActivity(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	change, err := e.client.RecordActivity(ctx, "alice", modguard.ActivityAchievement)
	require.NoError(t, err)
	assert.Equal(t, 10, change.Event.Delta)

	_, err = e.client.RecordActivity(ctx, "alice", "bribe")
	assert.True(t, modguard.IsValidationError(err))
}

func TestFilterAdministration(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.client.UpsertFilter(ctx, modguard.ContentFilter{ID: "bad"})
	assert.True(t, modguard.IsValidationError(err))

	res, err := e.client.EvaluateMessage(ctx, "buy zorkcoin now", guest, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.Zero(t, res.Verdict.TotalScore)

	saved, err := e.client.UpsertFilter(ctx, modguard.ContentFilter{ID: "s-zork", Type: modguard.FilterSpam, Pattern: "zorkcoin", Severity: 3, Active: true})
	require.NoError(t, err)
	assert.NotZero(t, saved.CreatedAt)

	res, err = e.client.EvaluateMessage(ctx, "buy zorkcoin now", guest, modguard.ContentMeta{})
	require.NoError(t, err)
	assert.Equal(t, 45, res.Verdict.TotalScore)

	require.NoError(t, e.client.DeleteFilter(ctx, "s-zork"))
	list, err := e.client.ListFilters(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRender(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	res, err := e.client.EvaluateMessage(ctx, flagText, alice, modguard.ContentMeta{ContentID: "m1", ContentType: "message"})
	require.NoError(t, err)
	require.NotNil(t, res.QueueItem)

	in := RenderInput{Text: flagText, ContentType: "message", AuthorID: "alice", ViewerID: "bob", QueueItemID: res.QueueItem.ID}

	out, err := e.client.Render(ctx, in)
	require.NoError(t, err)
	assert.False(t, out.Visible)
	assert.Equal(t, "Content under review", out.Message)

	in.ViewerID = "alice"
	out, err = e.client.Render(ctx, in)
	require.NoError(t, err)
	assert.True(t, out.Visible)
	assert.Equal(t, flagText, out.Value)
	assert.Equal(t, "Under review", out.Message)

	_, err = e.client.Dispose(ctx, queue.Disposition{ItemID: res.QueueItem.ID, Outcome: modguard.OutcomeRejected})
	require.NoError(t, err)

	in.ViewerID = "bob"
	out, err = e.client.Render(ctx, in)
	require.NoError(t, err)
	assert.False(t, out.Visible)
	assert.Equal(t, "Content unavailable", out.Message)

	in.Admin = true
	out, err = e.client.Render(ctx, in)
	require.NoError(t, err)
	assert.True(t, out.Visible)
	assert.Equal(t, flagText, out.Value)

	_, err = e.client.Render(ctx, RenderInput{Text: "x", QueueItemID: "missing"})
	assert.True(t, modguard.IsNotFound(err))
}

func TestRender_ShadowBannedAuthor(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.client.SetShadowBan(ctx, "alice", true)
	require.NoError(t, err)

	out, err := e.client.Render(ctx, RenderInput{Text: "hello", ContentType: "post", AuthorID: "alice", ViewerID: "bob"})
	require.NoError(t, err)
	assert.False(t, out.Visible)
	assert.Empty(t, out.Message)

	out, err = e.client.Render(ctx, RenderInput{Text: "hello", ContentType: "post", AuthorID: "alice", ViewerID: "alice"})
	require.NoError(t, err)
	assert.True(t, out.Visible)
}
