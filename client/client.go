package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/engine"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/queue"
	"github.com/heibot/modguard/reputation"
	"github.com/heibot/modguard/sanction"
	"github.com/heibot/modguard/store"
	"github.com/heibot/modguard/visibility"
)

// FilterReloader reloads the compiled filter set after an edit.
// *filters.Registry implements it.
type FilterReloader interface {
	Refresh(ctx context.Context) error
}

// Client is the moderation client.
type Client struct {
	store     store.Store
	engine    Decider
	hooks     hooks.Hooks
	sink      MessageSink
	ledger    *reputation.Ledger
	sanctions *sanction.Machine
	queue     *queue.Service
	renderer  *visibility.Renderer
	reloader  FilterReloader
	logger    *zap.Logger
}

// New creates a new moderation client.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, modguard.ErrStoreNotConfigured
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("%w: engine", modguard.ErrMissingConfig)
	}

	opts.Hooks = hooks.OrNop(opts.Hooks)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if opts.Ledger == nil {
		grants := opts.Grants
		if grants == nil {
			grants = reputation.DefaultGrants()
		}
		opts.Ledger = reputation.NewLedger(opts.Store, reputation.Config{
			Grants: grants,
			Hooks:  opts.Hooks,
			Logger: opts.Logger,
		})
	}
	if opts.Sanctions == nil {
		opts.Sanctions = sanction.New(opts.Store, sanction.Config{
			Policy:    opts.Policy,
			Penalties: opts.Penalties,
			Ledger:    opts.Ledger,
			Hooks:     opts.Hooks,
			Logger:    opts.Logger,
		})
	}
	if opts.Queue == nil {
		opts.Queue = queue.New(opts.Store, queue.Config{
			Sanctioner: opts.Sanctions,
			Hooks:      opts.Hooks,
			Logger:     opts.Logger,
		})
	}

	if opts.Renderer == nil {
		opts.Renderer = visibility.NewRenderer()
	}

	return &Client{
		store:     opts.Store,
		engine:    opts.Engine,
		hooks:     opts.Hooks,
		sink:      opts.Sink,
		ledger:    opts.Ledger,
		sanctions: opts.Sanctions,
		queue:     opts.Queue,
		renderer:  opts.Renderer,
		logger:    opts.Logger,
	}, nil
}

// WithFilterReloader sets the registry reloaded after filter edits.
func (c *Client) WithFilterReloader(r FilterReloader) *Client {
	c.reloader = r
	return c
}

// EvaluateMessage decides whether text from id may be posted and performs
// the side effects of the verdict: an accepted message is persisted, a
// flagged one is queued for review, an auto-block consults the escalation
// policy and an accepted post by a signed-in user earns reputation.
//
// Side-effect failures are logged and never change the verdict.
func (c *Client) EvaluateMessage(ctx context.Context, text string, id modguard.Identity, meta modguard.ContentMeta) (*EvaluateResult, error) {
	if text == "" {
		return nil, modguard.ErrEmptyText
	}

	result := &EvaluateResult{EvaluationID: uuid.NewString()}

	restricted, shadowed := c.checkAuthor(ctx, id)
	if restricted {
		result.Verdict = engine.RestrictedVerdict()
	} else {
		result.Verdict = c.engine.Decide(ctx, text, id, meta)
		result.Shadowed = shadowed
	}
	v := result.Verdict
	result.Reason = v.PublicReason()

	if v.Allowed && c.sink != nil {
		msg := Message{Text: text, Identity: id, Content: meta, Verdict: v, Shadowed: shadowed}
		if err := c.sink.PersistMessage(ctx, msg); err != nil {
			c.logger.Error("failed to persist message",
				zap.String("identity", id.ID),
				zap.String("content_id", meta.ContentID),
				zap.Error(err))
		}
	}

	if v.Flagged && !v.RateLimited && !v.Restricted {
		item, err := c.queue.Enqueue(ctx, queue.ItemFromVerdict(text, id, meta, v))
		if err != nil {
			c.logger.Error("failed to enqueue flagged message",
				zap.String("identity", id.ID),
				zap.Error(err))
		} else {
			result.QueueItem = &item
		}
	}

	if v.AutoBlocked && !v.RateLimited && !v.Restricted && id.Authenticated {
		out, err := c.sanctions.OnAutoBlock(ctx, id.ID)
		if err != nil {
			c.logger.Error("escalation after auto-block failed", zap.String("identity", id.ID), zap.Error(err))
		}
		result.Sanction = out
	}

	if v.Allowed && !shadowed && id.Authenticated {
		if _, err := c.ledger.Grant(ctx, id.ID, modguard.ActivityMessage); err != nil {
			c.logger.Warn("failed to grant message reputation", zap.String("identity", id.ID), zap.Error(err))
		}
	}

	ev := hooks.NewVerdictEvent(result.EvaluationID, id, meta, v, c.store.Now())
	ev.Shadowed = result.Shadowed
	if err := c.hooks.OnVerdict(ctx, ev); err != nil {
		c.logger.Warn("verdict hook failed", zap.String("event_id", ev.EventID), zap.Error(err))
	}

	return result, nil
}

// checkAuthor reports whether a signed-in author is restricted from posting
// and whether they are shadow-banned. Anonymous identities have no status.
func (c *Client) checkAuthor(ctx context.Context, id modguard.Identity) (restricted, shadowed bool) {
	if !id.Authenticated || id.ID == "" {
		return false, false
	}
	status, err := c.sanctions.Status(ctx, id.ID)
	if err != nil {
		return !modguard.FailClosed.Handle(c.logger, "sanction_check", err), false
	}
	if !status.CanPost(c.store.Now()) {
		return true, false
	}
	return false, status.IsShadowBanned
}

// ApplySanction applies a moderator sanction and returns the resulting
// status. Nothing is committed when it fails.
func (c *Client) ApplySanction(ctx context.Context, in SanctionInput) (modguard.UserModerationStatus, error) {
	out, err := c.sanctions.Apply(ctx, sanction.Command{
		TargetUserID:    in.TargetUserID,
		Action:          in.Action,
		Reason:          in.Reason,
		DurationMinutes: in.DurationMinutes,
		ModeratorID:     in.ModeratorID,
	})
	if err != nil {
		return modguard.UserModerationStatus{}, err
	}
	return out.Status(), nil
}

// SetShadowBan sets or clears the shadow-ban flag on userID.
func (c *Client) SetShadowBan(ctx context.Context, userID string, banned bool) (modguard.UserModerationStatus, error) {
	if userID == "" {
		return modguard.UserModerationStatus{}, modguard.NewValidationError("user_id", "required")
	}
	var status modguard.UserModerationStatus
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		current, err := tx.GetUserStatus(ctx, userID)
		switch {
		case err == nil:
			status = *current
		case modguard.IsNotFound(err):
			status = modguard.NewUserModerationStatus(userID)
		default:
			return err
		}
		status.IsShadowBanned = banned
		status.UpdatedAt = tx.Now().UnixMilli()
		return tx.UpsertUserStatus(ctx, status)
	})
	if err != nil {
		return modguard.UserModerationStatus{}, fmt.Errorf("set shadow ban: %w", err)
	}
	c.logger.Info("shadow ban updated", zap.String("user_id", userID), zap.Bool("shadow_banned", banned))
	return status, nil
}

// QueueDisposition applies a moderator's decision to a queue item and
// reports whether it took effect.
func (c *Client) QueueDisposition(ctx context.Context, d queue.Disposition) (bool, error) {
	return c.queue.Disposition(ctx, d)
}

// Dispose is QueueDisposition returning the committed effect.
func (c *Client) Dispose(ctx context.Context, d queue.Disposition) (*queue.DispositionResult, error) {
	return c.queue.Dispose(ctx, d)
}

// NextQueueItem returns the next pending item to review.
func (c *Client) NextQueueItem(ctx context.Context) (*modguard.QueueItem, error) {
	return c.queue.DequeueNext(ctx)
}

// PendingQueue returns up to limit pending items in review order.
func (c *Client) PendingQueue(ctx context.Context, limit int) ([]modguard.QueueItem, error) {
	return c.queue.ListPending(ctx, limit)
}

// RecordActivity grants the reputation of activity to userID.
func (c *Client) RecordActivity(ctx context.Context, userID string, activity modguard.ActivityType) (reputation.Change, error) {
	return c.ledger.Grant(ctx, userID, activity)
}

// UserStatus returns userID's moderation status.
func (c *Client) UserStatus(ctx context.Context, userID string) (modguard.UserModerationStatus, error) {
	return c.sanctions.Status(ctx, userID)
}

// UserHistory returns userID's most recent moderation actions.
func (c *Client) UserHistory(ctx context.Context, userID string, limit int) ([]modguard.ModerationAction, error) {
	return c.sanctions.History(ctx, userID, limit)
}

// UserReputation returns userID's score and level.
func (c *Client) UserReputation(ctx context.Context, userID string) (reputation.Standing, error) {
	return c.ledger.Get(ctx, userID)
}

// ListFilters returns every filter, active or not.
func (c *Client) ListFilters(ctx context.Context) ([]modguard.ContentFilter, error) {
	return c.store.ListFilters(ctx)
}

// UpsertFilter validates and stores f, then reloads the registry.
func (c *Client) UpsertFilter(ctx context.Context, f modguard.ContentFilter) (modguard.ContentFilter, error) {
	if err := f.Validate(); err != nil {
		return modguard.ContentFilter{}, err
	}
	now := c.store.Now().UnixMilli()
	if existing, err := c.store.GetFilter(ctx, f.ID); err == nil {
		f.CreatedAt = existing.CreatedAt
	} else if !modguard.IsNotFound(err) {
		return modguard.ContentFilter{}, err
	} else {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	if err := c.store.UpsertFilter(ctx, f); err != nil {
		return modguard.ContentFilter{}, err
	}
	c.logger.Info("filter saved", zap.String("filter_id", f.ID), zap.String("type", string(f.Type)))
	c.reloadFilters(ctx)
	return f, nil
}

// DeleteFilter removes a filter, then reloads the registry.
func (c *Client) DeleteFilter(ctx context.Context, id string) error {
	if err := c.store.DeleteFilter(ctx, id); err != nil {
		return err
	}
	c.logger.Info("filter deleted", zap.String("filter_id", id))
	c.reloadFilters(ctx)
	return nil
}

func (c *Client) reloadFilters(ctx context.Context) {
	if c.reloader == nil {
		return
	}
	if err := c.reloader.Refresh(ctx); err != nil {
		c.logger.Warn("filter reload failed, keeping previous set", zap.Error(err))
	}
}

// Ping checks the store.
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
