// Package queue implements the human review queue: flagged content waits
// as a pending item until a moderator approves, rejects or escalates it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/sanction"
	"github.com/heibot/modguard/store"
	"github.com/heibot/modguard/utils"
)

var (
	queueEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modguard_queue_enqueued_total",
		Help: "Items added to the review queue",
	})
	queueDispositions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modguard_queue_dispositions_total",
		Help: "Moderator dispositions, by outcome",
	}, []string{"outcome"})
)

// Priority levels derived from a verdict.
const (
	PriorityNormal   = 1
	PriorityHigh     = 2
	PriorityCritical = 3
)

// Sanctioner applies the sanction a rejection triggers. *sanction.Machine
// implements it.
type Sanctioner interface {
	ApplyTx(ctx context.Context, tx store.Store, cmd sanction.Command) (*sanction.Outcome, error)
	Emit(ctx context.Context, out *sanction.Outcome)
}

// Config configures the queue service.
type Config struct {
	// Sanctioner is called for rejected items with a known author. When
	// nil, rejections only close the item.
	Sanctioner Sanctioner

	Hooks  hooks.Hooks
	Logger *zap.Logger
}

// Service manages the review queue.
type Service struct {
	store      store.Store
	sanctioner Sanctioner
	hooks      hooks.Hooks
	logger     *zap.Logger
}

// New creates a queue service over st.
func New(st store.Store, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		store:      st,
		sanctioner: cfg.Sanctioner,
		hooks:      hooks.OrNop(cfg.Hooks),
		logger:     cfg.Logger,
	}
}

// Priority returns the review priority for a flagged verdict.
func Priority(v modguard.Verdict) int {
	switch {
	case v.AutoBlocked:
		return PriorityCritical
	case v.ConfidenceScore >= 80:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// ItemFromVerdict builds a queue item for content that v flagged.
func ItemFromVerdict(text string, author modguard.Identity, meta modguard.ContentMeta, v modguard.Verdict) modguard.QueueItem {
	contentID := meta.ContentID
	if contentID == "" {
		contentID = utils.HashText(text)
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "message"
	}
	item := modguard.QueueItem{
		ContentID:       contentID,
		ContentType:     contentType,
		ContentText:     text,
		AutoFlagged:     true,
		ConfidenceScore: v.ConfidenceScore,
		PriorityLevel:   Priority(v),
		Reason:          v.Summary(),
	}
	if author.Authenticated {
		item.AuthorID = author.ID
	}
	return item
}

// Enqueue inserts item as pending and returns the stored item.
func (s *Service) Enqueue(ctx context.Context, item modguard.QueueItem) (modguard.QueueItem, error) {
	if item.ContentID == "" {
		return modguard.QueueItem{}, modguard.NewValidationError("content_id", "required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.PriorityLevel <= 0 {
		item.PriorityLevel = PriorityNormal
	}
	now := s.store.Now().UnixMilli()
	item.Status = modguard.QueuePending
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := s.store.CreateQueueItem(ctx, item); err != nil {
		return modguard.QueueItem{}, fmt.Errorf("enqueue: %w", err)
	}
	queueEnqueued.Inc()

	ev := hooks.NewQueueItemEvent(hooks.KindQueueEnqueued, uuid.NewString(), item, "", "", s.store.Now())
	if err := s.hooks.OnQueueItemEnqueued(ctx, ev); err != nil {
		s.logger.Warn("queue hook failed", zap.String("item_id", item.ID), zap.Error(err))
	}
	return item, nil
}

// DequeueNext returns the pending item with the highest priority, the most
// recent first among equals. The item stays pending until disposed.
// It returns modguard.ErrQueueEmpty when nothing is pending.
func (s *Service) DequeueNext(ctx context.Context) (*modguard.QueueItem, error) {
	return s.store.NextPendingQueueItem(ctx)
}

// ListPending returns up to limit pending items in dequeue order.
func (s *Service) ListPending(ctx context.Context, limit int) ([]modguard.QueueItem, error) {
	return s.store.ListPendingQueueItems(ctx, limit)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, id string) (*modguard.QueueItem, error) {
	return s.store.GetQueueItem(ctx, id)
}

// Disposition is a moderator's decision on a queue item.
type Disposition struct {
	ItemID          string           `json:"item_id"`
	Outcome         modguard.Outcome `json:"outcome"`
	Notes           string           `json:"notes,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	ModeratorID     string           `json:"moderator_id,omitempty"`
}

// DispositionResult is the committed effect of a disposition.
type DispositionResult struct {
	Item     modguard.QueueItem
	Sanction *sanction.Outcome
}

// Disposition applies d and reports whether it took effect.
func (s *Service) Disposition(ctx context.Context, d Disposition) (bool, error) {
	if _, err := s.Dispose(ctx, d); err != nil {
		return false, err
	}
	return true, nil
}

// Dispose applies d. approved closes the item; rejected closes it and
// sanctions the author; escalated keeps it pending one priority level
// higher. The item transition and any sanction commit together.
func (s *Service) Dispose(ctx context.Context, d Disposition) (*DispositionResult, error) {
	if !d.Outcome.Valid() {
		return nil, fmt.Errorf("%w: %q", modguard.ErrInvalidOutcome, d.Outcome)
	}

	res := &DispositionResult{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		item, err := tx.GetQueueItem(ctx, d.ItemID)
		if err != nil {
			return err
		}
		if item.Status != modguard.QueuePending {
			return fmt.Errorf("%w: %s is %s", modguard.ErrQueueItemClosed, item.ID, item.Status)
		}

		status := modguard.QueueStatus(d.Outcome)
		priority := item.PriorityLevel
		if d.Outcome == modguard.OutcomeEscalated {
			status = modguard.QueuePending
			priority++
		}
		notes := d.Notes
		if notes == "" {
			notes = item.ModeratorNotes
		}

		now := tx.Now()
		ok, err := tx.TransitionQueueItem(ctx, item.ID, status, priority, notes, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", modguard.ErrQueueItemClosed, item.ID)
		}

		item.Status = status
		item.PriorityLevel = priority
		item.ModeratorNotes = notes
		item.UpdatedAt = now.UnixMilli()
		res.Item = *item

		if d.Outcome != modguard.OutcomeRejected || item.AuthorID == "" {
			return nil
		}
		if s.sanctioner == nil {
			return fmt.Errorf("%w: reject %s", modguard.ErrSanctionerNotConfigured, item.ID)
		}
		author, err := tx.GetUserStatus(ctx, item.AuthorID)
		switch {
		case errors.Is(err, modguard.ErrNotFound):
			fresh := modguard.NewUserModerationStatus(item.AuthorID)
			author = &fresh
		case err != nil:
			return fmt.Errorf("load author status: %w", err)
		}
		cmd := RejectionSanction(*item, d, *author, now)
		if d.DurationMinutes != nil && cmd.Action == modguard.ActionWarn {
			s.logger.Info("author already restricted, rejection warns instead of muting",
				zap.String("item_id", item.ID),
				zap.String("author_status", string(author.EffectiveStatus(now))))
		}
		res.Sanction, err = s.sanctioner.ApplyTx(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}

	queueDispositions.WithLabelValues(string(d.Outcome)).Inc()
	s.logger.Info("queue item disposed",
		zap.String("item_id", res.Item.ID),
		zap.String("outcome", string(d.Outcome)),
		zap.String("moderator_id", d.ModeratorID))

	ev := hooks.NewQueueItemEvent(hooks.KindQueueDisposed, uuid.NewString(), res.Item, d.Outcome, d.ModeratorID, s.store.Now())
	if err := s.hooks.OnQueueItemDisposed(ctx, ev); err != nil {
		s.logger.Warn("queue hook failed", zap.String("item_id", res.Item.ID), zap.Error(err))
	}
	if res.Sanction != nil {
		s.sanctioner.Emit(ctx, res.Sanction)
	}
	return res, nil
}

// RejectionSanction is the sanction a rejection applies to the item's
// author, whose status at now is author: a mute when the moderator gave a
// duration, otherwise a warning. An author already banned or suspended at
// now is only warned.
func RejectionSanction(item modguard.QueueItem, d Disposition, author modguard.UserModerationStatus, now time.Time) sanction.Command {
	cmd := sanction.Command{
		TargetUserID: item.AuthorID,
		Action:       modguard.ActionWarn,
		Reason:       item.Reason,
		ModeratorID:  d.ModeratorID,
	}
	restricted := author.IsBanned(now) || author.IsSuspended(now)
	if d.DurationMinutes != nil && !restricted {
		cmd.Action = modguard.ActionMute
		cmd.DurationMinutes = d.DurationMinutes
	}
	if cmd.Reason == "" {
		cmd.Reason = "Content rejected by moderator"
	}
	return cmd
}
