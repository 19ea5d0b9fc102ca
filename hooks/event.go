package hooks

import (
	"time"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/utils"
)

// EventKind names a moderation event. It is also the channel suffix used
// when events are published.
type EventKind string

const (
	KindVerdict           EventKind = "verdict"
	KindQueueEnqueued     EventKind = "queue.enqueued"
	KindQueueDisposed     EventKind = "queue.disposed"
	KindSanctionApplied   EventKind = "sanction.applied"
	KindReputationChanged EventKind = "reputation.changed"
)

// VerdictEvent is emitted when a message has been evaluated.
type VerdictEvent struct {
	EventID      string               `json:"event_id"`
	EvaluationID string               `json:"evaluation_id"`
	Identity     modguard.Identity    `json:"identity"`
	Content      modguard.ContentMeta `json:"content"`
	Verdict      modguard.Verdict     `json:"verdict"`
	Shadowed     bool                 `json:"shadowed,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// NewVerdictEvent builds a VerdictEvent for one evaluation. evaluationID is
// minted once per evaluation, so a second evaluation of the same content is
// a new event while a redelivery of this one keeps its id.
func NewVerdictEvent(evaluationID string, id modguard.Identity, meta modguard.ContentMeta, v modguard.Verdict, at time.Time) VerdictEvent {
	return VerdictEvent{
		EventID:      utils.EventID(string(KindVerdict), evaluationID),
		EvaluationID: evaluationID,
		Identity:     id,
		Content:      meta,
		Verdict:      v,
		Timestamp:    at,
	}
}

// QueueItemEvent is emitted when an item enters the review queue or a
// moderator disposes of it.
type QueueItemEvent struct {
	EventID     string             `json:"event_id"`
	Kind        EventKind          `json:"kind"`
	Item        modguard.QueueItem `json:"item"`
	Outcome     modguard.Outcome   `json:"outcome,omitempty"`
	ModeratorID string             `json:"moderator_id,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewQueueItemEvent builds a QueueItemEvent of kind for item. transitionID
// identifies the enqueue or disposition that produced it, so two
// escalations of one item never share an id.
func NewQueueItemEvent(kind EventKind, transitionID string, item modguard.QueueItem, outcome modguard.Outcome, moderatorID string, at time.Time) QueueItemEvent {
	return QueueItemEvent{
		EventID:     utils.EventID(string(kind), item.ID, transitionID),
		Kind:        kind,
		Item:        item,
		Outcome:     outcome,
		ModeratorID: moderatorID,
		Timestamp:   at,
	}
}

// SanctionEvent is emitted after a sanction has been committed.
type SanctionEvent struct {
	EventID   string                        `json:"event_id"`
	Action    modguard.ModerationAction     `json:"action"`
	Status    modguard.UserModerationStatus `json:"status"`
	Change    StatusChange                  `json:"change"`
	Timestamp time.Time                     `json:"timestamp"`
}

// NewSanctionEvent builds a SanctionEvent for a committed action.
func NewSanctionEvent(action modguard.ModerationAction, status modguard.UserModerationStatus, from modguard.UserStatus, at time.Time) SanctionEvent {
	return SanctionEvent{
		EventID:   utils.EventID(string(KindSanctionApplied), action.ID),
		Action:    action,
		Status:    status,
		Change:    StatusChange{From: from, To: status.Status},
		Timestamp: at,
	}
}

// ReputationEvent is emitted when a user's reputation changes.
type ReputationEvent struct {
	EventID       string                `json:"event_id"`
	UserID        string                `json:"user_id"`
	Activity      modguard.ActivityType `json:"activity,omitempty"`
	Delta         int                   `json:"delta"`
	Score         int                   `json:"score"`
	PreviousLevel modguard.Level        `json:"previous_level"`
	Level         modguard.Level        `json:"level"`
	Timestamp     time.Time             `json:"timestamp"`
}

// NewReputationEvent builds a ReputationEvent from a recorded change.
func NewReputationEvent(rec modguard.ReputationEvent, previous, level modguard.Level) ReputationEvent {
	return ReputationEvent{
		EventID:       utils.EventID(string(KindReputationChanged), rec.ID),
		UserID:        rec.UserID,
		Activity:      rec.Activity,
		Delta:         rec.Delta,
		Score:         rec.Score,
		PreviousLevel: previous,
		Level:         level,
		Timestamp:     time.UnixMilli(rec.CreatedAt),
	}
}

// LevelChanged reports whether the change crossed a level boundary.
func (e ReputationEvent) LevelChanged() bool {
	return e.PreviousLevel != e.Level
}

// StatusChange represents a change in a user's moderation status.
type StatusChange struct {
	From modguard.UserStatus `json:"from"`
	To   modguard.UserStatus `json:"to"`
}

// IsEscalation returns true if the status became stricter.
func (sc StatusChange) IsEscalation() bool {
	return statusSeverity(sc.To) > statusSeverity(sc.From)
}

// IsDeescalation returns true if the status became more lenient.
func (sc StatusChange) IsDeescalation() bool {
	return statusSeverity(sc.To) < statusSeverity(sc.From)
}

func statusSeverity(s modguard.UserStatus) int {
	switch s {
	case modguard.StatusActive:
		return 0
	case modguard.StatusWarned:
		return 1
	case modguard.StatusMuted:
		return 2
	case modguard.StatusSuspended:
		return 3
	case modguard.StatusBanned:
		return 4
	default:
		return 0
	}
}
