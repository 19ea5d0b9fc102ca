// Package store provides the data storage interface for the moderation engine.
package store

import (
	"context"
	"time"

	modguard "github.com/heibot/modguard"
)

// FilterStore holds moderator-managed content filters.
type FilterStore interface {
	ListFilters(ctx context.Context) ([]modguard.ContentFilter, error)
	GetFilter(ctx context.Context, id string) (*modguard.ContentFilter, error)
	UpsertFilter(ctx context.Context, f modguard.ContentFilter) error
	DeleteFilter(ctx context.Context, id string) error
}

// CounterStore holds rate-limit windows.
type CounterStore interface {
	// IncrementWindow atomically counts one hit for (identifier, actionType)
	// and returns the post-increment count. The window restarts at now with
	// a count of 1 when now - windowStart exceeds window.
	IncrementWindow(ctx context.Context, identifier, actionType string, window time.Duration, now time.Time) (int, error)
}

// QueueStore holds review queue items.
type QueueStore interface {
	CreateQueueItem(ctx context.Context, item modguard.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (*modguard.QueueItem, error)

	// TransitionQueueItem moves a pending item to status, setting its
	// priority and notes. It reports false when the item was not pending.
	TransitionQueueItem(ctx context.Context, id string, status modguard.QueueStatus, priority int, notes string, now time.Time) (bool, error)

	// NextPendingQueueItem returns the pending item with the highest
	// priority, most recent first among equal priorities.
	NextPendingQueueItem(ctx context.Context) (*modguard.QueueItem, error)
	ListPendingQueueItems(ctx context.Context, limit int) ([]modguard.QueueItem, error)
}

// SanctionStore holds user moderation status and its audit history.
type SanctionStore interface {
	// GetUserStatus returns modguard.ErrNotFound when the user has no record.
	// Inside a transaction the row is locked until commit.
	GetUserStatus(ctx context.Context, userID string) (*modguard.UserModerationStatus, error)

	// UpsertUserStatus writes the sanction fields of s. An existing
	// reputation score is left untouched.
	UpsertUserStatus(ctx context.Context, s modguard.UserModerationStatus) error

	CreateAction(ctx context.Context, a modguard.ModerationAction) error
	ListActions(ctx context.Context, userID string, limit int) ([]modguard.ModerationAction, error)
}

// ReputationStore holds reputation scores and their change log.
type ReputationStore interface {
	// AddReputation atomically adds delta to the user's score, creating an
	// active status record when none exists, and returns the new score.
	AddReputation(ctx context.Context, userID string, delta int, now time.Time) (int, error)
	CreateReputationEvent(ctx context.Context, e modguard.ReputationEvent) error
}

// Store defines the complete moderation data store.
type Store interface {
	FilterStore
	CounterStore
	QueueStore
	SanctionStore
	ReputationStore

	// Utility
	Now() time.Time

	// WithTx runs fn inside a transaction. Calling WithTx on a store that
	// is already transactional joins the outer transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// Clock returns the current time. Stores use it for Now.
type Clock func() time.Time

// SystemClock is the default clock.
func SystemClock() time.Time {
	return time.Now()
}
