// Package reputation implements the reputation ledger: fixed grants for
// community activity and the level derived from the cumulative score.
package reputation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/store"
)

var reputationChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_reputation_changes_total",
	Help: "Reputation adjustments, by activity",
}, []string{"activity"})

// DefaultGrants returns the fixed grant per activity.
func DefaultGrants() map[modguard.ActivityType]int {
	return map[modguard.ActivityType]int{
		modguard.ActivityMessage:     2,
		modguard.ActivityReaction:    1,
		modguard.ActivityHelpful:     5,
		modguard.ActivityAchievement: 10,
	}
}

// Config configures the ledger.
type Config struct {
	Grants map[modguard.ActivityType]int
	Hooks  hooks.Hooks
	Logger *zap.Logger
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	return Config{Grants: DefaultGrants()}
}

// Standing is a user's current score and level.
type Standing struct {
	UserID string         `json:"user_id"`
	Score  int            `json:"score"`
	Level  modguard.Level `json:"level"`
}

// Change is a committed reputation adjustment.
type Change struct {
	Event    modguard.ReputationEvent
	Previous modguard.Level
	Level    modguard.Level
}

// Ledger grants and reads reputation.
type Ledger struct {
	store  store.Store
	grants map[modguard.ActivityType]int
	hooks  hooks.Hooks
	logger *zap.Logger
}

// NewLedger creates a ledger over st.
func NewLedger(st store.Store, cfg Config) *Ledger {
	if cfg.Grants == nil {
		cfg.Grants = DefaultGrants()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Ledger{
		store:  st,
		grants: cfg.Grants,
		hooks:  hooks.OrNop(cfg.Hooks),
		logger: cfg.Logger,
	}
}

// GrantFor returns the points an activity earns.
func (l *Ledger) GrantFor(activity modguard.ActivityType) (int, bool) {
	delta, ok := l.grants[activity]
	return delta, ok
}

// Grant credits userID with the fixed grant for activity.
func (l *Ledger) Grant(ctx context.Context, userID string, activity modguard.ActivityType) (Change, error) {
	delta, ok := l.GrantFor(activity)
	if !ok {
		return Change{}, modguard.NewValidationError("activity", "unknown activity "+string(activity))
	}
	return l.Adjust(ctx, userID, activity, delta)
}

// Adjust adds delta to userID's score and records the change.
func (l *Ledger) Adjust(ctx context.Context, userID string, activity modguard.ActivityType, delta int) (Change, error) {
	var change Change
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		change, err = l.Record(ctx, tx, userID, activity, delta)
		return err
	})
	if err != nil {
		return Change{}, err
	}
	l.Emit(ctx, change)
	return change, nil
}

// Record applies delta inside tx without emitting an event. Callers that
// commit tx call Emit afterwards.
func (l *Ledger) Record(ctx context.Context, tx store.Store, userID string, activity modguard.ActivityType, delta int) (Change, error) {
	if userID == "" {
		return Change{}, modguard.NewValidationError("user_id", "required")
	}

	now := tx.Now()
	score, err := tx.AddReputation(ctx, userID, delta, now)
	if err != nil {
		return Change{}, fmt.Errorf("add reputation: %w", err)
	}

	ev := modguard.ReputationEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Activity:  activity,
		Delta:     delta,
		Score:     score,
		CreatedAt: now.UnixMilli(),
	}
	if err := tx.CreateReputationEvent(ctx, ev); err != nil {
		return Change{}, fmt.Errorf("record reputation event: %w", err)
	}

	return Change{
		Event:    ev,
		Previous: modguard.LevelFor(score - delta),
		Level:    modguard.LevelFor(score),
	}, nil
}

// Emit reports a committed change to the hooks. Hook failures are logged.
func (l *Ledger) Emit(ctx context.Context, c Change) {
	if c.Event.ID == "" {
		return
	}
	label := string(c.Event.Activity)
	if label == "" {
		label = "adjustment"
	}
	reputationChanges.WithLabelValues(label).Inc()

	if err := l.hooks.OnReputationChanged(ctx, hooks.NewReputationEvent(c.Event, c.Previous, c.Level)); err != nil {
		l.logger.Warn("reputation hook failed",
			zap.String("user_id", c.Event.UserID),
			zap.Error(err))
	}
}

// Get returns userID's standing. Users without a record are Newcomers
// with a score of zero.
func (l *Ledger) Get(ctx context.Context, userID string) (Standing, error) {
	st, err := l.store.GetUserStatus(ctx, userID)
	if errors.Is(err, modguard.ErrNotFound) {
		return Standing{UserID: userID, Level: modguard.LevelNewcomer}, nil
	}
	if err != nil {
		return Standing{}, err
	}
	return Standing{
		UserID: userID,
		Score:  st.ReputationScore,
		Level:  modguard.LevelFor(st.ReputationScore),
	}, nil
}
