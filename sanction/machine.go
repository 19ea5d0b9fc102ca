// Package sanction implements the user sanction state machine: warnings,
// timed or permanent mutes, bans and suspensions, and their reversal.
// Every transition is recorded as an audit action in the same transaction
// as the status change.
package sanction

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
	"github.com/heibot/modguard/reputation"
	"github.com/heibot/modguard/store"
)

var sanctionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_sanctions_applied_total",
	Help: "Committed sanction actions, by action type",
}, []string{"action"})

// maxEscalations bounds policy-driven follow-ups for one command.
const maxEscalations = 3

// Command is a request to apply a sanction.
type Command struct {
	TargetUserID    string              `json:"target_user_id"`
	Action          modguard.ActionType `json:"action_type"`
	Reason          string              `json:"reason"`
	DurationMinutes *int                `json:"duration_minutes,omitempty"`
	ModeratorID     string              `json:"moderator_id,omitempty"`
}

// Validate checks the command independent of the user's current state.
func (c Command) Validate() error {
	if c.TargetUserID == "" {
		return modguard.NewValidationError("target_user_id", "required")
	}
	if !c.Action.Valid() {
		return fmt.Errorf("%w: %q", modguard.ErrInvalidAction, c.Action)
	}
	if c.DurationMinutes != nil {
		if !c.Action.Timed() {
			return modguard.NewValidationError("duration_minutes", "only mute, ban and suspend take a duration")
		}
		if *c.DurationMinutes <= 0 {
			return modguard.NewValidationError("duration_minutes", "must be positive")
		}
	}
	return nil
}

// Result is one committed transition.
type Result struct {
	Status   modguard.UserModerationStatus
	Action   modguard.ModerationAction
	Previous modguard.UserStatus
}

// Outcome is everything a command committed: the requested transition,
// any policy escalations after it and the reputation penalties.
type Outcome struct {
	Applied    []Result
	Reputation []reputation.Change
}

// Status returns the user's status after the last committed transition.
func (o *Outcome) Status() modguard.UserModerationStatus {
	if o == nil || len(o.Applied) == 0 {
		return modguard.UserModerationStatus{}
	}
	return o.Applied[len(o.Applied)-1].Status
}

// Config configures the state machine.
type Config struct {
	// Policy is consulted after every warning and auto-block. Defaults to
	// NoEscalation.
	Policy EscalationPolicy

	// Penalties are reputation deltas applied with each action. Missing
	// actions apply no penalty.
	Penalties map[modguard.ActionType]int

	// Ledger records penalties. Required when Penalties is non-empty.
	Ledger *reputation.Ledger

	Hooks  hooks.Hooks
	Logger *zap.Logger
}

// Machine applies sanctions.
type Machine struct {
	store     store.Store
	policy    EscalationPolicy
	penalties map[modguard.ActionType]int
	ledger    *reputation.Ledger
	hooks     hooks.Hooks
	logger    *zap.Logger
}

// New creates a sanction state machine over st.
func New(st store.Store, cfg Config) *Machine {
	if cfg.Policy == nil {
		cfg.Policy = NoEscalation{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Machine{
		store:     st,
		policy:    cfg.Policy,
		penalties: cfg.Penalties,
		ledger:    cfg.Ledger,
		hooks:     hooks.OrNop(cfg.Hooks),
		logger:    cfg.Logger,
	}
}

// Apply validates and commits cmd. Either the status change and its audit
// record are both committed or neither is.
func (m *Machine) Apply(ctx context.Context, cmd Command) (*Outcome, error) {
	var out *Outcome
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		out, err = m.ApplyTx(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.Emit(ctx, out)
	return out, nil
}

// ApplyTx commits cmd inside tx without emitting events. The caller emits
// with Emit once tx has committed.
func (m *Machine) ApplyTx(ctx context.Context, tx store.Store, cmd Command) (*Outcome, error) {
	out := &Outcome{}
	if err := m.apply(ctx, tx, cmd, out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// OnAutoBlock consults the escalation policy after userID had a message
// auto-blocked. It returns nil when the policy does nothing.
func (m *Machine) OnAutoBlock(ctx context.Context, userID string) (*Outcome, error) {
	if userID == "" {
		return nil, nil
	}
	var out *Outcome
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		current, err := loadStatus(ctx, tx, userID)
		if err != nil {
			return err
		}
		next := m.policy.Escalate(current, TriggerAutoBlock, tx.Now())
		if next == nil {
			return nil
		}
		out = &Outcome{}
		return m.apply(ctx, tx, *next, out, 1)
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		m.Emit(ctx, out)
	}
	return out, nil
}

func (m *Machine) apply(ctx context.Context, tx store.Store, cmd Command, out *Outcome, depth int) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	current, err := loadStatus(ctx, tx, cmd.TargetUserID)
	if err != nil {
		return err
	}

	now := tx.Now()
	next, err := Transition(current, cmd, now)
	if err != nil {
		return err
	}

	if err := tx.UpsertUserStatus(ctx, next); err != nil {
		return fmt.Errorf("update user status: %w", err)
	}

	action := modguard.ModerationAction{
		ID:              uuid.NewString(),
		TargetUserID:    cmd.TargetUserID,
		ModeratorID:     cmd.ModeratorID,
		ActionType:      cmd.Action,
		Reason:          cmd.Reason,
		DurationMinutes: cmd.DurationMinutes,
		CreatedAt:       now.UnixMilli(),
	}
	if err := tx.CreateAction(ctx, action); err != nil {
		return fmt.Errorf("record moderation action: %w", err)
	}

	if delta := m.penalties[cmd.Action]; delta != 0 {
		if m.ledger == nil {
			return fmt.Errorf("%w: reputation penalty without ledger", modguard.ErrInvalidConfig)
		}
		change, err := m.ledger.Record(ctx, tx, cmd.TargetUserID, "", delta)
		if err != nil {
			return err
		}
		out.Reputation = append(out.Reputation, change)
		next.ReputationScore = change.Event.Score
	}

	out.Applied = append(out.Applied, Result{Status: next, Action: action, Previous: current.Status})

	if cmd.Action != modguard.ActionWarn || depth >= maxEscalations {
		return nil
	}
	follow := m.policy.Escalate(next, TriggerWarn, now)
	if follow == nil {
		return nil
	}
	return m.apply(ctx, tx, *follow, out, depth+1)
}

// Emit reports a committed outcome to the hooks. Hook failures are logged.
func (m *Machine) Emit(ctx context.Context, out *Outcome) {
	if out == nil {
		return
	}
	for _, r := range out.Applied {
		sanctionsApplied.WithLabelValues(string(r.Action.ActionType)).Inc()
		m.logger.Info("sanction applied",
			zap.String("user_id", r.Action.TargetUserID),
			zap.String("action", string(r.Action.ActionType)),
			zap.String("moderator_id", r.Action.ModeratorID),
			zap.String("status", string(r.Status.Status)))

		ev := hooks.NewSanctionEvent(r.Action, r.Status, r.Previous, time.UnixMilli(r.Action.CreatedAt))
		if err := m.hooks.OnSanctionApplied(ctx, ev); err != nil {
			m.logger.Warn("sanction hook failed",
				zap.String("user_id", r.Action.TargetUserID),
				zap.Error(err))
		}
	}
	if m.ledger != nil {
		for _, c := range out.Reputation {
			m.ledger.Emit(ctx, c)
		}
	}
}

// Status returns userID's moderation status, or a fresh active status when
// the user has none.
func (m *Machine) Status(ctx context.Context, userID string) (modguard.UserModerationStatus, error) {
	return loadStatus(ctx, m.store, userID)
}

// History returns userID's most recent actions, newest first.
func (m *Machine) History(ctx context.Context, userID string, limit int) ([]modguard.ModerationAction, error) {
	return m.store.ListActions(ctx, userID, limit)
}

func loadStatus(ctx context.Context, s store.SanctionStore, userID string) (modguard.UserModerationStatus, error) {
	st, err := s.GetUserStatus(ctx, userID)
	if errors.Is(err, modguard.ErrNotFound) {
		return modguard.NewUserModerationStatus(userID), nil
	}
	if err != nil {
		return modguard.UserModerationStatus{}, fmt.Errorf("load user status: %w", err)
	}
	return *st, nil
}
