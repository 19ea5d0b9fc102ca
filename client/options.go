// Package client provides the moderation facade: evaluating inbound
// messages and applying moderator decisions.
package client

import (
	"context"

	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/queue"
	"github.com/heibot/modguard/reputation"
	"github.com/heibot/modguard/sanction"
	"github.com/heibot/modguard/store"
	"github.com/heibot/modguard/visibility"
)

// Decider produces a verdict for a message. *engine.Engine implements it.
type Decider interface {
	Decide(ctx context.Context, text string, id modguard.Identity, meta modguard.ContentMeta) modguard.Verdict
}

// Message is an accepted message handed to the MessageSink.
type Message struct {
	Text     string
	Identity modguard.Identity
	Content  modguard.ContentMeta
	Verdict  modguard.Verdict
	Shadowed bool
}

// MessageSink persists accepted messages. It is called only for allowed
// messages.
type MessageSink interface {
	PersistMessage(ctx context.Context, msg Message) error
}

// MessageSinkFunc adapts a function to MessageSink.
type MessageSinkFunc func(ctx context.Context, msg Message) error

// PersistMessage calls f.
func (f MessageSinkFunc) PersistMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Options configures the moderation client.
type Options struct {
	// Store is the data storage backend (required).
	Store store.Store

	// Engine decides verdicts (required).
	Engine Decider

	// Hooks receives notifications for every state transition.
	Hooks hooks.Hooks

	// Sink persists accepted messages. Optional.
	Sink MessageSink

	// Policy is consulted after warnings and auto-blocks. Defaults to
	// sanction.NoEscalation.
	Policy sanction.EscalationPolicy

	// Penalties maps sanction actions to reputation deltas.
	Penalties map[modguard.ActionType]int

	// Grants overrides the reputation grant per activity.
	Grants map[modguard.ActivityType]int

	// Ledger, Sanctions and Queue are built from Store when nil.
	Ledger    *reputation.Ledger
	Sanctions *sanction.Machine
	Queue     *queue.Service

	// Renderer renders stored content per viewer. Defaults to
	// visibility.NewRenderer().
	Renderer *visibility.Renderer

	Logger *zap.Logger
}

// DefaultOptions returns default options.
func DefaultOptions() Options {
	return Options{
		Hooks:  hooks.NopHooks{},
		Policy: sanction.NoEscalation{},
		Grants: reputation.DefaultGrants(),
	}
}

// EvaluateResult is the outcome of evaluating one message.
type EvaluateResult struct {
	// EvaluationID identifies this evaluation in emitted events.
	EvaluationID string `json:"evaluation_id"`

	Verdict modguard.Verdict `json:"verdict"`

	// Reason is the message shown to the author when the message is denied.
	Reason string `json:"reason,omitempty"`

	// Shadowed is set when the author is shadow-banned. The message is
	// accepted but only its author and moderators can see it.
	Shadowed bool `json:"shadowed,omitempty"`

	// QueueItem is the review item created for a flagged message.
	QueueItem *modguard.QueueItem `json:"queue_item,omitempty"`

	// Sanction is set when an auto-block escalated the author's status.
	Sanction *sanction.Outcome `json:"-"`
}

// SanctionInput is a direct moderator sanction.
type SanctionInput struct {
	TargetUserID    string              `json:"target_user_id"`
	Action          modguard.ActionType `json:"action"`
	Reason          string              `json:"reason"`
	DurationMinutes *int                `json:"duration_minutes,omitempty"`
	ModeratorID     string              `json:"moderator_id,omitempty"`
}
