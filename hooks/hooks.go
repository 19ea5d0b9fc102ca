// Package hooks provides the hook interface for handling moderation events.
package hooks

import (
	"context"
)

// Hooks defines the interface for handling moderation events.
// Events may be redelivered; wrap handlers that are not naturally
// idempotent with Idempotent.
type Hooks interface {
	// OnVerdict is called when a message has been evaluated.
	OnVerdict(ctx context.Context, e VerdictEvent) error

	// OnQueueItemEnqueued is called when flagged content enters the queue.
	OnQueueItemEnqueued(ctx context.Context, e QueueItemEvent) error

	// OnQueueItemDisposed is called when a moderator disposes of an item.
	OnQueueItemDisposed(ctx context.Context, e QueueItemEvent) error

	// OnSanctionApplied is called after a sanction has been committed.
	OnSanctionApplied(ctx context.Context, e SanctionEvent) error

	// OnReputationChanged is called when a user's reputation changes.
	OnReputationChanged(ctx context.Context, e ReputationEvent) error
}

// NopHooks is a no-op implementation of Hooks.
type NopHooks struct{}

// OnVerdict does nothing.
func (NopHooks) OnVerdict(ctx context.Context, e VerdictEvent) error {
	return nil
}

// OnQueueItemEnqueued does nothing.
func (NopHooks) OnQueueItemEnqueued(ctx context.Context, e QueueItemEvent) error {
	return nil
}

// OnQueueItemDisposed does nothing.
func (NopHooks) OnQueueItemDisposed(ctx context.Context, e QueueItemEvent) error {
	return nil
}

// OnSanctionApplied does nothing.
func (NopHooks) OnSanctionApplied(ctx context.Context, e SanctionEvent) error {
	return nil
}

// OnReputationChanged does nothing.
func (NopHooks) OnReputationChanged(ctx context.Context, e ReputationEvent) error {
	return nil
}

// Ensure NopHooks implements Hooks.
var _ Hooks = NopHooks{}

// ChainHooks chains multiple Hooks implementations. The first error stops
// the chain.
type ChainHooks []Hooks

// OnVerdict calls all hooks in order.
func (ch ChainHooks) OnVerdict(ctx context.Context, e VerdictEvent) error {
	for _, h := range ch {
		if err := h.OnVerdict(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// OnQueueItemEnqueued calls all hooks in order.
func (ch ChainHooks) OnQueueItemEnqueued(ctx context.Context, e QueueItemEvent) error {
	for _, h := range ch {
		if err := h.OnQueueItemEnqueued(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// OnQueueItemDisposed calls all hooks in order.
func (ch ChainHooks) OnQueueItemDisposed(ctx context.Context, e QueueItemEvent) error {
	for _, h := range ch {
		if err := h.OnQueueItemDisposed(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// OnSanctionApplied calls all hooks in order.
func (ch ChainHooks) OnSanctionApplied(ctx context.Context, e SanctionEvent) error {
	for _, h := range ch {
		if err := h.OnSanctionApplied(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// OnReputationChanged calls all hooks in order.
func (ch ChainHooks) OnReputationChanged(ctx context.Context, e ReputationEvent) error {
	for _, h := range ch {
		if err := h.OnReputationChanged(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// FuncHooks allows using functions as hooks.
type FuncHooks struct {
	OnVerdictFunc           func(ctx context.Context, e VerdictEvent) error
	OnQueueItemEnqueuedFunc func(ctx context.Context, e QueueItemEvent) error
	OnQueueItemDisposedFunc func(ctx context.Context, e QueueItemEvent) error
	OnSanctionAppliedFunc   func(ctx context.Context, e SanctionEvent) error
	OnReputationChangedFunc func(ctx context.Context, e ReputationEvent) error
}

// OnVerdict calls the function if set.
func (fh FuncHooks) OnVerdict(ctx context.Context, e VerdictEvent) error {
	if fh.OnVerdictFunc != nil {
		return fh.OnVerdictFunc(ctx, e)
	}
	return nil
}

// OnQueueItemEnqueued calls the function if set.
func (fh FuncHooks) OnQueueItemEnqueued(ctx context.Context, e QueueItemEvent) error {
	if fh.OnQueueItemEnqueuedFunc != nil {
		return fh.OnQueueItemEnqueuedFunc(ctx, e)
	}
	return nil
}

// OnQueueItemDisposed calls the function if set.
func (fh FuncHooks) OnQueueItemDisposed(ctx context.Context, e QueueItemEvent) error {
	if fh.OnQueueItemDisposedFunc != nil {
		return fh.OnQueueItemDisposedFunc(ctx, e)
	}
	return nil
}

// OnSanctionApplied calls the function if set.
func (fh FuncHooks) OnSanctionApplied(ctx context.Context, e SanctionEvent) error {
	if fh.OnSanctionAppliedFunc != nil {
		return fh.OnSanctionAppliedFunc(ctx, e)
	}
	return nil
}

// OnReputationChanged calls the function if set.
func (fh FuncHooks) OnReputationChanged(ctx context.Context, e ReputationEvent) error {
	if fh.OnReputationChangedFunc != nil {
		return fh.OnReputationChangedFunc(ctx, e)
	}
	return nil
}

// OrNop returns h, or NopHooks when h is nil.
func OrNop(h Hooks) Hooks {
	if h == nil {
		return NopHooks{}
	}
	return h
}
