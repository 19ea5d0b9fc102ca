package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var duplicateEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_events_duplicate_total",
	Help: "Redelivered moderation events dropped before reaching handlers",
}, []string{"kind"})

// Idempotent drops events whose id was already handled successfully. An
// event whose handler fails is not remembered, so a redelivery retries it.
type Idempotent struct {
	next Hooks

	mu       sync.Mutex
	seen     *expirable.LRU[string, struct{}]
	inflight map[string]struct{}
}

var _ Hooks = (*Idempotent)(nil)

// NewIdempotent wraps next. size bounds the number of remembered ids and
// ttl how long each is remembered.
func NewIdempotent(next Hooks, size int, ttl time.Duration) *Idempotent {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Idempotent{
		next:     OrNop(next),
		seen:     expirable.NewLRU[string, struct{}](size, nil, ttl),
		inflight: make(map[string]struct{}),
	}
}

func (h *Idempotent) claim(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inflight[id]; busy || h.seen.Contains(id) {
		return false
	}
	h.inflight[id] = struct{}{}
	return true
}

func (h *Idempotent) release(id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, id)
	if err == nil {
		h.seen.Add(id, struct{}{})
	}
}

func (h *Idempotent) handle(kind EventKind, id string, fn func() error) error {
	if id == "" {
		return fn()
	}
	if !h.claim(id) {
		duplicateEvents.WithLabelValues(string(kind)).Inc()
		return nil
	}
	err := fn()
	h.release(id, err)
	return err
}

// OnVerdict forwards e unless it was already handled.
func (h *Idempotent) OnVerdict(ctx context.Context, e VerdictEvent) error {
	return h.handle(KindVerdict, e.EventID, func() error { return h.next.OnVerdict(ctx, e) })
}

// OnQueueItemEnqueued forwards e unless it was already handled.
func (h *Idempotent) OnQueueItemEnqueued(ctx context.Context, e QueueItemEvent) error {
	return h.handle(KindQueueEnqueued, e.EventID, func() error { return h.next.OnQueueItemEnqueued(ctx, e) })
}

// OnQueueItemDisposed forwards e unless it was already handled.
func (h *Idempotent) OnQueueItemDisposed(ctx context.Context, e QueueItemEvent) error {
	return h.handle(KindQueueDisposed, e.EventID, func() error { return h.next.OnQueueItemDisposed(ctx, e) })
}

// OnSanctionApplied forwards e unless it was already handled.
func (h *Idempotent) OnSanctionApplied(ctx context.Context, e SanctionEvent) error {
	return h.handle(KindSanctionApplied, e.EventID, func() error { return h.next.OnSanctionApplied(ctx, e) })
}

// OnReputationChanged forwards e unless it was already handled.
func (h *Idempotent) OnReputationChanged(ctx context.Context, e ReputationEvent) error {
	return h.handle(KindReputationChanged, e.EventID, func() error { return h.next.OnReputationChanged(ctx, e) })
}
