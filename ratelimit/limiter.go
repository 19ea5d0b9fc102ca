// Package ratelimit enforces per-identity message quotas over fixed
// counting windows held in a shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/store"
)

var rateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_ratelimit_decisions_total",
	Help: "Rate limit decisions, by result and identity kind",
}, []string{"result", "kind"})

// QuotaAdjuster tightens the quota for an identity. It receives the base
// quota and returns the quota to apply.
type QuotaAdjuster func(id modguard.Identity, quota int) int

// Config configures a Limiter.
type Config struct {
	// Window is the counting window size.
	Window time.Duration

	// AuthenticatedQuota is the per-window quota for signed-in users.
	AuthenticatedQuota int

	// AnonymousQuota is the per-window quota for anonymous identities.
	AnonymousQuota int

	// LongMessageThreshold is the length above which the quota is halved.
	LongMessageThreshold int

	// ActionType names the counted action.
	ActionType string

	// StrictMode runs for anonymous identities after the base quota is
	// chosen. Nil leaves the quota unchanged.
	StrictMode QuotaAdjuster

	// Timeout bounds each counter store call.
	Timeout time.Duration

	Logger *zap.Logger
	Clock  store.Clock
}

// DefaultConfig returns the standard quotas.
func DefaultConfig() Config {
	return Config{
		Window:               60 * time.Second,
		AuthenticatedQuota:   20,
		AnonymousQuota:       10,
		LongMessageThreshold: 200,
		ActionType:           "message",
		Timeout:              2 * time.Second,
	}
}

// Decision is the result of a rate-limit check.
type Decision struct {
	Allowed bool
	Count   int   // Post-increment count in the current window
	Quota   int   // Quota applied to this call
	Err     error // Store failure that caused a fail-closed denial
}

// Limiter checks and counts messages per identity. Store failures deny the
// call under the FailClosed policy.
type Limiter struct {
	counter store.CounterStore
	cfg     Config
}

// New creates a limiter over counter.
func New(counter store.CounterStore, cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.AuthenticatedQuota <= 0 {
		cfg.AuthenticatedQuota = def.AuthenticatedQuota
	}
	if cfg.AnonymousQuota <= 0 {
		cfg.AnonymousQuota = def.AnonymousQuota
	}
	if cfg.LongMessageThreshold <= 0 {
		cfg.LongMessageThreshold = def.LongMessageThreshold
	}
	if cfg.ActionType == "" {
		cfg.ActionType = def.ActionType
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = store.SystemClock
	}
	return &Limiter{counter: counter, cfg: cfg}
}

// Quota returns the per-window quota for an identity and message length.
func (l *Limiter) Quota(id modguard.Identity, messageLength int) int {
	quota := l.cfg.AnonymousQuota
	if id.Authenticated {
		quota = l.cfg.AuthenticatedQuota
	} else if l.cfg.StrictMode != nil {
		quota = l.cfg.StrictMode(id, quota)
	}
	if messageLength > l.cfg.LongMessageThreshold {
		quota /= 2
	}
	return quota
}

// Allow counts one message and reports whether it is within quota.
func (l *Limiter) Allow(ctx context.Context, id modguard.Identity, messageLength int) bool {
	return l.Check(ctx, id, messageLength).Allowed
}

// Check counts one message and returns the full decision.
func (l *Limiter) Check(ctx context.Context, id modguard.Identity, messageLength int) Decision {
	kind := "anonymous"
	if id.Authenticated {
		kind = "authenticated"
	}
	quota := l.Quota(id, messageLength)

	if id.ID == "" {
		err := modguard.NewValidationError("identity", "must not be empty")
		modguard.FailClosed.Handle(l.cfg.Logger, "ratelimit", err)
		rateLimitDecisions.WithLabelValues("error", kind).Inc()
		return Decision{Quota: quota, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	count, err := l.counter.IncrementWindow(ctx, identifier(id), l.cfg.ActionType, l.cfg.Window, l.cfg.Clock())
	if err != nil {
		err = fmt.Errorf("%w: %w", modguard.ErrRateLimitStore, modguard.WrapNetworkError(err))
		allowed := modguard.FailClosed.Handle(l.cfg.Logger, "ratelimit", err)
		rateLimitDecisions.WithLabelValues("error", kind).Inc()
		return Decision{Allowed: allowed, Quota: quota, Err: err}
	}

	d := Decision{Allowed: count <= quota, Count: count, Quota: quota}
	if d.Allowed {
		rateLimitDecisions.WithLabelValues("allowed", kind).Inc()
	} else {
		rateLimitDecisions.WithLabelValues("denied", kind).Inc()
		l.cfg.Logger.Info("rate limit exceeded",
			zap.String("identity", id.ID),
			zap.Bool("authenticated", id.Authenticated),
			zap.Int("count", count),
			zap.Int("quota", quota))
	}
	return d
}

// identifier namespaces anonymous tokens apart from user ids.
func identifier(id modguard.Identity) string {
	if id.Authenticated {
		return "user:" + id.ID
	}
	return "anon:" + id.ID
}
