// Package engine turns a message into an allow, flag or block verdict. The
// rate limit is checked first and short-circuits scoring. Scoring failures
// fail open. An external validator, when configured, is layered on top of
// the local verdict according to a Precedence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/providers"
	"github.com/heibot/modguard/ratelimit"
	"github.com/heibot/modguard/reputation"
	"github.com/heibot/modguard/scoring"
)

var (
	verdictOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modguard_verdicts_total",
		Help: "Message verdicts, by outcome and source",
	}, []string{"outcome", "source"})
	scoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modguard_scoring_duration_seconds",
		Help:    "Local scoring latency",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	externalFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modguard_external_fallbacks_total",
		Help: "External validations that failed and fell back to the local verdict",
	})
)

// Precedence selects how an external validator's verdict combines with
// the local one.
type Precedence string

const (
	// PrecedenceExternalCanonical uses the external verdict when the call
	// succeeds.
	PrecedenceExternalCanonical Precedence = "external_canonical"
	// PrecedenceLocalOnly never calls the external validator.
	PrecedenceLocalOnly Precedence = "local_only"
	// PrecedenceMostStrict keeps the stricter verdict and both violation
	// lists.
	PrecedenceMostStrict Precedence = "most_strict"
)

// ParsePrecedence validates a configured precedence.
func ParsePrecedence(s string) (Precedence, error) {
	switch p := Precedence(s); p {
	case PrecedenceExternalCanonical, PrecedenceLocalOnly, PrecedenceMostStrict:
		return p, nil
	case "":
		return PrecedenceExternalCanonical, nil
	}
	return "", modguard.NewValidationError("precedence", "unknown precedence "+s)
}

// TrustModifier adjusts the local total score using the author's
// reputation before thresholds are applied.
type TrustModifier func(score, reputation int) int

// RateLimiter counts a message against the identity's quota.
type RateLimiter interface {
	Check(ctx context.Context, id modguard.Identity, messageLength int) ratelimit.Decision
}

// Scorer computes the local score of a message.
type Scorer interface {
	Evaluate(ctx context.Context, text string) (scoring.Result, error)
}

// ReputationReader returns an author's standing.
type ReputationReader interface {
	Get(ctx context.Context, userID string) (reputation.Standing, error)
}

// Config configures the engine.
type Config struct {
	// External is the optional authoritative validator.
	External providers.Provider

	// Precedence applies when External is set. Defaults to
	// PrecedenceExternalCanonical.
	Precedence Precedence

	// ExternalTimeout bounds the external call.
	ExternalTimeout time.Duration

	// TrustModifier is optional; nil leaves the score unchanged.
	TrustModifier TrustModifier

	// Reputation feeds TrustModifier and the external request.
	Reputation ReputationReader

	Logger *zap.Logger
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Precedence:      PrecedenceExternalCanonical,
		ExternalTimeout: 2 * time.Second,
	}
}

// Engine decides verdicts.
type Engine struct {
	limiter RateLimiter
	scorer  Scorer
	cfg     Config
	logger  *zap.Logger
}

// New creates an engine. A nil limiter skips rate limiting.
func New(limiter RateLimiter, scorer Scorer, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Precedence == "" {
		cfg.Precedence = def.Precedence
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = def.ExternalTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{limiter: limiter, scorer: scorer, cfg: cfg, logger: cfg.Logger}
}

// Decide evaluates text from id.
func (e *Engine) Decide(ctx context.Context, text string, id modguard.Identity, meta modguard.ContentMeta) modguard.Verdict {
	if e.limiter != nil {
		d := e.limiter.Check(ctx, id, utf8.RuneCountInString(text))
		if !d.Allowed {
			return record(RateLimitVerdict())
		}
	}

	local, err := e.score(ctx, text)
	if err != nil {
		modguard.FailOpen.Handle(e.logger, "engine", err)
		return record(FailOpenVerdict())
	}

	rep := e.reputation(ctx, id)
	total := local.Total
	if e.cfg.TrustModifier != nil {
		total = e.cfg.TrustModifier(total, rep)
	}
	verdict := Threshold(total, local.Violations)

	if e.cfg.External == nil || e.cfg.Precedence == PrecedenceLocalOnly {
		return record(verdict)
	}

	ext, err := e.validate(ctx, providers.Request{
		Text:       text,
		Identity:   id,
		Content:    meta,
		Reputation: rep,
		LocalScore: local.Total,
	})
	if err != nil {
		externalFallbacks.Inc()
		e.logger.Warn("external validation failed, using local verdict",
			zap.String("provider", e.cfg.External.Name()),
			zap.String("content_id", meta.ContentID),
			zap.Error(err))
		return record(verdict)
	}

	external := FromExternal(ext)
	if e.cfg.Precedence == PrecedenceMostStrict {
		return record(stricter(verdict, external))
	}
	return record(external)
}

func (e *Engine) score(ctx context.Context, text string) (res scoring.Result, err error) {
	if e.scorer == nil {
		return scoring.Result{}, errors.New("no scorer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panic: %v", r)
		}
	}()

	start := time.Now()
	res, err = e.scorer.Evaluate(ctx, text)
	scoringDuration.Observe(time.Since(start).Seconds())
	return res, err
}

func (e *Engine) validate(ctx context.Context, req providers.Request) (res providers.Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("external validator panic: %v", r)
		}
	}()
	return e.cfg.External.Validate(ctx, req)
}

// reputation returns the author's score, or zero when it is not needed or
// cannot be read.
func (e *Engine) reputation(ctx context.Context, id modguard.Identity) int {
	if e.cfg.Reputation == nil || !id.Authenticated || id.ID == "" {
		return 0
	}
	if e.cfg.TrustModifier == nil && e.cfg.External == nil {
		return 0
	}
	s, err := e.cfg.Reputation.Get(ctx, id.ID)
	if err != nil {
		e.logger.Warn("failed to read reputation", zap.String("identity", id.ID), zap.Error(err))
		return 0
	}
	return s.Score
}

func record(v modguard.Verdict) modguard.Verdict {
	outcome := "allowed"
	switch {
	case v.RateLimited:
		outcome = "rate_limited"
	case !v.Allowed:
		outcome = "blocked"
	case v.Flagged:
		outcome = "flagged"
	case v.SoftWarn:
		outcome = "soft_warn"
	}
	verdictOutcomes.WithLabelValues(outcome, string(v.Source)).Inc()
	return v
}
