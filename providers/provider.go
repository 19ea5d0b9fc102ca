// Package providers defines the interface and common types for external
// authoritative content validators: a serverless validation function or a
// cloud text moderation service.
package providers

import (
	"context"
	"strings"
	"time"

	modguard "github.com/heibot/modguard"
)

// Request is a message submitted for external validation.
type Request struct {
	Text       string
	Identity   modguard.Identity
	Content    modguard.ContentMeta
	Reputation int // Caller's current reputation score
	LocalScore int // Uncapped score from the local first pass
}

// Result is an external validator's decision.
type Result struct {
	Action           modguard.ExternalAction
	ViolationScore   int
	ConfidenceScore  int // 0..100
	TriggeredFilters []string
	Provider         string
	RequestID        string
	Raw              map[string]any
}

// Provider validates text against an external authoritative service.
type Provider interface {
	// Name returns the provider name (e.g., "function", "aliyun", "tencent").
	Name() string

	// Validate returns the provider's decision for req.
	Validate(ctx context.Context, req Request) (Result, error)
}

// ProviderConfig is the base configuration for cloud providers.
type ProviderConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	Region          string
	Endpoint        string
	Timeout         time.Duration
}

// ActionFromSuggestion maps a cloud moderation suggestion to an action.
// Unknown suggestions are sent to human review.
func ActionFromSuggestion(suggestion string) modguard.ExternalAction {
	switch strings.ToLower(suggestion) {
	case "pass", "normal", "none":
		return modguard.ExternalAllow
	case "review":
		return modguard.ExternalFlag
	case "block":
		return modguard.ExternalAutoRemove
	default:
		return modguard.ExternalFlag
	}
}

// ParseAction validates an action_required value.
func ParseAction(s string) (modguard.ExternalAction, error) {
	a := modguard.ExternalAction(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case modguard.ExternalAllow, modguard.ExternalFlag, modguard.ExternalWarn, modguard.ExternalAutoRemove:
		return a, nil
	}
	return "", modguard.NewValidationError("action_required", "unknown action "+s)
}

// ClampConfidence limits a confidence value to [0,100].
func ClampConfidence(v int) int {
	return modguard.Confidence(v)
}
