package engine

import (
	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/providers"
)

// RestrictedViolation is the violation label of a post by a muted, banned
// or suspended author.
const RestrictedViolation = "Posting restricted"

// RateLimitVerdict is the fixed verdict of a rate-limited message.
func RateLimitVerdict() modguard.Verdict {
	return modguard.Verdict{
		Allowed:         false,
		Flagged:         true,
		AutoBlocked:     true,
		Violations:      []modguard.Violation{{Label: modguard.RateLimitViolation, Detector: "ratelimit"}},
		ConfidenceScore: modguard.MaxConfidence,
		RateLimited:     true,
		Source:          modguard.SourceRateLimit,
	}
}

// FailOpenVerdict is returned when scoring could not run.
func FailOpenVerdict() modguard.Verdict {
	return modguard.Verdict{
		Allowed:    true,
		Violations: []modguard.Violation{},
		Source:     modguard.SourceFailOpen,
	}
}

// RestrictedVerdict denies a post by an author under an active sanction.
func RestrictedVerdict() modguard.Verdict {
	return modguard.Verdict{
		Allowed:         false,
		Violations:      []modguard.Violation{{Label: RestrictedViolation, Detector: "sanction"}},
		ConfidenceScore: modguard.MaxConfidence,
		Restricted:      true,
		Source:          modguard.SourceSanction,
	}
}

// Threshold maps an uncapped total score to a verdict.
//
//	total >= 100       blocked, flagged
//	60 <= total < 100  allowed, flagged
//	30 <= total < 60   allowed, soft warning
//	total < 30         allowed
func Threshold(total int, violations []modguard.Violation) modguard.Verdict {
	if violations == nil {
		violations = []modguard.Violation{}
	}
	v := modguard.Verdict{
		Allowed:         true,
		Violations:      violations,
		ConfidenceScore: modguard.Confidence(total),
		TotalScore:      total,
		Source:          modguard.SourceLocal,
	}
	switch {
	case total >= modguard.BlockThreshold:
		v.Allowed = false
		v.Flagged = true
		v.AutoBlocked = true
	case total >= modguard.FlagThreshold:
		v.Flagged = true
	case total >= modguard.SoftWarnThreshold:
		v.SoftWarn = true
	}
	return v
}

// FromExternal maps an external validator's result to a verdict.
func FromExternal(res providers.Result) modguard.Verdict {
	violations := make([]modguard.Violation, 0, len(res.TriggeredFilters))
	for _, f := range res.TriggeredFilters {
		violations = append(violations, modguard.Violation{Label: f, Detector: res.Provider})
	}
	v := modguard.Verdict{
		Allowed:         true,
		Violations:      violations,
		ConfidenceScore: providers.ClampConfidence(res.ConfidenceScore),
		TotalScore:      res.ViolationScore,
		Source:          modguard.SourceExternal,
	}
	switch res.Action {
	case modguard.ExternalAutoRemove:
		v.Allowed = false
		v.Flagged = true
		v.AutoBlocked = true
	case modguard.ExternalFlag:
		v.Flagged = true
	case modguard.ExternalWarn:
		v.SoftWarn = true
	}
	return v
}

// severity ranks verdicts from most lenient to strictest.
func severity(v modguard.Verdict) int {
	switch {
	case !v.Allowed:
		return 3
	case v.Flagged:
		return 2
	case v.SoftWarn:
		return 1
	default:
		return 0
	}
}

// stricter returns the stricter of a and b with both violation lists
// merged. Ties keep a.
func stricter(a, b modguard.Verdict) modguard.Verdict {
	out := a
	if severity(b) > severity(a) {
		out = b
	}
	merged := make([]modguard.Violation, 0, len(a.Violations)+len(b.Violations))
	merged = append(merged, a.Violations...)
	merged = append(merged, b.Violations...)
	out.Violations = merged
	if a.ConfidenceScore > out.ConfidenceScore && severity(a) == severity(out) {
		out.ConfidenceScore = a.ConfidenceScore
	}
	if b.ConfidenceScore > out.ConfidenceScore && severity(b) == severity(out) {
		out.ConfidenceScore = b.ConfidenceScore
	}
	return out
}
