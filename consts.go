// Package modguard provides a content-moderation and trust-policy engine for
// community chat: layered signal scoring, per-identity rate limiting,
// allow/flag/block decisions, a human review queue, a user sanction state
// machine and a reputation ledger.
package modguard

// FilterType represents the detector a content filter belongs to.
type FilterType string

const (
	FilterProfanity FilterType = "profanity"
	FilterSpam      FilterType = "spam"
	FilterKeyword   FilterType = "keyword"
)

// Valid reports whether t is a known filter type.
func (t FilterType) Valid() bool {
	switch t {
	case FilterProfanity, FilterSpam, FilterKeyword:
		return true
	}
	return false
}

// QueueStatus represents the lifecycle state of a review queue item.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"   // Awaiting a moderator
	QueueApproved  QueueStatus = "approved"  // Terminal, content kept
	QueueRejected  QueueStatus = "rejected"  // Terminal, author sanctioned
	QueueEscalated QueueStatus = "escalated" // Transitional, re-enters pending
)

// IsTerminal reports whether no further disposition is accepted.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueApproved || s == QueueRejected
}

// Outcome is a moderator's disposition of a queue item.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeEscalated Outcome = "escalated"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeApproved, OutcomeRejected, OutcomeEscalated:
		return true
	}
	return false
}

// UserStatus represents a user's current restriction.
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusWarned    UserStatus = "warned"
	StatusMuted     UserStatus = "muted"
	StatusBanned    UserStatus = "banned"
	StatusSuspended UserStatus = "suspended"
)

// ActionType represents a sanction applied to a user.
type ActionType string

const (
	ActionWarn      ActionType = "warn"
	ActionMute      ActionType = "mute"
	ActionUnmute    ActionType = "unmute"
	ActionBan       ActionType = "ban"
	ActionUnban     ActionType = "unban"
	ActionSuspend   ActionType = "suspend"
	ActionUnsuspend ActionType = "unsuspend"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionWarn, ActionMute, ActionUnmute, ActionBan, ActionUnban, ActionSuspend, ActionUnsuspend:
		return true
	}
	return false
}

// Timed reports whether the action accepts a duration.
func (a ActionType) Timed() bool {
	return a == ActionMute || a == ActionBan || a == ActionSuspend
}

// ExternalAction is the action_required value returned by an authoritative
// external validator.
type ExternalAction string

const (
	ExternalAllow      ExternalAction = "allow"
	ExternalFlag       ExternalAction = "flag"
	ExternalWarn       ExternalAction = "warn"
	ExternalAutoRemove ExternalAction = "auto_remove"
)

// VerdictSource records which layer produced a verdict.
type VerdictSource string

const (
	SourceLocal     VerdictSource = "local"
	SourceExternal  VerdictSource = "external"
	SourceRateLimit VerdictSource = "rate_limit"
	SourceFailOpen  VerdictSource = "fail_open"
	SourceSanction  VerdictSource = "sanction"
)

// ActivityType is a reputation-earning activity.
type ActivityType string

const (
	ActivityMessage     ActivityType = "message"
	ActivityReaction    ActivityType = "reaction"
	ActivityHelpful     ActivityType = "helpful"
	ActivityAchievement ActivityType = "achievement"
)

// Level is a reputation tier derived from cumulative score.
type Level string

const (
	LevelNewcomer    Level = "Newcomer"
	LevelRegular     Level = "Regular"
	LevelContributor Level = "Contributor"
	LevelVeteran     Level = "Veteran"
	LevelExpert      Level = "Expert"
	LevelMaster      Level = "Master"
	LevelLegend      Level = "Legend"
)

// Decision thresholds applied to the uncapped total score.
const (
	BlockThreshold    = 100
	FlagThreshold     = 60
	SoftWarnThreshold = 30
	MaxConfidence     = 100
)

// RateLimitViolation is the single violation label of a rate-limit denial.
const RateLimitViolation = "Rate limit exceeded"

var levelFloors = []struct {
	floor int
	level Level
}{
	{10000, LevelLegend},
	{3000, LevelMaster},
	{1500, LevelExpert},
	{700, LevelVeteran},
	{300, LevelContributor},
	{100, LevelRegular},
}

// LevelFor returns the level of a cumulative reputation score.
func LevelFor(score int) Level {
	for _, l := range levelFloors {
		if score >= l.floor {
			return l.level
		}
	}
	return LevelNewcomer
}
