package modguard

import (
	"strings"
	"time"
)

// ContentFilter is a moderator-managed pattern rule.
type ContentFilter struct {
	ID        string     `json:"id" db:"id"`
	Type      FilterType `json:"type" db:"type"`
	Pattern   string     `json:"pattern" db:"pattern"`
	IsRegex   bool       `json:"is_regex" db:"is_regex"`
	Severity  int        `json:"severity" db:"severity"` // 1..3
	Active    bool       `json:"active" db:"active"`
	CreatedAt int64      `json:"created_at" db:"created_at"`
	UpdatedAt int64      `json:"updated_at" db:"updated_at"`
}

// Validate checks the filter fields a moderator can edit.
func (f ContentFilter) Validate() error {
	if f.ID == "" {
		return NewValidationError("id", "must not be empty")
	}
	if !f.Type.Valid() {
		return NewValidationError("type", "must be one of profanity, spam, keyword")
	}
	if strings.TrimSpace(f.Pattern) == "" {
		return NewValidationError("pattern", "must not be empty")
	}
	if f.Severity < 1 || f.Severity > 3 {
		return NewValidationError("severity", "must be between 1 and 3")
	}
	return nil
}

// Violation is a single detector match and its weighted contribution.
// Labels never contain the matched pattern.
type Violation struct {
	Label    string `json:"label"`
	Weight   int    `json:"weight"`
	Detector string `json:"detector,omitempty"`
	FilterID string `json:"-"`
}

// Verdict is the outcome of evaluating one candidate message.
// AutoBlocked implies !Allowed and ConfidenceScore is min(TotalScore, 100).
type Verdict struct {
	Allowed         bool          `json:"allowed"`
	Flagged         bool          `json:"flagged"`
	AutoBlocked     bool          `json:"auto_blocked"`
	Violations      []Violation   `json:"violations"`
	ConfidenceScore int           `json:"confidence_score"`
	TotalScore      int           `json:"total_score"`
	SoftWarn        bool          `json:"soft_warn,omitempty"`
	RateLimited     bool          `json:"rate_limited,omitempty"`
	Restricted      bool          `json:"restricted,omitempty"`
	Source          VerdictSource `json:"source"`
}

// ViolationLabels returns the labels of all violations in order.
func (v Verdict) ViolationLabels() []string {
	labels := make([]string, 0, len(v.Violations))
	for _, vi := range v.Violations {
		labels = append(labels, vi.Label)
	}
	return labels
}

// Summary joins the violation labels into a single reason string.
func (v Verdict) Summary() string {
	return strings.Join(v.ViolationLabels(), "; ")
}

// PublicReason returns the message shown to the author of a denied message.
// It never echoes a triggered pattern.
func (v Verdict) PublicReason() string {
	switch {
	case v.Allowed:
		return ""
	case v.RateLimited:
		return "You are sending messages too quickly"
	case v.Restricted:
		return "You cannot post right now"
	default:
		return "This message is not allowed"
	}
}

// Confidence caps a total score into the [0,100] confidence range.
func Confidence(total int) int {
	if total < 0 {
		return 0
	}
	if total > MaxConfidence {
		return MaxConfidence
	}
	return total
}

// Identity identifies the sender of a message. Anonymous senders use a
// client token as ID.
type Identity struct {
	ID            string `json:"id"`
	Authenticated bool   `json:"authenticated"`
}

// ContentMeta describes the message being evaluated.
type ContentMeta struct {
	ContentID   string `json:"content_id"`
	ContentType string `json:"content_type"`
	ChannelID   string `json:"channel_id,omitempty"`
}

// QueueItem is a flagged piece of content awaiting human disposition.
type QueueItem struct {
	ID              string      `json:"id" db:"id"`
	ContentID       string      `json:"content_id" db:"content_id"`
	ContentType     string      `json:"content_type" db:"content_type"`
	ContentText     string      `json:"content_text" db:"content_text"`
	AuthorID        string      `json:"author_id,omitempty" db:"author_id"`
	AutoFlagged     bool        `json:"auto_flagged" db:"auto_flagged"`
	ConfidenceScore int         `json:"confidence_score" db:"confidence_score"`
	PriorityLevel   int         `json:"priority_level" db:"priority_level"`
	Status          QueueStatus `json:"status" db:"status"`
	Reason          string      `json:"reason" db:"reason"` // Aggregated violation labels
	ModeratorNotes  string      `json:"moderator_notes,omitempty" db:"moderator_notes"`
	CreatedAt       int64       `json:"created_at" db:"created_at"`
	UpdatedAt       int64       `json:"updated_at" db:"updated_at"`
}

// UserModerationStatus is the single mutable source of truth for a user's
// current restriction. A nil expiry means the restriction is permanent.
type UserModerationStatus struct {
	UserID           string     `json:"user_id" db:"user_id"`
	Status           UserStatus `json:"status" db:"status"`
	MutedUntil       *int64     `json:"muted_until,omitempty" db:"muted_until"`
	BannedUntil      *int64     `json:"banned_until,omitempty" db:"banned_until"`
	SuspendedUntil   *int64     `json:"suspended_until,omitempty" db:"suspended_until"`
	TotalWarnings    int        `json:"total_warnings" db:"total_warnings"`
	ReputationScore  int        `json:"reputation_score" db:"reputation_score"`
	IsShadowBanned   bool       `json:"is_shadow_banned" db:"is_shadow_banned"`
	LastInfractionAt *int64     `json:"last_infraction_at,omitempty" db:"last_infraction_at"`
	UpdatedAt        int64      `json:"updated_at" db:"updated_at"`
}

// NewUserModerationStatus returns the default record for a user with no history.
func NewUserModerationStatus(userID string) UserModerationStatus {
	return UserModerationStatus{UserID: userID, Status: StatusActive}
}

// IsMuted reports whether the mute is in force at now.
func (s UserModerationStatus) IsMuted(now time.Time) bool {
	return restrictionActive(s.Status, StatusMuted, s.MutedUntil, now)
}

// IsBanned reports whether the ban is in force at now.
func (s UserModerationStatus) IsBanned(now time.Time) bool {
	return restrictionActive(s.Status, StatusBanned, s.BannedUntil, now)
}

// IsSuspended reports whether the suspension is in force at now.
func (s UserModerationStatus) IsSuspended(now time.Time) bool {
	return restrictionActive(s.Status, StatusSuspended, s.SuspendedUntil, now)
}

// CanPost reports whether no posting restriction is in force at now.
// Shadow bans do not prevent posting.
func (s UserModerationStatus) CanPost(now time.Time) bool {
	return !s.IsBanned(now) && !s.IsSuspended(now) && !s.IsMuted(now)
}

// EffectiveStatus is the status a reader should act on at now: an expired
// restriction reads as active without the stored field being cleared.
func (s UserModerationStatus) EffectiveStatus(now time.Time) UserStatus {
	switch s.Status {
	case StatusMuted:
		if !s.IsMuted(now) {
			return StatusActive
		}
	case StatusBanned:
		if !s.IsBanned(now) {
			return StatusActive
		}
	case StatusSuspended:
		if !s.IsSuspended(now) {
			return StatusActive
		}
	}
	return s.Status
}

func restrictionActive(status, want UserStatus, until *int64, now time.Time) bool {
	if status != want {
		return false
	}
	return until == nil || now.UnixMilli() < *until
}

// ModerationAction is an append-only audit record of a sanction.
type ModerationAction struct {
	ID              string     `json:"id" db:"id"`
	TargetUserID    string     `json:"target_user_id" db:"target_user_id"`
	ModeratorID     string     `json:"moderator_id,omitempty" db:"moderator_id"`
	ActionType      ActionType `json:"action_type" db:"action_type"`
	Reason          string     `json:"reason" db:"reason"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" db:"duration_minutes"`
	CreatedAt       int64      `json:"created_at" db:"created_at"`
}

// RateLimitWindow is a fixed counting window for one identity and action.
type RateLimitWindow struct {
	Identifier  string `json:"identifier" db:"identifier"`
	ActionType  string `json:"action_type" db:"action_type"`
	WindowStart int64  `json:"window_start" db:"window_start"`
	Count       int    `json:"count" db:"hit_count"`
}

// Expired reports whether the window must be reset at now.
func (w RateLimitWindow) Expired(now time.Time, size time.Duration) bool {
	return now.UnixMilli()-w.WindowStart > size.Milliseconds()
}

// ReputationEvent records a reputation change.
type ReputationEvent struct {
	ID        string       `json:"id" db:"id"`
	UserID    string       `json:"user_id" db:"user_id"`
	Activity  ActivityType `json:"activity" db:"activity"`
	Delta     int          `json:"delta" db:"delta"`
	Score     int          `json:"score" db:"score"`
	CreatedAt int64        `json:"created_at" db:"created_at"`
}
