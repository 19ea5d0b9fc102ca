package modguard

import (
	"errors"
	"testing"
	"time"
)

func TestUserModerationStatus_IsMuted(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	until := base.Add(60 * time.Minute).UnixMilli()
	s := UserModerationStatus{UserID: "u1", Status: StatusMuted, MutedUntil: &until}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"during mute", base.Add(30 * time.Minute), true},
		{"just before expiry", base.Add(60*time.Minute - time.Millisecond), true},
		{"at expiry", base.Add(60 * time.Minute), false},
		{"after expiry", base.Add(61 * time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsMuted(tt.now); got != tt.want {
				t.Errorf("IsMuted() = %v, want %v", got, tt.want)
			}
		})
	}

	if s.Status != StatusMuted {
		t.Errorf("Status = %v, want %v", s.Status, StatusMuted)
	}
	if got := s.EffectiveStatus(base.Add(61 * time.Minute)); got != StatusActive {
		t.Errorf("EffectiveStatus() = %v, want %v", got, StatusActive)
	}
}

func TestUserModerationStatus_PermanentRestriction(t *testing.T) {
	now := time.Now()
	s := UserModerationStatus{UserID: "u1", Status: StatusBanned}

	if !s.IsBanned(now.Add(24 * 365 * time.Hour)) {
		t.Error("IsBanned() = false, want true for nil expiry")
	}
	if s.IsMuted(now) {
		t.Error("IsMuted() = true, want false for banned user")
	}
	if s.CanPost(now) {
		t.Error("CanPost() = true, want false")
	}
}

func TestUserModerationStatus_ShadowBanCanPost(t *testing.T) {
	s := NewUserModerationStatus("u1")
	s.IsShadowBanned = true
	if !s.CanPost(time.Now()) {
		t.Error("CanPost() = false, want true for shadow-banned user")
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{-5, 0},
		{0, 0},
		{75, 75},
		{100, 100},
		{105, 100},
	}
	for _, tt := range tests {
		if got := Confidence(tt.total); got != tt.want {
			t.Errorf("Confidence(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestVerdict_PublicReason(t *testing.T) {
	content := Verdict{Allowed: false, AutoBlocked: true, Violations: []Violation{{Label: "Profanity", Weight: 60}}}
	limited := Verdict{Allowed: false, RateLimited: true}

	if got := content.PublicReason(); got != "This message is not allowed" {
		t.Errorf("PublicReason() = %q", got)
	}
	if got := limited.PublicReason(); got == content.PublicReason() {
		t.Errorf("rate limit reason %q should differ from content reason", got)
	}
	if got := (Verdict{Allowed: true}).PublicReason(); got != "" {
		t.Errorf("PublicReason() = %q, want empty", got)
	}
}

func TestRateLimitWindow_Expired(t *testing.T) {
	start := time.Unix(1000, 0)
	w := RateLimitWindow{WindowStart: start.UnixMilli()}

	if w.Expired(start.Add(60*time.Second), time.Minute) {
		t.Error("Expired() = true at exactly the window size, want false")
	}
	if !w.Expired(start.Add(60*time.Second+time.Millisecond), time.Minute) {
		t.Error("Expired() = false after the window size, want true")
	}
}

func TestContentFilter_Validate(t *testing.T) {
	valid := ContentFilter{ID: "f1", Type: FilterKeyword, Pattern: "spam", Severity: 2}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := valid
	bad.Severity = 4
	err := bad.Validate()
	if !IsValidationError(err) {
		t.Errorf("Validate() error = %v, want validation error", err)
	}
}

func TestFailurePolicy_Handle(t *testing.T) {
	err := errors.New("boom")
	if FailClosed.Handle(nil, "ratelimit", err) {
		t.Error("FailClosed.Handle() = true, want false")
	}
	if !FailOpen.Handle(nil, "engine", err) {
		t.Error("FailOpen.Handle() = false, want true")
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{-5, LevelNewcomer},
		{0, LevelNewcomer},
		{99, LevelNewcomer},
		{100, LevelRegular},
		{299, LevelRegular},
		{300, LevelContributor},
		{699, LevelContributor},
		{700, LevelVeteran},
		{1499, LevelVeteran},
		{1500, LevelExpert},
		{2999, LevelExpert},
		{3000, LevelMaster},
		{9999, LevelMaster},
		{10000, LevelLegend},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}
