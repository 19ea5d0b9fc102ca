package sanction

import (
	"fmt"
	"time"

	modguard "github.com/heibot/modguard"
)

// Trigger is the event an EscalationPolicy is consulted on.
type Trigger string

const (
	TriggerWarn      Trigger = "warn"
	TriggerAutoBlock Trigger = "auto_block"
)

// EscalationPolicy decides whether a follow-up sanction is applied after a
// warning or an auto-blocked message. It returns nil to do nothing.
type EscalationPolicy interface {
	Escalate(status modguard.UserModerationStatus, trigger Trigger, now time.Time) *Command
}

// NoEscalation never escalates. Warnings only accumulate in
// TotalWarnings.
type NoEscalation struct{}

// Escalate returns nil.
func (NoEscalation) Escalate(modguard.UserModerationStatus, Trigger, time.Time) *Command {
	return nil
}

// ThresholdPolicy escalates on warning counts. Zero values disable each
// rule; it is only active when configured explicitly.
type ThresholdPolicy struct {
	// MuteAfterWarnings mutes a user once TotalWarnings reaches it.
	MuteAfterWarnings int
	// MuteDuration is the mute length; zero mutes permanently.
	MuteDuration time.Duration
	// BanAfterWarnings bans a user once TotalWarnings reaches it.
	BanAfterWarnings int
	// WarnOnAutoBlock issues a warning for every auto-blocked message.
	WarnOnAutoBlock bool
}

// Escalate implements EscalationPolicy.
func (p ThresholdPolicy) Escalate(status modguard.UserModerationStatus, trigger Trigger, now time.Time) *Command {
	current := status.EffectiveStatus(now)
	switch trigger {
	case TriggerAutoBlock:
		if p.WarnOnAutoBlock {
			return &Command{
				TargetUserID: status.UserID,
				Action:       modguard.ActionWarn,
				Reason:       "Automatic warning: message blocked",
			}
		}
	case TriggerWarn:
		if p.BanAfterWarnings > 0 && status.TotalWarnings >= p.BanAfterWarnings && current != modguard.StatusBanned {
			return &Command{
				TargetUserID: status.UserID,
				Action:       modguard.ActionBan,
				Reason:       fmt.Sprintf("Automatic ban after %d warnings", status.TotalWarnings),
			}
		}
		if p.MuteAfterWarnings > 0 && status.TotalWarnings >= p.MuteAfterWarnings && current == modguard.StatusActive {
			cmd := &Command{
				TargetUserID: status.UserID,
				Action:       modguard.ActionMute,
				Reason:       fmt.Sprintf("Automatic mute after %d warnings", status.TotalWarnings),
			}
			if p.MuteDuration > 0 {
				minutes := int(p.MuteDuration / time.Minute)
				if minutes < 1 {
					minutes = 1
				}
				cmd.DurationMinutes = &minutes
			}
			return cmd
		}
	}
	return nil
}
