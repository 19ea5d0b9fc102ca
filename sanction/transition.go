package sanction

import (
	"fmt"
	"time"

	modguard "github.com/heibot/modguard"
)

// Transition returns the status after applying cmd to current at now.
// It does not touch storage.
//
// warn increments TotalWarnings and leaves the status as is. mute, ban and
// suspend set the status and its expiry: now plus the duration, or nil for
// a permanent restriction. The reversing actions return the user to active
// and are only valid from the matching status. A mute cannot replace a
// ban or suspension that is still in force.
func Transition(current modguard.UserModerationStatus, cmd Command, now time.Time) (modguard.UserModerationStatus, error) {
	next := current
	nowMs := now.UnixMilli()
	next.UpdatedAt = nowMs

	effective := current.EffectiveStatus(now)

	switch cmd.Action {
	case modguard.ActionWarn:
		next.TotalWarnings++
		next.LastInfractionAt = &nowMs

	case modguard.ActionMute:
		if effective == modguard.StatusBanned || effective == modguard.StatusSuspended {
			return current, invalid(cmd.Action, effective)
		}
		next.Status = modguard.StatusMuted
		next.MutedUntil = expiry(now, cmd.DurationMinutes)
		next.LastInfractionAt = &nowMs

	case modguard.ActionBan:
		next.Status = modguard.StatusBanned
		next.BannedUntil = expiry(now, cmd.DurationMinutes)
		next.LastInfractionAt = &nowMs

	case modguard.ActionSuspend:
		if effective == modguard.StatusBanned {
			return current, invalid(cmd.Action, effective)
		}
		next.Status = modguard.StatusSuspended
		next.SuspendedUntil = expiry(now, cmd.DurationMinutes)
		next.LastInfractionAt = &nowMs

	case modguard.ActionUnmute:
		if current.Status != modguard.StatusMuted {
			return current, invalid(cmd.Action, current.Status)
		}
		next.Status = modguard.StatusActive
		next.MutedUntil = nil

	case modguard.ActionUnban:
		if current.Status != modguard.StatusBanned {
			return current, invalid(cmd.Action, current.Status)
		}
		next.Status = modguard.StatusActive
		next.BannedUntil = nil

	case modguard.ActionUnsuspend:
		if current.Status != modguard.StatusSuspended {
			return current, invalid(cmd.Action, current.Status)
		}
		next.Status = modguard.StatusActive
		next.SuspendedUntil = nil

	default:
		return current, fmt.Errorf("%w: %q", modguard.ErrInvalidAction, cmd.Action)
	}

	return next, nil
}

func expiry(now time.Time, minutes *int) *int64 {
	if minutes == nil {
		return nil
	}
	until := now.Add(time.Duration(*minutes) * time.Minute).UnixMilli()
	return &until
}

func invalid(action modguard.ActionType, from modguard.UserStatus) error {
	return fmt.Errorf("%w: %s while %s", modguard.ErrInvalidTransition, action, from)
}
