package sql

import (
	"context"
	"database/sql"
	"errors"

	modguard "github.com/heibot/modguard"
)

// GetUserStatus gets a user's moderation status. Inside a transaction the
// row stays locked until commit.
func (s *Store) GetUserStatus(ctx context.Context, userID string) (*modguard.UserModerationStatus, error) {
	query := s.rebind(`SELECT user_id, status, muted_until, banned_until, suspended_until, total_warnings,
              reputation_score, is_shadow_banned, last_infraction_at, updated_at
              FROM user_moderation_status WHERE user_id = ?` + s.lockClause())

	var st modguard.UserModerationStatus
	var mutedUntil, bannedUntil, suspendedUntil, lastInfraction sql.NullInt64
	err := s.q.QueryRowContext(ctx, query, userID).Scan(&st.UserID, &st.Status, &mutedUntil, &bannedUntil,
		&suspendedUntil, &st.TotalWarnings, &st.ReputationScore, &st.IsShadowBanned, &lastInfraction, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, modguard.ErrNotFound
	}
	if err != nil {
		return nil, modguard.NewStoreError("get", "user_moderation_status", err)
	}

	st.MutedUntil = ptrInt64(mutedUntil)
	st.BannedUntil = ptrInt64(bannedUntil)
	st.SuspendedUntil = ptrInt64(suspendedUntil)
	st.LastInfractionAt = ptrInt64(lastInfraction)
	return &st, nil
}

// UpsertUserStatus writes the sanction fields; reputation_score is only
// written on insert.
func (s *Store) UpsertUserStatus(ctx context.Context, st modguard.UserModerationStatus) error {
	var query string
	switch s.dialect {
	case DialectPostgres:
		query = `INSERT INTO user_moderation_status (user_id, status, muted_until, banned_until, suspended_until,
                total_warnings, reputation_score, is_shadow_banned, last_infraction_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
                ON CONFLICT (user_id) DO UPDATE SET
                status = EXCLUDED.status, muted_until = EXCLUDED.muted_until, banned_until = EXCLUDED.banned_until,
                suspended_until = EXCLUDED.suspended_until, total_warnings = EXCLUDED.total_warnings,
                is_shadow_banned = EXCLUDED.is_shadow_banned, last_infraction_at = EXCLUDED.last_infraction_at,
                updated_at = EXCLUDED.updated_at`
	default: // MySQL, TiDB
		query = `INSERT INTO user_moderation_status (user_id, status, muted_until, banned_until, suspended_until,
                total_warnings, reputation_score, is_shadow_banned, last_infraction_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                ON DUPLICATE KEY UPDATE
                status = VALUES(status), muted_until = VALUES(muted_until), banned_until = VALUES(banned_until),
                suspended_until = VALUES(suspended_until), total_warnings = VALUES(total_warnings),
                is_shadow_banned = VALUES(is_shadow_banned), last_infraction_at = VALUES(last_infraction_at),
                updated_at = VALUES(updated_at)`
	}

	_, err := s.q.ExecContext(ctx, query,
		st.UserID, st.Status, nullInt64(st.MutedUntil), nullInt64(st.BannedUntil), nullInt64(st.SuspendedUntil),
		st.TotalWarnings, st.ReputationScore, st.IsShadowBanned, nullInt64(st.LastInfractionAt), st.UpdatedAt)
	if err != nil {
		return modguard.NewStoreError("upsert", "user_moderation_status", err)
	}
	return nil
}

// CreateAction appends a moderation audit record.
func (s *Store) CreateAction(ctx context.Context, a modguard.ModerationAction) error {
	query := s.rebind(`INSERT INTO moderation_action (id, target_user_id, moderator_id, action_type, reason,
              duration_minutes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	var moderatorID sql.NullString
	if a.ModeratorID != "" {
		moderatorID = sql.NullString{String: a.ModeratorID, Valid: true}
	}

	_, err := s.q.ExecContext(ctx, query, a.ID, a.TargetUserID, moderatorID, a.ActionType, a.Reason,
		nullInt(a.DurationMinutes), a.CreatedAt)
	if err != nil {
		return modguard.NewStoreError("create", "moderation_action", err)
	}
	return nil
}

// ListActions lists a user's moderation actions, newest first.
func (s *Store) ListActions(ctx context.Context, userID string, limit int) ([]modguard.ModerationAction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.rebind(`SELECT id, target_user_id, moderator_id, action_type, reason, duration_minutes, created_at
              FROM moderation_action WHERE target_user_id = ?
              ORDER BY created_at DESC LIMIT ?`)

	rows, err := s.q.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, modguard.NewStoreError("list", "moderation_action", err)
	}
	defer rows.Close()

	var actions []modguard.ModerationAction
	for rows.Next() {
		var a modguard.ModerationAction
		var moderatorID sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&a.ID, &a.TargetUserID, &moderatorID, &a.ActionType, &a.Reason,
			&duration, &a.CreatedAt); err != nil {
			return nil, modguard.NewStoreError("scan", "moderation_action", err)
		}
		a.ModeratorID = moderatorID.String
		a.DurationMinutes = ptrInt(duration)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, modguard.NewStoreError("list", "moderation_action", err)
	}
	return actions, nil
}
