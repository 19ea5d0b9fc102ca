package sql

import (
	"context"
	"time"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/store"
)

// AddReputation adds delta to a user's score with a single upsert.
func (s *Store) AddReputation(ctx context.Context, userID string, delta int, now time.Time) (int, error) {
	nowMs := now.UnixMilli()

	if s.dialect == DialectPostgres {
		var score int
		err := s.q.QueryRowContext(ctx, `INSERT INTO user_moderation_status
                (user_id, status, total_warnings, reputation_score, is_shadow_banned, updated_at)
                VALUES ($1, $2, 0, $3, FALSE, $4)
                ON CONFLICT (user_id) DO UPDATE SET
                reputation_score = user_moderation_status.reputation_score + EXCLUDED.reputation_score,
                updated_at = EXCLUDED.updated_at
                RETURNING reputation_score`,
			userID, modguard.StatusActive, delta, nowMs).Scan(&score)
		if err != nil {
			return 0, modguard.NewStoreError("increment", "user_moderation_status", err)
		}
		return score, nil
	}

	var score int
	err := s.WithTx(ctx, func(tx store.Store) error {
		ts := tx.(*Store)
		_, err := ts.q.ExecContext(ctx, `INSERT INTO user_moderation_status
                (user_id, status, total_warnings, reputation_score, is_shadow_banned, updated_at)
                VALUES (?, ?, 0, ?, FALSE, ?)
                ON DUPLICATE KEY UPDATE
                reputation_score = reputation_score + VALUES(reputation_score),
                updated_at = VALUES(updated_at)`,
			userID, modguard.StatusActive, delta, nowMs)
		if err != nil {
			return err
		}
		return ts.q.QueryRowContext(ctx,
			`SELECT reputation_score FROM user_moderation_status WHERE user_id = ?`, userID).Scan(&score)
	})
	if err != nil {
		return 0, modguard.NewStoreError("increment", "user_moderation_status", err)
	}
	return score, nil
}

// CreateReputationEvent appends a reputation change record.
func (s *Store) CreateReputationEvent(ctx context.Context, e modguard.ReputationEvent) error {
	query := s.rebind(`INSERT INTO reputation_event (id, user_id, activity, delta, score, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := s.q.ExecContext(ctx, query, e.ID, e.UserID, e.Activity, e.Delta, e.Score, e.CreatedAt)
	if err != nil {
		return modguard.NewStoreError("create", "reputation_event", err)
	}
	return nil
}
