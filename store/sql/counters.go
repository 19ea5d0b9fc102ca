package sql

import (
	"context"
	"time"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/store"
)

// IncrementWindow counts one hit with a single conditional upsert so that
// concurrent callers never read-then-write the same window.
func (s *Store) IncrementWindow(ctx context.Context, identifier, actionType string, window time.Duration, now time.Time) (int, error) {
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()

	if s.dialect == DialectPostgres {
		var count int
		err := s.q.QueryRowContext(ctx, `INSERT INTO rate_limit_window (identifier, action_type, window_start, hit_count)
                VALUES ($1, $2, $3, 1)
                ON CONFLICT (identifier, action_type) DO UPDATE SET
                hit_count = CASE WHEN EXCLUDED.window_start - rate_limit_window.window_start > $4
                    THEN 1 ELSE rate_limit_window.hit_count + 1 END,
                window_start = CASE WHEN EXCLUDED.window_start - rate_limit_window.window_start > $4
                    THEN EXCLUDED.window_start ELSE rate_limit_window.window_start END
                RETURNING hit_count`,
			identifier, actionType, nowMs, windowMs).Scan(&count)
		if err != nil {
			return 0, modguard.NewStoreError("increment", "rate_limit_window", err)
		}
		return count, nil
	}

	// MySQL has no RETURNING; the read happens under the row lock taken by
	// the upsert. hit_count is assigned before window_start so both
	// conditions see the previous window start.
	var count int
	err := s.WithTx(ctx, func(tx store.Store) error {
		ts := tx.(*Store)
		_, err := ts.q.ExecContext(ctx, `INSERT INTO rate_limit_window (identifier, action_type, window_start, hit_count)
                VALUES (?, ?, ?, 1)
                ON DUPLICATE KEY UPDATE
                hit_count = IF(VALUES(window_start) - window_start > ?, 1, hit_count + 1),
                window_start = IF(VALUES(window_start) - window_start > ?, VALUES(window_start), window_start)`,
			identifier, actionType, nowMs, windowMs, windowMs)
		if err != nil {
			return err
		}
		return ts.q.QueryRowContext(ctx,
			`SELECT hit_count FROM rate_limit_window WHERE identifier = ? AND action_type = ?`,
			identifier, actionType).Scan(&count)
	})
	if err != nil {
		return 0, modguard.NewStoreError("increment", "rate_limit_window", err)
	}
	return count, nil
}
