package sql

import (
	"context"
	"fmt"
	"strings"
)

// Timestamps are Unix milliseconds stored as BIGINT.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS content_filter (
    id VARCHAR(64) PRIMARY KEY,
    type VARCHAR(16) NOT NULL,
    pattern TEXT NOT NULL,
    is_regex BOOLEAN NOT NULL DEFAULT FALSE,
    severity INT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_window (
    identifier VARCHAR(128) NOT NULL,
    action_type VARCHAR(32) NOT NULL,
    window_start BIGINT NOT NULL,
    hit_count INT NOT NULL,
    PRIMARY KEY (identifier, action_type)
)`,
	`CREATE TABLE IF NOT EXISTS moderation_queue (
    id VARCHAR(64) PRIMARY KEY,
    content_id VARCHAR(128) NOT NULL,
    content_type VARCHAR(32) NOT NULL,
    content_text TEXT NOT NULL,
    author_id VARCHAR(64) NULL,
    auto_flagged BOOLEAN NOT NULL,
    confidence_score INT NOT NULL,
    priority_level INT NOT NULL,
    status VARCHAR(16) NOT NULL,
    reason TEXT NOT NULL,
    moderator_notes TEXT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX idx_moderation_queue_pending ON moderation_queue (status, priority_level, created_at)`,
	`CREATE TABLE IF NOT EXISTS user_moderation_status (
    user_id VARCHAR(64) PRIMARY KEY,
    status VARCHAR(16) NOT NULL,
    muted_until BIGINT NULL,
    banned_until BIGINT NULL,
    suspended_until BIGINT NULL,
    total_warnings INT NOT NULL DEFAULT 0,
    reputation_score INT NOT NULL DEFAULT 0,
    is_shadow_banned BOOLEAN NOT NULL DEFAULT FALSE,
    last_infraction_at BIGINT NULL,
    updated_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS moderation_action (
    id VARCHAR(64) PRIMARY KEY,
    target_user_id VARCHAR(64) NOT NULL,
    moderator_id VARCHAR(64) NULL,
    action_type VARCHAR(16) NOT NULL,
    reason TEXT NOT NULL,
    duration_minutes INT NULL,
    created_at BIGINT NOT NULL
)`,
	`CREATE INDEX idx_moderation_action_target ON moderation_action (target_user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS reputation_event (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    activity VARCHAR(32) NOT NULL,
    delta INT NOT NULL,
    score INT NOT NULL,
    created_at BIGINT NOT NULL
)`,
}

// Migrate creates the tables used by the store. Index creation errors for
// indexes that already exist are ignored.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if strings.HasPrefix(stmt, "CREATE INDEX") && s.dialect == DialectPostgres {
			stmt = strings.Replace(stmt, "CREATE INDEX", "CREATE INDEX IF NOT EXISTS", 1)
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if strings.HasPrefix(stmt, "CREATE INDEX") && isDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func isDuplicateIndex(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key name")
}
