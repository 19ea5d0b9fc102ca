package sql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	modguard "github.com/heibot/modguard"
)

const queueColumns = `id, content_id, content_type, content_text, author_id, auto_flagged, confidence_score,
              priority_level, status, reason, moderator_notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(r rowScanner) (*modguard.QueueItem, error) {
	var item modguard.QueueItem
	var authorID, notes sql.NullString
	if err := r.Scan(&item.ID, &item.ContentID, &item.ContentType, &item.ContentText, &authorID,
		&item.AutoFlagged, &item.ConfidenceScore, &item.PriorityLevel, &item.Status, &item.Reason,
		&notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.AuthorID = authorID.String
	item.ModeratorNotes = notes.String
	return &item, nil
}

// CreateQueueItem inserts a review queue item.
func (s *Store) CreateQueueItem(ctx context.Context, item modguard.QueueItem) error {
	query := s.rebind(`INSERT INTO moderation_queue (` + queueColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var authorID sql.NullString
	if item.AuthorID != "" {
		authorID = sql.NullString{String: item.AuthorID, Valid: true}
	}

	_, err := s.q.ExecContext(ctx, query,
		item.ID, item.ContentID, item.ContentType, item.ContentText, authorID, item.AutoFlagged,
		item.ConfidenceScore, item.PriorityLevel, item.Status, item.Reason, item.ModeratorNotes,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return modguard.NewStoreError("create", "moderation_queue", modguard.ErrDuplicate)
		}
		return modguard.NewStoreError("create", "moderation_queue", err)
	}
	return nil
}

// GetQueueItem gets a review queue item by id.
func (s *Store) GetQueueItem(ctx context.Context, id string) (*modguard.QueueItem, error) {
	query := s.rebind(`SELECT ` + queueColumns + ` FROM moderation_queue WHERE id = ?` + s.lockClause())

	item, err := scanQueueItem(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, modguard.ErrQueueItemNotFound
	}
	if err != nil {
		return nil, modguard.NewStoreError("get", "moderation_queue", err)
	}
	return item, nil
}

// TransitionQueueItem moves a pending item with a conditional update.
func (s *Store) TransitionQueueItem(ctx context.Context, id string, status modguard.QueueStatus, priority int, notes string, now time.Time) (bool, error) {
	query := `UPDATE moderation_queue SET status = ?, priority_level = ?, updated_at = ?`
	args := []any{status, priority, now.UnixMilli()}
	if notes != "" {
		query += `, moderator_notes = ?`
		args = append(args, notes)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, modguard.QueuePending)

	res, err := s.q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return false, modguard.NewStoreError("update", "moderation_queue", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, modguard.NewStoreError("update", "moderation_queue", err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish a missing item from one that is no longer pending.
	if _, err := s.GetQueueItem(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// NextPendingQueueItem returns the highest priority, most recent pending item.
func (s *Store) NextPendingQueueItem(ctx context.Context) (*modguard.QueueItem, error) {
	items, err := s.ListPendingQueueItems(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, modguard.ErrQueueEmpty
	}
	return &items[0], nil
}

// ListPendingQueueItems lists pending items in dequeue order.
func (s *Store) ListPendingQueueItems(ctx context.Context, limit int) ([]modguard.QueueItem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.rebind(`SELECT ` + queueColumns + ` FROM moderation_queue
              WHERE status = ?
              ORDER BY priority_level DESC, created_at DESC, id ASC LIMIT ?`)

	rows, err := s.q.QueryContext(ctx, query, modguard.QueuePending, limit)
	if err != nil {
		return nil, modguard.NewStoreError("list", "moderation_queue", err)
	}
	defer rows.Close()

	var items []modguard.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, modguard.NewStoreError("scan", "moderation_queue", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, modguard.NewStoreError("list", "moderation_queue", err)
	}
	return items, nil
}
