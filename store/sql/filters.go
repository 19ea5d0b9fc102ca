package sql

import (
	"context"
	"database/sql"
	"errors"

	modguard "github.com/heibot/modguard"
)

const filterColumns = `id, type, pattern, is_regex, severity, active, created_at, updated_at`

// ListFilters lists every content filter.
func (s *Store) ListFilters(ctx context.Context) ([]modguard.ContentFilter, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+filterColumns+` FROM content_filter ORDER BY id`)
	if err != nil {
		return nil, modguard.NewStoreError("list", "content_filter", err)
	}
	defer rows.Close()

	var filters []modguard.ContentFilter
	for rows.Next() {
		var f modguard.ContentFilter
		if err := rows.Scan(&f.ID, &f.Type, &f.Pattern, &f.IsRegex, &f.Severity, &f.Active,
			&f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, modguard.NewStoreError("scan", "content_filter", err)
		}
		filters = append(filters, f)
	}
	if err := rows.Err(); err != nil {
		return nil, modguard.NewStoreError("list", "content_filter", err)
	}

	return filters, nil
}

// GetFilter gets a content filter by id.
func (s *Store) GetFilter(ctx context.Context, id string) (*modguard.ContentFilter, error) {
	query := s.rebind(`SELECT ` + filterColumns + ` FROM content_filter WHERE id = ?`)

	var f modguard.ContentFilter
	err := s.q.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.Type, &f.Pattern, &f.IsRegex,
		&f.Severity, &f.Active, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, modguard.ErrNotFound
	}
	if err != nil {
		return nil, modguard.NewStoreError("get", "content_filter", err)
	}

	return &f, nil
}

// UpsertFilter creates or replaces a content filter.
func (s *Store) UpsertFilter(ctx context.Context, f modguard.ContentFilter) error {
	now := s.Now().UnixMilli()

	var query string
	switch s.dialect {
	case DialectPostgres:
		query = `INSERT INTO content_filter (id, type, pattern, is_regex, severity, active, created_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
                ON CONFLICT (id) DO UPDATE SET
                type = EXCLUDED.type, pattern = EXCLUDED.pattern, is_regex = EXCLUDED.is_regex,
                severity = EXCLUDED.severity, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	default: // MySQL, TiDB
		query = `INSERT INTO content_filter (id, type, pattern, is_regex, severity, active, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                ON DUPLICATE KEY UPDATE
                type = VALUES(type), pattern = VALUES(pattern), is_regex = VALUES(is_regex),
                severity = VALUES(severity), active = VALUES(active), updated_at = VALUES(updated_at)`
	}

	_, err := s.q.ExecContext(ctx, query, f.ID, f.Type, f.Pattern, f.IsRegex, f.Severity, f.Active, now, now)
	if err != nil {
		return modguard.NewStoreError("upsert", "content_filter", err)
	}
	return nil
}

// DeleteFilter deletes a content filter.
func (s *Store) DeleteFilter(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, s.rebind(`DELETE FROM content_filter WHERE id = ?`), id)
	if err != nil {
		return modguard.NewStoreError("delete", "content_filter", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return modguard.ErrNotFound
	}
	return nil
}
