package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"besiktning-sync-server/internal/domain"
)

// ChangeLogRepository is the append-only ledger behind pull cursors.
// Rows are never updated or deleted here; retention is an external
// job's problem. Methods take a Querier so push can run them inside
// its batch transaction.
type ChangeLogRepository interface {
	Append(ctx context.Context, q Querier, entry *domain.ChangeLogEntry) error
	ListAfter(ctx context.Context, q Querier, afterID int64, limit int) ([]domain.ChangeLogEntry, error)
	TailID(ctx context.Context, q Querier) (int64, error)
}

type changeLogRepository struct{}

func NewChangeLogRepository() ChangeLogRepository {
	return &changeLogRepository{}
}

func (r *changeLogRepository) Append(ctx context.Context, q Querier, entry *domain.ChangeLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var payload any
	if entry.Payload != nil {
		payload = string(entry.Payload)
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO change_log (entity_type, server_id, action, revision, payload, changed_by_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.EntityType), entry.ServerID, string(entry.Action), entry.Revision,
		payload, entry.ChangedByUserID, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read change id: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *changeLogRepository) ListAfter(ctx context.Context, q Querier, afterID int64, limit int) ([]domain.ChangeLogEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, entity_type, server_id, action, revision, payload, changed_by_user_id, created_at
		 FROM change_log WHERE id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var entries []domain.ChangeLogEntry
	for rows.Next() {
		var (
			entry      domain.ChangeLogEntry
			entityType string
			action     string
			payload    sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&entry.ID, &entityType, &entry.ServerID, &action,
			&entry.Revision, &payload, &entry.ChangedByUserID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		entry.EntityType = domain.EntityType(entityType)
		entry.Action = domain.ChangeAction(action)
		if payload.Valid {
			entry.Payload = []byte(payload.String)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}
	return entries, nil
}

func (r *changeLogRepository) TailID(ctx context.Context, q Querier) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM change_log`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger tail: %w", err)
	}
	return id, nil
}
