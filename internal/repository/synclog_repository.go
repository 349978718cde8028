package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"besiktning-sync-server/internal/domain"
)

// ErrDuplicateKey means a live record already holds the idempotency
// key: a concurrent retry won the race and its cached response should
// be served instead.
var ErrDuplicateKey = errors.New("duplicate idempotency key")

type SyncLogRepository interface {
	// Find returns the cached record for key, or ErrNotFound if none
	// exists or the one that does has expired.
	Find(ctx context.Context, q Querier, key string, now time.Time) (*domain.SyncLogRecord, error)
	// Save inserts the record, silently reusing the row of an expired
	// key. A live duplicate yields ErrDuplicateKey.
	Save(ctx context.Context, q Querier, rec *domain.SyncLogRecord) error
	DeleteExpired(ctx context.Context, q Querier, now time.Time) (int64, error)
}

type syncLogRepository struct{}

func NewSyncLogRepository() SyncLogRepository {
	return &syncLogRepository{}
}

func (r *syncLogRepository) Find(ctx context.Context, q Querier, key string, now time.Time) (*domain.SyncLogRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, idempotency_key, device_id, user_id, response_body, status_code, processed_at, expires_at
		 FROM sync_log WHERE idempotency_key = ? AND expires_at > ?`,
		key, formatTime(now))

	var (
		rec       domain.SyncLogRecord
		body      string
		processed string
		expires   string
	)
	err := row.Scan(&rec.ID, &rec.IdempotencyKey, &rec.DeviceID, &rec.UserID,
		&body, &rec.StatusCode, &processed, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync log: %w", err)
	}

	rec.ResponseBody = []byte(body)
	if rec.ProcessedAt, err = parseTime(processed); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *syncLogRepository) Save(ctx context.Context, q Querier, rec *domain.SyncLogRecord) error {
	// The conditional upsert only overwrites an expired row. When a
	// live row blocks the write nothing changes and RowsAffected is 0,
	// which is the losing side of the concurrent-retry race.
	res, err := q.ExecContext(ctx,
		`INSERT INTO sync_log (idempotency_key, device_id, user_id, response_body, status_code, processed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(idempotency_key) DO UPDATE SET
			device_id = excluded.device_id,
			user_id = excluded.user_id,
			response_body = excluded.response_body,
			status_code = excluded.status_code,
			processed_at = excluded.processed_at,
			expires_at = excluded.expires_at
		 WHERE sync_log.expires_at <= excluded.processed_at`,
		rec.IdempotencyKey, rec.DeviceID, rec.UserID, string(rec.ResponseBody),
		rec.StatusCode, formatTime(rec.ProcessedAt), formatTime(rec.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to save sync log: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read sync log result: %w", err)
	}
	if n == 0 {
		return ErrDuplicateKey
	}
	return nil
}

func (r *syncLogRepository) DeleteExpired(ctx context.Context, q Querier, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM sync_log WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sync logs: %w", err)
	}
	return res.RowsAffected()
}
