package domain

import "time"

// SyncLogRecord caches the outcome of one processed push batch. A
// retry carrying the same idempotency key gets ResponseBody back
// byte for byte instead of being re-executed.
type SyncLogRecord struct {
	ID             int64
	IdempotencyKey string
	DeviceID       string
	UserID         int64
	ResponseBody   []byte
	StatusCode     int
	ProcessedAt    time.Time
	ExpiresAt      time.Time
}

func (r *SyncLogRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
