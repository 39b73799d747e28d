package models

import "time"

// SyncTask is one row of the sync_queue outbox consumed by the
// back-office sync worker.
type SyncTask struct {
	ID            int64
	TaskType      string // upsert, update_status
	ReservationID string
	Payload       string // JSON snapshot
	Status        string // pending, retry, done, dead
	RetryCount    int
	LastError     string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	NextRetryAt   *time.Time
}

const (
	SyncTaskUpsert       = "upsert"
	SyncTaskUpdateStatus = "update_status"

	SyncStatusPending = "pending"
	SyncStatusRetry   = "retry"
	SyncStatusDone    = "done"
	SyncStatusDead    = "dead"
)
