package database

import (
	"context"
	"fmt"
	"time"

	"medbook/internal/models"
)

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	query := `INSERT INTO sync_queue (task_type, reservation_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	var nextRetry any
	if task.NextRetryAt != nil {
		nextRetry = *task.NextRetryAt
	}
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.ReservationID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		nextRetry,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query := `SELECT id, task_type, reservation_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM sync_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.ReservationID, &t.Payload, &t.Status,
			&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) MarkSyncTaskDone(ctx context.Context, id int64) error {
	query := `UPDATE sync_queue SET status = ?, processed_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.SyncStatusDone, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark sync task done: %w", err)
	}
	return nil
}

func (db *DB) MarkSyncTaskRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error {
	query := `UPDATE sync_queue SET status = ?, retry_count = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.SyncStatusRetry, retryCount, lastError, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark sync task for retry: %w", err)
	}
	return nil
}

func (db *DB) MarkSyncTaskDead(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE sync_queue SET status = ?, last_error = ?, processed_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.SyncStatusDead, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark sync task dead: %w", err)
	}
	return nil
}
