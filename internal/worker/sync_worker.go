package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medbook/internal/database"
	"medbook/internal/domain"
	"medbook/internal/models"

	"github.com/rs/zerolog"
)

// syncPayload is persisted in SyncTask.Payload as JSON.
type syncPayload struct {
	Reservation *models.Reservation `json:"reservation,omitempty"`
	Status      string              `json:"status,omitempty"`
}

// SyncWorker тащит брони из очереди синхронизации в бэк-офисную таблицу.
// Запись в очередь идёт на пути запроса, сам поход в Google отложенный.
type SyncWorker struct {
	db           *database.DB
	sheets       domain.SheetsWriter
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

func NewSyncWorker(db *database.DB, sheets domain.SheetsWriter, retry RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &SyncWorker{
		db:           db,
		sheets:       sheets,
		retryPolicy:  retry,
		pollInterval: 2 * time.Second,
		batchSize:    20,
		logger:       logger,
	}
}

// EnqueueTask persists an outbox row; the polling loop picks it up.
func (w *SyncWorker) EnqueueTask(ctx context.Context, taskType string, r *models.Reservation) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if r == nil || r.ID == "" {
		return errors.New("reservation is required")
	}

	payload := syncPayload{Status: r.Status}
	if taskType == models.SyncTaskUpsert {
		payload.Reservation = r
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := &models.SyncTask{
		TaskType:      taskType,
		ReservationID: r.ID,
		Payload:       string(raw),
		Status:        models.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}
	return nil
}

// Start запускает цикл опроса; завершается по ctx.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Sync worker started")
	defer w.logger.Info().Msg("Sync worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DrainOnce(ctx)
		}
	}
}

// DrainOnce обрабатывает одну пачку задач. Вынесено для тестов.
func (w *SyncWorker) DrainOnce(ctx context.Context) {
	tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to fetch pending sync tasks")
		return
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
}

func (w *SyncWorker) processTask(ctx context.Context, task *models.SyncTask) {
	var payload syncPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.applyTask(ctx, task, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.MarkSyncTaskDone(ctx, task.ID); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark sync task done")
	}
}

func (w *SyncWorker) applyTask(ctx context.Context, task *models.SyncTask, payload syncPayload) error {
	switch task.TaskType {
	case models.SyncTaskUpsert:
		if payload.Reservation == nil {
			return errors.New("reservation payload missing")
		}
		return w.sheets.UpsertReservation(ctx, payload.Reservation)
	case models.SyncTaskUpdateStatus:
		if payload.Status == "" {
			return errors.New("status missing")
		}
		return w.sheets.UpdateReservationStatus(ctx, task.ReservationID, payload.Status)
	default:
		return fmt.Errorf("unknown task type: %s", task.TaskType)
	}
}

func (w *SyncWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("Sync task failed, scheduling retry")
	if err := w.db.MarkSyncTaskRetry(ctx, task.ID, attempt, cause.Error(), nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark sync task for retry")
	}
}

func (w *SyncWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Msg("Sync task dead-lettered")
	if err := w.db.MarkSyncTaskDead(ctx, task.ID, cause.Error()); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark sync task dead")
	}
}
