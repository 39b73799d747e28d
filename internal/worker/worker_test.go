package worker

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"medbook/internal/database"
	"medbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	// Ограничение сверху
	assert.Equal(t, 10*time.Second, policy.NextDelay(10))
	// Нулевой и отрицательный attempt нормализуются
	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, time.Second, policy.NextDelay(-3))
}

func TestRetryPolicyDefaults(t *testing.T) {
	var policy RetryPolicy
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
}

type mockSheets struct {
	mock.Mock
}

func (m *mockSheets) UpsertReservation(ctx context.Context, r *models.Reservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockSheets) UpdateReservationStatus(ctx context.Context, reservationID, status string) error {
	args := m.Called(ctx, reservationID, status)
	return args.Error(0)
}

func newWorkerFixture(t *testing.T, sheets *mockSheets, retry RetryPolicy) (*SyncWorker, *database.DB) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSyncWorker(db, sheets, retry, &logger), db
}

func workerReservation() *models.Reservation {
	return &models.Reservation{
		ID:        "res-1",
		DoctorID:  "doc-1",
		PatientID: "pat-1",
		Date:      time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC),
		StartTime: "10:00:00",
		EndTime:   "10:20:00",
		Status:    models.StatusPendingReview,
	}
}

func TestSyncWorkerUpsertTask(t *testing.T) {
	sheets := new(mockSheets)
	w, db := newWorkerFixture(t, sheets, RetryPolicy{})
	ctx := context.Background()

	r := workerReservation()
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, r))

	sheets.On("UpsertReservation", ctx, mock.MatchedBy(func(got *models.Reservation) bool {
		return got.ID == "res-1" && got.Status == models.StatusPendingReview
	})).Return(nil).Once()

	w.DrainOnce(ctx)
	sheets.AssertExpectations(t)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncWorkerUpdateStatusTask(t *testing.T) {
	sheets := new(mockSheets)
	w, _ := newWorkerFixture(t, sheets, RetryPolicy{})
	ctx := context.Background()

	r := workerReservation()
	r.Status = models.StatusPaid
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpdateStatus, r))

	sheets.On("UpdateReservationStatus", ctx, "res-1", models.StatusPaid).Return(nil).Once()

	w.DrainOnce(ctx)
	sheets.AssertExpectations(t)
}

func TestSyncWorkerRetriesOnError(t *testing.T) {
	sheets := new(mockSheets)
	w, db := newWorkerFixture(t, sheets, RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, workerReservation()))
	sheets.On("UpsertReservation", ctx, mock.Anything).Return(errors.New("sheets unavailable")).Once()

	w.DrainOnce(ctx)
	sheets.AssertExpectations(t)

	var status string
	var retryCount int
	require.NoError(t, db.QueryRow(`SELECT status, retry_count FROM sync_queue`).Scan(&status, &retryCount))
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
}

func TestSyncWorkerDeadLettersAfterMaxRetries(t *testing.T) {
	sheets := new(mockSheets)
	w, db := newWorkerFixture(t, sheets, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, workerReservation()))
	sheets.On("UpsertReservation", ctx, mock.Anything).Return(errors.New("sheets unavailable")).Twice()

	w.DrainOnce(ctx)
	time.Sleep(5 * time.Millisecond) // ждём next_retry_at
	w.DrainOnce(ctx)

	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM sync_queue`).Scan(&status))
	assert.Equal(t, models.SyncStatusDead, status)
}

func TestSyncWorkerEnqueueValidation(t *testing.T) {
	sheets := new(mockSheets)
	w, _ := newWorkerFixture(t, sheets, RetryPolicy{})
	ctx := context.Background()

	assert.Error(t, w.EnqueueTask(ctx, "", workerReservation()))
	assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, nil))
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) ReconcileExpired(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 0, nil
}

func TestReconcilerRunsUntilCancelled(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sweeper := &countingSweeper{}
	r := NewReconciler(sweeper, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}
