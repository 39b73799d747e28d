package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"medbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testReservation(doctorID, patientID string, date time.Time, start, end string) *models.Reservation {
	holdUntil := time.Now().Add(10 * time.Minute).UTC()
	return &models.Reservation{
		ID:            uuid.NewString(),
		DoctorID:      doctorID,
		PatientID:     patientID,
		Date:          date,
		StartTime:     start,
		EndTime:       end,
		Status:        models.StatusHeld,
		HoldExpiresAt: &holdUntil,
	}
}

func TestNewDBCreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	// Все таблицы должны существовать
	for _, table := range []string{"reservations", "sync_queue"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}

	var idx string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_reservations_active_slot'`).Scan(&idx)
	require.NoError(t, err)
}

func TestNewDBCreatesDirectory(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestCountByStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	date := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	r1 := testReservation("doc-1", "pat-1", date, "09:00:00", "09:30:00")
	r2 := testReservation("doc-1", "pat-2", date, "09:30:00", "10:00:00")
	require.NoError(t, db.Create(ctx, r1))
	require.NoError(t, db.Create(ctx, r2))

	_, err := db.CompareAndTransition(ctx, r2.ID, models.StatusHeld, models.StatusCancelled, nil)
	require.NoError(t, err)

	counts, err := db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusHeld])
	assert.Equal(t, 1, counts[models.StatusCancelled])
}
