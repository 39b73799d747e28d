package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"medbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackup(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.Create(ctx, testReservation("doc-1", "pat-1",
		time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC), "10:00:00", "10:20:00")))

	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(dbPath, config.BackupConfig{
		Enabled:     true,
		StoragePath: backupDir,
	}, &logger)

	require.NoError(t, svc.PerformBackup())

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Копия открывается и содержит данные
	copied, err := NewDB(filepath.Join(backupDir, entries[0].Name()), &logger)
	require.NoError(t, err)
	defer copied.Close()

	counts, err := copied.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["held"])
}

func TestCleanupOldBackups(t *testing.T) {
	logger := zerolog.New(io.Discard)
	backupDir := t.TempDir()

	oldFile := filepath.Join(backupDir, "reservations_20250101_000000.db")
	freshFile := filepath.Join(backupDir, "reservations_20260901_000000.db")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(freshFile, []byte("fresh"), 0o644))

	stale := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	svc := NewBackupService("unused.db", config.BackupConfig{
		Enabled:       true,
		RetentionDays: 14,
		StoragePath:   backupDir,
	}, &logger)
	svc.CleanupOldBackups()

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(freshFile), entries[0].Name())
}
