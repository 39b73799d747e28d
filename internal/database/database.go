package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"medbook/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the reservation ledger: the single authoritative store of slot
// claims. The slot uniqueness invariant lives in the schema (partial
// unique index over active statuses), not in application reads.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout serializes concurrent writers instead of failing them
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Один коннект: sqlite не любит конкурирующие read-then-write транзакции
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("ledger database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func occupyingStatusList() string {
	list := ""
	for i, s := range models.SlotOccupyingStatuses {
		if i > 0 {
			list += ","
		}
		list += "'" + s + "'"
	}
	return list
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            doctor_id TEXT NOT NULL,
            patient_id TEXT NOT NULL,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            status TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            attachment_refs TEXT NOT NULL DEFAULT '[]',
            payment_ref TEXT NOT NULL DEFAULT '',
            payment_amount INTEGER NOT NULL DEFAULT 0,
            payment_currency TEXT NOT NULL DEFAULT '',
            payment_status TEXT NOT NULL DEFAULT '',
            payment_expires_at DATETIME,
            hold_expires_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		// Уникальность слота: не более одной занимающей брони на
		// (doctor_id, date, start_time, end_time). Оплаченная бронь
		// держит слот так же, как и живой холд.
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_slot
            ON reservations(doctor_id, date, start_time, end_time)
            WHERE status IN (%s)`, occupyingStatusList()),

		`CREATE INDEX IF NOT EXISTS idx_reservations_doctor_date ON reservations(doctor_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_patient ON reservations(patient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_hold_expiry ON reservations(status, hold_expires_at)`,

		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            reservation_id TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
