package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medbook/internal/models"

	"github.com/mattn/go-sqlite3"
)

const reservationColumns = `id, doctor_id, patient_id, date, start_time, end_time, status,
                 description, attachment_refs, payment_ref, payment_amount,
                 payment_currency, payment_status, payment_expires_at,
                 hold_expires_at, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r           models.Reservation
		dateStr     string
		refsJSON    string
		payRef      string
		payAmount   int64
		payCurrency string
		payStatus   string
		payExpires  sql.NullTime
		holdExpires sql.NullTime
	)

	err := row.Scan(
		&r.ID, &r.DoctorID, &r.PatientID, &dateStr, &r.StartTime, &r.EndTime, &r.Status,
		&r.Description, &refsJSON, &payRef, &payAmount,
		&payCurrency, &payStatus, &payExpires,
		&holdExpires, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	r.Date, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reservation date %s: %w", dateStr, err)
	}

	if refsJSON != "" && refsJSON != "[]" {
		if err := json.Unmarshal([]byte(refsJSON), &r.AttachmentRefs); err != nil {
			return nil, fmt.Errorf("failed to decode attachment refs: %w", err)
		}
	}

	if payStatus != "" || payAmount != 0 {
		r.Payment = &models.Payment{
			Reference: payRef,
			Amount:    payAmount,
			Currency:  payCurrency,
			Status:    payStatus,
		}
		if payExpires.Valid {
			t := payExpires.Time
			r.Payment.ExpiresAt = &t
		}
	}
	if holdExpires.Valid {
		t := holdExpires.Time
		r.HoldExpiresAt = &t
	}

	return &r, nil
}

func encodeRefs(refs []string) (string, error) {
	if len(refs) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attachment refs: %w", err)
	}
	return string(raw), nil
}

func paymentFields(r *models.Reservation) (ref string, amount int64, currency, status string, expires any) {
	if r.Payment == nil {
		return "", 0, "", "", nil
	}
	if r.Payment.ExpiresAt != nil {
		expires = *r.Payment.ExpiresAt
	}
	return r.Payment.Reference, r.Payment.Amount, r.Payment.Currency, r.Payment.Status, expires
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// Create inserts a new reservation. The partial unique index rejects a
// second active claim on the same slot; that violation surfaces as
// ErrSlotTaken. This is the single write that decides hold races.
func (db *DB) Create(ctx context.Context, r *models.Reservation) error {
	refsJSON, err := encodeRefs(r.AttachmentRefs)
	if err != nil {
		return err
	}
	payRef, payAmount, payCurrency, payStatus, payExpires := paymentFields(r)

	var holdExpires any
	if r.HoldExpiresAt != nil {
		holdExpires = *r.HoldExpiresAt
	}

	now := time.Now()
	query := `INSERT INTO reservations (
                id, doctor_id, patient_id, date, start_time, end_time, status,
                description, attachment_refs, payment_ref, payment_amount,
                payment_currency, payment_status, payment_expires_at,
                hold_expires_at, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		r.ID,
		r.DoctorID,
		r.PatientID,
		r.Date.Format(models.DateLayout),
		r.StartTime,
		r.EndTime,
		r.Status,
		r.Description,
		refsJSON,
		payRef,
		payAmount,
		payCurrency,
		payStatus,
		payExpires,
		holdExpires,
		now,
		now,
		1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// CompareAndTransition is the only mutation path past Create. It runs a
// transaction: read the row, require status == expected, apply the
// mutator, then UPDATE guarded by status and version. Zero rows affected
// means someone else moved the record first.
//
// expected == next updates fields without changing status; any other
// pair must be a legal edge of the state machine.
func (db *DB) CompareAndTransition(ctx context.Context, id, expected, next string, mutate func(*models.Reservation) error) (*models.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load reservation in tx: %w", err)
	}

	if r.Status != expected {
		return nil, ErrConcurrentModification
	}
	if expected != next && !models.CanTransition(expected, next) {
		return nil, ErrConcurrentModification
	}

	if mutate != nil {
		if err := mutate(r); err != nil {
			return nil, err
		}
	}
	r.Status = next

	refsJSON, err := encodeRefs(r.AttachmentRefs)
	if err != nil {
		return nil, err
	}
	payRef, payAmount, payCurrency, payStatus, payExpires := paymentFields(r)

	var holdExpires any
	if r.HoldExpiresAt != nil {
		holdExpires = *r.HoldExpiresAt
	}

	now := time.Now()
	update := `UPDATE reservations
              SET status = ?, description = ?, attachment_refs = ?,
                  payment_ref = ?, payment_amount = ?, payment_currency = ?,
                  payment_status = ?, payment_expires_at = ?,
                  hold_expires_at = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND status = ? AND version = ?`
	result, err := tx.ExecContext(ctx, update,
		r.Status, r.Description, refsJSON,
		payRef, payAmount, payCurrency,
		payStatus, payExpires,
		holdExpires, now,
		id, expected, r.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to transition reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	r.UpdatedAt = now
	r.Version++
	return r, nil
}

func (db *DB) GetReservationsByDoctorRange(ctx context.Context, doctorID string, from, to time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE doctor_id = ? AND date >= ? AND date <= ?
              ORDER BY date ASC, start_time ASC`
	rows, err := db.QueryContext(ctx, query, doctorID,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations by range: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (db *DB) GetPatientReservations(ctx context.Context, patientID string) ([]*models.Reservation, error) {
	// Две недели истории плюс все будущие
	twoWeeksAgo := time.Now().AddDate(0, 0, -14).Format(models.DateLayout)
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE patient_id = ? AND date >= ?
              ORDER BY date DESC, start_time DESC`
	rows, err := db.QueryContext(ctx, query, patientID, twoWeeksAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (db *DB) GetDailyReservations(ctx context.Context, from, to time.Time) (map[string][]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE date >= ? AND date <= ?
              ORDER BY date ASC, start_time ASC`
	rows, err := db.QueryContext(ctx, query,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get daily reservations: %w", err)
	}
	defer rows.Close()

	reservations, err := collectReservations(rows)
	if err != nil {
		return nil, err
	}

	daily := make(map[string][]*models.Reservation)
	for _, r := range reservations {
		key := r.Date.Format(models.DateLayout)
		daily[key] = append(daily[key], r)
	}
	return daily, nil
}

// GetExpiredHolds returns held reservations whose TTL has lapsed. The
// sweep transitions each through CompareAndTransition, so reading a row
// another sweeper already expired is harmless.
func (db *DB) GetExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?
              ORDER BY hold_expires_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.StatusHeld, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired holds: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// GetExpiredPayments returns reservations whose payment window has
// lapsed without the gateway reporting an outcome.
func (db *DB) GetExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE status IN (?, ?) AND payment_expires_at IS NOT NULL AND payment_expires_at <= ?
              ORDER BY payment_expires_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query,
		models.StatusPendingPayment, models.StatusApprovedUnpaid, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired payments: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

// CountByStatus returns reservation counts grouped by status, used by the
// back-office report.
func (db *DB) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reservations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
