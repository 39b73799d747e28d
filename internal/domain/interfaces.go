package domain

import (
	"context"
	"time"

	"medbook/internal/models"
)

// Ledger is the authoritative reservation store. All mutation goes
// through Create and CompareAndTransition; there are no blind writes.
type Ledger interface {
	// Create inserts a reservation atomically with respect to the slot
	// uniqueness invariant; a second active reservation for the same
	// (doctor_id, date, start_time, end_time) fails with ErrSlotTaken.
	Create(ctx context.Context, r *models.Reservation) error

	GetReservation(ctx context.Context, id string) (*models.Reservation, error)

	// CompareAndTransition loads the reservation, verifies its status
	// equals expected, applies the optional mutator, and writes the new
	// status under a status+version guard. A stale expectation fails with
	// ErrConflict. expected == next performs a guarded field update
	// without a status change.
	CompareAndTransition(ctx context.Context, id, expected, next string, mutate func(*models.Reservation) error) (*models.Reservation, error)

	GetReservationsByDoctorRange(ctx context.Context, doctorID string, from, to time.Time) ([]*models.Reservation, error)
	GetPatientReservations(ctx context.Context, patientID string) ([]*models.Reservation, error)
	GetDailyReservations(ctx context.Context, from, to time.Time) (map[string][]*models.Reservation, error)
	GetExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error)
	GetExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error)

	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
}

// CalendarCache caches rendered day views and tracks per-patient hold
// attempt rates. A nil view with nil error is a cache miss.
type CalendarCache interface {
	GetDayView(ctx context.Context, doctorID string, date time.Time) (*models.DayAvailability, error)
	SetDayView(ctx context.Context, doctorID string, date time.Time, view *models.DayAvailability) error
	InvalidateDay(ctx context.Context, doctorID string, date time.Time) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventPublisher fans reservation lifecycle events out to in-process
// subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// PaymentGateway is the external checkout collaborator. The engine never
// computes payment state itself; it only opens checkouts and accepts the
// gateway's verdict through the callback surface.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, reservationID string, amount int64, currency string, expiresAt time.Time) (*Checkout, error)
}

// Checkout is what the gateway returns for a payment request.
type Checkout struct {
	Reference string    `json:"checkout_reference"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier delivers outbound notifications to the clinic channel.
type Notifier interface {
	ReservationSubmitted(ctx context.Context, r *models.Reservation) error
	ReservationDecided(ctx context.Context, r *models.Reservation) error
}

// SheetsWriter mirrors reservations into the back-office spreadsheet.
type SheetsWriter interface {
	UpsertReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, reservationID, status string) error
}

// SyncWorker accepts outbox work without blocking the request path.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, r *models.Reservation) error
}
