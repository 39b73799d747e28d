package models

import "time"

// Reservation is the persisted unit the ledger owns: one slot claim from
// hold through its terminal outcome. Rows are never deleted, only moved
// to a terminal status.
type Reservation struct {
	ID             string     `json:"id"`
	DoctorID       string     `json:"doctor_id"`
	PatientID      string     `json:"patient_id"`
	Date           time.Time  `json:"date"`
	StartTime      string     `json:"start_time"` // "10:00:00"
	EndTime        string     `json:"end_time"`   // "10:20:00"
	Status         string     `json:"status"`
	Description    string     `json:"description,omitempty"`
	AttachmentRefs []string   `json:"attachment_refs,omitempty"`
	Payment        *Payment   `json:"payment,omitempty"`
	HoldExpiresAt  *time.Time `json:"hold_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Version        int64      `json:"version"`
}

// Payment mirrors what the external gateway reported for a reservation.
// Amounts are minor units.
type Payment struct {
	Reference string     `json:"reference,omitempty"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HoldExpired reports whether the hold TTL has lapsed at the given instant.
// Reservations without a hold deadline never expire this way.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.HoldExpiresAt != nil && !now.Before(*r.HoldExpiresAt)
}

// PaymentExpired reports whether the payment window has lapsed.
func (r *Reservation) PaymentExpired(now time.Time) bool {
	return r.Payment != nil && r.Payment.ExpiresAt != nil && !now.Before(*r.Payment.ExpiresAt)
}
