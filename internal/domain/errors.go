package domain

import "errors"

// Engine error taxonomy. All of these are expected, recoverable outcomes
// surfaced to the calling client; none is fatal to the process.
var (
	// ErrSlotTaken: another active reservation occupies the slot. Clients
	// must pick another slot, never retry the same one.
	ErrSlotTaken = errors.New("slot is no longer available")

	// ErrPastSlot: the requested slot starts before server time.
	ErrPastSlot = errors.New("slot is in the past")

	// ErrInactiveDay: the doctor does not work on the requested date.
	ErrInactiveDay = errors.New("day is not active")

	// ErrInvalidSlot: start/end do not match the day's slot grid.
	ErrInvalidSlot = errors.New("slot does not match the schedule grid")

	// ErrDateTooFar: the date is beyond the booking horizon.
	ErrDateTooFar = errors.New("date is too far in the future")

	// ErrExpired: the hold TTL passed; the client must re-acquire a hold.
	ErrExpired = errors.New("hold has expired")

	// ErrWrongOwner: the caller does not own the reservation.
	ErrWrongOwner = errors.New("reservation belongs to another user")

	// ErrConflict: optimistic-concurrency mismatch; the stored status is
	// not what the caller expected. Re-fetch and decide.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrNotFound: unknown reservation id.
	ErrNotFound = errors.New("reservation not found")

	// ErrUnknownDoctor: no schedule is published for the doctor.
	ErrUnknownDoctor = errors.New("doctor not found")

	// ErrFlowDisabled: the operation belongs to the other booking flow.
	ErrFlowDisabled = errors.New("operation is disabled by the booking flow")

	// ErrRateLimited: too many hold attempts in the window.
	ErrRateLimited = errors.New("rate limit exceeded")
)
