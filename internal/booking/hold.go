package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medbook/internal/clock"
	"medbook/internal/config"
	"medbook/internal/domain"
	"medbook/internal/events"
	"medbook/internal/metrics"
	"medbook/internal/models"
	"medbook/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HoldManager владеет коротким удержанием слота: пациент застолбил
// время и получил TTL на подтверждение.
type HoldManager struct {
	ledger    domain.Ledger
	templates *schedule.TemplateStore
	cache     domain.CalendarCache
	bus       domain.EventPublisher
	clock     clock.Clock
	cfg       config.BookingConfig
	logger    *zerolog.Logger
}

func NewHoldManager(
	ledger domain.Ledger,
	templates *schedule.TemplateStore,
	cache domain.CalendarCache,
	bus domain.EventPublisher,
	clk clock.Clock,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *HoldManager {
	return &HoldManager{
		ledger:    ledger,
		templates: templates,
		cache:     cache,
		bus:       bus,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

type PlaceHoldRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`       // "2026-02-06"
	StartTime string `json:"start_time"` // "10:00:00"
	EndTime   string `json:"end_time"`
}

// PlaceHold validates the requested slot against the doctor's day grid
// and claims it. Uniqueness is not checked here: the ledger's insert is
// the serialization point, and a lost race surfaces as ErrSlotTaken.
func (m *HoldManager) PlaceHold(ctx context.Context, req PlaceHoldRequest) (*models.Reservation, error) {
	now := m.clock.Now()

	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", domain.ErrInvalidSlot, req.Date)
	}
	start := schedule.NormalizeClock(req.StartTime)
	end := schedule.NormalizeClock(req.EndTime)

	allowed, err := m.cache.CheckRateLimit(ctx, "hold:"+req.PatientID, m.cfg.HoldRateLimit, m.cfg.HoldRateWindow())
	if err != nil {
		m.logger.Error().Err(err).Msg("Rate limit check failed, allowing request")
	} else if !allowed {
		metrics.IncHold("rate_limited")
		return nil, domain.ErrRateLimited
	}

	tpl, err := m.templates.DayFor(req.DoctorID, date)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, domain.ErrInactiveDay
	}

	if date.After(now.AddDate(0, 0, m.cfg.MaxAdvanceDays)) {
		return nil, domain.ErrDateTooFar
	}

	if !onGrid(tpl, start, end) {
		return nil, domain.ErrInvalidSlot
	}

	slotStart, err := schedule.SlotInstant(date, start)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start time %q", domain.ErrInvalidSlot, req.StartTime)
	}
	if !slotStart.After(now) {
		return nil, domain.ErrPastSlot
	}

	holdUntil := now.Add(m.cfg.HoldTTL())
	reservation := &models.Reservation{
		ID:            uuid.NewString(),
		DoctorID:      req.DoctorID,
		PatientID:     req.PatientID,
		Date:          date,
		StartTime:     start,
		EndTime:       end,
		Status:        models.StatusHeld,
		HoldExpiresAt: &holdUntil,
	}

	if err := m.ledger.Create(ctx, reservation); err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			metrics.IncHold("conflict")
		}
		return nil, err
	}

	m.invalidateDay(ctx, req.DoctorID, date)
	m.publish(events.EventHoldPlaced, reservation)
	metrics.IncHold("success")

	m.logger.Info().
		Str("reservation_id", reservation.ID).
		Str("doctor_id", req.DoctorID).
		Str("patient_id", req.PatientID).
		Str("date", req.Date).
		Str("slot", start+"-"+end).
		Time("hold_expires_at", holdUntil).
		Msg("Hold placed")

	return reservation, nil
}

// ReleaseHold отменяет бронь пациента на любой стадии до терминала:
// холд, бронь на рассмотрении или ожидающая оплаты. Повторный вызов по
// уже завершённой брони не ошибка.
func (m *HoldManager) ReleaseHold(ctx context.Context, id, patientID string) error {
	r, err := m.ledger.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if r.PatientID != patientID {
		m.logger.Warn().
			Str("reservation_id", id).
			Str("patient_id", patientID).
			Msg("Release attempt by non-owner")
		return domain.ErrWrongOwner
	}
	if models.IsTerminalStatus(r.Status) {
		return nil
	}

	_, err = m.ledger.CompareAndTransition(ctx, id, r.Status, models.StatusCancelled,
		func(res *models.Reservation) error {
			res.HoldExpiresAt = nil
			if res.Payment != nil {
				res.Payment.Status = models.PaymentStatusCancelled
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Кто-то успел раньше; если бронь уже в терминале, релиз
			// считается выполненным
			cur, getErr := m.ledger.GetReservation(ctx, id)
			if getErr == nil && models.IsTerminalStatus(cur.Status) {
				return nil
			}
		}
		return err
	}

	m.invalidateDay(ctx, r.DoctorID, r.Date)
	m.publish(events.EventHoldReleased, r)
	metrics.IncTransition(models.StatusCancelled)

	m.logger.Info().
		Str("reservation_id", id).
		Str("released_from", r.Status).
		Msg("Reservation released")
	return nil
}

// ReconcileExpired sweeps lapsed holds and payment windows into the
// expired status. Each row goes through CompareAndTransition, so a
// concurrent sweeper losing the race is not an error.
func (m *HoldManager) ReconcileExpired(ctx context.Context) (int, error) {
	now := m.clock.Now()
	swept := 0

	holds, err := m.ledger.GetExpiredHolds(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired holds: %w", err)
	}
	for _, r := range holds {
		if m.expireOne(ctx, r, r.Status) {
			swept++
		}
	}

	payments, err := m.ledger.GetExpiredPayments(ctx, now, 100)
	if err != nil {
		return swept, fmt.Errorf("failed to list expired payment windows: %w", err)
	}
	for _, r := range payments {
		if m.expireOne(ctx, r, r.Status) {
			swept++
		}
	}

	if swept > 0 {
		metrics.AddReconciled(swept)
		m.logger.Info().Int("count", swept).Msg("Expired reservations swept")
	}
	return swept, nil
}

func (m *HoldManager) expireOne(ctx context.Context, r *models.Reservation, expected string) bool {
	_, err := m.ledger.CompareAndTransition(ctx, r.ID, expected, models.StatusExpired,
		func(res *models.Reservation) error {
			if res.Payment != nil {
				res.Payment.Status = models.PaymentStatusExpired
			}
			return nil
		})
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			m.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("Failed to expire reservation")
		}
		return false
	}

	m.invalidateDay(ctx, r.DoctorID, r.Date)
	m.publish(events.EventExpired, r)
	metrics.IncTransition(models.StatusExpired)
	return true
}

func (m *HoldManager) invalidateDay(ctx context.Context, doctorID string, date time.Time) {
	if err := m.cache.InvalidateDay(ctx, doctorID, date); err != nil {
		m.logger.Error().Err(err).Str("doctor_id", doctorID).Msg("Failed to invalidate day view")
	}
}

func (m *HoldManager) publish(eventType string, r *models.Reservation) {
	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		DoctorID:      r.DoctorID,
		PatientID:     r.PatientID,
		Date:          r.Date.Format(models.DateLayout),
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Status:        r.Status,
		HoldExpiresAt: r.HoldExpiresAt,
	}
	if err := m.bus.PublishJSON(eventType, payload); err != nil {
		m.logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

// onGrid reports whether [start, end) is one of the day's slots.
func onGrid(tpl *models.DayTemplate, start, end string) bool {
	for _, s := range schedule.Generate(tpl, nil, time.Time{}) {
		if s.StartTime == start && s.EndTime == end {
			return true
		}
	}
	return false
}
