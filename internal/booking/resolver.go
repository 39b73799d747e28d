package booking

import (
	"context"
	"fmt"

	"medbook/internal/clock"
	"medbook/internal/config"
	"medbook/internal/domain"
	"medbook/internal/events"
	"medbook/internal/metrics"
	"medbook/internal/models"
	"medbook/internal/schedule"

	"github.com/rs/zerolog"
)

// Resolver ведёт бронь от холда до терминального статуса. Какая из двух
// веток доступна (ручное одобрение или оплата) решает booking.flow.
type Resolver struct {
	ledger     domain.Ledger
	templates  *schedule.TemplateStore
	cache      domain.CalendarCache
	bus        domain.EventPublisher
	gateway    domain.PaymentGateway
	notifier   domain.Notifier
	syncWorker domain.SyncWorker
	clock      clock.Clock
	cfg        config.BookingConfig
	logger     *zerolog.Logger
}

func NewResolver(
	ledger domain.Ledger,
	templates *schedule.TemplateStore,
	cache domain.CalendarCache,
	bus domain.EventPublisher,
	gateway domain.PaymentGateway,
	notifier domain.Notifier,
	syncWorker domain.SyncWorker,
	clk clock.Clock,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *Resolver {
	return &Resolver{
		ledger:     ledger,
		templates:  templates,
		cache:      cache,
		bus:        bus,
		gateway:    gateway,
		notifier:   notifier,
		syncWorker: syncWorker,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
}

// AttachDetails записывает жалобу и ссылки на файлы в действующий холд.
// Сами файлы живут во внешнем хранилище, здесь только их URI.
func (s *Resolver) AttachDetails(ctx context.Context, id, patientID, description string, attachmentRefs []string) (*models.Reservation, error) {
	r, err := s.ledger.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.PatientID != patientID {
		return nil, domain.ErrWrongOwner
	}
	if r.Status != models.StatusHeld {
		return nil, domain.ErrConflict
	}
	if r.HoldExpired(s.clock.Now()) {
		return nil, domain.ErrExpired
	}

	updated, err := s.ledger.CompareAndTransition(ctx, id, models.StatusHeld, models.StatusHeld,
		func(res *models.Reservation) error {
			res.Description = description
			res.AttachmentRefs = attachmentRefs
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventDetailsAttached, updated)
	s.logger.Info().Str("reservation_id", id).Int("attachments", len(attachmentRefs)).Msg("Details attached")
	return updated, nil
}

// SubmitForReview передаёт холд на решение врача (ветка review).
func (s *Resolver) SubmitForReview(ctx context.Context, id, patientID string) (*models.Reservation, error) {
	if s.cfg.Flow != models.FlowReview {
		return nil, domain.ErrFlowDisabled
	}

	r, err := s.ledger.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.PatientID != patientID {
		return nil, domain.ErrWrongOwner
	}
	if r.Status != models.StatusHeld {
		return nil, domain.ErrConflict
	}
	if r.HoldExpired(s.clock.Now()) {
		return nil, domain.ErrExpired
	}

	updated, err := s.ledger.CompareAndTransition(ctx, id, models.StatusHeld, models.StatusPendingReview,
		func(res *models.Reservation) error {
			res.HoldExpiresAt = nil
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, events.EventSubmitted, updated, models.SyncTaskUpsert)

	if s.notifier != nil {
		if err := s.notifier.ReservationSubmitted(ctx, updated); err != nil {
			s.logger.Error().Err(err).Str("reservation_id", id).Msg("Failed to notify clinic channel")
		}
	}

	s.logger.Info().Str("reservation_id", id).Msg("Reservation submitted for review")
	return updated, nil
}

// Decide фиксирует решение врача по заявке (ветка review). При одобрении
// открывается окно оплаты со стоимостью приёма из каталога.
func (s *Resolver) Decide(ctx context.Context, id, doctorID string, approve bool) (*models.Reservation, error) {
	if s.cfg.Flow != models.FlowReview {
		return nil, domain.ErrFlowDisabled
	}

	r, err := s.ledger.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.DoctorID != doctorID {
		return nil, domain.ErrWrongOwner
	}
	if r.Status != models.StatusPendingReview {
		return nil, domain.ErrConflict
	}

	var updated *models.Reservation
	eventType := events.EventRejected
	if approve {
		fee, currency, err := s.templates.Fee(r.DoctorID)
		if err != nil {
			return nil, err
		}
		payUntil := s.clock.Now().Add(s.cfg.PaymentTTL())
		updated, err = s.ledger.CompareAndTransition(ctx, id, models.StatusPendingReview, models.StatusApprovedUnpaid,
			func(res *models.Reservation) error {
				res.Payment = &models.Payment{
					Amount:    fee,
					Currency:  currency,
					Status:    models.PaymentStatusPending,
					ExpiresAt: &payUntil,
				}
				return nil
			})
		if err != nil {
			return nil, err
		}
		eventType = events.EventApproved
	} else {
		updated, err = s.ledger.CompareAndTransition(ctx, id, models.StatusPendingReview, models.StatusRejected, nil)
		if err != nil {
			return nil, err
		}
	}

	s.afterTransition(ctx, eventType, updated, models.SyncTaskUpdateStatus)

	if s.notifier != nil {
		if err := s.notifier.ReservationDecided(ctx, updated); err != nil {
			s.logger.Error().Err(err).Str("reservation_id", id).Msg("Failed to notify clinic channel")
		}
	}

	s.logger.Info().
		Str("reservation_id", id).
		Bool("approved", approve).
		Msg("Reservation decided")
	return updated, nil
}

// RequestPayment открывает чекаут у платёжного шлюза. В ветке payment
// это прямой путь из холда; в ветке review оплата доступна только после
// одобрения, и окно уже открыто решением врача.
func (s *Resolver) RequestPayment(ctx context.Context, id, patientID string) (*domain.Checkout, error) {
	r, err := s.ledger.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.PatientID != patientID {
		return nil, domain.ErrWrongOwner
	}

	now := s.clock.Now()
	switch r.Status {
	case models.StatusHeld:
		if s.cfg.Flow != models.FlowPayment {
			return nil, domain.ErrFlowDisabled
		}
		if r.HoldExpired(now) {
			return nil, domain.ErrExpired
		}

		fee, currency, err := s.templates.Fee(r.DoctorID)
		if err != nil {
			return nil, err
		}
		payUntil := now.Add(s.cfg.PaymentTTL())
		checkout, err := s.gateway.CreateCheckout(ctx, id, fee, currency, payUntil)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkout: %w", err)
		}

		updated, err := s.ledger.CompareAndTransition(ctx, id, models.StatusHeld, models.StatusPendingPayment,
			func(res *models.Reservation) error {
				res.HoldExpiresAt = nil
				res.Payment = &models.Payment{
					Reference: checkout.Reference,
					Amount:    checkout.Amount,
					Currency:  checkout.Currency,
					Status:    models.PaymentStatusPending,
					ExpiresAt: &checkout.ExpiresAt,
				}
				return nil
			})
		if err != nil {
			return nil, err
		}

		s.afterTransition(ctx, events.EventPaymentRequested, updated, models.SyncTaskUpsert)
		s.logger.Info().Str("reservation_id", id).Str("reference", checkout.Reference).Msg("Payment requested")
		return checkout, nil

	case models.StatusApprovedUnpaid:
		if r.Payment == nil {
			return nil, domain.ErrConflict
		}
		if r.PaymentExpired(now) {
			return nil, domain.ErrExpired
		}

		checkout, err := s.gateway.CreateCheckout(ctx, id, r.Payment.Amount, r.Payment.Currency, *r.Payment.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkout: %w", err)
		}

		// Статус не меняется: окно оплаты уже открыто одобрением
		_, err = s.ledger.CompareAndTransition(ctx, id, models.StatusApprovedUnpaid, models.StatusApprovedUnpaid,
			func(res *models.Reservation) error {
				res.Payment.Reference = checkout.Reference
				return nil
			})
		if err != nil {
			return nil, err
		}

		s.logger.Info().Str("reservation_id", id).Str("reference", checkout.Reference).Msg("Payment requested")
		return checkout, nil

	default:
		return nil, domain.ErrConflict
	}
}

// ConfirmPayment принимает вердикт шлюза. Движок сам исход не считает,
// только применяет его к брони.
func (s *Resolver) ConfirmPayment(ctx context.Context, id, gatewayStatus string) (*models.Reservation, error) {
	var next string
	switch gatewayStatus {
	case models.PaymentStatusSucceeded:
		next = models.StatusPaid
	case models.PaymentStatusCancelled:
		next = models.StatusCancelled
	case models.PaymentStatusExpired:
		next = models.StatusExpired
	default:
		return nil, fmt.Errorf("unknown gateway status %q", gatewayStatus)
	}

	r, err := s.ledger.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusPendingPayment && r.Status != models.StatusApprovedUnpaid {
		return nil, domain.ErrConflict
	}

	updated, err := s.ledger.CompareAndTransition(ctx, id, r.Status, next,
		func(res *models.Reservation) error {
			if res.Payment != nil {
				res.Payment.Status = gatewayStatus
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	eventType := events.EventExpired
	switch next {
	case models.StatusPaid:
		eventType = events.EventPaid
	case models.StatusCancelled:
		eventType = events.EventHoldReleased
	}
	s.afterTransition(ctx, eventType, updated, models.SyncTaskUpdateStatus)

	s.logger.Info().
		Str("reservation_id", id).
		Str("gateway_status", gatewayStatus).
		Str("status", updated.Status).
		Msg("Payment confirmed")
	return updated, nil
}

// afterTransition делает общую обвязку успешного перехода: сброс кэша,
// событие, задача синхронизации, метрика.
func (s *Resolver) afterTransition(ctx context.Context, eventType string, r *models.Reservation, taskType string) {
	if err := s.cache.InvalidateDay(ctx, r.DoctorID, r.Date); err != nil {
		s.logger.Error().Err(err).Str("doctor_id", r.DoctorID).Msg("Failed to invalidate day view")
	}
	s.publish(eventType, r)
	metrics.IncTransition(r.Status)

	if s.syncWorker != nil {
		if err := s.syncWorker.EnqueueTask(ctx, taskType, r); err != nil {
			s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("Failed to enqueue sync task")
		}
	}
}

func (s *Resolver) publish(eventType string, r *models.Reservation) {
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
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
