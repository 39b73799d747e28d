package calendar

import (
	"context"
	"fmt"
	"time"

	"medbook/internal/clock"
	"medbook/internal/domain"
	"medbook/internal/models"
	"medbook/internal/schedule"

	"github.com/rs/zerolog"
)

// Builder собирает дневные сетки для клиента. Только чтение: клиент
// перечитывает календарь после каждой мутации, пушей нет.
type Builder struct {
	ledger    domain.Ledger
	templates *schedule.TemplateStore
	cache     domain.CalendarCache
	clock     clock.Clock
	logger    *zerolog.Logger
}

func NewBuilder(
	ledger domain.Ledger,
	templates *schedule.TemplateStore,
	cache domain.CalendarCache,
	clk clock.Clock,
	logger *zerolog.Logger,
) *Builder {
	return &Builder{
		ledger:    ledger,
		templates: templates,
		cache:     cache,
		clock:     clk,
		logger:    logger,
	}
}

// MaxRangeDays ограничивает ширину запрошенного диапазона.
const MaxRangeDays = 62

func (b *Builder) BuildRange(ctx context.Context, doctorID string, from, to time.Time) (*models.DoctorSlotsRange, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", domain.ErrInvalidSlot)
	}
	if to.Sub(from) > MaxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range wider than %d days", domain.ErrInvalidSlot, MaxRangeDays)
	}

	// Один запрос в леджер на весь диапазон
	reservations, err := b.ledger.GetReservationsByDoctorRange(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string][]*models.Reservation)
	for _, r := range reservations {
		key := r.Date.Format(models.DateLayout)
		byDate[key] = append(byDate[key], r)
	}

	now := b.clock.Now()
	result := &models.DoctorSlotsRange{DoctorID: doctorID}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		view, err := b.buildDay(ctx, doctorID, day, byDate[day.Format(models.DateLayout)], now)
		if err != nil {
			return nil, err
		}
		result.Days = append(result.Days, *view)
	}
	return result, nil
}

func (b *Builder) buildDay(ctx context.Context, doctorID string, date time.Time, reservations []*models.Reservation, now time.Time) (*models.DayAvailability, error) {
	if cached, err := b.cache.GetDayView(ctx, doctorID, date); err != nil {
		b.logger.Error().Err(err).Str("doctor_id", doctorID).Msg("Day view cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	tpl, err := b.templates.DayFor(doctorID, date)
	if err != nil {
		return nil, err
	}

	view := &models.DayAvailability{
		AvailableDate: date.Format(models.DateLayout),
		IsActive:      tpl.IsActive,
		Slots:         []models.Slot{},
	}
	if tpl.IsActive {
		view.StartTime = tpl.StartTime
		view.EndTime = tpl.EndTime
		view.BreakStart = tpl.BreakStart
		view.BreakEnd = tpl.BreakEnd
		view.SlotDuration = tpl.SlotDuration
		if slots := schedule.Generate(tpl, reservations, now); slots != nil {
			view.Slots = slots
		}
	}

	if err := b.cache.SetDayView(ctx, doctorID, date, view); err != nil {
		b.logger.Error().Err(err).Str("doctor_id", doctorID).Msg("Day view cache write failed")
	}
	return view, nil
}
