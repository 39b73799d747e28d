package repository

import (
	"context"
	"sync/atomic"
	"time"

	"medbook/internal/domain"
	"medbook/internal/models"

	"github.com/rs/zerolog"
)

// FailoverCalendarCache переключается на fallback при ошибке primary и
// пробует вернуться через минуту.
type FailoverCalendarCache struct {
	primary   domain.CalendarCache
	fallback  domain.CalendarCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverCalendarCache(primary, fallback domain.CalendarCache, logger *zerolog.Logger) *FailoverCalendarCache {
	return &FailoverCalendarCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverCalendarCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary calendar cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverCalendarCache) GetDayView(ctx context.Context, doctorID string, date time.Time) (*models.DayAvailability, error) {
	if !r.isDown.Load() {
		view, err := r.primary.GetDayView(ctx, doctorID, date)
		if err == nil {
			return view, nil
		}
		r.markDown(err)
	}

	// Пробуем вернуться на primary через минуту
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		view, err := r.primary.GetDayView(ctx, doctorID, date)
		if err == nil {
			r.isDown.Store(false)
			return view, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetDayView(ctx, doctorID, date)
}

func (r *FailoverCalendarCache) SetDayView(ctx context.Context, doctorID string, date time.Time, view *models.DayAvailability) error {
	if !r.isDown.Load() {
		err := r.primary.SetDayView(ctx, doctorID, date, view)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetDayView(ctx, doctorID, date, view)
}

func (r *FailoverCalendarCache) InvalidateDay(ctx context.Context, doctorID string, date time.Time) error {
	if !r.isDown.Load() {
		err := r.primary.InvalidateDay(ctx, doctorID, date)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.InvalidateDay(ctx, doctorID, date)
}

func (r *FailoverCalendarCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
