package repository

import (
	"context"
	"sync"
	"time"

	"medbook/internal/models"
)

// MemoryCalendarCache хранит дневные сетки в памяти процесса. Используется
// как fallback, когда Redis недоступен.
type MemoryCalendarCache struct {
	views sync.Map
	ttl   time.Duration

	rateMu     sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryCalendarCache(ttl time.Duration) *MemoryCalendarCache {
	return &MemoryCalendarCache{
		ttl:        ttl,
		rateLimits: make(map[string]*rateLimitEntry),
	}
}

type viewEntry struct {
	view      *models.DayAvailability
	expiresAt time.Time
}

func memoryKey(doctorID string, date time.Time) string {
	return doctorID + ":" + date.Format(models.DateLayout)
}

func (r *MemoryCalendarCache) GetDayView(ctx context.Context, doctorID string, date time.Time) (*models.DayAvailability, error) {
	val, ok := r.views.Load(memoryKey(doctorID, date))
	if !ok {
		return nil, nil
	}
	entry := val.(*viewEntry)
	if time.Now().After(entry.expiresAt) {
		r.views.Delete(memoryKey(doctorID, date))
		return nil, nil
	}
	return entry.view, nil
}

func (r *MemoryCalendarCache) SetDayView(ctx context.Context, doctorID string, date time.Time, view *models.DayAvailability) error {
	r.views.Store(memoryKey(doctorID, date), &viewEntry{
		view:      view,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryCalendarCache) InvalidateDay(ctx context.Context, doctorID string, date time.Time) error {
	r.views.Delete(memoryKey(doctorID, date))
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// CheckRateLimit инкрементирует счётчик под мьютексом, чтобы
// параллельные запросы одного пациента не проскакивали лимит.
func (r *MemoryCalendarCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		r.rateLimits[key] = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
		return limit >= 1, nil
	}

	entry.count++
	return entry.count <= limit, nil
}
