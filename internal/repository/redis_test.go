package repository

import (
	"context"
	"testing"
	"time"

	"medbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCalendarCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	cache := NewRedisCalendarCache(client, time.Hour)
	ctx := context.Background()
	date := time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)

	t.Run("SetAndGetDayView", func(t *testing.T) {
		view := &models.DayAvailability{
			AvailableDate: "2026-02-06",
			IsActive:      true,
			StartTime:     "10:00:00",
			EndTime:       "12:00:00",
			SlotDuration:  20,
			Slots: []models.Slot{
				{StartTime: "10:00:00", EndTime: "10:20:00", State: models.SlotStateAvailable},
			},
		}

		require.NoError(t, cache.SetDayView(ctx, "doc-1", date, view))

		got, err := cache.GetDayView(ctx, "doc-1", date)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, view.AvailableDate, got.AvailableDate)
		require.Len(t, got.Slots, 1)
		assert.Equal(t, models.SlotStateAvailable, got.Slots[0].State)
	})

	t.Run("GetMissReturnsNil", func(t *testing.T) {
		got, err := cache.GetDayView(ctx, "doc-2", date)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("InvalidateDay", func(t *testing.T) {
		view := &models.DayAvailability{AvailableDate: "2026-02-06", IsActive: true}
		require.NoError(t, cache.SetDayView(ctx, "doc-3", date, view))
		require.NoError(t, cache.InvalidateDay(ctx, "doc-3", date))

		got, err := cache.GetDayView(ctx, "doc-3", date)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ViewExpiresWithTTL", func(t *testing.T) {
		short := NewRedisCalendarCache(client, time.Second)
		view := &models.DayAvailability{AvailableDate: "2026-02-06"}
		require.NoError(t, short.SetDayView(ctx, "doc-4", date, view))

		s.FastForward(2 * time.Second)

		got, err := short.GetDayView(ctx, "doc-4", date)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CheckRateLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := cache.CheckRateLimit(ctx, "pat-1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, err := cache.CheckRateLimit(ctx, "pat-1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		// Окно истекло, счётчик сброшен
		s.FastForward(2 * time.Minute)
		allowed, err = cache.CheckRateLimit(ctx, "pat-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}
