package schedule

import (
	"testing"
	"time"

	"medbook/internal/domain"
	"medbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogFixture() []models.DoctorSchedule {
	return []models.DoctorSchedule{
		{
			DoctorID: "doc-1",
			Name:     "Др. Иванова",
			Fee:      150000,
			Currency: "RUB",
			Weekly: map[string]models.DayRule{
				"mon": {Start: "09:00", End: "17:00", BreakStart: "13:00", BreakEnd: "14:00", SlotMinutes: 30},
				"fri": {Start: "10:00", End: "12:00", SlotMinutes: 20},
			},
			Override: []models.DateOverride{
				{Date: "2026-02-09", Rule: models.DayRule{Inactive: true}},
				{Date: "2026-02-13", Rule: models.DayRule{Start: "08:00", End: "10:00", SlotMinutes: 20}},
			},
		},
	}
}

func TestNewTemplateStoreRejectsDuplicates(t *testing.T) {
	schedules := append(catalogFixture(), catalogFixture()...)
	_, err := NewTemplateStore(schedules)
	assert.Error(t, err)
}

func TestDayForWeeklyRule(t *testing.T) {
	store, err := NewTemplateStore(catalogFixture())
	require.NoError(t, err)

	// 2026-02-02 понедельник
	tpl, err := store.DayFor("doc-1", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, tpl.IsActive)
	assert.Equal(t, "09:00:00", tpl.StartTime)
	assert.Equal(t, "17:00:00", tpl.EndTime)
	assert.Equal(t, "13:00:00", tpl.BreakStart)
	assert.Equal(t, "14:00:00", tpl.BreakEnd)
	assert.Equal(t, 30, tpl.SlotDuration)
}

func TestDayForDayOff(t *testing.T) {
	store, err := NewTemplateStore(catalogFixture())
	require.NoError(t, err)

	// 2026-02-03 вторник, в расписании его нет
	tpl, err := store.DayFor("doc-1", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, tpl.IsActive)
	assert.Empty(t, tpl.StartTime)
}

func TestDayForInactiveOverride(t *testing.T) {
	store, err := NewTemplateStore(catalogFixture())
	require.NoError(t, err)

	// 2026-02-09 понедельник, но override выключает день
	tpl, err := store.DayFor("doc-1", time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, tpl.IsActive)
}

func TestDayForOverrideReplacesWeekly(t *testing.T) {
	store, err := NewTemplateStore(catalogFixture())
	require.NoError(t, err)

	// 2026-02-13 пятница c особыми часами
	tpl, err := store.DayFor("doc-1", time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, tpl.IsActive)
	assert.Equal(t, "08:00:00", tpl.StartTime)
	assert.Equal(t, "10:00:00", tpl.EndTime)
}

func TestDayForUnknownDoctor(t *testing.T) {
	store, err := NewTemplateStore(catalogFixture())
	require.NoError(t, err)

	_, err = store.DayFor("ghost", time.Now())
	assert.ErrorIs(t, err, domain.ErrUnknownDoctor)
}

func TestFee(t *testing.T) {
	store, err := NewTemplateStore(catalogFixture())
	require.NoError(t, err)

	fee, currency, err := store.Fee("doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), fee)
	assert.Equal(t, "RUB", currency)

	_, _, err = store.Fee("ghost")
	assert.ErrorIs(t, err, domain.ErrUnknownDoctor)
}
