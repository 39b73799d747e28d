package schedule

import (
	"fmt"
	"time"

	"medbook/internal/models"
)

// Generate раскладывает рабочий день на сетку слотов и накладывает
// занятость из резервов. Чистая функция: ничего не пишет и не читает
// кроме аргументов.
//
// Слот, не влезающий целиком до конца дня или до начала перерыва,
// отбрасывается. Протухший, но ещё не подметённый холд проецируется
// как available.
func Generate(tpl *models.DayTemplate, reservations []*models.Reservation, now time.Time) []models.Slot {
	if tpl == nil || !tpl.IsActive || tpl.SlotDuration <= 0 {
		return nil
	}

	dayStart, err := parseClock(tpl.StartTime)
	if err != nil {
		return nil
	}
	dayEnd, err := parseClock(tpl.EndTime)
	if err != nil || dayEnd <= dayStart {
		return nil
	}

	var breakStart, breakEnd int
	hasBreak := tpl.BreakStart != "" && tpl.BreakEnd != ""
	if hasBreak {
		breakStart, err = parseClock(tpl.BreakStart)
		if err != nil {
			return nil
		}
		breakEnd, err = parseClock(tpl.BreakEnd)
		if err != nil || breakEnd <= breakStart {
			return nil
		}
	}

	occupied := indexReservations(tpl, reservations, now)

	step := tpl.SlotDuration
	var slots []models.Slot
	for cur := dayStart; cur+step <= dayEnd; cur += step {
		if hasBreak && cur < breakEnd && cur+step > breakStart {
			continue
		}

		slot := models.Slot{
			StartTime: formatClock(cur),
			EndTime:   formatClock(cur + step),
			State:     models.SlotStateAvailable,
		}
		if r, ok := occupied[slot.StartTime+"-"+slot.EndTime]; ok {
			switch r.Status {
			case models.StatusPaid, models.StatusApprovedUnpaid:
				slot.State = models.SlotStateBooked
			default:
				slot.State = models.SlotStateHold
				slot.HoldExpiresAt = r.HoldExpiresAt
			}
		}
		slots = append(slots, slot)
	}
	return slots
}

// indexReservations keeps only the reservations that still occupy a slot
// on the template's date.
func indexReservations(tpl *models.DayTemplate, reservations []*models.Reservation, now time.Time) map[string]*models.Reservation {
	dateKey := tpl.Date.Format(models.DateLayout)
	occupied := make(map[string]*models.Reservation)
	for _, r := range reservations {
		if r.DoctorID != tpl.DoctorID || r.Date.Format(models.DateLayout) != dateKey {
			continue
		}
		if !models.OccupiesSlot(r.Status) {
			continue
		}
		if r.Status == models.StatusHeld && r.HoldExpired(now) {
			continue
		}
		occupied[r.StartTime+"-"+r.EndTime] = r
	}
	return occupied
}

// parseClock converts "09:30:00" (or "09:30") to minutes since midnight.
func parseClock(v string) (int, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(v, "%d:%d:%d", &h, &m, &s); err != nil {
		if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("bad clock value %q: %w", v, err)
		}
	}
	if h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad clock value %q", v)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60)
}

// SlotInstant combines a calendar date with a clock value into a UTC
// instant, for past-slot checks.
func SlotInstant(date time.Time, clockValue string) (time.Time, error) {
	mins, err := parseClock(clockValue)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, time.UTC), nil
}
