package schedule

import (
	"fmt"
	"strings"
	"time"

	"medbook/internal/domain"
	"medbook/internal/models"
)

var weekdayKeys = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// TemplateStore держит расписания врачей из каталога. Каталог ведётся
// снаружи, движок его только читает.
type TemplateStore struct {
	doctors map[string]models.DoctorSchedule
}

func NewTemplateStore(schedules []models.DoctorSchedule) (*TemplateStore, error) {
	doctors := make(map[string]models.DoctorSchedule, len(schedules))
	for _, s := range schedules {
		if _, ok := doctors[s.DoctorID]; ok {
			return nil, fmt.Errorf("duplicate doctor_id in schedules: %s", s.DoctorID)
		}
		doctors[s.DoctorID] = s
	}
	return &TemplateStore{doctors: doctors}, nil
}

// DayFor materializes the working-day template for one doctor and date:
// the weekly rule for that weekday, replaced by a date override when one
// exists. Unknown doctor is the caller's error; a missing weekly rule
// just means a day off.
func (s *TemplateStore) DayFor(doctorID string, date time.Time) (*models.DayTemplate, error) {
	doc, ok := s.doctors[doctorID]
	if !ok {
		return nil, domain.ErrUnknownDoctor
	}

	rule, found := doc.Weekly[weekdayKeys[date.Weekday()]]
	dateKey := date.Format(models.DateLayout)
	for _, o := range doc.Override {
		if o.Date == dateKey {
			rule = o.Rule
			found = true
			break
		}
	}

	tpl := &models.DayTemplate{
		DoctorID: doctorID,
		Date:     date,
	}
	if !found || rule.Inactive {
		return tpl, nil
	}

	tpl.IsActive = true
	tpl.StartTime = NormalizeClock(rule.Start)
	tpl.EndTime = NormalizeClock(rule.End)
	tpl.BreakStart = NormalizeClock(rule.BreakStart)
	tpl.BreakEnd = NormalizeClock(rule.BreakEnd)
	tpl.SlotDuration = rule.SlotMinutes
	if tpl.SlotDuration <= 0 {
		tpl.SlotDuration = models.DefaultSlotDurationMinutes
	}
	return tpl, nil
}

// Fee returns the doctor's consultation price in minor units.
func (s *TemplateStore) Fee(doctorID string) (int64, string, error) {
	doc, ok := s.doctors[doctorID]
	if !ok {
		return 0, "", domain.ErrUnknownDoctor
	}
	return doc.Fee, doc.Currency, nil
}

func (s *TemplateStore) DoctorName(doctorID string) string {
	return s.doctors[doctorID].Name
}

func (s *TemplateStore) DoctorIDs() []string {
	ids := make([]string, 0, len(s.doctors))
	for id := range s.doctors {
		ids = append(ids, id)
	}
	return ids
}

// NormalizeClock pads values like "09:00" to "09:00:00".
func NormalizeClock(v string) string {
	if v == "" {
		return ""
	}
	if strings.Count(v, ":") == 1 {
		return v + ":00"
	}
	return v
}
