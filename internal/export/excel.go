package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"medbook/internal/clock"
	"medbook/internal/domain"
	"medbook/internal/models"
	"medbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Расписание"

// ScheduleExporter собирает xlsx-отчёт по сетке приёмов: строка на
// каждый слот каждого врача за период.
type ScheduleExporter struct {
	ledger    domain.Ledger
	templates *schedule.TemplateStore
	clock     clock.Clock
	path      string
	logger    *zerolog.Logger
}

func NewScheduleExporter(ledger domain.Ledger, templates *schedule.TemplateStore, clk clock.Clock, path string, logger *zerolog.Logger) *ScheduleExporter {
	return &ScheduleExporter{
		ledger:    ledger,
		templates: templates,
		clock:     clk,
		path:      path,
		logger:    logger,
	}
}

// BuildWorkbook строит книгу в памяти; вызывающий отвечает за Close.
func (e *ScheduleExporter) BuildWorkbook(ctx context.Context, from, to time.Time) (*excelize.File, error) {
	daily, err := e.ledger.GetDailyReservations(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("error getting reservations: %v", err)
	}

	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "F1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Дата", "Врач", "Начало", "Конец", "Статус", "Пациент"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	now := e.clock.Now()
	row := 3
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayReservations := daily[day.Format(models.DateLayout)]
		for _, doctorID := range e.templates.DoctorIDs() {
			tpl, err := e.templates.DayFor(doctorID, day)
			if err != nil || !tpl.IsActive {
				continue
			}

			patients := make(map[string]string)
			for _, r := range dayReservations {
				if r.DoctorID != doctorID {
					continue
				}
				if models.OccupiesSlot(r.Status) {
					patients[r.StartTime+"-"+r.EndTime] = r.PatientID
				}
			}

			for _, slot := range schedule.Generate(tpl, dayReservations, now) {
				values := []interface{}{
					day.Format(models.DateLayout),
					e.templates.DoctorName(doctorID),
					slot.StartTime,
					slot.EndTime,
					slot.State,
					"",
				}
				if slot.State != models.SlotStateAvailable {
					values[5] = patients[slot.StartTime+"-"+slot.EndTime]
				}
				for i, v := range values {
					cell, _ := excelize.CoordinatesToCellName(i+1, row)
					_ = f.SetCellValue(sheetName, cell, v)
				}
				row++
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 20)
	_ = f.SetColWidth(sheetName, "C", "F", 14)

	return f, nil
}

// ExportFile сохраняет отчёт на диск и возвращает путь.
func (e *ScheduleExporter) ExportFile(ctx context.Context, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f, err := e.BuildWorkbook(ctx, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx",
		from.Format(models.DateLayout), to.Format(models.DateLayout))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}
