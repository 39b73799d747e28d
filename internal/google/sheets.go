package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"medbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const reservationsSheet = "Reservations"

var errRowNotFound = errors.New("reservation row not found")

// SheetsService зеркалит брони в бэк-офисную таблицу. Запись идёт через
// очередь синхронизации, поэтому медленный Google не тормозит запросы.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	service := &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		service.WarmUpCache(ctx)
	}()

	return service, nil
}

// TestConnection проверяет доступ к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта, его нужно
// добавить в таблицу как редактора
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" && id != "ID" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

func reservationRowValues(r *models.Reservation) []interface{} {
	var amount int64
	var currency string
	if r.Payment != nil {
		amount = r.Payment.Amount
		currency = r.Payment.Currency
	}
	return []interface{}{
		r.ID,
		r.DoctorID,
		r.PatientID,
		r.Date.Format(models.DateLayout),
		r.StartTime,
		r.EndTime,
		r.Status,
		r.Description,
		amount,
		currency,
		r.CreatedAt.Format("2006-01-02 15:04:05"),
		r.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// AppendReservation добавляет новую строку
func (s *SheetsService) AppendReservation(ctx context.Context, r *models.Reservation) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, reservationsSheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// UpsertReservation updates the reservation row or appends it when the
// sheet does not know the id yet.
func (s *SheetsService) UpsertReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	rowIdx, err := s.FindReservationRow(ctx, r.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendReservation(ctx, r)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:L%d", reservationsSheet, rowIdx, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// UpdateReservationStatus updates status and UpdatedAt for a row.
func (s *SheetsService) UpdateReservationStatus(ctx context.Context, reservationID, status string) error {
	rowIdx, err := s.FindReservationRow(ctx, reservationID)
	if err != nil {
		return err
	}

	statusRange := fmt.Sprintf("%s!G%d:G%d", reservationsSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	updatedRange := fmt.Sprintf("%s!L%d:L%d", reservationsSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{now}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindReservationRow locates the 1-based row index for an id in column A.
func (s *SheetsService) FindReservationRow(ctx context.Context, reservationID string) (int, error) {
	if reservationID == "" {
		return 0, fmt.Errorf("reservation id is required")
	}

	if row, ok := s.getCachedRow(reservationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if v, ok := row[0].(string); ok && v == reservationID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(reservationID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, errRowNotFound
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}
