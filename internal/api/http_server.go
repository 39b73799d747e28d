package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medbook/internal/booking"
	"medbook/internal/calendar"
	"medbook/internal/config"
	"medbook/internal/domain"
	"medbook/internal/export"
	"medbook/internal/metrics"
	"medbook/internal/models"

	"github.com/rs/zerolog"
)

// Deps собирает сервисы, которые обслуживают HTTP-эндпоинты.
// Exporter опционален: без него отчётный эндпоинт отвечает 503.
type Deps struct {
	Holds    *booking.HoldManager
	Resolver *booking.Resolver
	Calendar *calendar.Builder
	Ledger   domain.Ledger
	Exporter *export.ScheduleExporter
}

// HTTPServer exposes the reservation engine over REST.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	auth   *HTTPAuth
	logger *zerolog.Logger
	server *http.Server
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	handler := srv.loggingMiddleware(srv.auth.Wrap(srv.Routes()))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Routes returns the bare mux without auth or logging wrappers. Tests go
// through Handler() to exercise the full chain.
func (s *HTTPServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/doctors/{id}/slots/range", s.handleSlotsRange)
	mux.HandleFunc("POST /api/v1/appointments/hold", s.handleHold)
	mux.HandleFunc("POST /api/v1/appointments/{id}/release", s.handleRelease)
	mux.HandleFunc("POST /api/v1/appointments/{id}/details", s.handleDetails)
	mux.HandleFunc("POST /api/v1/appointments/{id}/request-booking", s.handleRequestBooking)
	mux.HandleFunc("POST /api/v1/appointments/{id}/request-payment", s.handleRequestPayment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/decision", s.handleDecision)
	mux.HandleFunc("POST /api/v1/payments/callback", s.handlePaymentCallback)
	mux.HandleFunc("GET /api/v1/appointments/{id}", s.handleGetAppointment)
	mux.HandleFunc("GET /api/v1/patients/{id}/appointments", s.handlePatientAppointments)
	mux.HandleFunc("GET /api/v1/reports/schedule.xlsx", s.handleScheduleReport)

	return mux
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleSlotsRange(w http.ResponseWriter, r *http.Request) {
	doctorID := strings.TrimSpace(r.PathValue("id"))
	if doctorID == "" {
		writeError(w, http.StatusBadRequest, "doctor id is required")
		return
	}

	from, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.deps.Calendar.BuildRange(r.Context(), doctorID, from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleHold(w http.ResponseWriter, r *http.Request) {
	var req booking.PlaceHoldRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DoctorID == "" || req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "doctor_id and patient_id are required")
		return
	}

	reservation, err := s.deps.Holds.PlaceHold(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"appointment_id":  reservation.ID,
		"status":          reservation.Status,
		"lock_expires_at": reservation.HoldExpiresAt,
	})
}

func (s *HTTPServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID string `json:"patient_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	if err := s.deps.Holds.ReleaseHold(r.Context(), r.PathValue("id"), body.PatientID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *HTTPServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID      string   `json:"patient_id"`
		Description    string   `json:"description"`
		AttachmentRefs []string `json:"attachment_refs"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	updated, err := s.deps.Resolver.AttachDetails(r.Context(), r.PathValue("id"), body.PatientID, body.Description, body.AttachmentRefs)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleRequestBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID string `json:"patient_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	updated, err := s.deps.Resolver.SubmitForReview(r.Context(), r.PathValue("id"), body.PatientID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID string `json:"patient_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	checkout, err := s.deps.Resolver.RequestPayment(r.Context(), r.PathValue("id"), body.PatientID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

func (s *HTTPServer) handleDecision(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DoctorID string `json:"doctor_id"`
		Decision string `json:"decision"` // approve / reject
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.DoctorID == "" {
		writeError(w, http.StatusBadRequest, "doctor_id is required")
		return
	}

	var approve bool
	switch body.Decision {
	case "approve":
		approve = true
	case "reject":
		approve = false
	default:
		writeError(w, http.StatusBadRequest, "decision must be approve or reject")
		return
	}

	updated, err := s.deps.Resolver.Decide(r.Context(), r.PathValue("id"), body.DoctorID, approve)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	switch body.Status {
	case models.PaymentStatusSucceeded, models.PaymentStatusCancelled, models.PaymentStatusExpired:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown payment status %q", body.Status))
		return
	}

	updated, err := s.deps.Resolver.ConfirmPayment(r.Context(), body.AppointmentID, body.Status)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	reservation, err := s.deps.Ledger.GetReservation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (s *HTTPServer) handlePatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID := strings.TrimSpace(r.PathValue("id"))
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient id is required")
		return
	}

	reservations, err := s.deps.Ledger.GetPatientReservations(r.Context(), patientID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if reservations == nil {
		reservations = []*models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"patient_id":   patientID,
		"appointments": reservations,
	})
}

func (s *HTTPServer) handleScheduleReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "exports are not configured")
		return
	}

	from, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	workbook, err := s.deps.Exporter.BuildWorkbook(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to build schedule report")
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}

	filename := fmt.Sprintf("schedule_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := workbook.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("Failed to stream schedule report")
	}
}

// writeDomainError переводит доменные ошибки в HTTP-статусы.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSlotTaken),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrFlowDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrWrongOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownDoctor):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidSlot),
		errors.Is(err, domain.ErrPastSlot),
		errors.Is(err, domain.ErrInactiveDay),
		errors.Is(err, domain.ErrDateTooFar):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		metrics.IncHTTP(endpoint)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; expected YYYY-MM-DD", name)
	}
	return date, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
