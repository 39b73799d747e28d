package booking

import (
	"context"
	"io"
	"testing"
	"time"

	"medbook/internal/domain"
	"medbook/internal/models"
	"medbook/internal/payment"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) ReservationSubmitted(ctx context.Context, r *models.Reservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockNotifier) ReservationDecided(ctx context.Context, r *models.Reservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func newResolver(f *fixture, notifier domain.Notifier) *Resolver {
	logger := zerolog.New(io.Discard)
	gateway := payment.NewReferenceGateway(&logger)
	return NewResolver(f.db, f.templates, f.cache, f.bus, gateway, notifier, nil, f.clock, f.cfg, &logger)
}

func heldReservation(t *testing.T, f *fixture) *models.Reservation {
	r, err := f.holds.PlaceHold(context.Background(), fridayHold())
	require.NoError(t, err)
	return r
}

func TestAttachDetails(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)

	updated, err := resolver.AttachDetails(ctx, r.ID, "pat-1", "острая боль", []string{"scan.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusHeld, updated.Status)
	assert.Equal(t, "острая боль", updated.Description)
	assert.Equal(t, []string{"scan.pdf"}, updated.AttachmentRefs)
	require.NotNil(t, updated.HoldExpiresAt)
}

func TestAttachDetailsErrors(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)

	_, err := resolver.AttachDetails(ctx, "missing", "pat-1", "x", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = resolver.AttachDetails(ctx, r.ID, "pat-2", "x", nil)
	assert.ErrorIs(t, err, domain.ErrWrongOwner)

	f.clock.Advance(11 * time.Minute)
	_, err = resolver.AttachDetails(ctx, r.ID, "pat-1", "x", nil)
	assert.ErrorIs(t, err, domain.ErrExpired)

	// Бронь не изменилась после отказа
	got, err := f.db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Description)
}

func TestSubmitForReview(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	notifier := new(mockNotifier)
	resolver := newResolver(f, notifier)
	ctx := context.Background()

	r := heldReservation(t, f)
	notifier.On("ReservationSubmitted", ctx, mock.Anything).Return(nil).Once()

	updated, err := resolver.SubmitForReview(ctx, r.ID, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReview, updated.Status)
	assert.Nil(t, updated.HoldExpiresAt)
	notifier.AssertExpectations(t)

	// Повторная подача конфликтует
	_, err = resolver.SubmitForReview(ctx, r.ID, "pat-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSubmitForReviewExpiredHold(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)
	f.clock.Advance(11 * time.Minute)

	_, err := resolver.SubmitForReview(ctx, r.ID, "pat-1")
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestSubmitForReviewDisabledInPaymentFlow(t *testing.T) {
	cfg := testBookingConfig()
	cfg.Flow = models.FlowPayment
	f := newFixture(t, cfg)
	resolver := newResolver(f, nil)

	r := heldReservation(t, f)
	_, err := resolver.SubmitForReview(context.Background(), r.ID, "pat-1")
	assert.ErrorIs(t, err, domain.ErrFlowDisabled)
}

func TestDecideApprove(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	notifier := new(mockNotifier)
	resolver := newResolver(f, notifier)
	ctx := context.Background()

	r := heldReservation(t, f)
	notifier.On("ReservationSubmitted", ctx, mock.Anything).Return(nil)
	notifier.On("ReservationDecided", ctx, mock.Anything).Return(nil)

	_, err := resolver.SubmitForReview(ctx, r.ID, "pat-1")
	require.NoError(t, err)

	updated, err := resolver.Decide(ctx, r.ID, "doc-1", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApprovedUnpaid, updated.Status)

	// Одобрение открывает окно оплаты со стоимостью приёма
	require.NotNil(t, updated.Payment)
	assert.Equal(t, int64(150000), updated.Payment.Amount)
	assert.Equal(t, "RUB", updated.Payment.Currency)
	assert.Equal(t, models.PaymentStatusPending, updated.Payment.Status)
	require.NotNil(t, updated.Payment.ExpiresAt)
	assert.True(t, updated.Payment.ExpiresAt.Equal(f.clock.Now().Add(30*time.Minute)))
	notifier.AssertExpectations(t)
}

func TestDecideReject(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)
	_, err := resolver.SubmitForReview(ctx, r.ID, "pat-1")
	require.NoError(t, err)

	updated, err := resolver.Decide(ctx, r.ID, "doc-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)

	// Отклонение освобождает слот
	second := fridayHold()
	second.PatientID = "pat-2"
	_, err = f.holds.PlaceHold(ctx, second)
	assert.NoError(t, err)
}

func TestDecideErrors(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)

	// Решение до подачи на рассмотрение
	_, err := resolver.Decide(ctx, r.ID, "doc-1", true)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = resolver.SubmitForReview(ctx, r.ID, "pat-1")
	require.NoError(t, err)

	_, err = resolver.Decide(ctx, r.ID, "doc-2", true)
	assert.ErrorIs(t, err, domain.ErrWrongOwner)
}

func TestRequestPaymentAfterApproval(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)
	_, err := resolver.SubmitForReview(ctx, r.ID, "pat-1")
	require.NoError(t, err)
	approved, err := resolver.Decide(ctx, r.ID, "doc-1", true)
	require.NoError(t, err)

	checkout, err := resolver.RequestPayment(ctx, r.ID, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), checkout.Amount)
	assert.Equal(t, "RUB", checkout.Currency)
	assert.NotEmpty(t, checkout.Reference)
	assert.True(t, checkout.ExpiresAt.Equal(*approved.Payment.ExpiresAt))

	got, err := f.db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApprovedUnpaid, got.Status)
	assert.Equal(t, checkout.Reference, got.Payment.Reference)
}

func TestRequestPaymentDirectFlow(t *testing.T) {
	cfg := testBookingConfig()
	cfg.Flow = models.FlowPayment
	f := newFixture(t, cfg)
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)

	checkout, err := resolver.RequestPayment(ctx, r.ID, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), checkout.Amount)
	assert.True(t, checkout.ExpiresAt.Equal(f.clock.Now().Add(30*time.Minute)))

	got, err := f.db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, got.Status)
	assert.Nil(t, got.HoldExpiresAt)
	require.NotNil(t, got.Payment)
	assert.Equal(t, checkout.Reference, got.Payment.Reference)
}

func TestRequestPaymentDisabledFromHeldInReviewFlow(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)

	r := heldReservation(t, f)
	_, err := resolver.RequestPayment(context.Background(), r.ID, "pat-1")
	assert.ErrorIs(t, err, domain.ErrFlowDisabled)
}

func TestRequestPaymentExpiredWindow(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)
	_, err := resolver.SubmitForReview(ctx, r.ID, "pat-1")
	require.NoError(t, err)
	_, err = resolver.Decide(ctx, r.ID, "doc-1", true)
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	_, err = resolver.RequestPayment(ctx, r.ID, "pat-1")
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestConfirmPayment(t *testing.T) {
	cfg := testBookingConfig()
	cfg.Flow = models.FlowPayment
	f := newFixture(t, cfg)
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)
	_, err := resolver.RequestPayment(ctx, r.ID, "pat-1")
	require.NoError(t, err)

	updated, err := resolver.ConfirmPayment(ctx, r.ID, models.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, updated.Status)
	assert.Equal(t, models.PaymentStatusSucceeded, updated.Payment.Status)

	// Терминальный статус: повторный вердикт конфликтует
	_, err = resolver.ConfirmPayment(ctx, r.ID, models.PaymentStatusSucceeded)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConfirmPaymentCancelled(t *testing.T) {
	cfg := testBookingConfig()
	cfg.Flow = models.FlowPayment
	f := newFixture(t, cfg)
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)
	_, err := resolver.RequestPayment(ctx, r.ID, "pat-1")
	require.NoError(t, err)

	updated, err := resolver.ConfirmPayment(ctx, r.ID, models.PaymentStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)

	// Слот снова свободен
	second := fridayHold()
	second.PatientID = "pat-2"
	_, err = f.holds.PlaceHold(ctx, second)
	assert.NoError(t, err)
}

func TestConfirmPaymentUnknownStatus(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)

	_, err := resolver.ConfirmPayment(context.Background(), "res-1", "maybe")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConflict)
}

func TestReviewFlowEndToEnd(t *testing.T) {
	f := newFixture(t, testBookingConfig())
	resolver := newResolver(f, nil)
	ctx := context.Background()

	r := heldReservation(t, f)

	_, err := resolver.AttachDetails(ctx, r.ID, "pat-1", "консультация", []string{"mri.dcm"})
	require.NoError(t, err)

	_, err = resolver.SubmitForReview(ctx, r.ID, "pat-1")
	require.NoError(t, err)

	_, err = resolver.Decide(ctx, r.ID, "doc-1", true)
	require.NoError(t, err)

	checkout, err := resolver.RequestPayment(ctx, r.ID, "pat-1")
	require.NoError(t, err)
	require.NotEmpty(t, checkout.Reference)

	final, err := resolver.ConfirmPayment(ctx, r.ID, models.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, final.Status)
	assert.Equal(t, "консультация", final.Description)
	assert.Equal(t, []string{"mri.dcm"}, final.AttachmentRefs)
	assert.Equal(t, int64(6), final.Version)
}
