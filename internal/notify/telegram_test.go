package notify

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"medbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func testNotifier(s sender) *TelegramNotifier {
	logger := zerolog.New(io.Discard)
	return &TelegramNotifier{bot: s, chatID: -100123, logger: &logger}
}

func submittedReservation() *models.Reservation {
	return &models.Reservation{
		ID:             "res-1",
		DoctorID:       "doc-1",
		PatientID:      "pat-1",
		Date:           time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC),
		StartTime:      "10:00:00",
		EndTime:        "10:20:00",
		Status:         models.StatusPendingReview,
		Description:    "острая боль",
		AttachmentRefs: []string{"scan.pdf"},
	}
}

func TestReservationSubmitted(t *testing.T) {
	fake := &fakeSender{}
	n := testNotifier(fake)

	require.NoError(t, n.ReservationSubmitted(context.Background(), submittedReservation()))
	require.Len(t, fake.sent, 1)

	msg := fake.sent[0]
	assert.Equal(t, int64(-100123), msg.ChatID)
	assert.Contains(t, msg.Text, "doc-1")
	assert.Contains(t, msg.Text, "2026-02-06")
	assert.Contains(t, msg.Text, "острая боль")
	assert.Contains(t, msg.Text, "Вложений: 1")
}

func TestReservationDecided(t *testing.T) {
	fake := &fakeSender{}
	n := testNotifier(fake)

	r := submittedReservation()
	r.Status = models.StatusApprovedUnpaid
	require.NoError(t, n.ReservationDecided(context.Background(), r))

	r.Status = models.StatusRejected
	require.NoError(t, n.ReservationDecided(context.Background(), r))

	require.Len(t, fake.sent, 2)
	assert.True(t, strings.Contains(fake.sent[0].Text, "одобрена"))
	assert.True(t, strings.Contains(fake.sent[1].Text, "отклонена"))
}

func TestSendErrorPropagates(t *testing.T) {
	fake := &fakeSender{err: assert.AnError}
	n := testNotifier(fake)

	err := n.ReservationSubmitted(context.Background(), submittedReservation())
	assert.Error(t, err)
}
