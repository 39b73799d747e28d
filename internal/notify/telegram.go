package notify

import (
	"context"
	"fmt"

	"medbook/internal/config"
	"medbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// sender закрывает tgbotapi.BotAPI, чтобы тесты подменяли отправку.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier шлёт сообщения в канал клиники. Только исходящие:
// апдейты бот не читает.
type TelegramNotifier struct {
	bot    sender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(cfg config.NotifyConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram notifier ready")
	return &TelegramNotifier{
		bot:    bot,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

func (n *TelegramNotifier) ReservationSubmitted(ctx context.Context, r *models.Reservation) error {
	text := fmt.Sprintf(
		"📋 *Новая заявка на приём*\n\nВрач: %s\nДата: %s\nВремя: %s–%s\nПациент: %s",
		r.DoctorID,
		r.Date.Format(models.DateLayout),
		r.StartTime, r.EndTime,
		r.PatientID,
	)
	if r.Description != "" {
		text += fmt.Sprintf("\nЖалоба: %s", r.Description)
	}
	if len(r.AttachmentRefs) > 0 {
		text += fmt.Sprintf("\nВложений: %d", len(r.AttachmentRefs))
	}
	return n.send(text)
}

func (n *TelegramNotifier) ReservationDecided(ctx context.Context, r *models.Reservation) error {
	verdict := "❌ отклонена"
	if r.Status == models.StatusApprovedUnpaid {
		verdict = "✅ одобрена, ждёт оплаты"
	}
	text := fmt.Sprintf(
		"📋 Заявка %s\n\nВрач: %s\nДата: %s\nВремя: %s–%s",
		verdict,
		r.DoctorID,
		r.Date.Format(models.DateLayout),
		r.StartTime, r.EndTime,
	)
	return n.send(text)
}

func (n *TelegramNotifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
