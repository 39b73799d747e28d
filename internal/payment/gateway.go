package payment

import (
	"context"
	"time"

	"medbook/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReferenceGateway чеканит ссылки на оплату без похода во внешний
// эквайринг. Реальный провайдер подставляется за тем же интерфейсом;
// вердикт в любом случае приходит через callback.
type ReferenceGateway struct {
	logger *zerolog.Logger
}

func NewReferenceGateway(logger *zerolog.Logger) *ReferenceGateway {
	return &ReferenceGateway{logger: logger}
}

func (g *ReferenceGateway) CreateCheckout(ctx context.Context, reservationID string, amount int64, currency string, expiresAt time.Time) (*domain.Checkout, error) {
	checkout := &domain.Checkout{
		Reference: "chk_" + uuid.NewString(),
		Amount:    amount,
		Currency:  currency,
		ExpiresAt: expiresAt,
	}
	g.logger.Info().
		Str("reservation_id", reservationID).
		Str("reference", checkout.Reference).
		Int64("amount", amount).
		Str("currency", currency).
		Msg("Checkout created")
	return checkout, nil
}
