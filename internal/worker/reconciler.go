package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper переводит протухшие холды и окна оплаты в expired.
type Sweeper interface {
	ReconcileExpired(ctx context.Context) (int, error)
}

// Reconciler гоняет уборку по тикеру. Несколько экземпляров безопасны:
// каждый переход защищён проверкой статуса и версии.
type Reconciler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zerolog.Logger
}

func NewReconciler(sweeper Sweeper, interval time.Duration, logger *zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("Reconciler started")
	defer r.logger.Info().Msg("Reconciler stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.sweeper.ReconcileExpired(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Reconcile pass failed")
			}
		}
	}
}
