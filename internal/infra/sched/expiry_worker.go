package sched

import (
	"context"
	"time"

	"frame-worker/internal/infra/logging"
	"frame-worker/internal/infra/metrics"
	"frame-worker/internal/usecase"

	"github.com/rs/zerolog"
)

// ExpiryWorker periodically expires finished jobs past retention.
type ExpiryWorker struct {
	interval    time.Duration
	retentionUC usecase.RetentionUseCase
	log         *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, retentionUC usecase.RetentionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:    interval,
		retentionUC: retentionUC,
		log:         &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	defer logging.TraceDuration(w.log, "ExpiryWorker.tick")()
	n, err := w.retentionUC.ExpireCompleted(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry worker error")
	}
	if n > 0 {
		metrics.IncJobExpired(n)
		w.log.Info().Int("count", n).Msg("expired jobs")
	}
}
