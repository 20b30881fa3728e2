package sched

import (
	"context"
	"time"

	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// DelayedRetries is the durable store the relay drains.
type DelayedRetries interface {
	adapter.RetryScheduler
	Claim(ctx context.Context, now time.Time, batch int64) ([]model.Delivery, error)
	Len(ctx context.Context) (int64, error)
}

// RetryRelay moves retries whose backoff elapsed back onto the job queue.
type RetryRelay struct {
	interval time.Duration
	batch    int64
	queue    DelayedRetries
	pub      adapter.JobPublisher
	log      *zerolog.Logger
	now      func() time.Time
}

func NewRetryRelay(interval time.Duration, batch int64, queue DelayedRetries, pub adapter.JobPublisher, logger *zerolog.Logger) *RetryRelay {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	relayLog := logger.With().Str("component", "RetryRelay").Logger()
	return &RetryRelay{
		interval: interval,
		batch:    batch,
		queue:    queue,
		pub:      pub,
		log:      &relayLog,
		now:      time.Now,
	}
}

func (r *RetryRelay) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("Starting retry relay")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Stopping retry relay")
			return nil
		case <-ticker.C:
			if n := r.RelayDue(ctx); n > 0 {
				r.log.Info().Int("count", n).Msg("due retries republished")
			}
		}
	}
}

// RelayDue publishes every claimed entry once. An entry that cannot be
// published goes back into the delay queue as due now. The remaining queue
// depth is exported after each pass.
func (r *RetryRelay) RelayDue(ctx context.Context) int {
	now := r.now()
	due, err := r.queue.Claim(ctx, now, r.batch)
	if err != nil {
		r.log.Error().Err(err).Msg("claiming due retries failed")
	}

	sent := 0
	for _, d := range due {
		if err := r.pub.PublishJob(ctx, d.Message, d.Attempt); err != nil {
			metrics.IncRetryRelayed("error")
			r.log.Error().Err(err).Str("job_id", d.Message.JobID).Int("attempt", d.Attempt).Msg("republish failed, putting retry back")
			if err := r.queue.Schedule(context.WithoutCancel(ctx), d, now); err != nil {
				r.log.Error().Err(err).Str("job_id", d.Message.JobID).Msg("retry lost: could not restore delayed entry")
			}
			continue
		}
		metrics.IncRetryRelayed("published")
		sent++
	}
	r.sampleDepth(ctx)
	return sent
}

func (r *RetryRelay) sampleDepth(ctx context.Context) {
	n, err := r.queue.Len(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("reading retry queue depth failed")
		return
	}
	metrics.SetRetryQueueDepth(n)
}
