package usecase

import (
	"context"

	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ Notifier = (*NotificationDispatcher)(nil)

// Notifier announces a job's terminal outcome. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, jobID, ownerID string, outcome model.NotificationOutcome)
}

// NotificationDispatcher publishes terminal-state events for the email service.
// Delivery is best-effort: a publish failure is logged and dropped, and never
// rolls back the job status or changes the ack decision.
type NotificationDispatcher struct {
	pub adapter.NotificationPublisher
	log *zerolog.Logger
}

func NewNotificationDispatcher(pub adapter.NotificationPublisher, logger *zerolog.Logger) *NotificationDispatcher {
	compLog := logger.With().Str("component", "NotificationDispatcher").Logger()
	return &NotificationDispatcher{pub: pub, log: &compLog}
}

func (d *NotificationDispatcher) Notify(ctx context.Context, jobID, ownerID string, outcome model.NotificationOutcome) {
	msg := model.NotificationMessage{JobID: jobID, OwnerID: ownerID, Outcome: outcome}
	if err := d.pub.PublishNotification(ctx, msg); err != nil {
		metrics.IncNotification(string(outcome), "error")
		d.log.Error().Err(err).Str("job_id", jobID).Str("outcome", string(outcome)).Msg("notification publish failed")
		return
	}
	metrics.IncNotification(string(outcome), "published")
	d.log.Info().Str("job_id", jobID).Str("outcome", string(outcome)).Msg("notification published")
}
