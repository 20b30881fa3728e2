package adapter

import (
	"context"
	"time"

	"frame-worker/internal/domain/model"
)

// NotificationPublisher sends terminal-state notifications downstream.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, msg model.NotificationMessage) error
}

// JobPublisher puts a job message on the job queue with its attempt count.
type JobPublisher interface {
	PublishJob(ctx context.Context, msg model.JobMessage, attempt int) error
}

// RetryScheduler durably holds a delivery until dueAt, then hands it back to the job queue.
type RetryScheduler interface {
	Schedule(ctx context.Context, d model.Delivery, dueAt time.Time) error
}
