package repository

import (
	"context"
	"time"

	"frame-worker/internal/domain/model"
)

// JobRepository persists jobs and their append-only event log.
// Status changes must go through the job state machine, which calls Update
// and AppendEvent inside one transaction.
type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// FindByIDForUpdate row-locks the job until tx ends. tx must be non-nil.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.Job, error)
	Update(ctx context.Context, tx Tx, job *model.Job) error
	AppendEvent(ctx context.Context, tx Tx, event *model.JobEvent) error
	ListEvents(ctx context.Context, tx Tx, jobID string) ([]*model.JobEvent, error)
	// ListExpirable returns ids of DONE jobs completed before the cutoff, oldest first.
	ListExpirable(ctx context.Context, tx Tx, completedBefore time.Time, limit int) ([]string, error)
}
