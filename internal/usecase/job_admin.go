package usecase

import (
	"context"
	"fmt"

	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ JobAdminUseCase = (*jobAdminUC)(nil)

// JobAdminUseCase covers the operator side of a job: submit, cancel, inspect.
type JobAdminUseCase interface {
	Submit(ctx context.Context, id, ownerID, inputRef string) (*model.Job, error)
	Cancel(ctx context.Context, jobID string) (*model.Job, error)
	Get(ctx context.Context, jobID string) (*model.Job, []*model.JobEvent, error)
}

type jobAdminUC struct {
	jobs repository.JobRepository
	sm   StateMachine
	pub  adapter.JobPublisher
	log  *zerolog.Logger
}

func NewJobAdminUseCase(jobs repository.JobRepository, sm StateMachine, pub adapter.JobPublisher, logger *zerolog.Logger) *jobAdminUC {
	compLog := logger.With().Str("component", "JobAdminUseCase").Logger()
	return &jobAdminUC{jobs: jobs, sm: sm, pub: pub, log: &compLog}
}

// Submit records a new job, queues it and publishes its first delivery.
// A publish failure leaves the job QUEUED; submitting the same id again is
// rejected, so the caller should republish instead.
func (uc *jobAdminUC) Submit(ctx context.Context, id, ownerID, inputRef string) (*model.Job, error) {
	job, err := model.NewJob(id, ownerID, inputRef)
	if err != nil {
		return nil, err
	}
	if err := uc.jobs.Create(ctx, repository.NoTX, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	queued, err := uc.sm.Transition(ctx, job.ID, model.JobStatusQueued, model.TransitionFields{})
	if err != nil {
		return nil, fmt.Errorf("queue job: %w", err)
	}

	msg := model.JobMessage{JobID: queued.ID, OwnerID: queued.OwnerID, InputRef: queued.InputRef}
	if err := uc.pub.PublishJob(ctx, msg, 0); err != nil {
		return queued, fmt.Errorf("publish job: %w", err)
	}
	uc.log.Info().Str("job_id", queued.ID).Str("owner_id", queued.OwnerID).Msg("job submitted")
	return queued, nil
}

// Cancel stops a job that no worker has picked up yet.
func (uc *jobAdminUC) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := uc.sm.Transition(ctx, jobID, model.JobStatusCancelled, model.TransitionFields{})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("job_id", jobID).Msg("job cancelled")
	return job, nil
}

func (uc *jobAdminUC) Get(ctx context.Context, jobID string) (*model.Job, []*model.JobEvent, error) {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, nil, err
	}
	events, err := uc.jobs.ListEvents(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, events, nil
}
