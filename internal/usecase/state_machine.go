package usecase

import (
	"context"
	"fmt"
	"time"

	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/repository"
	"frame-worker/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ StateMachine = (*jobStateMachine)(nil)

// StateMachine is the only writer of job status.
type StateMachine interface {
	// Transition moves the job to `to` and records the event atomically.
	// A disallowed edge returns domain.ErrInvalidTransition and changes nothing.
	Transition(ctx context.Context, jobID string, to model.JobStatus, fields model.TransitionFields) (*model.Job, error)
	// Annotate appends an event that does not change the status.
	Annotate(ctx context.Context, jobID, eventType string, payload map[string]any) error
}

type jobStateMachine struct {
	jobs repository.JobRepository
	tm   repository.TransactionManager
	log  *zerolog.Logger
	now  func() time.Time
}

func NewJobStateMachine(jobs repository.JobRepository, tm repository.TransactionManager, logger *zerolog.Logger) *jobStateMachine {
	compLog := logger.With().Str("component", "JobStateMachine").Logger()
	return &jobStateMachine{
		jobs: jobs,
		tm:   tm,
		log:  &compLog,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *jobStateMachine) Transition(ctx context.Context, jobID string, to model.JobStatus, fields model.TransitionFields) (*model.Job, error) {
	var (
		updated *model.Job
		from    model.JobStatus
	)

	// The row lock serializes concurrent transitions of the same job, so a
	// second terminal attempt always sees the first one's result.
	err := m.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := m.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		from = job.Status

		event, err := job.Apply(to, fields, m.now())
		if err != nil {
			return err
		}
		if err := m.jobs.Update(ctx, tx, job); err != nil {
			return fmt.Errorf("update job %s: %w", jobID, err)
		}
		if err := m.jobs.AppendEvent(ctx, tx, event); err != nil {
			return fmt.Errorf("append event for job %s: %w", jobID, err)
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(from), string(to))
	m.log.Debug().Str("job_id", jobID).Str("from", string(from)).Str("to", string(to)).Msg("job transitioned")
	return updated, nil
}

func (m *jobStateMachine) Annotate(ctx context.Context, jobID, eventType string, payload map[string]any) error {
	event := model.NewJobEvent(jobID, eventType, nil, nil, payload, m.now())
	if err := m.jobs.AppendEvent(ctx, repository.NoTX, event); err != nil {
		return fmt.Errorf("annotate job %s: %w", jobID, err)
	}
	return nil
}
