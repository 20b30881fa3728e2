package usecase

import (
	"context"
	"errors"
	"time"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RetentionUseCase = (*retentionUC)(nil)

// RetentionUseCase expires finished jobs whose archives are past retention.
type RetentionUseCase interface {
	ExpireCompleted(ctx context.Context) (int, error)
}

type retentionUC struct {
	jobs      repository.JobRepository
	sm        StateMachine
	storage   adapter.Storage
	retention time.Duration
	batch     int
	log       *zerolog.Logger
	now       func() time.Time
}

func NewRetentionUseCase(
	jobs repository.JobRepository,
	sm StateMachine,
	storage adapter.Storage,
	retention time.Duration,
	batch int,
	logger *zerolog.Logger,
) *retentionUC {
	if batch <= 0 {
		batch = 100
	}
	compLog := logger.With().Str("component", "RetentionUseCase").Logger()
	return &retentionUC{
		jobs:      jobs,
		sm:        sm,
		storage:   storage,
		retention: retention,
		batch:     batch,
		log:       &compLog,
		now:       time.Now,
	}
}

// ExpireCompleted moves one batch of old DONE jobs to EXPIRED and then deletes
// their archives. The status flips first so no client is handed a reference to
// an object that is about to disappear.
func (uc *retentionUC) ExpireCompleted(ctx context.Context) (int, error) {
	ids, err := uc.jobs.ListExpirable(ctx, repository.NoTX, uc.now().Add(-uc.retention), uc.batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		job, err := uc.jobs.FindByID(ctx, repository.NoTX, id)
		if err != nil {
			uc.log.Error().Err(err).Str("job_id", id).Msg("failed to load job for expiry")
			continue
		}
		if _, err := uc.sm.Transition(ctx, id, model.JobStatusExpired, model.TransitionFields{}); err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				uc.log.Error().Err(err).Str("job_id", id).Msg("failed to expire job")
			}
			continue
		}
		expired++
		if job.OutputRef != nil {
			if err := uc.storage.Remove(ctx, *job.OutputRef); err != nil {
				uc.log.Warn().Err(err).Str("job_id", id).Str("ref", *job.OutputRef).Msg("failed to remove expired archive")
			}
		}
	}
	return expired, nil
}
