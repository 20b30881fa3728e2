package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/domain/ports/repository"
	"frame-worker/internal/infra/logging"
	"frame-worker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

// ReasonAlreadyDone marks a run whose DONE transition lost to another worker.
const ReasonAlreadyDone = "already_done"

// Result is what a pipeline run produced when it did not fail.
type Result struct {
	Outcome Outcome
	Reason  string
	Job     *model.Job
}

// Compile-time check
var _ Pipeline = (*pipeline)(nil)

// Pipeline performs one attempt of a job. Any error it returns is either a
// *domain.ProcessingError, domain.ErrNotFound or an infrastructure failure.
type Pipeline interface {
	Run(ctx context.Context, msg model.JobMessage, attempt int) (Result, error)
}

type pipeline struct {
	jobs     repository.JobRepository
	sm       StateMachine
	storage  adapter.Storage
	codec    adapter.Codec
	packager adapter.Packager
	scratch  string
	log      *zerolog.Logger
	now      func() time.Time
}

// NewPipeline wires the stages. scratchRoot is the parent of per-run working
// directories; empty means os.TempDir.
func NewPipeline(
	jobs repository.JobRepository,
	sm StateMachine,
	storage adapter.Storage,
	codec adapter.Codec,
	packager adapter.Packager,
	scratchRoot string,
	logger *zerolog.Logger,
) *pipeline {
	compLog := logger.With().Str("component", "Pipeline").Logger()
	return &pipeline{
		jobs:     jobs,
		sm:       sm,
		storage:  storage,
		codec:    codec,
		packager: packager,
		scratch:  scratchRoot,
		log:      &compLog,
		now:      time.Now,
	}
}

// OutputKey is the storage key of a job's frame archive.
func OutputKey(ownerID, jobID string) string {
	return fmt.Sprintf("videos/%s/%s/output.zip", ownerID, jobID)
}

func (p *pipeline) Run(ctx context.Context, msg model.JobMessage, attempt int) (Result, error) {
	log := logging.ForJob(p.log, msg.JobID, attempt)
	start := p.now()

	job, err := p.jobs.FindByID(ctx, repository.NoTX, msg.JobID)
	if err != nil {
		return Result{}, err
	}
	if job.Status.IsTerminal() {
		log.Info().Str("status", string(job.Status)).Msg("job in terminal status, skipping")
		return Result{Outcome: OutcomeSkipped, Reason: string(job.Status), Job: job}, nil
	}

	job, err = p.sm.Transition(ctx, job.ID, model.JobStatusProcessing, model.TransitionFields{AttemptCount: &attempt})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info().Err(err).Msg("job no longer processable, skipping")
			return Result{Outcome: OutcomeSkipped, Reason: err.Error()}, nil
		}
		return Result{}, err
	}
	log.Info().Msg("processing started")

	dir, err := os.MkdirTemp(p.scratch, "job-"+job.ID+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("failed to remove scratch dir")
		}
	}()

	input, err := p.stage(ctx, domain.StageStorageFetch, func() (string, error) {
		return p.storage.Fetch(ctx, job.InputRef, dir)
	})
	if err != nil {
		return Result{}, err
	}

	framesDir := filepath.Join(dir, "frames")
	var frames []string
	if _, err := p.stage(ctx, domain.StageCodec, func() (string, error) {
		if err := os.MkdirAll(framesDir, 0o755); err != nil {
			return "", err
		}
		frames, err = p.codec.Extract(ctx, input, framesDir)
		if err != nil {
			return "", err
		}
		if len(frames) == 0 {
			return "", errors.New("no frames extracted")
		}
		return "", nil
	}); err != nil {
		return Result{}, err
	}

	archive := filepath.Join(dir, "output.zip")
	var (
		size  int64
		count int
	)
	if _, err := p.stage(ctx, domain.StagePackage, func() (string, error) {
		size, count, err = p.packager.Package(ctx, framesDir, frames, archive)
		return "", err
	}); err != nil {
		return Result{}, err
	}

	outputRef, err := p.stage(ctx, domain.StageStorageUpload, func() (string, error) {
		return p.storage.Store(ctx, archive, OutputKey(job.OwnerID, job.ID))
	})
	if err != nil {
		return Result{}, err
	}

	done, err := p.sm.Transition(ctx, job.ID, model.JobStatusDone, model.TransitionFields{
		OutputRef:         outputRef,
		ArchiveSizeBytes:  size,
		FrameCount:        count,
		ProcessingSeconds: int(p.now().Sub(start).Seconds()),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn().Err(err).Msg("job finished by another worker, discarding result")
			return Result{Outcome: OutcomeSkipped, Reason: ReasonAlreadyDone}, nil
		}
		return Result{}, err
	}

	log.Info().Int("frame_count", count).Int64("archive_size_bytes", size).Msg("processing completed")
	return Result{Outcome: OutcomeCompleted, Job: done}, nil
}

// stage runs fn and turns its failure into a ProcessingError for the stage.
func (p *pipeline) stage(ctx context.Context, name string, fn func() (string, error)) (string, error) {
	began := p.now()
	out, err := fn()
	metrics.ObserveStage(name, err == nil, p.now().Sub(began))
	if err != nil {
		// A cancelled context is not the collaborator's fault.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", name, ctxErr)
		}
		return "", domain.NewProcessingError(name, err)
	}
	return out, nil
}
