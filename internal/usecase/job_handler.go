package usecase

import (
	"context"
	"fmt"
	"time"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/infra/logging"
	"frame-worker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Decision is what the consumer does with a delivery once handling ends.
type Decision int

const (
	// DecisionAck removes the delivery from the queue.
	DecisionAck Decision = iota
	// DecisionRequeue hands the delivery back to the broker for redelivery.
	DecisionRequeue
	// DecisionReject drops the delivery without redelivery.
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionRequeue:
		return "requeue"
	case DecisionReject:
		return "reject"
	default:
		return "ack"
	}
}

// DefaultLockTTL bounds how long one worker may hold a job.
const DefaultLockTTL = 30 * time.Minute

// Compile-time check
var _ JobHandler = (*jobHandler)(nil)

// JobHandler decides the fate of one job queue delivery.
type JobHandler interface {
	Handle(ctx context.Context, body []byte, attempt int) Decision
}

type jobHandler struct {
	dedup    adapter.DedupGate
	locker   adapter.Locker
	pipeline Pipeline
	retry    RetryController
	notifier Notifier
	policy   RetryPolicy
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewJobHandler(
	dedup adapter.DedupGate,
	locker adapter.Locker,
	pipeline Pipeline,
	retry RetryController,
	notifier Notifier,
	policy RetryPolicy,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *jobHandler {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	compLog := logger.With().Str("component", "JobHandler").Logger()
	return &jobHandler{
		dedup:    dedup,
		locker:   locker,
		pipeline: pipeline,
		retry:    retry,
		notifier: notifier,
		policy:   policy,
		lockTTL:  lockTTL,
		log:      &compLog,
	}
}

func (h *jobHandler) Handle(ctx context.Context, body []byte, attempt int) Decision {
	decision := h.handle(ctx, body, attempt)
	metrics.IncDelivery(decision.String())
	return decision
}

func (h *jobHandler) handle(ctx context.Context, body []byte, attempt int) Decision {
	msg, err := model.ParseJobMessage(body)
	if err != nil {
		h.log.Error().Err(err).Int("attempt", attempt).Msg("rejecting malformed delivery")
		return DecisionReject
	}
	log := logging.ForJob(h.log, msg.JobID, attempt)
	delivery := model.Delivery{Message: msg, Attempt: attempt}

	first, err := h.dedup.MarkIfFirst(ctx, msg.JobID, attempt)
	if err != nil {
		log.Error().Err(err).Msg("dedup check failed, requeueing")
		return DecisionRequeue
	}
	if !first {
		metrics.IncJobOutcome("duplicate")
		log.Info().Msg("duplicate delivery, skipping")
		return DecisionAck
	}

	lock, err := h.locker.TryAcquire(ctx, msg.JobID, h.lockTTL)
	if err != nil {
		log.Error().Err(err).Msg("lock acquisition failed, requeueing")
		return h.requeue(ctx, delivery, log)
	}
	if lock == nil {
		metrics.IncJobOutcome("locked")
		log.Info().Msg("job locked by another worker, skipping")
		return DecisionAck
	}
	defer h.locker.Release(ctx, lock)

	result, err := h.run(ctx, delivery)
	if err == nil {
		if result.Outcome == OutcomeCompleted {
			metrics.IncJobOutcome("completed")
			h.notifier.Notify(ctx, msg.JobID, ownerOf(result.Job, msg), model.NotificationCompleted)
		} else {
			metrics.IncJobOutcome("skipped")
			log.Info().Str("reason", result.Reason).Msg("job skipped")
		}
		return DecisionAck
	}

	if h.policy.Classify(err) == ClassInfrastructure {
		log.Error().Err(err).Msg("infrastructure failure, requeueing")
		return h.requeue(ctx, delivery, log)
	}

	decision := h.retry.HandleFailure(ctx, delivery, err)
	if decision == DecisionRequeue {
		return h.requeue(ctx, delivery, log)
	}
	return decision
}

// run shields the consumer from a panicking collaborator; the panic becomes a
// retryable failure of the pipeline.
func (h *jobHandler) run(ctx context.Context, d model.Delivery) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("job_id", d.Message.JobID).Interface("panic", r).Msg("pipeline panicked")
			res, err = Result{}, domain.NewProcessingError(domain.StagePipeline, fmt.Errorf("panic: %v", r))
		}
	}()
	return h.pipeline.Run(ctx, d.Message, d.Attempt)
}

// ownerOf prefers the stored owner; the delivery body is only a fallback.
func ownerOf(job *model.Job, msg model.JobMessage) string {
	if job != nil && job.OwnerID != "" {
		return job.OwnerID
	}
	return msg.OwnerID
}

// requeue drops the dedup marker first so the redelivery is processed.
func (h *jobHandler) requeue(ctx context.Context, d model.Delivery, log *zerolog.Logger) Decision {
	if err := h.dedup.Forget(ctx, d.Message.JobID, d.Attempt); err != nil {
		log.Warn().Err(err).Msg("failed to clear dedup marker before requeue")
	}
	return DecisionRequeue
}
