package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/infra/logging"
	"frame-worker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Class tells the handler how a pipeline failure is treated.
type Class int

const (
	// ClassInfrastructure failures go back to the broker untouched.
	ClassInfrastructure Class = iota
	// ClassRetryable failures are retried with backoff until attempts run out.
	ClassRetryable
	// ClassTerminal failures fail the job immediately.
	ClassTerminal
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassTerminal:
		return "terminal"
	default:
		return "infrastructure"
	}
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 30 * time.Second
	DefaultMaxDelay    = 300 * time.Second
)

// RetryPolicy bounds retries with capped exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// Classify maps a pipeline error to its handling class.
func (RetryPolicy) Classify(err error) Class {
	var perr *domain.ProcessingError
	switch {
	case errors.As(err, &perr):
		return ClassRetryable
	case errors.Is(err, domain.ErrMalformedMessage), errors.Is(err, domain.ErrNotFound):
		return ClassTerminal
	default:
		return ClassInfrastructure
	}
}

// Delay returns min(BaseDelay * 2^attempt, MaxDelay). It never overflows.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	// Any shift that would pass MaxDelay (or int64) is capped up front.
	if attempt >= 62 || p.BaseDelay > time.Duration(math.MaxInt64>>uint(attempt)) {
		return p.MaxDelay
	}
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry reports whether a failed attempt (0-based) gets another try.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts-1
}

// ErrorCode is the code persisted on a FAILED job for err.
func ErrorCode(err error) string {
	var perr *domain.ProcessingError
	if errors.As(err, &perr) {
		return perr.Code()
	}
	return "PROCESSING_ERROR"
}

// Compile-time check
var _ RetryController = (*retryController)(nil)

// RetryController turns a classified pipeline failure into a retry or a final failure.
type RetryController interface {
	HandleFailure(ctx context.Context, d model.Delivery, cause error) Decision
}

type retryController struct {
	policy    RetryPolicy
	sm        StateMachine
	scheduler adapter.RetryScheduler
	notifier  Notifier
	log       *zerolog.Logger
	now       func() time.Time
}

func NewRetryController(
	policy RetryPolicy,
	sm StateMachine,
	scheduler adapter.RetryScheduler,
	notifier Notifier,
	logger *zerolog.Logger,
) *retryController {
	compLog := logger.With().Str("component", "RetryController").Logger()
	return &retryController{
		policy:    policy,
		sm:        sm,
		scheduler: scheduler,
		notifier:  notifier,
		log:       &compLog,
		now:       time.Now,
	}
}

func (c *retryController) HandleFailure(ctx context.Context, d model.Delivery, cause error) Decision {
	log := logging.ForJob(c.log, d.Message.JobID, d.Attempt)

	if c.policy.Classify(cause) == ClassRetryable && c.policy.ShouldRetry(d.Attempt) {
		return c.scheduleRetry(ctx, d, cause, log)
	}
	return c.fail(ctx, d, cause, log)
}

func (c *retryController) scheduleRetry(ctx context.Context, d model.Delivery, cause error, log *zerolog.Logger) Decision {
	delay := c.policy.Delay(d.Attempt)
	next := model.Delivery{Message: d.Message, Attempt: d.Attempt + 1}

	if err := c.scheduler.Schedule(ctx, next, c.now().Add(delay)); err != nil {
		log.Error().Err(err).Msg("failed to schedule retry, requeueing delivery")
		return DecisionRequeue
	}

	payload := map[string]any{
		"attempt":       d.Attempt,
		"next_attempt":  next.Attempt,
		"delay_seconds": int(delay.Seconds()),
		"error_code":    ErrorCode(cause),
		"error_detail":  domain.Truncate(cause.Error(), domain.MaxDiagnosticLen),
	}
	if err := c.sm.Annotate(ctx, d.Message.JobID, model.EventRetryScheduled, payload); err != nil {
		log.Warn().Err(err).Msg("failed to record retry event")
	}

	metrics.IncRetryScheduled()
	metrics.IncJobOutcome("retried")
	log.Warn().Err(cause).Dur("delay", delay).Msg("attempt failed, retry scheduled")
	return DecisionAck
}

func (c *retryController) fail(ctx context.Context, d model.Delivery, cause error, log *zerolog.Logger) Decision {
	if errors.Is(cause, domain.ErrNotFound) {
		metrics.IncJobOutcome("failed")
		log.Error().Err(cause).Msg("job record not found, dropping delivery")
		return DecisionAck
	}

	failed, err := c.sm.Transition(ctx, d.Message.JobID, model.JobStatusFailed, model.TransitionFields{
		ErrorCode:   ErrorCode(cause),
		ErrorDetail: cause.Error(),
	})
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Info().Err(err).Msg("job already in a final status, not failing it again")
		return DecisionAck
	case err != nil:
		log.Error().Err(err).Msg("failed to mark job as FAILED, requeueing delivery")
		return DecisionRequeue
	}

	metrics.IncJobOutcome("failed")
	log.Error().Err(cause).Str("error_code", ErrorCode(cause)).Msg("job failed")
	c.notifier.Notify(ctx, d.Message.JobID, ownerOf(failed, d.Message), model.NotificationFailed)
	return DecisionAck
}
