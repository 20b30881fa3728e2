package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	EventQueued              = "QUEUED"
	EventProcessingStarted   = "PROCESSING_STARTED"
	EventProcessingResumed   = "PROCESSING_RESUMED"
	EventProcessingCompleted = "PROCESSING_COMPLETED"
	EventProcessingFailed    = "PROCESSING_FAILED"
	EventCancelled           = "CANCELLED"
	EventExpired             = "EXPIRED"
	EventRetryScheduled      = "RETRY_SCHEDULED"
)

// JobEvent is an append-only audit record. NewStatus is nil for annotations
// that do not change the job status.
type JobEvent struct {
	ID        string
	JobID     string
	EventType string
	OldStatus *JobStatus
	NewStatus *JobStatus
	Payload   map[string]any
	CreatedAt time.Time
}

// entropy keeps ids created within the same millisecond strictly increasing.
var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// NewJobEvent stamps a ULID so events sort by creation even when two share a timestamp.
func NewJobEvent(jobID, eventType string, oldStatus, newStatus *JobStatus, payload map[string]any, at time.Time) *JobEvent {
	return &JobEvent{
		ID:        ulid.MustNew(ulid.Timestamp(at), entropy).String(),
		JobID:     jobID,
		EventType: eventType,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Payload:   payload,
		CreatedAt: at,
	}
}
