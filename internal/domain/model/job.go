package model

import (
	"fmt"
	"time"

	"frame-worker/internal/domain"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusUploaded   JobStatus = "UPLOADED"
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
	JobStatusExpired    JobStatus = "EXPIRED"
)

// transitions is the complete set of allowed status edges. A status missing
// from the map has no outgoing edge.
var transitions = map[JobStatus][]JobStatus{
	JobStatusUploaded:   {JobStatusQueued, JobStatusCancelled},
	JobStatusQueued:     {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusProcessing, JobStatusDone, JobStatusFailed},
	JobStatusDone:       {JobStatusExpired},
}

// ParseJobStatus rejects anything outside the closed status set.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case JobStatusUploaded, JobStatusQueued, JobStatusProcessing, JobStatusDone,
		JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown job status %q", domain.ErrInvalidArgument, s)
}

// IsTerminal reports whether the pipeline may never move a job out of s.
// DONE -> EXPIRED is owned by the retention collaborator, not the pipeline.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is one frame-extraction unit of work.
type Job struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"owner_id"`
	Status            JobStatus  `json:"status"`
	InputRef          string     `json:"input_ref"`
	OutputRef         *string    `json:"output_ref,omitempty"`
	AttemptCount      int        `json:"attempt_count"`
	ErrorCode         *string    `json:"error_code,omitempty"`
	ErrorDetail       *string    `json:"error_detail,omitempty"`
	FrameCount        *int       `json:"frame_count,omitempty"`
	ArchiveSizeBytes  *int64     `json:"archive_size_bytes,omitempty"`
	ProcessingSeconds *int       `json:"processing_seconds,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewJob creates a job in UPLOADED. An empty id gets a fresh UUID.
func NewJob(id, ownerID, inputRef string) (*Job, error) {
	if ownerID == "" || inputRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		OwnerID:   ownerID,
		Status:    JobStatusUploaded,
		InputRef:  inputRef,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransitionFields carries the data a transition may stamp on the job.
// Only the fields relevant to the target status are read.
type TransitionFields struct {
	AttemptCount      *int
	OutputRef         string
	ArchiveSizeBytes  int64
	FrameCount        int
	ProcessingSeconds int
	ErrorCode         string
	ErrorDetail       string
	Metadata          map[string]any
}

// Apply validates the edge Status -> to, mutates the job accordingly and
// returns the event describing the change. The job is left untouched on error.
func (j *Job) Apply(to JobStatus, f TransitionFields, now time.Time) (*JobEvent, error) {
	from := j.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	if now.Before(j.CreatedAt) {
		now = j.CreatedAt
	}

	payload := make(map[string]any, len(f.Metadata)+4)
	for k, v := range f.Metadata {
		payload[k] = v
	}

	var eventType string
	switch to {
	case JobStatusQueued:
		eventType = EventQueued

	case JobStatusProcessing:
		if f.AttemptCount != nil && *f.AttemptCount < j.AttemptCount {
			return nil, fmt.Errorf("%w: attempt %d is older than recorded attempt %d",
				domain.ErrInvalidTransition, *f.AttemptCount, j.AttemptCount)
		}
		eventType = EventProcessingStarted
		if from == JobStatusProcessing {
			eventType = EventProcessingResumed
		}
		if f.AttemptCount != nil {
			j.AttemptCount = *f.AttemptCount
		}
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
		payload["attempt"] = j.AttemptCount

	case JobStatusDone:
		if f.OutputRef == "" {
			return nil, fmt.Errorf("%w: DONE requires an output reference", domain.ErrInvalidArgument)
		}
		eventType = EventProcessingCompleted
		out := f.OutputRef
		frames, size, secs := f.FrameCount, f.ArchiveSizeBytes, f.ProcessingSeconds
		j.OutputRef = &out
		j.FrameCount = &frames
		j.ArchiveSizeBytes = &size
		j.ProcessingSeconds = &secs
		j.stampCompleted(now)
		payload["frame_count"] = frames
		payload["archive_size_bytes"] = size
		payload["processing_seconds"] = secs

	case JobStatusFailed:
		if f.ErrorCode == "" {
			return nil, fmt.Errorf("%w: FAILED requires an error code", domain.ErrInvalidArgument)
		}
		eventType = EventProcessingFailed
		code := f.ErrorCode
		detail := domain.Truncate(f.ErrorDetail, domain.MaxDiagnosticLen)
		j.ErrorCode = &code
		j.ErrorDetail = &detail
		j.stampCompleted(now)
		payload["error_code"] = code

	case JobStatusCancelled:
		eventType = EventCancelled
		j.stampCompleted(now)

	case JobStatusExpired:
		eventType = EventExpired
		j.OutputRef = nil
	}

	j.Status = to
	j.UpdatedAt = now

	return NewJobEvent(j.ID, eventType, &from, &to, payload, now), nil
}

func (j *Job) stampCompleted(now time.Time) {
	if j.CompletedAt == nil {
		j.CompletedAt = &now
	}
}
