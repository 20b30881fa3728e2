package model

import (
	"encoding/json"
	"fmt"

	"frame-worker/internal/domain"
)

// JobMessage is the body of a job queue delivery. The attempt count travels
// as delivery metadata, not in the body.
type JobMessage struct {
	JobID    string `json:"job_id"`
	OwnerID  string `json:"owner_id"`
	InputRef string `json:"input_ref"`
}

// ParseJobMessage decodes and validates a job queue body.
func ParseJobMessage(body []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return JobMessage{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if msg.JobID == "" || msg.OwnerID == "" || msg.InputRef == "" {
		return JobMessage{}, fmt.Errorf("%w: job_id, owner_id and input_ref are required", domain.ErrMalformedMessage)
	}
	return msg, nil
}

// Delivery is a job message together with its delivery metadata.
type Delivery struct {
	Message JobMessage
	Attempt int
}

type NotificationOutcome string

const (
	NotificationCompleted NotificationOutcome = "completed"
	NotificationFailed    NotificationOutcome = "failed"
)

// NotificationMessage is published to the notification queue on a terminal status.
type NotificationMessage struct {
	JobID   string              `json:"job_id"`
	OwnerID string              `json:"owner_id"`
	Outcome NotificationOutcome `json:"outcome"`
}
