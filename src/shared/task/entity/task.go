package taskentity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	SeparateKind     Kind = "separate"
	RefineVocalsKind Kind = "refine_vocals"
	RefineDrumsKind  Kind = "refine_drums"
)

func (k Kind) Valid() bool {
	switch k {
	case SeparateKind, RefineVocalsKind, RefineDrumsKind:
		return true
	default:
		return false
	}
}

type Status string

const (
	RequestedStatus       Status = "requested"
	ProcessingStatus      Status = "processing"
	SucceededStatus       Status = "succeeded"
	ErrorStatus           Status = "error"
	CancelRequestedStatus Status = "cancel_requested"
	CancelledStatus       Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case SucceededStatus, ErrorStatus, CancelledStatus:
		return true
	default:
		return false
	}
}

// Task is the handle for one piece of asynchronous work on a job.
type Task struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	JobID          string          `json:"job_id"`
	Splitter       string          `json:"splitter,omitempty"`
	Model          string          `json:"model,omitempty"`
	Format         string          `json:"format,omitempty"`
	Status         Status          `json:"status"`
	StatusMessage  string          `json:"status_message"`
	StatusDebugLog string          `json:"status_debug_log,omitempty"`
	Progress       int             `json:"progress"`
	Result         json.RawMessage `json:"result,omitempty"`
	Revision       int64           `json:"revision"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func NewTask(kind Kind, jobID string, now time.Time) Task {
	return Task{
		ID:            uuid.NewString(),
		Kind:          kind,
		JobID:         jobID,
		Status:        RequestedStatus,
		StatusMessage: "Waiting for a worker",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
