package job_message

import (
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/worker/internal/application/mirror"
)

type TaskIdentifier struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
}

// Result is stored on the task when a job succeeds.
type Result struct {
	Manifest   stementity.Manifest `json:"manifest"`
	RemoteURLs mirror.RemoteURLs   `json:"remote_urls,omitempty"`
}

// Reporter publishes intermediate progress (0-100) of a running job.
type Reporter func(progress int, message string)

func NoReport(int, string) {}
