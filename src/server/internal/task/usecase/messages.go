package taskusecase

// These mirror the worker's job messages.
const (
	SeparateJobType = "separate_job"
	RefineJobType   = "refine_job"
)

type TaskIdentifier struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
}

type SeparateJobParams struct {
	TaskIdentifier
	Splitter string `json:"splitter"`
	Model    string `json:"model"`
	Format   string `json:"format"`
}

type RefineJobParams struct {
	TaskIdentifier
	Parent string `json:"parent"`
}
