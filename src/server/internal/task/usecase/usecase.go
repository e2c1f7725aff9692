package taskusecase

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/markers"
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
	"github.com/jasonlryan/demucs/src/server/internal/stem/errors"
	"github.com/jasonlryan/demucs/src/server/internal/task/errors"
	"github.com/jasonlryan/demucs/src/shared/lib/rabbitmq"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
)

const (
	DefaultSplitter = "demucs"
	DefaultModel    = "htdemucs_6s"
)

// SeparationRequest is the optional body of a separation trigger.
type SeparationRequest struct {
	Splitter string `json:"splitter"`
	Model    string `json:"model"`
	Format   string `json:"format"`
}

type Usecase struct {
	store     taskentity.Store
	resolver  stemresolver.Resolver
	invoker   separation.Invoker
	publisher rabbitmq.Publisher
}

func NewUsecase(store taskentity.Store, resolver stemresolver.Resolver, invoker separation.Invoker, publisher rabbitmq.Publisher) Usecase {
	return Usecase{
		store:     store,
		resolver:  resolver,
		invoker:   invoker,
		publisher: publisher,
	}
}

func (u Usecase) RequestSeparation(ctx context.Context, jobID string, request SeparationRequest) (taskentity.Task, *api.Error) {
	if request.Splitter == "" {
		request.Splitter = DefaultSplitter
	}
	if request.Model == "" {
		request.Model = DefaultModel
	}
	if request.Format == "" {
		request.Format = separation.DefaultFormat
	}

	_, found, err := u.resolver.FindUpload(jobID)
	if err != nil {
		return taskentity.Task{}, commitStemError(errors.Wrap(err, "Failed to find upload"))
	}
	if !found {
		return taskentity.Task{}, api.CommitError(errors.Newf("No upload for job %s", jobID),
			stemerrors.JobNotFoundCode,
			fmt.Sprintf("Input file not found for job %s", jobID))
	}

	splitter, _, err := u.invoker.Validate(separation.Request{
		JobID:    jobID,
		Splitter: request.Splitter,
		Model:    request.Model,
		Format:   request.Format,
	})
	if err != nil {
		switch {
		case markers.Is(err, separation.UnknownSplitter):
			return taskentity.Task{}, api.CommitError(err,
				taskerrors.UnknownSplitterCode,
				fmt.Sprintf("Unknown splitter: %s", request.Splitter))
		case markers.Is(err, separation.UnknownModel):
			return taskentity.Task{}, api.CommitError(err,
				taskerrors.UnknownModelCode,
				fmt.Sprintf("Unknown model %s for splitter %s", request.Model, request.Splitter))
		default:
			return taskentity.Task{}, commitStemError(err)
		}
	}

	if !u.isAvailable(splitter.ID) {
		return taskentity.Task{}, api.CommitError(errors.Newf("Binary %s not found", splitter.Binary),
			taskerrors.SplitterUnavailableCode,
			fmt.Sprintf("%s is not installed", splitter.Name))
	}

	task := taskentity.NewTask(taskentity.SeparateKind, jobID, time.Now().UTC())
	task.Splitter = request.Splitter
	task.Model = request.Model
	task.Format = request.Format

	return u.submit(ctx, task, SeparateJobType, SeparateJobParams{
		TaskIdentifier: TaskIdentifier{TaskID: task.ID, JobID: jobID},
		Splitter:       request.Splitter,
		Model:          request.Model,
		Format:         request.Format,
	})
}

// RequestRefinement queues the split of a parent stem ("vocals" or "drums")
// into its parts. The parent must already exist.
func (u Usecase) RequestRefinement(ctx context.Context, jobID string, kind taskentity.Kind, parent string) (taskentity.Task, *api.Error) {
	if _, err := u.resolver.ResolveStem(ctx, jobID, parent); err != nil {
		return taskentity.Task{}, commitStemError(errors.Wrapf(err, "Failed to resolve %s stem", parent))
	}

	task := taskentity.NewTask(kind, jobID, time.Now().UTC())

	return u.submit(ctx, task, RefineJobType, RefineJobParams{
		TaskIdentifier: TaskIdentifier{TaskID: task.ID, JobID: jobID},
		Parent:         parent,
	})
}

func (u Usecase) RequestVocalSplit(ctx context.Context, jobID string) (taskentity.Task, *api.Error) {
	return u.RequestRefinement(ctx, jobID, taskentity.RefineVocalsKind, refine.VocalsParent)
}

func (u Usecase) RequestDrumSplit(ctx context.Context, jobID string) (taskentity.Task, *api.Error) {
	return u.RequestRefinement(ctx, jobID, taskentity.RefineDrumsKind, refine.DrumsParent)
}

func (u Usecase) GetTask(ctx context.Context, taskID string) (taskentity.Task, *api.Error) {
	task, err := u.store.Get(ctx, taskID)
	if err != nil {
		return taskentity.Task{}, commitTaskError(errors.Wrap(err, "Failed to get task"), taskID)
	}

	return task, nil
}

func (u Usecase) CancelTask(ctx context.Context, taskID string) (taskentity.Task, *api.Error) {
	task, err := taskentity.RequestCancel(ctx, u.store, taskID)
	if err != nil {
		return taskentity.Task{}, commitTaskError(errors.Wrap(err, "Failed to cancel task"), taskID)
	}

	log.WithFields(log.Fields{"task_id": taskID, "status": task.Status}).Info("Cancellation requested")
	return task, nil
}

// submit stores the task and queues its job. A task whose message could not
// be queued is marked as failed.
func (u Usecase) submit(ctx context.Context, task taskentity.Task, jobType string, params any) (taskentity.Task, *api.Error) {
	task, err := taskentity.Create(ctx, u.store, task)
	if err != nil {
		return taskentity.Task{}, api.CommitError(err,
			api.DefaultErrorCode,
			"Unknown error: Failed to create the task. Please contact the developer")
	}

	msg, err := rabbitmq.NewJobMessage(jobType, params)
	if err == nil {
		err = u.publisher.Publish(msg)
	}

	if err != nil {
		err = errors.Wrap(err, "Failed to publish job")
		u.markTaskFailed(ctx, task.ID, err)
		return taskentity.Task{}, api.CommitError(err,
			api.QueueUnavailableCode,
			"The job queue is unavailable, please try again later")
	}

	log.WithFields(log.Fields{
		"task_id":  task.ID,
		"job_id":   task.JobID,
		"job_type": jobType,
	}).Info("Queued job")

	return task, nil
}

func (u Usecase) markTaskFailed(ctx context.Context, taskID string, publishErr error) {
	_, err := taskentity.Update(ctx, u.store, taskID, func(task *taskentity.Task) error {
		task.Status = taskentity.ErrorStatus
		task.StatusMessage = "Failed to queue the job"
		task.StatusDebugLog = publishErr.Error()
		return nil
	})

	if err != nil {
		log.WithError(err).WithField("task_id", taskID).Error("Failed to mark task as failed")
	}
}

func (u Usecase) isAvailable(splitterID string) bool {
	for _, splitter := range u.invoker.Available() {
		if splitter.ID == splitterID {
			return true
		}
	}

	return false
}

func commitTaskError(err error, taskID string) *api.Error {
	switch {
	case markers.Is(err, taskentity.TaskNotFound):
		return api.CommitError(err, taskerrors.TaskNotFoundCode, fmt.Sprintf("Task %s not found", taskID))
	case markers.Is(err, taskentity.TaskFinished):
		return api.CommitError(err, taskerrors.TaskFinishedCode, "The task has already finished")
	default:
		return api.CommitError(err, api.DefaultErrorCode,
			"Unknown error: Failed to read the task. Please contact the developer")
	}
}

func commitStemError(err error) *api.Error {
	switch {
	case markers.Is(err, stementity.JobNotFound):
		return api.CommitError(err, stemerrors.JobNotFoundCode, "Job not found")
	case markers.Is(err, stementity.StemNotFound):
		return api.CommitError(err, stemerrors.StemNotFoundCode, "Stem not found")
	case markers.Is(err, stementity.PathOutsideAllowedRoot):
		return api.CommitError(err, stemerrors.PathOutsideRootCode, "The job name is not allowed")
	default:
		return api.CommitError(err, api.DefaultErrorCode,
			"Unknown error: Failed to read the stem folders. Please contact the developer")
	}
}
