package job_router

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
	"github.com/jasonlryan/demucs/src/worker/internal/application/jobs/job_message"
	"github.com/jasonlryan/demucs/src/worker/internal/application/jobs/refine"
	"github.com/jasonlryan/demucs/src/worker/internal/application/jobs/separate"
	"github.com/rabbitmq/amqp091-go"
)

const DefaultCancelPollInterval = time.Second

type JobRouter struct {
	taskStore          taskentity.Store
	separateHandler    separate.SeparateJobHandler
	refineHandler      refine.RefineJobHandler
	cancelPollInterval time.Duration
}

func NewJobRouter(
	taskStore taskentity.Store,
	separateHandler separate.SeparateJobHandler,
	refineHandler refine.RefineJobHandler,
) JobRouter {
	return JobRouter{
		taskStore:          taskStore,
		separateHandler:    separateHandler,
		refineHandler:      refineHandler,
		cancelPollInterval: DefaultCancelPollInterval,
	}
}

// WithCancelPollInterval sets how often a running task is checked for a
// cancellation request.
func (j JobRouter) WithCancelPollInterval(interval time.Duration) JobRouter {
	j.cancelPollInterval = interval
	return j
}

// HandleMessage runs one queued job to completion. A returned error means the
// delivery should be nacked, and the task has been moved to error status
// where that was possible.
func (j JobRouter) HandleMessage(message amqp091.Delivery) error {
	identifier := job_message.TaskIdentifier{}
	if err := json.Unmarshal(message.Body, &identifier); err != nil {
		return cerr.Field("message_type", message.Type).
			Wrap(err).Error("Failed to unmarshal the task identifier")
	}

	if identifier.TaskID == "" {
		return cerr.Field("message_type", message.Type).Error("Message has no task ID")
	}

	logger := log.WithFields(log.Fields{
		"message_type": message.Type,
		"task_id":      identifier.TaskID,
		"job_id":       identifier.JobID,
	})

	proceed, err := j.startTask(identifier.TaskID)
	if err != nil {
		return err
	}
	if !proceed {
		logger.Info("Task was cancelled before it started, skipping")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelled := &atomic.Bool{}
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		j.watchCancellation(ctx, identifier.TaskID, cancelled, cancel)
	}()

	result, errorMessage, err := j.route(ctx, message, j.reporter(identifier.TaskID))
	cancel()
	<-watcherDone

	if err != nil && cancelled.Load() {
		logger.Info("Task was cancelled while running")
		return j.finishTask(identifier.TaskID, func(task *taskentity.Task) error {
			task.Status = taskentity.CancelledStatus
			task.StatusMessage = "Cancelled"
			return nil
		})
	}

	if err != nil {
		j.failTask(identifier.TaskID, errorMessage, err)
		return err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		err = cerr.Wrap(err).Error("Failed to marshal the job result")
		j.failTask(identifier.TaskID, errorMessage, err)
		return err
	}

	return j.finishTask(identifier.TaskID, func(task *taskentity.Task) error {
		task.Status = taskentity.SucceededStatus
		task.StatusMessage = "Done"
		task.Progress = 100
		task.Result = resultJSON
		return nil
	})
}

func (j JobRouter) route(ctx context.Context, message amqp091.Delivery, report job_message.Reporter) (job_message.Result, string, error) {
	switch message.Type {
	case separate.JobType:
		_, result, err := j.separateHandler.HandleSeparateJob(ctx, message.Body, report)
		return result, separate.ErrorMessage, err

	case refine.JobType:
		_, result, err := j.refineHandler.HandleRefineJob(ctx, message.Body, report)
		return result, refine.ErrorMessage, err

	default:
		return job_message.Result{}, "Unrecognised job", cerr.Field("message_type", message.Type).
			Error("Message type not recognized")
	}
}

// startTask claims a requested task. It reports false when the task was
// cancelled while it waited in the queue.
func (j JobRouter) startTask(taskID string) (bool, error) {
	errctx := cerr.Field("task_id", taskID)
	skip := errors.New("task cancelled before start")

	_, err := taskentity.Update(context.Background(), j.taskStore, taskID, func(task *taskentity.Task) error {
		switch task.Status {
		case taskentity.CancelledStatus:
			return skip
		case taskentity.RequestedStatus:
			task.Status = taskentity.ProcessingStatus
			task.StatusMessage = "Started"
			return nil
		default:
			return errctx.Field("status", task.Status).
				Error("Task is not in requested status, abort processing to be safe")
		}
	})

	if errors.Is(err, skip) {
		return false, nil
	}
	if err != nil {
		return false, errctx.Wrap(err).Error("Failed to set the task status")
	}

	return true, nil
}

func (j JobRouter) watchCancellation(ctx context.Context, taskID string, cancelled *atomic.Bool, cancel context.CancelFunc) {
	ticker := time.NewTicker(j.cancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		task, err := j.taskStore.Get(ctx, taskID)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).WithField("task_id", taskID).
					Warn("Failed to check the task for cancellation")
			}
			continue
		}

		if task.Status == taskentity.CancelRequestedStatus {
			cancelled.Store(true)
			cancel()
			return
		}
	}
}

func (j JobRouter) reporter(taskID string) job_message.Reporter {
	return func(progress int, message string) {
		_, err := taskentity.Update(context.Background(), j.taskStore, taskID, func(task *taskentity.Task) error {
			if task.Status != taskentity.ProcessingStatus {
				return nil
			}
			task.Progress = progress
			task.StatusMessage = message
			return nil
		})

		if err != nil {
			log.WithError(err).
				WithFields(log.Fields{"task_id": taskID, "progress": progress}).
				Warn("Failed to report progress")
		}
	}
}

func (j JobRouter) failTask(taskID string, errorMessage string, jobErr error) {
	err := j.finishTask(taskID, func(task *taskentity.Task) error {
		task.Status = taskentity.ErrorStatus
		task.StatusMessage = errorMessage
		task.StatusDebugLog = jobErr.Error()
		return nil
	})

	if err != nil {
		cerr.Log(err)
	}
}

func (j JobRouter) finishTask(taskID string, updater taskentity.Updater) error {
	_, err := taskentity.Update(context.Background(), j.taskStore, taskID, updater)
	if err != nil {
		return cerr.Field("task_id", taskID).Wrap(err).Error("Failed to record the task outcome")
	}

	return nil
}
