package taskentity

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/domains"
	"github.com/cockroachdb/errors/markers"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

var (
	TaskNotFound     = domains.New("task_not_found")
	RevisionConflict = domains.New("revision_conflict")
	TaskFinished     = domains.New("task_finished")
)

const maxUpdateAttempts = 10

// Store persists tasks. Put only succeeds when the stored revision still
// equals expectedRevision, a revision of 0 meaning "not stored yet".
//
//counterfeiter:generate . Store
type Store interface {
	Get(ctx context.Context, id string) (Task, error)
	Put(ctx context.Context, task Task, expectedRevision int64) error
}

type Updater func(task *Task) error

func Create(ctx context.Context, store Store, task Task) (Task, error) {
	task.Revision = 1
	if err := store.Put(ctx, task, 0); err != nil {
		return Task{}, errors.Wrap(err, "Failed to create task")
	}

	return task, nil
}

// Update applies updater to the latest revision, retrying when another
// writer got there first.
func Update(ctx context.Context, store Store, id string, updater Updater) (Task, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		task, err := store.Get(ctx, id)
		if err != nil {
			return Task{}, err
		}

		expected := task.Revision
		if err := updater(&task); err != nil {
			return Task{}, err
		}

		task.Revision = expected + 1
		task.UpdatedAt = time.Now().UTC()

		err = store.Put(ctx, task, expected)
		if err == nil {
			return task, nil
		}
		if !markers.Is(err, RevisionConflict) {
			return Task{}, err
		}
	}

	return Task{}, mark.Message(RevisionConflict,
		fmt.Sprintf("Gave up updating task %s after %d attempts", id, maxUpdateAttempts))
}

// RequestCancel flags a running task. The worker that owns it notices and
// moves it to cancelled. A task still waiting in the queue is cancelled
// straight away.
func RequestCancel(ctx context.Context, store Store, id string) (Task, error) {
	return Update(ctx, store, id, func(task *Task) error {
		switch task.Status {
		case RequestedStatus:
			task.Status = CancelledStatus
			task.StatusMessage = "Cancelled before starting"
		case ProcessingStatus:
			task.Status = CancelRequestedStatus
			task.StatusMessage = "Cancelling"
		case CancelRequestedStatus:
		default:
			return mark.Message(TaskFinished, fmt.Sprintf("Task already finished with status %s", task.Status))
		}
		return nil
	})
}
