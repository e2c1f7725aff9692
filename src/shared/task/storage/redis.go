package taskstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "stem:task:"
	taskTTL          = 7 * 24 * time.Hour
)

var _ taskentity.Store = Redis{}

// Redis stores each task as a JSON string and guards writes with WATCH.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedis(client redis.UniversalClient, keyPrefix string) Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return Redis{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// ConnectRedis parses a redis:// URL and checks the server answers.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "Invalid redis URL")
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "Failed to reach redis")
	}

	return client, nil
}

func (r Redis) key(id string) string {
	return r.keyPrefix + id
}

func (r Redis) Get(ctx context.Context, id string) (taskentity.Task, error) {
	contents, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return taskentity.Task{}, mark.Message(taskentity.TaskNotFound, fmt.Sprintf("Task %s not found", id))
	}
	if err != nil {
		return taskentity.Task{}, mark.Wrap(err, DefaultErrorMark, "Failed to fetch task")
	}

	return decodeTask(contents)
}

func (r Redis) Put(ctx context.Context, task taskentity.Task, expectedRevision int64) error {
	if task.ID == "" {
		return errors.New("Task ID is not defined")
	}

	contents, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "Failed to encode task")
	}

	key := r.key(task.ID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectedRevision != 0 {
				return mark.Message(taskentity.TaskNotFound, fmt.Sprintf("Task %s not found", task.ID))
			}
		case err != nil:
			return err
		default:
			stored, err := decodeTask(current)
			if err != nil {
				return err
			}
			if stored.Revision != expectedRevision {
				return mark.Message(taskentity.RevisionConflict, "Task was modified concurrently")
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, contents, taskTTL)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return mark.Wrap(err, taskentity.RevisionConflict, "Task was modified concurrently")
	case errors.Is(err, taskentity.RevisionConflict), errors.Is(err, taskentity.TaskNotFound):
		return err
	default:
		return mark.Wrap(err, DefaultErrorMark, "Failed to put the task in redis")
	}
}

func decodeTask(contents []byte) (taskentity.Task, error) {
	task := taskentity.Task{}
	if err := json.Unmarshal(contents, &task); err != nil {
		return taskentity.Task{}, mark.Wrap(err, UnmarshalMark, "Failed to decode task")
	}
	return task, nil
}
