package taskstorage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/lib/dynamo"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
)

type Closer func()

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg config.TaskStore) (taskentity.Store, Closer, error) {
	noop := func() {}

	switch t := cfg.(type) {
	case config.MemoryTaskStore:
		return NewMemory(), noop, nil

	case config.DynamoTaskStore:
		return NewDB(dynamolib.Connect(t.Dynamo), t.TableName), noop, nil

	case config.RedisTaskStore:
		client, err := ConnectRedis(ctx, t.URL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedis(client, t.KeyPrefix), func() { _ = client.Close() }, nil

	default:
		return nil, nil, errors.Newf("unexpected task store config %T", cfg)
	}
}
