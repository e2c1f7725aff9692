package config

// TaskStore selects where task records (job handles) live.
type TaskStore interface {
	TaskStoreConfig()
}

var _ TaskStore = MemoryTaskStore{}

type MemoryTaskStore struct{}

func (MemoryTaskStore) TaskStoreConfig() {}

var _ TaskStore = DynamoTaskStore{}

type DynamoTaskStore struct {
	Dynamo    Dynamo
	TableName string
}

func (DynamoTaskStore) TaskStoreConfig() {}

var _ TaskStore = RedisTaskStore{}

type RedisTaskStore struct {
	URL       string
	KeyPrefix string
}

func (RedisTaskStore) TaskStoreConfig() {}
