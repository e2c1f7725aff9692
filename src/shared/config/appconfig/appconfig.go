package appconfig

import (
	"fmt"
	"path/filepath"

	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/config/dev"
	"github.com/jasonlryan/demucs/src/shared/config/envvar"
	"github.com/jasonlryan/demucs/src/shared/config/local"
	"github.com/jasonlryan/demucs/src/shared/config/prod"
	"github.com/jasonlryan/demucs/src/shared/lib/env"
)

const (
	MemoryTaskStore = "memory"
	DynamoTaskStore = "dynamo"
	RedisTaskStore  = "redis"
)

// StemRoot and UploadDir must be set in production, development keeps them
// inside the checkout.
func StemRoot() string {
	if env.Get() == env.Production {
		return envvar.MustGet(envvar.STEM_ROOT)
	}
	return envvar.GetOr(envvar.STEM_ROOT, filepath.Join(local.ProjectRoot(), dev.StemRoot))
}

func UploadDir() string {
	if env.Get() == env.Production {
		return envvar.MustGet(envvar.UPLOAD_DIR)
	}
	return envvar.GetOr(envvar.UPLOAD_DIR, filepath.Join(local.ProjectRoot(), dev.UploadDir))
}

func SplitterTable() config.SplitterTable {
	path := envvar.GetOr(envvar.SPLITTER_TABLE, "")
	if path == "" {
		return config.DefaultSplitterTable()
	}

	table, err := config.LoadSplitterTable(path)
	if err != nil {
		panic(err)
	}
	return table
}

func Dynamo() config.Dynamo {
	switch env.Get() {
	case env.Production:
		return config.ProdDynamo{
			AccessKeyID:     envvar.MustGet(envvar.AWS_ACCESS_KEY_ID),
			SecretAccessKey: envvar.MustGet(envvar.AWS_SECRET_ACCESS_KEY),
			Region:          envvar.GetOr(envvar.AWS_REGION, prod.DynamoDBRegion),
		}
	default:
		return dev.DynamoConfig
	}
}

func TaskStore() config.TaskStore {
	kind := envvar.GetOr(envvar.TASK_STORE, MemoryTaskStore)

	switch kind {
	case MemoryTaskStore:
		return config.MemoryTaskStore{}
	case DynamoTaskStore:
		return config.DynamoTaskStore{
			Dynamo:    Dynamo(),
			TableName: envvar.GetOr(envvar.TASK_TABLE, prod.TasksTable),
		}
	case RedisTaskStore:
		return config.RedisTaskStore{
			URL: envvar.MustGet(envvar.REDIS_URL),
		}
	default:
		panic(fmt.Sprintf("Unknown task store %q", kind))
	}
}

// CloudStorage is nil when no bucket is configured, stems then stay local.
// Outside production the bucket lives on a local GCS emulator.
func CloudStorage() config.CloudStorage {
	bucket := envvar.GetOr(envvar.GOOGLE_CLOUD_STORAGE_BUCKET_NAME, "")
	if bucket == "" {
		return nil
	}

	if env.Get() != env.Production {
		return config.LocalCloudStorage{
			StorageHost:  dev.CloudStorageHost,
			HostEndpoint: dev.CloudStorageEndpoint,
			BucketName:   bucket,
		}
	}

	return config.ProdCloudStorage{
		StorageHost: prod.GOOGLE_STORAGE_HOST,
		SecretKey:   envvar.MustGet(envvar.GOOGLE_CLOUD_KEY),
		BucketName:  bucket,
	}
}

// RabbitMQ returns an empty URL when the in-process queue should be used.
func RabbitMQ() (url string, queueName string) {
	return envvar.GetOr(envvar.RABBITMQ_URL, ""), envvar.GetOr(envvar.RABBITMQ_QUEUE_NAME, dev.RabbitMQQueueName)
}

// FFmpegBinPath is empty in development when FFMPEG_BIN_PATH is unset, only
// WAV stems can then be decoded. Production requires ffmpeg on the PATH.
func FFmpegBinPath() string {
	if path := envvar.GetOr(envvar.FFMPEG_BIN_PATH, ""); path != "" {
		return path
	}
	if env.Get() == env.Production {
		return config.FFmpegPath()
	}
	return ""
}
