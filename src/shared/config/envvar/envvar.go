package envvar

import (
	"fmt"
	"os"
	"strconv"
)

const (
	ENVIRONMENT = "ENVIRONMENT"

	AWS_ACCESS_KEY_ID     = "AWS_ACCESS_KEY_ID"
	AWS_SECRET_ACCESS_KEY = "AWS_SECRET_ACCESS_KEY"
	AWS_REGION            = "AWS_REGION"

	RABBITMQ_URL        = "RABBITMQ_URL"
	RABBITMQ_QUEUE_NAME = "RABBITMQ_QUEUE_NAME"

	TASK_STORE = "TASK_STORE"
	REDIS_URL  = "REDIS_URL"
	TASK_TABLE = "TASK_TABLE"

	GOOGLE_CLOUD_KEY                 = "GOOGLE_CLOUD_KEY"
	GOOGLE_CLOUD_STORAGE_BUCKET_NAME = "GOOGLE_CLOUD_STORAGE_BUCKET_NAME"

	STEM_ROOT          = "STEM_ROOT"
	UPLOAD_DIR         = "UPLOAD_DIR"
	SPLITTER_TABLE     = "SPLITTER_TABLE"
	FFMPEG_BIN_PATH    = "FFMPEG_BIN_PATH"
	REFINE_FORMAT      = "REFINE_FORMAT"
	WORKER_CONCURRENCY = "WORKER_CONCURRENCY"
	ALLOWED_FE_ORIGINS = "ALLOWED_FE_ORIGINS"
	PORT               = "PORT"
	LOG_LEVEL          = "LOG_LEVEL"
)

func MustGet(key string) string {
	val, isSet := os.LookupEnv(key)
	if !isSet {
		panic(fmt.Sprintf("No env variable found for key %s", key))
	}

	if val == "" {
		panic(fmt.Sprintf("Env variable is empty for key %s", key))
	}

	return val
}

func GetOr(key string, fallback string) string {
	val, isSet := os.LookupEnv(key)
	if !isSet || val == "" {
		return fallback
	}

	return val
}

func GetIntOr(key string, fallback int) int {
	val := GetOr(key, "")
	if val == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		panic(fmt.Sprintf("Env variable %s is not an integer: %s", key, val))
	}

	return parsed
}
