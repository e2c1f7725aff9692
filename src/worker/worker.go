package main

import (
	"context"

	"github.com/apex/log"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/config/appconfig"
	"github.com/jasonlryan/demucs/src/shared/config/dev"
	"github.com/jasonlryan/demucs/src/shared/config/envvar"
	"github.com/jasonlryan/demucs/src/shared/lib/env"
	"github.com/jasonlryan/demucs/src/shared/lib/logging"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/task/storage"
	"github.com/jasonlryan/demucs/src/worker/application"
)

func main() {
	if err := env.LoadDotEnv(); err != nil {
		panic(err)
	}
	logging.Setup()

	rabbitMQURL, queueName := appconfig.RabbitMQ()
	if rabbitMQURL == "" {
		if env.Get() != env.Development {
			panic("A standalone worker needs RABBITMQ_URL, the server runs its own worker otherwise")
		}
		rabbitMQURL = dev.RabbitMQHost
	}

	taskStoreConfig := appconfig.TaskStore()
	if _, ok := taskStoreConfig.(config.MemoryTaskStore); ok {
		panic("A standalone worker cannot share an in-memory task store, set TASK_STORE")
	}

	taskStore, closeStore, err := taskstorage.Open(context.Background(), taskStoreConfig)
	if err != nil {
		panic(err)
	}
	defer closeStore()

	appConfig := application.Config{
		RabbitMQURL:        rabbitMQURL,
		RabbitMQQueueName:  queueName,
		TaskStore:          taskStore,
		CloudStorageConfig: appconfig.CloudStorage(),
		StemRoot:           appconfig.StemRoot(),
		UploadDir:          appconfig.UploadDir(),
		SplitterTable:      appconfig.SplitterTable(),
		FFmpegBinPath:      appconfig.FFmpegBinPath(),
		RefineFormat:       envvar.GetOr(envvar.REFINE_FORMAT, refine.DefaultFormat),
		Concurrency:        envvar.GetIntOr(envvar.WORKER_CONCURRENCY, 1),
	}

	log.WithFields(log.Fields{
		"environment": env.Get(),
		"queue_name":  queueName,
		"stem_root":   appConfig.StemRoot,
	}).Info("Worker configured")

	app := application.NewApp(appConfig)
	if err := app.Start(); err != nil {
		panic(err)
	}
}
