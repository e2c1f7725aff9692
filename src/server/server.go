package main

import (
	"context"
	"strings"

	"github.com/apex/log"
	"github.com/jasonlryan/demucs/src/server/application"
	"github.com/jasonlryan/demucs/src/shared/config/appconfig"
	"github.com/jasonlryan/demucs/src/shared/config/envvar"
	"github.com/jasonlryan/demucs/src/shared/lib/env"
	"github.com/jasonlryan/demucs/src/shared/lib/logging"
	"github.com/jasonlryan/demucs/src/shared/lib/rabbitmq"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/task/storage"
	workerapp "github.com/jasonlryan/demucs/src/worker/application"
)

const defaultPort = "5000"

func main() {
	if err := env.LoadDotEnv(); err != nil {
		panic(err)
	}
	logging.Setup()

	var allowedOrigins []string
	switch env.Get() {
	case env.Production:
		commaSeparatedOrigins := envvar.MustGet(envvar.ALLOWED_FE_ORIGINS)
		allowedOrigins = strings.Split(commaSeparatedOrigins, ",")
	case env.Development:
		allowedOrigins = []string{"*"}
	default:
		panic("Unexpected environment")
	}

	taskStore, closeStore, err := taskstorage.Open(context.Background(), appconfig.TaskStore())
	if err != nil {
		panic(err)
	}
	defer closeStore()

	stemRoot := appconfig.StemRoot()
	uploadDir := appconfig.UploadDir()
	splitterTable := appconfig.SplitterTable()
	ffmpegBinPath := appconfig.FFmpegBinPath()

	var publisher rabbitmq.Publisher
	rabbitMQURL, queueName := appconfig.RabbitMQ()
	if rabbitMQURL != "" {
		queuePublisher, err := rabbitmq.NewQueuePublisher(rabbitMQURL, queueName)
		if err != nil {
			panic(err)
		}
		defer queuePublisher.Close()
		publisher = queuePublisher
	} else {
		publisher = startEmbeddedWorker(workerapp.Config{
			RabbitMQQueueName:  queueName,
			TaskStore:          taskStore,
			CloudStorageConfig: appconfig.CloudStorage(),
			StemRoot:           stemRoot,
			UploadDir:          uploadDir,
			SplitterTable:      splitterTable,
			FFmpegBinPath:      ffmpegBinPath,
			RefineFormat:       envvar.GetOr(envvar.REFINE_FORMAT, refine.DefaultFormat),
			Concurrency:        envvar.GetIntOr(envvar.WORKER_CONCURRENCY, 1),
		})
	}

	appConfig := application.Config{
		TaskStore:          taskStore,
		Publisher:          publisher,
		StemRoot:           stemRoot,
		UploadDir:          uploadDir,
		SplitterTable:      splitterTable,
		FFmpegBinPath:      ffmpegBinPath,
		CORSAllowedOrigins: allowedOrigins,
		Port:               ":" + envvar.GetOr(envvar.PORT, defaultPort),
		Log:                true,
	}

	log.WithFields(log.Fields{
		"environment":     env.Get(),
		"port":            appConfig.Port,
		"stem_root":       stemRoot,
		"embedded_worker": rabbitMQURL == "",
	}).Info("Server configured")

	app := application.NewApp(appConfig)
	if err := app.Start(); err != nil {
		panic(err)
	}
}

// startEmbeddedWorker runs the job worker inside the server process, fed by
// an in-process queue.
func startEmbeddedWorker(workerConfig workerapp.Config) rabbitmq.Publisher {
	worker := workerapp.NewApp(workerConfig)
	publisher, ok := worker.LocalPublisher()
	if !ok {
		panic("Embedded worker has no local queue")
	}

	go func() {
		if err := worker.Start(); err != nil {
			log.WithError(err).Error("Embedded worker stopped")
		}
	}()

	return publisher
}
