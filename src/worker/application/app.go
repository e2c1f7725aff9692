package application

import (
	"path/filepath"

	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/executor"
	"github.com/jasonlryan/demucs/src/shared/lib/keylock"
	"github.com/jasonlryan/demucs/src/shared/lib/rabbitmq"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
	filestore "github.com/jasonlryan/demucs/src/worker/internal/application/cloud_storage/store"
	"github.com/jasonlryan/demucs/src/worker/internal/application/jobs/job_router"
	refinejob "github.com/jasonlryan/demucs/src/worker/internal/application/jobs/refine"
	"github.com/jasonlryan/demucs/src/worker/internal/application/jobs/separate"
	"github.com/jasonlryan/demucs/src/worker/internal/application/mirror"
	"github.com/jasonlryan/demucs/src/worker/internal/application/worker"
	"github.com/jasonlryan/demucs/src/worker/internal/lib/storagepath"
	"github.com/rabbitmq/amqp091-go"
	"google.golang.org/api/option"
)

const LocksDirName = ".locks"

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}

	return t
}

type App struct {
	worker     worker.QueueWorker
	localQueue *worker.LocalQueue
}

type Config struct {
	// RabbitMQURL empty means jobs travel over an in-process queue
	RabbitMQURL       string
	RabbitMQQueueName string

	TaskStore          taskentity.Store
	CloudStorageConfig config.CloudStorage

	StemRoot      string
	UploadDir     string
	SplitterTable config.SplitterTable
	FFmpegBinPath string
	RefineFormat  string
	Concurrency   int
	// Executor defaults to running real binaries
	Executor executor.Executor
}

func NewApp(config Config) App {
	router := newJobRouter(config)

	if config.RabbitMQURL == "" {
		localQueue := worker.NewLocalQueue(worker.DefaultLocalQueueCapacity)
		return App{
			worker:     worker.NewQueueWorker(localQueue, config.RabbitMQQueueName, router, config.Concurrency),
			localQueue: localQueue,
		}
	}

	consumerConn := must(amqp091.Dial(config.RabbitMQURL))
	return App{
		worker: must(worker.NewQueueWorkerFromConnection(
			consumerConn,
			config.RabbitMQQueueName,
			router,
			config.Concurrency,
		)),
	}
}

// LocalPublisher feeds the in-process queue. It is only available when the
// app was configured without RabbitMQ.
func (a *App) LocalPublisher() (rabbitmq.Publisher, bool) {
	if a.localQueue == nil {
		return nil, false
	}
	return a.localQueue, true
}

func (a *App) Start() error {
	err := a.worker.Start()
	if err != nil {
		return cerr.Wrap(err).Error("Failed to start worker")
	}

	return nil
}

func (a *App) Stop() {
	a.worker.Stop()
}

func newResolver(config Config) stemresolver.Resolver {
	return must(stemresolver.NewResolver(stemresolver.Config{
		StemRoot:  config.StemRoot,
		UploadDir: config.UploadDir,
		Table:     config.SplitterTable,
	}))
}

func newCodecs(config Config, exec executor.Executor) audio.Codecs {
	codecs := audio.Codecs{WAV: audio.WAVCodec{}}
	if config.FFmpegBinPath != "" {
		codecs.FFmpeg = audio.NewFFmpegCodec(exec, config.FFmpegBinPath)
	}

	return codecs
}

func newMirror(config Config) mirror.Mirror {
	if config.CloudStorageConfig == nil {
		return mirror.NoMirror{}
	}

	pathGenerator := storagepath.Generator{
		Host:   config.CloudStorageConfig.GetStorageHost(),
		Bucket: config.CloudStorageConfig.GetBucket(),
	}

	return mirror.NewCloudMirror(newGoogleFileStore(config.CloudStorageConfig), pathGenerator)
}

func newGoogleFileStore(cloudStorageConfig config.CloudStorage) filestore.GoogleFileStore {
	switch t := cloudStorageConfig.(type) {
	case config.ProdCloudStorage:
		return must(filestore.NewGoogleFileStore(
			t.StorageHost,
			option.WithCredentialsJSON([]byte(t.SecretKey)),
		))

	case config.LocalCloudStorage:
		return must(filestore.NewGoogleFileStore(
			t.StorageHost,
			option.WithEndpoint(t.HostEndpoint),
			option.WithAPIKey("fake_api_key"),
		))

	default:
		panic("Unrecognized cloud storage config")
	}
}

func newJobRouter(config Config) job_router.JobRouter {
	exec := config.Executor
	if exec == nil {
		exec = executor.BinaryFileExecutor{}
	}
	resolver := newResolver(config)
	locker := must(keylock.NewLocker(filepath.Join(resolver.StemRoot(), LocksDirName)))
	jobMirror := newMirror(config)

	return job_router.NewJobRouter(
		config.TaskStore,
		newSeparateJobHandler(config, exec, resolver, locker, jobMirror),
		newRefineJobHandler(config, exec, resolver, locker, jobMirror),
	)
}

func newSeparateJobHandler(config Config, exec executor.Executor, resolver stemresolver.Resolver, locker *keylock.Locker, jobMirror mirror.Mirror) separate.JobHandler {
	invoker := must(separation.NewInvoker(exec, resolver.StemRoot(), config.SplitterTable))
	return separate.NewJobHandler(invoker, resolver, locker, jobMirror)
}

func newRefineJobHandler(config Config, exec executor.Executor, resolver stemresolver.Resolver, locker *keylock.Locker, jobMirror mirror.Mirror) refinejob.JobHandler {
	engine := must(refine.NewEngine(resolver, newCodecs(config, exec), config.RefineFormat))

	return refinejob.NewJobHandler(engine, resolver, locker, jobMirror,
		refine.NewVocalRefiner(),
		refine.NewDrumRefiner(),
	)
}
