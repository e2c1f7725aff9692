package application

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/jasonlryan/demucs/src/server/internal/stem/gateway"
	"github.com/jasonlryan/demucs/src/server/internal/stem/usecase"
	"github.com/jasonlryan/demucs/src/server/internal/task/gateway"
	"github.com/jasonlryan/demucs/src/server/internal/task/usecase"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/lib/executor"
	"github.com/jasonlryan/demucs/src/shared/lib/rabbitmq"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
)

const UploadBodyLimit = "500M"

type HTTPMethod string

const (
	GET    HTTPMethod = "GET"
	POST   HTTPMethod = "POST"
	PUT    HTTPMethod = "PUT"
	DELETE HTTPMethod = "DELETE"
)

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}

	return t
}

type App struct {
	echo *echo.Echo
	port string
}

type Config struct {
	TaskStore taskentity.Store
	Publisher rabbitmq.Publisher

	StemRoot      string
	UploadDir     string
	SplitterTable config.SplitterTable
	FFmpegBinPath string
	// Executor defaults to running real binaries
	Executor executor.Executor

	CORSAllowedOrigins []string
	Port               string
	Log                bool
}

func NewApp(config Config) App {
	e := echo.New()
	e.HideBanner = true

	if config.Log {
		e.Use(middleware.Logger())
	}

	corsMiddleware := makeCorsMiddleware(config)

	handleRoute := func(method HTTPMethod, path string, handlerFunc echo.HandlerFunc, middlewares ...echo.MiddlewareFunc) {
		middlewares = append([]echo.MiddlewareFunc{corsMiddleware}, middlewares...)

		e.OPTIONS(path, handlerFunc, corsMiddleware)

		switch method {
		case GET:
			e.GET(path, handlerFunc, middlewares...)
		case POST:
			e.POST(path, handlerFunc, middlewares...)
		case PUT:
			e.PUT(path, handlerFunc, middlewares...)
		case DELETE:
			e.DELETE(path, handlerFunc, middlewares...)
		default:
			panic("unhandled http method!")
		}
	}

	if config.Executor == nil {
		config.Executor = executor.BinaryFileExecutor{}
	}

	resolver := makeResolver(config)
	invoker := must(separation.NewInvoker(config.Executor, resolver.StemRoot(), config.SplitterTable))

	stemGateway := makeStemGateway(config, resolver, invoker)
	taskGateway := makeTaskGateway(config, resolver, invoker)

	// health check
	handleRoute(GET, "/health-check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// stem routes
	handleRoute(GET, "/api/splitters", stemGateway.GetSplitters)
	handleRoute(POST, "/api/upload", stemGateway.Upload, middleware.BodyLimit(UploadBodyLimit))
	handleRoute(GET, "/api/manifest/:job_id", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return stemGateway.GetManifest(c, jobID)
	})
	handleRoute(GET, "/api/stems/:job_id/*", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return stemGateway.ServeStem(c, jobID, c.Param("*"))
	})
	handleRoute(POST, "/api/analyze/:job_id", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return stemGateway.Analyze(c, jobID)
	})
	handleRoute(POST, "/api/add-stem/:job_id", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return stemGateway.AddStem(c, jobID)
	}, middleware.BodyLimit(UploadBodyLimit))
	handleRoute(DELETE, "/api/cleanup/:job_id", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return stemGateway.Cleanup(c, jobID)
	})
	handleRoute(POST, "/api/load-project", stemGateway.LoadProject)
	handleRoute(POST, "/api/browse-folders", stemGateway.BrowseFolders)

	// task routes
	handleRoute(POST, "/api/separate/:job_id", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return taskGateway.Separate(c, jobID)
	})
	handleRoute(POST, "/api/split-vocals/:job_id", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return taskGateway.SplitVocals(c, jobID)
	})
	handleRoute(POST, "/api/split-drums/:job_id", func(c echo.Context) error {
		jobID := c.Param("job_id")
		return taskGateway.SplitDrums(c, jobID)
	})
	handleRoute(GET, "/api/tasks/:task_id", func(c echo.Context) error {
		taskID := c.Param("task_id")
		return taskGateway.GetTask(c, taskID)
	})
	handleRoute(DELETE, "/api/tasks/:task_id", func(c echo.Context) error {
		taskID := c.Param("task_id")
		return taskGateway.CancelTask(c, taskID)
	})

	return App{
		echo: e,
		port: config.Port,
	}
}

func (a *App) Handler() http.Handler {
	return a.echo
}

func (a *App) Start() error {
	err := a.echo.Start(a.port)
	if err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "Couldn't start echo server")
	}

	return nil
}

func (a *App) Stop() error {
	err := a.echo.Close()
	if err != nil {
		return errors.Wrap(err, "Failed to stop echo server")
	}

	return nil
}

func makeResolver(config Config) stemresolver.Resolver {
	return must(stemresolver.NewResolver(stemresolver.Config{
		StemRoot:  config.StemRoot,
		UploadDir: config.UploadDir,
		Table:     config.SplitterTable,
	}))
}

func makeCodecs(config Config) audio.Codecs {
	codecs := audio.Codecs{WAV: audio.WAVCodec{}}
	if config.FFmpegBinPath != "" {
		codecs.FFmpeg = audio.NewFFmpegCodec(config.Executor, config.FFmpegBinPath)
	}

	return codecs
}

func makeStemGateway(config Config, resolver stemresolver.Resolver, invoker separation.Invoker) stemgateway.Gateway {
	analyzer := refine.NewAnalyzer(resolver, makeCodecs(config))
	stemUsecase := stemusecase.NewUsecase(resolver, analyzer, invoker)
	return stemgateway.NewGateway(stemUsecase)
}

func makeTaskGateway(config Config, resolver stemresolver.Resolver, invoker separation.Invoker) taskgateway.Gateway {
	taskUsecase := taskusecase.NewUsecase(config.TaskStore, resolver, invoker, config.Publisher)
	return taskgateway.NewGateway(taskUsecase)
}

func makeCorsMiddleware(config Config) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.CORSAllowedOrigins,
		AllowHeaders: []string{echo.HeaderContentType},
	})
}
