package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/config/dev"
	"github.com/jasonlryan/demucs/src/shared/config/envvar"
	"github.com/jasonlryan/demucs/src/shared/lib/env"
	"github.com/jasonlryan/demucs/src/shared/lib/executor"
	"github.com/jasonlryan/demucs/src/shared/lib/keylock"
	"github.com/jasonlryan/demucs/src/shared/lib/logging"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
)

const locksDirName = ".locks"

// commandContext holds the flag values shared by every command and builds
// the stem components from them.
type commandContext struct {
	stemRoot      string
	uploadDir     string
	splitterTable string
	ffmpegBinPath string
	refineFormat  string
	timeout       time.Duration

	executor executor.Executor
}

func newCommandContext() *commandContext {
	return &commandContext{
		executor: executor.BinaryFileExecutor{},
	}
}

// setup runs before every command. Flags beat the environment, which beats
// the development defaults.
func (c *commandContext) setup() error {
	if err := env.LoadDotEnv(); err != nil {
		return err
	}

	if envvar.GetOr(envvar.ENVIRONMENT, "") == "" {
		if err := os.Setenv(envvar.ENVIRONMENT, string(env.Development)); err != nil {
			return errors.Wrap(err, "Failed to default the environment")
		}
	}
	logging.Setup()

	if c.stemRoot == "" {
		c.stemRoot = envvar.GetOr(envvar.STEM_ROOT, dev.StemRoot)
	}
	if c.uploadDir == "" {
		c.uploadDir = envvar.GetOr(envvar.UPLOAD_DIR, dev.UploadDir)
	}
	if c.splitterTable == "" {
		c.splitterTable = envvar.GetOr(envvar.SPLITTER_TABLE, "")
	}
	if c.ffmpegBinPath == "" {
		c.ffmpegBinPath = envvar.GetOr(envvar.FFMPEG_BIN_PATH, "")
	}
	if c.ffmpegBinPath == "" {
		if path, err := c.executor.LookPath("ffmpeg"); err == nil {
			c.ffmpegBinPath = path
		}
	}
	if c.refineFormat == "" {
		c.refineFormat = envvar.GetOr(envvar.REFINE_FORMAT, refine.DefaultFormat)
	}

	return nil
}

// commandCtx is cancelled on SIGINT / SIGTERM and after --timeout, if set.
func (c *commandContext) commandCtx() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if c.timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (c *commandContext) table() (config.SplitterTable, error) {
	if c.splitterTable == "" {
		return config.DefaultSplitterTable(), nil
	}

	return config.LoadSplitterTable(c.splitterTable)
}

func (c *commandContext) resolver() (stemresolver.Resolver, error) {
	table, err := c.table()
	if err != nil {
		return stemresolver.Resolver{}, err
	}

	return stemresolver.NewResolver(stemresolver.Config{
		StemRoot:  c.stemRoot,
		UploadDir: c.uploadDir,
		Table:     table,
	})
}

func (c *commandContext) invoker(resolver stemresolver.Resolver) (separation.Invoker, error) {
	return separation.NewInvoker(c.executor, resolver.StemRoot(), resolver.Table())
}

func (c *commandContext) codecs() audio.Codecs {
	codecs := audio.Codecs{WAV: audio.WAVCodec{}}
	if c.ffmpegBinPath != "" {
		codecs.FFmpeg = audio.NewFFmpegCodec(c.executor, c.ffmpegBinPath)
	}

	return codecs
}

func (c *commandContext) locker(resolver stemresolver.Resolver) (*keylock.Locker, error) {
	return keylock.NewLocker(filepath.Join(resolver.StemRoot(), locksDirName))
}
