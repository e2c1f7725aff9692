package separation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/lib/executor"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
)

const (
	StagingDirName = ".staging"
	DefaultFormat  = "mp3"
)

type Request struct {
	SourcePath string
	JobID      string
	Splitter   string
	Model      string
	Format     string
}

type RunResult struct {
	OutputRoot  string
	OutputDir   string
	ModelFolder string
	Marker      stementity.RunMarker
}

// Invoker runs an external separation tool into a private staging dir and
// only promotes its output once the tool has exited cleanly.
type Invoker struct {
	executor executor.Executor
	stemRoot string
	table    config.SplitterTable
	now      func() time.Time
}

func NewInvoker(exec executor.Executor, stemRoot string, table config.SplitterTable) (Invoker, error) {
	absStemRoot, err := filepath.Abs(stemRoot)
	if err != nil {
		return Invoker{}, cerr.Field("stem_root", stemRoot).
			Wrap(err).Error("Failed to convert stem root to absolute format")
	}

	return Invoker{
		executor: exec,
		stemRoot: absStemRoot,
		table:    table,
		now:      time.Now,
	}, nil
}

// Available lists the splitters whose binaries can be found.
func (i Invoker) Available() []config.Splitter {
	available := []config.Splitter{}
	for _, splitter := range i.table.Splitters {
		if _, err := i.executor.LookPath(splitter.Binary); err == nil {
			available = append(available, splitter)
		}
	}
	return available
}

// Validate checks a request against the splitter table without touching disk.
func (i Invoker) Validate(request Request) (config.Splitter, config.SplitterModel, error) {
	if err := stemresolver.ValidateJobID(request.JobID); err != nil {
		return config.Splitter{}, config.SplitterModel{}, err
	}

	splitter, ok := i.table.Splitter(request.Splitter)
	if !ok {
		return config.Splitter{}, config.SplitterModel{}, mark.Message(UnknownSplitter,
			fmt.Sprintf("Unknown splitter %q", request.Splitter))
	}

	model, ok := splitter.Model(request.Model)
	if !ok {
		return config.Splitter{}, config.SplitterModel{}, mark.Message(UnknownModel,
			fmt.Sprintf("Unknown model %q for splitter %s", request.Model, splitter.ID))
	}

	return splitter, model, nil
}

func (i Invoker) Invoke(ctx context.Context, request Request) (RunResult, error) {
	splitter, model, err := i.Validate(request)
	if err != nil {
		return RunResult{}, err
	}

	if request.Format == "" {
		request.Format = DefaultFormat
	}

	errctx := cerr.Fields(cerr.F{
		"job_id":   request.JobID,
		"splitter": splitter.ID,
		"model":    model.ID,
	})

	binPath, err := i.executor.LookPath(splitter.Binary)
	if err != nil {
		err = errctx.Field("binary", splitter.Binary).Wrap(err).Error("Splitter binary not found")
		return RunResult{}, mark.Wrap(err, ToolNotFound, fmt.Sprintf("%s is not installed", splitter.Name))
	}

	sourcePath, err := filepath.Abs(request.SourcePath)
	if err != nil {
		return RunResult{}, errctx.Wrap(err).Error("Cannot convert source path to absolute format")
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return RunResult{}, mark.Wrap(err, stementity.JobNotFound, "Source file not found")
	}

	stagingRoot := filepath.Join(i.stemRoot, StagingDirName, uuid.NewString())
	if err := os.MkdirAll(stagingRoot, os.ModePerm); err != nil {
		return RunResult{}, errctx.Wrap(err).Error("Failed to create staging dir")
	}
	defer func() {
		if err := os.RemoveAll(stagingRoot); err != nil {
			log.WithError(err).WithField("staging_root", stagingRoot).Warn("Failed to remove staging dir")
		}
	}()

	input, err := stageInput(stagingRoot, sourcePath, request.JobID)
	if err != nil {
		return RunResult{}, errctx.Wrap(err).Error("Failed to stage input")
	}

	if ctx.Err() != nil {
		return RunResult{}, errors.Wrap(ctx.Err(), "Context cancelled before separation started")
	}

	args := expandArgs(splitter, model, request.Format, input, stagingRoot)
	if err := i.run(ctx, binPath, args, stagingRoot, errctx); err != nil {
		return RunResult{}, err
	}

	stagedDir := filepath.Join(stagingRoot, model.Folder, request.JobID)
	if info, err := os.Stat(stagedDir); err != nil || !info.IsDir() {
		err = errctx.Field("expected_dir", stagedDir).Error("output directory not found")
		return RunResult{}, mark.Wrap(err, ToolInvocationFailed, "Separation produced no output")
	}

	outputDir := filepath.Join(i.stemRoot, model.Folder, request.JobID)
	if err := promote(stagedDir, outputDir, stagingRoot); err != nil {
		return RunResult{}, errctx.Field("output_dir", outputDir).Wrap(err).Error("Failed to promote separation output")
	}

	marker := stementity.RunMarker{
		LayoutVersion: config.LayoutVersion,
		JobID:         request.JobID,
		Splitter:      splitter.ID,
		Model:         model.ID,
		ModelFolder:   model.Folder,
		CreatedAt:     i.now().UTC(),
	}
	if err := stemresolver.WriteRunMarker(outputDir, marker); err != nil {
		return RunResult{}, errctx.Wrap(err).Error("Failed to tag separation output")
	}

	return RunResult{
		OutputRoot:  i.stemRoot,
		OutputDir:   outputDir,
		ModelFolder: model.Folder,
		Marker:      marker,
	}, nil
}

func (i Invoker) run(ctx context.Context, binPath string, args []string, dir string, errctx cerr.Context) error {
	logger := log.WithFields(log.Fields{
		"bin_path": binPath,
		"args":     args,
	})

	stdout := &lineLogger{logger: logger}
	stderr := &tailBuffer{}

	cmd := i.executor.CommandContext(ctx, binPath, args...)
	cmd.SetDir(dir)
	cmd.SetStdout(stdout)
	cmd.SetStderr(stderr)

	logger.Info("Running separation command")
	err := cmd.Run()
	stdout.Flush()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, "Separation interrupted")
	}

	if err != nil {
		diagnostics := stderr.String()
		err = errctx.Field("bin_path", binPath).
			Field("args", args).
			Field("stderr", diagnostics).
			Wrap(err).
			Error(fmt.Sprintf("Error occurred while running separation: %s", diagnostics))
		return mark.Wrap(err, ToolInvocationFailed, "Separation tool failed")
	}

	logger.Info("Finished separation command")
	return nil
}

// stageInput makes sure the tool sees the input under the job's name, since
// every splitter names its output directory after the input file.
func stageInput(stagingRoot string, sourcePath string, jobID string) (string, error) {
	ext := filepath.Ext(sourcePath)
	if strings.TrimSuffix(filepath.Base(sourcePath), ext) == jobID {
		return sourcePath, nil
	}

	inputDir := filepath.Join(stagingRoot, ".input")
	if err := os.MkdirAll(inputDir, os.ModePerm); err != nil {
		return "", err
	}

	linkPath := filepath.Join(inputDir, jobID+ext)
	if err := os.Symlink(sourcePath, linkPath); err != nil {
		return "", err
	}

	return linkPath, nil
}

func expandArgs(splitter config.Splitter, model config.SplitterModel, format string, input string, stagingRoot string) []string {
	replacer := strings.NewReplacer(
		config.InputPlaceholder, input,
		config.ModelPlaceholder, model.ID,
		config.OutputRootPlaceholder, stagingRoot,
		config.ModelRootPlaceholder, filepath.Join(stagingRoot, model.Folder),
		config.FormatPlaceholder, format,
	)

	args := make([]string, 0, len(splitter.Args))
	for _, arg := range splitter.Args {
		args = append(args, replacer.Replace(arg))
	}

	return append(args, splitter.FormatArgs[format]...)
}

// promote moves staged output into place. An earlier run of the same job
// and model is parked in the staging root first and removed with it, or put
// back if the staged output cannot be moved in.
func promote(stagedDir string, outputDir string, stagingRoot string) error {
	if err := os.MkdirAll(filepath.Dir(outputDir), os.ModePerm); err != nil {
		return err
	}

	parked := ""
	if _, err := os.Stat(outputDir); err == nil {
		parked = filepath.Join(stagingRoot, ".previous")
		if err := os.Rename(outputDir, parked); err != nil {
			return errors.Wrap(err, "Failed to move previous run aside")
		}
	}

	err := os.Rename(stagedDir, outputDir)
	if err == nil || parked == "" {
		return err
	}

	if restoreErr := os.Rename(parked, outputDir); restoreErr != nil {
		log.WithError(restoreErr).
			WithField("output_dir", outputDir).
			Error("Failed to restore previous run")
	}
	return errors.Wrap(err, "Failed to move staged output into place")
}
