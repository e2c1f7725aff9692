package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/lib/keylock"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/manifest"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/spf13/cobra"
)

const (
	defaultSplitter = "demucs"
	defaultModel    = "htdemucs_6s"
)

func newSeparateCommand(ctx *commandContext) *cobra.Command {
	var splitterID, modelID, format, jobID string

	cmd := &cobra.Command{
		Use:   "separate <file>",
		Short: "Run a splitter on an audio file and print the resulting manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolver()
			if err != nil {
				return err
			}

			sourcePath, err := filepath.Abs(args[0])
			if err != nil {
				return errors.Wrap(err, "Failed to resolve the source path")
			}

			ext := filepath.Ext(sourcePath)
			if !resolver.Table().IsUploadExtension(ext) {
				return errors.Newf("Unsupported audio file extension %q", ext)
			}

			if jobID == "" {
				jobID = strings.TrimSuffix(filepath.Base(sourcePath), ext)
			}

			invoker, err := ctx.invoker(resolver)
			if err != nil {
				return err
			}

			request := separation.Request{
				JobID:    jobID,
				Splitter: splitterID,
				Model:    modelID,
				Format:   format,
			}
			if _, _, err := invoker.Validate(request); err != nil {
				return err
			}

			request.SourcePath, err = importSource(resolver, sourcePath, jobID)
			if err != nil {
				return err
			}

			locker, err := ctx.locker(resolver)
			if err != nil {
				return err
			}

			release, err := locker.TryAcquire(jobID, keylock.SeparationKind)
			if err != nil {
				return err
			}
			defer release()

			runCtx, cancel := ctx.commandCtx()
			defer cancel()

			log.WithFields(log.Fields{
				"job_id":   jobID,
				"splitter": splitterID,
				"model":    modelID,
			}).Info("Separating")

			if _, err := invoker.Invoke(runCtx, request); err != nil {
				return err
			}

			resolution, err := resolver.Resolve(runCtx, jobID)
			if err != nil {
				return err
			}

			return writeJSON(cmd, stemmanifest.Build(resolution))
		},
	}

	cmd.Flags().StringVar(&splitterID, "splitter", defaultSplitter, "Splitter to run")
	cmd.Flags().StringVar(&modelID, "model", defaultModel, "Model of the splitter")
	cmd.Flags().StringVar(&format, "format", separation.DefaultFormat, "Output format of the stems")
	cmd.Flags().StringVar(&jobID, "job", "", "Job ID (default the file name without extension)")

	return cmd
}

func newRefineCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "refine vocals|drums <job>",
		Short:     "Split the vocals or drums stem of a job into parts",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{refine.VocalsParent, refine.DrumsParent},
		RunE: func(cmd *cobra.Command, args []string) error {
			var refiner refine.Refiner
			switch args[0] {
			case refine.VocalsParent:
				refiner = refine.NewVocalRefiner()
			case refine.DrumsParent:
				refiner = refine.NewDrumRefiner()
			default:
				return errors.Newf("Cannot refine %q, choose %s or %s", args[0], refine.VocalsParent, refine.DrumsParent)
			}
			jobID := args[1]

			resolver, err := ctx.resolver()
			if err != nil {
				return err
			}

			engine, err := refine.NewEngine(resolver, ctx.codecs(), ctx.refineFormat)
			if err != nil {
				return err
			}

			locker, err := ctx.locker(resolver)
			if err != nil {
				return err
			}

			release, err := locker.TryAcquire(jobID, keylock.RefinementKind)
			if err != nil {
				return err
			}
			defer release()

			runCtx, cancel := ctx.commandCtx()
			defer cancel()

			children, err := engine.Run(runCtx, jobID, refiner)
			if err != nil {
				return err
			}

			for _, child := range children {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", child.Path)
			}

			resolution, err := resolver.Resolve(runCtx, jobID)
			if err != nil {
				return err
			}

			return writeJSON(cmd, stemmanifest.Build(resolution))
		},
	}

	cmd.Flags().StringVar(&ctx.refineFormat, "format", "", "Output format of the parts (default $REFINE_FORMAT or wav)")

	return cmd
}

// importSource copies the source into the upload dir so that the job's mix
// can be found later. A file already there is used in place.
func importSource(resolver stemresolver.Resolver, sourcePath string, jobID string) (string, error) {
	target := filepath.Join(resolver.UploadDir(), jobID+strings.ToLower(filepath.Ext(sourcePath)))
	if target == sourcePath {
		return sourcePath, nil
	}

	if existing, found, err := resolver.FindUpload(jobID); err != nil {
		return "", err
	} else if found && existing != target {
		return "", errors.Newf("Job %s already has an upload at %s", jobID, existing)
	}

	if err := os.MkdirAll(resolver.UploadDir(), os.ModePerm); err != nil {
		return "", errors.Wrap(err, "Failed to create the upload dir")
	}

	source, err := os.Open(sourcePath)
	if err != nil {
		return "", errors.Wrap(err, "Failed to open the source")
	}
	defer source.Close()

	out, err := os.Create(target)
	if err != nil {
		return "", errors.Wrap(err, "Failed to create the upload")
	}

	if _, err := io.Copy(out, source); err != nil {
		_ = out.Close()
		return "", errors.Wrap(err, "Failed to copy the source")
	}

	return target, errors.Wrap(out.Close(), "Failed to close the upload")
}
