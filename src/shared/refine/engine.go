package refine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
)

const DefaultFormat = "wav"

type Engine struct {
	resolver stemresolver.Resolver
	codecs   audio.Codecs
	format   string
}

func NewEngine(resolver stemresolver.Resolver, codecs audio.Codecs, format string) (Engine, error) {
	if format == "" {
		format = DefaultFormat
	}

	if !codecs.Supports("output." + format) {
		return Engine{}, mark.Message(stementity.InvalidAudioFormat,
			fmt.Sprintf("Cannot write refinements as %s", format))
	}

	return Engine{
		resolver: resolver,
		codecs:   codecs,
		format:   format,
	}, nil
}

func (e Engine) Format() string {
	return e.format
}

// Run refines the job's parent stem and writes each part next to it under
// {job dir}/{parent}/. Parts are written under a hidden partial name and
// renamed into place, so a reader never sees a half-written child.
func (e Engine) Run(ctx context.Context, jobID string, refiner Refiner) ([]stementity.ChildSplit, error) {
	parent := refiner.Parent()

	resolution, err := e.resolver.Resolve(ctx, jobID)
	if err != nil {
		return nil, err
	}

	stem, ok := resolution.Stem(parent)
	if !ok {
		return nil, mark.Message(stementity.StemNotFound,
			fmt.Sprintf("No %s stem found for job %s", parent, jobID))
	}

	logger := log.WithFields(log.Fields{
		"job_id": jobID,
		"parent": parent,
		"source": stem.Path,
	})

	buffer, err := e.codecs.Decode(ctx, stem.Path)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to decode parent stem")
	}

	logger.WithField("duration", buffer.Duration()).Info("Refining stem")

	parts, err := refiner.Refine(ctx, buffer)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, mark.Wrap(err, RefinementFailed, "Refiner failed")
	}

	outputDir := filepath.Join(resolution.Run.OutputDir, parent)
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return nil, cerr.Field("output_dir", outputDir).Wrap(err).Error("Failed to create child split directory")
	}

	childSplits := []stementity.ChildSplit{}
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if part.Audio.Frames() == 0 {
			logger.WithField("part", part.Name).Warn("Skipping empty part")
			continue
		}

		path, err := e.writePart(ctx, outputDir, part)
		if err != nil {
			cerr.Log(cerr.Field("part", part.Name).Wrap(err).Error("Failed to write part"))
			continue
		}

		childSplits = append(childSplits, stementity.ChildSplit{
			Parent: parent,
			Name:   part.Name,
			Path:   path,
		})
	}

	if len(childSplits) == 0 {
		return nil, mark.Message(RefinementFailed,
			fmt.Sprintf("No %s parts could be produced for job %s", parent, jobID))
	}

	logger.WithField("parts", len(childSplits)).Info("Refinement finished")
	return childSplits, nil
}

func (e Engine) writePart(ctx context.Context, outputDir string, part Part) (string, error) {
	finalPath := filepath.Join(outputDir, part.Name+"."+e.format)
	partialPath := filepath.Join(outputDir, "."+part.Name+"."+e.format+audio.PartialSuffix)

	if err := e.codecs.Encode(ctx, partialPath, part.Audio); err != nil {
		_ = os.Remove(partialPath)
		return "", err
	}

	if err := os.Rename(partialPath, finalPath); err != nil {
		_ = os.Remove(partialPath)
		return "", errors.Wrap(err, "Failed to move part into place")
	}

	// an older render in another format would otherwise shadow this one
	for _, ext := range e.resolver.Table().Extensions {
		if ext == e.format {
			continue
		}
		stale := filepath.Join(outputDir, part.Name+"."+ext)
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", stale).Warn("Failed to remove stale part")
		}
	}

	return finalPath, nil
}
