package job_message

import (
	"context"

	"github.com/jasonlryan/demucs/src/shared/stem/manifest"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/jasonlryan/demucs/src/worker/internal/application/mirror"
)

// CollectResult re-reads the job from disk and mirrors what it finds.
func CollectResult(ctx context.Context, resolver stemresolver.Resolver, jobMirror mirror.Mirror, jobID string) (Result, error) {
	resolution, err := resolver.Resolve(ctx, jobID)
	if err != nil {
		return Result{}, err
	}

	remoteURLs, err := jobMirror.MirrorJob(ctx, resolution)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Manifest:   stemmanifest.Build(resolution),
		RemoteURLs: remoteURLs,
	}, nil
}
