package mirror

import (
	"context"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/worker/internal/application/cloud_storage/store"
	"github.com/jasonlryan/demucs/src/worker/internal/lib/storagepath"
)

// RemoteURLs maps a stem URL (/api/stems/...) to its copy in cloud storage.
type RemoteURLs map[string]string

type Mirror interface {
	MirrorJob(ctx context.Context, resolution stementity.Resolution) (RemoteURLs, error)
}

var _ Mirror = NoMirror{}

// NoMirror keeps stems local only.
type NoMirror struct{}

func (NoMirror) MirrorJob(context.Context, stementity.Resolution) (RemoteURLs, error) {
	return nil, nil
}

var _ Mirror = CloudMirror{}

// CloudMirror copies every resolved file of a job to cloud storage.
type CloudMirror struct {
	fileStore     store.FileStore
	pathGenerator storagepath.Generator
}

func NewCloudMirror(fileStore store.FileStore, pathGenerator storagepath.Generator) CloudMirror {
	return CloudMirror{
		fileStore:     fileStore,
		pathGenerator: pathGenerator,
	}
}

func (c CloudMirror) MirrorJob(ctx context.Context, resolution stementity.Resolution) (RemoteURLs, error) {
	jobID := resolution.Job.ID
	remoteURLs := RemoteURLs{}

	upload := func(address stementity.Address, localPath string, leafPath string) error {
		contents, err := os.ReadFile(localPath)
		if err != nil {
			return cerr.Field("path", localPath).Wrap(err).Error("Failed to read file for upload")
		}

		remoteURL := c.pathGenerator.GeneratePath(jobID, leafPath)
		if err := c.fileStore.WriteFile(ctx, remoteURL, contents); err != nil {
			return cerr.Field("remote_url", remoteURL).Wrap(err).Error("Failed to upload file")
		}

		remoteURLs[address.URL()] = remoteURL
		return nil
	}

	for _, stem := range resolution.Stems {
		if err := upload(stementity.StemAddress(jobID, stem.Name), stem.Path, filepath.Base(stem.Path)); err != nil {
			return nil, err
		}
	}

	if resolution.Mix != nil {
		leaf := stementity.MixName + filepath.Ext(resolution.Mix.Path)
		if err := upload(stementity.MixAddress(jobID), resolution.Mix.Path, leaf); err != nil {
			return nil, err
		}
	}

	for parent, children := range resolution.ChildSplits {
		for _, child := range children {
			leaf := filepath.Join(parent, filepath.Base(child.Path))
			if err := upload(stementity.ChildAddress(jobID, parent, child.Name), child.Path, leaf); err != nil {
				return nil, err
			}
		}
	}

	log.WithFields(log.Fields{
		"job_id": jobID,
		"files":  len(remoteURLs),
	}).Info("Mirrored job to cloud storage")

	return remoteURLs, nil
}
