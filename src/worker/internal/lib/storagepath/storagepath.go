package storagepath

import (
	"fmt"
	"path"
	"strings"
)

type Generator struct {
	Host   string
	Bucket string
}

// GeneratePath is the public URL of a job's file. leafPath is relative to the
// job's directory, e.g. "vocals.mp3" or "drums/kick.wav".
func (g Generator) GeneratePath(jobID string, leafPath string) string {
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimSuffix(g.Host, "/"), g.Bucket, jobID, path.Clean(leafPath))
}
