package stemresolver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
)

type Config struct {
	StemRoot  string
	UploadDir string
	Table     config.SplitterTable
}

// Resolver finds the files of a job on disk. It never writes, and every path
// it returns is confined to the stem root or the upload dir.
type Resolver struct {
	stemRoot  string
	uploadDir string
	table     config.SplitterTable
}

func NewResolver(cfg Config) (Resolver, error) {
	stemRoot, err := filepath.Abs(cfg.StemRoot)
	if err != nil {
		return Resolver{}, cerr.Field("stem_root", cfg.StemRoot).
			Wrap(err).Error("Failed to convert stem root to absolute format")
	}

	uploadDir, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		return Resolver{}, cerr.Field("upload_dir", cfg.UploadDir).
			Wrap(err).Error("Failed to convert upload dir to absolute format")
	}

	return Resolver{
		stemRoot:  stemRoot,
		uploadDir: uploadDir,
		table:     cfg.Table,
	}, nil
}

func (r Resolver) StemRoot() string {
	return r.stemRoot
}

func (r Resolver) UploadDir() string {
	return r.uploadDir
}

func (r Resolver) Table() config.SplitterTable {
	return r.table
}

func ValidateJobID(jobID string) error {
	switch {
	case jobID == "":
		return mark.Message(stementity.PathOutsideAllowedRoot, "Job ID is empty")
	case jobID == "." || jobID == "..":
		return mark.Message(stementity.PathOutsideAllowedRoot, "Job ID cannot be a relative directory")
	case strings.ContainsAny(jobID, `/\`) || strings.ContainsRune(jobID, 0):
		return mark.Message(stementity.PathOutsideAllowedRoot,
			fmt.Sprintf("Job ID %q contains a path separator", jobID))
	case strings.HasPrefix(jobID, "."):
		return mark.Message(stementity.PathOutsideAllowedRoot,
			fmt.Sprintf("Job ID %q cannot start with a dot", jobID))
	}

	return nil
}

func (r Resolver) Resolve(ctx context.Context, jobID string) (stementity.Resolution, error) {
	if err := ValidateJobID(jobID); err != nil {
		return stementity.Resolution{}, err
	}

	s := &scan{
		resolver: r,
		ctx:      ctx,
		jobID:    jobID,
		claimed:  map[string]bool{},
	}

	return s.run()
}

// ResolveStem resolves one top level stem, or the mix when name is "mix".
func (r Resolver) ResolveStem(ctx context.Context, jobID string, name string) (stementity.Stem, error) {
	resolution, err := r.Resolve(ctx, jobID)
	if err != nil {
		return stementity.Stem{}, errors.Wrap(err, "Failed to resolve job")
	}

	if name == stementity.MixName {
		if resolution.Mix == nil {
			return stementity.Stem{}, mark.Message(stementity.StemNotFound, "No mix found for job")
		}

		return stementity.Stem{Name: name, Path: resolution.Mix.Path}, nil
	}

	stem, ok := resolution.Stem(name)
	if !ok {
		return stementity.Stem{}, mark.Message(stementity.StemNotFound,
			fmt.Sprintf("Stem %s not found for job %s", name, jobID))
	}

	return stem, nil
}

// Locate maps a stem URL address back to the file it was derived from.
func (r Resolver) Locate(ctx context.Context, address stementity.Address) (string, error) {
	if !address.IsChild() {
		stem, err := r.ResolveStem(ctx, address.JobID, address.Name)
		if err != nil {
			return "", err
		}

		return stem.Path, nil
	}

	resolution, err := r.Resolve(ctx, address.JobID)
	if err != nil {
		return "", errors.Wrap(err, "Failed to resolve job")
	}

	child, ok := resolution.ChildSplit(address.Parent, address.Name)
	if !ok {
		return "", mark.Message(stementity.StemNotFound,
			fmt.Sprintf("Child split %s/%s not found for job %s", address.Parent, address.Name, address.JobID))
	}

	return child.Path, nil
}

// FindUpload returns the uploaded source file for a job, if any.
func (r Resolver) FindUpload(jobID string) (string, bool, error) {
	if err := ValidateJobID(jobID); err != nil {
		return "", false, err
	}

	entries, err := os.ReadDir(r.uploadDir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, cerr.Field("upload_dir", r.uploadDir).
			Wrap(err).Error("Failed to list upload dir")
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		name := entry.Name()
		ext := filepath.Ext(name)
		if strings.TrimSuffix(name, ext) != jobID || !r.table.IsUploadExtension(ext) {
			continue
		}

		path := filepath.Join(r.uploadDir, name)
		if err := r.confine(path); err != nil {
			return "", false, err
		}

		return path, true, nil
	}

	return "", false, nil
}

// confine rejects paths that escape both allowed roots, following symlinks.
func (r Resolver) confine(path string) error {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = filepath.Clean(path)
	}

	for _, root := range []string{r.stemRoot, r.uploadDir} {
		if isWithin(root, resolved) {
			return nil
		}

		if realRoot, err := filepath.EvalSymlinks(root); err == nil && isWithin(realRoot, resolved) {
			return nil
		}
	}

	err = cerr.Field("path", path).
		Field("resolved_path", resolved).
		Error("Path escapes the stem root and upload dir")
	return mark.Wrap(err, stementity.PathOutsideAllowedRoot, "Resolved path is outside the allowed roots")
}

func isWithin(root string, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
