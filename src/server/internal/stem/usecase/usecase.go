package stemusecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/markers"
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
	"github.com/jasonlryan/demucs/src/server/internal/stem/errors"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/shared/stem/manifest"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
)

const DefaultModelFolder = "htdemucs"

type UploadResult struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	FilePath string `json:"file_path"`
	Message  string `json:"message"`
}

type AddStemResult struct {
	Status   string `json:"status"`
	StemName string `json:"stem_name"`
	URL      string `json:"url"`
	Path     string `json:"path"`
	Message  string `json:"message"`
}

type Usecase struct {
	resolver stemresolver.Resolver
	loader   stemresolver.Loader
	analyzer refine.Analyzer
	invoker  separation.Invoker
}

func NewUsecase(resolver stemresolver.Resolver, analyzer refine.Analyzer, invoker separation.Invoker) Usecase {
	return Usecase{
		resolver: resolver,
		loader:   stemresolver.NewLoader(resolver),
		analyzer: analyzer,
		invoker:  invoker,
	}
}

// Splitters lists the installed splitters keyed by ID.
func (u Usecase) Splitters() map[string]config.Splitter {
	splitters := map[string]config.Splitter{}
	for _, splitter := range u.invoker.Available() {
		splitters[splitter.ID] = splitter
	}

	return splitters
}

func (u Usecase) Manifest(ctx context.Context, jobID string) (stementity.Manifest, *api.Error) {
	resolution, err := u.resolver.Resolve(ctx, jobID)
	if err != nil {
		return stementity.Manifest{}, commitLookupError(
			errors.Wrap(err, "Failed to resolve job"),
			fmt.Sprintf("No stems found for job %s", jobID))
	}

	return stemmanifest.Build(resolution), nil
}

// LocateFile maps the part of a stem URL after /api/stems/ to a file on disk.
func (u Usecase) LocateFile(ctx context.Context, jobID string, stemPath string) (string, *api.Error) {
	address, err := stementity.ParseAddress(jobID + "/" + stemPath)
	if err != nil {
		return "", api.CommitError(err,
			stemerrors.StemNotFoundCode,
			fmt.Sprintf("Stem %s not found for job %s", stemPath, jobID))
	}

	path, err := u.resolver.Locate(ctx, address)
	if err != nil {
		return "", commitLookupError(
			errors.Wrap(err, "Failed to locate stem"),
			fmt.Sprintf("Stem %s not found for job %s", stemPath, jobID))
	}

	return path, nil
}

// Upload stores a source file. Its filename stem becomes the job ID.
func (u Usecase) Upload(filename string, contents io.Reader) (UploadResult, *api.Error) {
	filename = SecureFilename(filename)
	if filename == "" {
		return UploadResult{}, api.CommitError(errors.New("Empty filename"),
			api.BadRequestDataCode,
			"No file selected")
	}

	ext := filepath.Ext(filename)
	if !u.resolver.Table().IsUploadExtension(ext) {
		return UploadResult{}, api.CommitError(errors.Newf("Extension %q is not allowed", ext),
			stemerrors.InvalidAudioFormatCode,
			fmt.Sprintf("Invalid file type. Allowed: %s", strings.Join(u.resolver.Table().UploadExtensions, ", ")))
	}

	jobID := strings.TrimSuffix(filename, ext)
	if err := stemresolver.ValidateJobID(jobID); err != nil {
		return UploadResult{}, api.CommitError(err,
			api.BadRequestDataCode,
			"The file name cannot be used as a job name")
	}

	path := filepath.Join(u.resolver.UploadDir(), filename)
	if err := writeFile(path, contents); err != nil {
		return UploadResult{}, api.CommitError(errors.Wrap(err, "Failed to save upload"),
			api.DefaultErrorCode,
			"Unknown error: Failed to save the uploaded file")
	}

	log.WithFields(log.Fields{"job_id": jobID, "path": path}).Info("Stored upload")

	return UploadResult{
		JobID:    jobID,
		Filename: filename,
		FilePath: path,
		Message:  "File uploaded successfully",
	}, nil
}

// AddStem stores a stem file into the job's folder, replacing any copy of
// the same stem in another format. An empty stemName is inferred from the
// filename. Only names the resolver serves are accepted.
func (u Usecase) AddStem(jobID string, stemName string, filename string, contents io.Reader) (AddStemResult, *api.Error) {
	if err := stemresolver.ValidateJobID(jobID); err != nil {
		return AddStemResult{}, commitLookupError(err, "Job not found")
	}

	filename = SecureFilename(filename)
	if filename == "" {
		return AddStemResult{}, api.CommitError(errors.New("Empty filename"),
			api.BadRequestDataCode,
			"No file selected")
	}

	stemName = strings.TrimSpace(stemName)
	if stemName == "" {
		stemName = InferStemName(filename)
	}
	if err := stemresolver.ValidateJobID(stemName); err != nil {
		return AddStemResult{}, api.CommitError(err,
			api.BadRequestDataCode,
			fmt.Sprintf("%q cannot be used as a stem name", stemName))
	}

	table := u.resolver.Table()
	if !table.IsStemName(stemName) {
		return AddStemResult{}, api.CommitError(errors.Newf("Stem name %q is not served", stemName),
			api.BadRequestDataCode,
			fmt.Sprintf("Unknown stem name %q. Allowed: %s", stemName, strings.Join(table.StemNames, ", ")))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !table.IsExtension(ext) {
		return AddStemResult{}, api.CommitError(errors.Newf("Extension %q is not allowed", ext),
			stemerrors.InvalidAudioFormatCode,
			fmt.Sprintf("Invalid file type. Allowed: %s", strings.Join(table.Extensions, ", ")))
	}

	projectDir := u.projectDir(jobID)
	if err := os.MkdirAll(projectDir, os.ModePerm); err != nil {
		return AddStemResult{}, api.CommitError(errors.Wrap(err, "Failed to create project folder"),
			api.DefaultErrorCode,
			"Unknown error: Failed to add the stem")
	}

	path := filepath.Join(projectDir, stemName+ext)
	if err := writeFile(path, contents); err != nil {
		return AddStemResult{}, api.CommitError(errors.Wrap(err, "Failed to save stem"),
			api.DefaultErrorCode,
			"Unknown error: Failed to add the stem")
	}

	for _, otherExt := range table.Extensions {
		other := filepath.Join(projectDir, stemName+"."+otherExt)
		if other == path {
			continue
		}
		if err := os.Remove(other); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", other).Warn("Failed to remove replaced stem")
		}
	}

	return AddStemResult{
		Status:   stemmanifest.SuccessStatus,
		StemName: stemName,
		URL:      stementity.StemAddress(jobID, stemName).URL(),
		Path:     path,
		Message:  fmt.Sprintf("Stem %s added successfully", stemName),
	}, nil
}

// projectDir is the first existing canonical folder of the job.
func (u Usecase) projectDir(jobID string) string {
	for _, folder := range u.resolver.Table().ModelFolders() {
		dir := filepath.Join(u.resolver.StemRoot(), folder, jobID)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}

	return filepath.Join(u.resolver.StemRoot(), DefaultModelFolder, jobID)
}

// Cleanup removes the uploaded source of a job. Stems are kept.
func (u Usecase) Cleanup(jobID string) *api.Error {
	for {
		path, found, err := u.resolver.FindUpload(jobID)
		if err != nil {
			return commitLookupError(errors.Wrap(err, "Failed to find upload"), "Job not found")
		}
		if !found {
			return nil
		}

		if err := os.Remove(path); err != nil {
			return api.CommitError(errors.Wrap(err, "Failed to remove upload"),
				api.DefaultErrorCode,
				"Unknown error: Failed to clean up the job")
		}
	}
}

func (u Usecase) Analyze(ctx context.Context, jobID string) (map[string]string, *api.Error) {
	labels, err := u.analyzer.Analyze(ctx, jobID)
	if err != nil {
		return nil, commitLookupError(errors.Wrap(err, "Failed to analyze stems"), "Stems not found")
	}

	return labels, nil
}

func (u Usecase) LoadProject(ctx context.Context, folderPath string) (stementity.Manifest, *api.Error) {
	resolution, err := u.loader.LoadProject(ctx, folderPath)
	if err != nil {
		return stementity.Manifest{}, commitLookupError(
			errors.Wrap(err, "Failed to load project"),
			fmt.Sprintf("Path does not exist: %s", folderPath))
	}

	return stemmanifest.Build(resolution), nil
}

func (u Usecase) BrowseFolders(dir string) ([]stemresolver.Folder, *api.Error) {
	folders, err := u.loader.BrowseFolders(dir)
	if err != nil {
		return nil, commitLookupError(errors.Wrap(err, "Failed to browse folders"), "Path does not exist")
	}

	return folders, nil
}

// commitLookupError picks the error code from the marks on err.
// notFoundMessage is shown when the job, stem or folder does not exist.
func commitLookupError(err error, notFoundMessage string) *api.Error {
	switch {
	case markers.Is(err, stementity.JobNotFound):
		return api.CommitError(err, stemerrors.JobNotFoundCode, notFoundMessage)
	case markers.Is(err, stementity.StemNotFound):
		return api.CommitError(err, stemerrors.StemNotFoundCode, notFoundMessage)
	case markers.Is(err, stementity.PathNotFound):
		return api.CommitError(err, stemerrors.PathNotFoundCode, notFoundMessage)
	case markers.Is(err, stementity.PathOutsideAllowedRoot):
		return api.CommitError(err, stemerrors.PathOutsideRootCode,
			"The requested path is outside the stem folders")
	case markers.Is(err, stementity.NotADirectory):
		return api.CommitError(err, stemerrors.NotADirectoryCode,
			"The path is not a directory")
	case markers.Is(err, stementity.InvalidAudioFormat):
		return api.CommitError(err, stemerrors.InvalidAudioFormatCode,
			"The audio format is not supported")
	default:
		return api.CommitError(err, api.DefaultErrorCode,
			"Unknown error: Failed to read the stem folders. Please contact the developer")
	}
}
