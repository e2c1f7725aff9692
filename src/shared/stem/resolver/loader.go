package stemresolver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
)

// Loader opens projects from caller supplied absolute paths.
//
// It is not confined to the stem root. It backs the explicit "load project"
// and "browse folders" operations, where an operator points at a folder.
// Anything addressed by job ID goes through Resolver.
type Loader struct {
	resolver Resolver
}

func NewLoader(resolver Resolver) Loader {
	return Loader{resolver: resolver}
}

type Folder struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modified_at"`
}

func (l Loader) LoadProject(ctx context.Context, folderPath string) (stementity.Resolution, error) {
	folder, err := checkDir(folderPath)
	if err != nil {
		return stementity.Resolution{}, err
	}

	errctx := cerr.Field("folder", folder)
	jobID := filepath.Base(folder)
	table := l.resolver.table

	entries, err := os.ReadDir(folder)
	if err != nil {
		return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to list project folder")
	}

	stems := []stementity.Stem{}
	var mix *stementity.Mix
	mixNames := append(append([]string{}, table.MixtureNames...), table.LegacyMixNames...)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stementity.Resolution{}, errctx.Wrap(err).Error("Loading cancelled")
		}

		if !entry.Type().IsRegular() || !isAudioName(table, entry.Name()) {
			continue
		}

		path := filepath.Join(folder, entry.Name())
		lower := strings.ToLower(entry.Name())

		if containsAny(lower, mixNames) {
			if mix == nil {
				mix = &stementity.Mix{Path: path}
			}
			continue
		}

		for _, name := range table.StemNames {
			if !strings.HasPrefix(lower, name) {
				continue
			}

			if _, taken := findStem(stems, name); !taken {
				stems = append(stems, stementity.Stem{Name: name, Path: path})
			}
			break
		}
	}

	childSplits := map[string][]stementity.ChildSplit{}
	for _, catalog := range table.Children {
		children, err := loadChildren(table, catalog, filepath.Join(folder, catalog.Parent))
		if err != nil {
			return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to load child splits")
		}

		if len(children) == 0 && catalog.LegacyDir != "" {
			legacyDir := filepath.Join(l.resolver.stemRoot, config.ExpandJob(catalog.LegacyDir, jobID))
			children, err = loadChildren(table, catalog, legacyDir)
			if err != nil {
				return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to load legacy child splits")
			}
		}

		if len(children) > 0 {
			childSplits[catalog.Parent] = children
		}
	}

	sourcePath := ""
	if ValidateJobID(jobID) == nil {
		sourcePath, _, err = l.resolver.FindUpload(jobID)
		if err != nil {
			return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to look up the uploaded source")
		}
	}

	if mix == nil && sourcePath != "" {
		mix = &stementity.Mix{Path: sourcePath}
	}

	return stementity.Resolution{
		Job: stementity.Job{
			ID:         jobID,
			SourcePath: sourcePath,
		},
		Run:         l.identifyRun(folder, stems),
		Stems:       stems,
		Mix:         mix,
		ChildSplits: childSplits,
	}, nil
}

// BrowseFolders lists the subdirectories of dir, newest first.
func (l Loader) BrowseFolders(dir string) ([]Folder, error) {
	dir, err := checkDir(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, cerr.Field("dir", dir).Wrap(err).Error("Failed to list folder")
	}

	folders := []Folder{}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}

		folders = append(folders, Folder{
			Name:       entry.Name(),
			Path:       path,
			ModifiedAt: info.ModTime(),
		})
	}

	sort.SliceStable(folders, func(i, j int) bool {
		return folders[i].ModifiedAt.After(folders[j].ModifiedAt)
	})

	return folders, nil
}

func (l Loader) identifyRun(folder string, stems []stementity.Stem) stementity.SeparationRun {
	run := stementity.SeparationRun{OutputDir: folder}

	marker, found, err := ReadRunMarker(folder)
	if found && err == nil {
		run.Splitter = marker.Splitter
		run.Model = marker.Model
		run.ModelFolder = marker.ModelFolder
		run.LayoutVersion = marker.LayoutVersion
		return run
	}

	if !isWithin(l.resolver.stemRoot, folder) {
		return run
	}

	rel, err := filepath.Rel(l.resolver.stemRoot, folder)
	if err != nil {
		return run
	}

	modelFolder := strings.Split(rel, string(filepath.Separator))[0]
	splitterID, modelID, ok := l.resolver.table.IdentifyFolder(modelFolder)
	if !ok {
		return run
	}

	if modelID == "" {
		modelID = guessModel(l.resolver.table, splitterID, modelFolder, stems)
	}

	run.Splitter = splitterID
	run.Model = modelID
	run.ModelFolder = modelFolder
	return run
}

// guessModel picks the model whose stem list matches what was found on disk.
func guessModel(table config.SplitterTable, splitterID string, modelFolder string, stems []stementity.Stem) string {
	splitter, ok := table.Splitter(splitterID)
	if !ok {
		return ""
	}

	for _, model := range splitter.Models {
		if model.Folder != modelFolder || len(model.Stems) != len(stems) {
			continue
		}

		matches := true
		for _, name := range model.Stems {
			if _, found := findStem(stems, name); !found {
				matches = false
				break
			}
		}

		if matches {
			return model.ID
		}
	}

	return ""
}

func loadChildren(table config.SplitterTable, catalog config.ChildCatalog, dir string) ([]stementity.ChildSplit, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Field("dir", dir).Wrap(err).Error("Failed to list child split folder")
	}

	children := []stementity.ChildSplit{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isAudioName(table, entry.Name()) {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if !containsAny(strings.ToLower(name), catalog.AcceptedParts) {
			continue
		}

		children = append(children, stementity.ChildSplit{
			Parent: catalog.Parent,
			Name:   name,
			Path:   filepath.Join(dir, entry.Name()),
		})
	}

	return children, nil
}

func checkDir(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", mark.Message(stementity.PathNotFound, "No folder path provided")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", cerr.Field("path", path).Wrap(err).Error("Failed to convert path to absolute format")
	}

	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", mark.Message(stementity.PathNotFound, fmt.Sprintf("Path does not exist: %s", absPath))
	}
	if err != nil {
		return "", cerr.Field("path", absPath).Wrap(err).Error("Failed to stat path")
	}

	if !info.IsDir() {
		return "", mark.Message(stementity.NotADirectory, fmt.Sprintf("Path is not a directory: %s", absPath))
	}

	return absPath, nil
}

func isAudioName(table config.SplitterTable, name string) bool {
	ext := filepath.Ext(name)
	return table.IsExtension(ext) || table.IsUploadExtension(ext)
}

func containsAny(s string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(s, fragment) {
			return true
		}
	}

	return false
}

func findStem(stems []stementity.Stem, name string) (stementity.Stem, bool) {
	for _, stem := range stems {
		if stem.Name == name {
			return stem, true
		}
	}

	return stementity.Stem{}, false
}
