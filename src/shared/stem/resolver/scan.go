package stemresolver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
)

// scan holds the state of one resolution. Every path handed out is claimed so
// no two entities end up pointing at the same file.
type scan struct {
	resolver Resolver
	ctx      context.Context
	jobID    string
	claimed  map[string]bool

	genericDirs    []string
	genericScanned bool
}

func (s *scan) table() config.SplitterTable {
	return s.resolver.table
}

func (s *scan) run() (stementity.Resolution, error) {
	errctx := cerr.Field("job_id", s.jobID)

	canonicalDirs := s.canonicalDirs()

	stems := []stementity.Stem{}
	for _, name := range s.table().StemNames {
		if err := s.ctx.Err(); err != nil {
			return stementity.Resolution{}, errctx.Wrap(err).Error("Resolution cancelled")
		}

		path, found, err := s.findStem(canonicalDirs, name)
		if err != nil {
			return stementity.Resolution{}, errctx.Field("stem", name).
				Wrap(err).Error("Failed to resolve stem")
		}

		if found {
			stems = append(stems, stementity.Stem{Name: name, Path: path})
		}
	}

	jobDir, found, err := s.jobDir(canonicalDirs, stems)
	if err != nil {
		return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to scan for the job directory")
	}

	if !found {
		return stementity.Resolution{}, mark.Message(stementity.JobNotFound,
			fmt.Sprintf("No output directory found for job %s", s.jobID))
	}

	sourcePath, _, err := s.resolver.FindUpload(s.jobID)
	if err != nil {
		return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to look up the uploaded source")
	}

	mix, err := s.findMix(sourcePath, canonicalDirs, jobDir)
	if err != nil {
		return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to resolve the mix")
	}

	childSplits, err := s.findChildSplits(stems, jobDir)
	if err != nil {
		return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to resolve child splits")
	}

	run, err := s.separationRun(jobDir)
	if err != nil {
		return stementity.Resolution{}, errctx.Wrap(err).Error("Failed to identify the separation run")
	}

	return stementity.Resolution{
		Job: stementity.Job{
			ID:         s.jobID,
			SourcePath: sourcePath,
		},
		Run:         run,
		Stems:       stems,
		Mix:         mix,
		ChildSplits: childSplits,
	}, nil
}

func (s *scan) canonicalDirs() []string {
	dirs := []string{}
	for _, folder := range s.table().ModelFolders() {
		dir := filepath.Join(s.resolver.stemRoot, folder, s.jobID)
		if isDir(dir) {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

func (s *scan) legacyStemDirs() []string {
	dirs := []string{}
	for _, pattern := range s.table().LegacyStemDirs {
		dir := filepath.Join(s.resolver.stemRoot, config.ExpandJob(pattern, s.jobID))
		if isWithin(s.resolver.stemRoot, dir) && isDir(dir) {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

// generic walks the stem root once, in lexical order, collecting directories
// whose root relative path has the job ID as one of its segments. A job whose
// ID merely starts with this one is a different job. Dot directories hold
// staging output and locks and are never entered.
func (s *scan) generic() ([]string, error) {
	if s.genericScanned {
		return s.genericDirs, nil
	}

	root := s.resolver.stemRoot
	dirs := []string{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !d.IsDir() || path == root {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(root, path)
		if err == nil && hasSegment(rel, s.jobID) {
			dirs = append(dirs, path)
		}

		return nil
	})

	if err != nil {
		return nil, cerr.Field("stem_root", root).Wrap(err).Error("Failed to walk the stem root")
	}

	s.genericDirs = dirs
	s.genericScanned = true
	return dirs, nil
}

func (s *scan) findStem(canonicalDirs []string, name string) (string, bool, error) {
	path, found, err := s.probe(canonicalDirs, name)
	if err != nil || found {
		return path, found, err
	}

	genericDirs, err := s.generic()
	if err != nil {
		return "", false, err
	}

	path, found, err = s.probe(genericDirs, name)
	if err != nil || found {
		return path, found, err
	}

	return s.probe(s.legacyStemDirs(), name)
}

// probe tries each dir, and within a dir each extension in preference order.
func (s *scan) probe(dirs []string, name string) (string, bool, error) {
	for _, dir := range dirs {
		for _, ext := range s.table().Extensions {
			path := filepath.Join(dir, name+"."+ext)
			if s.claimed[path] || !isFile(path) {
				continue
			}

			if err := s.resolver.confine(path); err != nil {
				return "", false, err
			}

			s.claimed[path] = true
			return path, true, nil
		}
	}

	return "", false, nil
}

func (s *scan) jobDir(canonicalDirs []string, stems []stementity.Stem) (string, bool, error) {
	if len(canonicalDirs) > 0 {
		return canonicalDirs[0], true, nil
	}

	if len(stems) > 0 {
		return filepath.Dir(stems[0].Path), true, nil
	}

	if legacyDirs := s.legacyStemDirs(); len(legacyDirs) > 0 {
		return legacyDirs[0], true, nil
	}

	genericDirs, err := s.generic()
	if err != nil {
		return "", false, err
	}

	if len(genericDirs) > 0 {
		return genericDirs[0], true, nil
	}

	return "", false, nil
}

func (s *scan) findMix(sourcePath string, canonicalDirs []string, jobDir string) (*stementity.Mix, error) {
	if sourcePath != "" && !s.claimed[sourcePath] {
		s.claimed[sourcePath] = true
		return &stementity.Mix{Path: sourcePath}, nil
	}

	mixtureDirs := canonicalDirs
	if !contains(mixtureDirs, jobDir) {
		mixtureDirs = append(append([]string{}, canonicalDirs...), jobDir)
	}

	for _, name := range s.table().MixtureNames {
		path, found, err := s.probe(mixtureDirs, name)
		if err != nil {
			return nil, err
		}

		if found {
			return &stementity.Mix{Path: path}, nil
		}
	}

	for _, name := range s.table().LegacyMixNames {
		path, found, err := s.probe([]string{jobDir}, name)
		if err != nil {
			return nil, err
		}

		if found {
			return &stementity.Mix{Path: path}, nil
		}
	}

	return nil, nil
}

func (s *scan) findChildSplits(stems []stementity.Stem, jobDir string) (map[string][]stementity.ChildSplit, error) {
	childSplits := map[string][]stementity.ChildSplit{}

	for _, stem := range stems {
		catalog, ok := s.table().ChildCatalog(stem.Name)
		if !ok {
			continue
		}

		children, err := s.findChildren(catalog, jobDir)
		if err != nil {
			return nil, cerr.Field("parent", catalog.Parent).Wrap(err).Error("Failed to resolve children")
		}

		if len(children) == 0 && catalog.LegacyDir != "" {
			children, err = s.findLegacyChildren(catalog)
			if err != nil {
				return nil, cerr.Field("parent", catalog.Parent).Wrap(err).Error("Failed to resolve legacy children")
			}
		}

		if len(children) > 0 {
			childSplits[catalog.Parent] = children
		}
	}

	return childSplits, nil
}

func (s *scan) findChildren(catalog config.ChildCatalog, jobDir string) ([]stementity.ChildSplit, error) {
	children := []stementity.ChildSplit{}

	for _, name := range catalog.Children {
		path, found, err := s.probe([]string{filepath.Join(jobDir, catalog.Parent)}, name)
		if err != nil {
			return nil, err
		}

		if !found {
			genericDirs, err := s.generic()
			if err != nil {
				return nil, err
			}

			parentDirs := []string{}
			for _, dir := range genericDirs {
				parentDir := filepath.Join(dir, catalog.Parent)
				if isDir(parentDir) {
					parentDirs = append(parentDirs, parentDir)
				}
			}

			path, found, err = s.probe(parentDirs, name)
			if err != nil {
				return nil, err
			}
		}

		if found {
			children = append(children, stementity.ChildSplit{
				Parent: catalog.Parent,
				Name:   name,
				Path:   path,
			})
		}
	}

	return children, nil
}

func (s *scan) findLegacyChildren(catalog config.ChildCatalog) ([]stementity.ChildSplit, error) {
	legacyDir := filepath.Join(s.resolver.stemRoot, config.ExpandJob(catalog.LegacyDir, s.jobID))
	if !isWithin(s.resolver.stemRoot, legacyDir) || !isDir(legacyDir) {
		return nil, nil
	}

	children := []stementity.ChildSplit{}
	for _, name := range catalog.Children {
		path, found, err := s.probe([]string{legacyDir}, name)
		if err != nil {
			return nil, err
		}

		if found {
			children = append(children, stementity.ChildSplit{
				Parent: catalog.Parent,
				Name:   name,
				Path:   path,
			})
		}
	}

	return children, nil
}

// separationRun prefers the run marker; untagged output is identified by the
// name of the folder it sits in.
func (s *scan) separationRun(jobDir string) (stementity.SeparationRun, error) {
	marker, found, err := ReadRunMarker(jobDir)
	if err != nil {
		log.WithError(err).
			WithField("job_dir", jobDir).
			Warn("Ignoring unreadable run marker")
	}

	if found && err == nil {
		return stementity.SeparationRun{
			Splitter:      marker.Splitter,
			Model:         marker.Model,
			ModelFolder:   marker.ModelFolder,
			OutputDir:     jobDir,
			LayoutVersion: marker.LayoutVersion,
		}, nil
	}

	run := stementity.SeparationRun{OutputDir: jobDir}

	folder := filepath.Base(filepath.Dir(jobDir))
	if splitterID, modelID, ok := s.table().IdentifyFolder(folder); ok {
		run.Splitter = splitterID
		run.Model = modelID
		run.ModelFolder = folder
	}

	return run, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func hasSegment(rel string, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == segment {
			return true
		}
	}

	return false
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}
