package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const LayoutVersion = 2

// Placeholders substituted into splitter argument templates.
const (
	InputPlaceholder      = "{input}"
	ModelPlaceholder      = "{model}"
	OutputRootPlaceholder = "{output_root}"
	ModelRootPlaceholder  = "{model_root}"
	FormatPlaceholder     = "{format}"
	JobPlaceholder        = "{job}"
)

type SplitterModel struct {
	ID     string   `toml:"id" json:"id"`
	Name   string   `toml:"name" json:"name"`
	Folder string   `toml:"folder" json:"-"`
	Stems  []string `toml:"stems" json:"stems"`
}

type Splitter struct {
	ID          string              `toml:"id" json:"-"`
	Name        string              `toml:"name" json:"name"`
	Description string              `toml:"description" json:"description"`
	Binary      string              `toml:"binary" json:"-"`
	Args        []string            `toml:"args" json:"-"`
	FormatArgs  map[string][]string `toml:"format_args" json:"-"`
	Models      []SplitterModel     `toml:"models" json:"models"`
}

func (s Splitter) Model(modelID string) (SplitterModel, bool) {
	for _, model := range s.Models {
		if model.ID == modelID {
			return model, true
		}
	}

	return SplitterModel{}, false
}

// ChildCatalog lists the refinement parts a parent stem can be split into,
// plus the flat legacy directory older refinements were written to.
// AcceptedParts are the name fragments a loaded project may use for them.
type ChildCatalog struct {
	Parent        string   `toml:"parent"`
	Children      []string `toml:"children"`
	LegacyDir     string   `toml:"legacy_dir"`
	AcceptedParts []string `toml:"accepted_parts"`
}

type SplitterTable struct {
	Extensions       []string       `toml:"extensions"`
	UploadExtensions []string       `toml:"upload_extensions"`
	StemNames        []string       `toml:"stem_names"`
	MixtureNames     []string       `toml:"mixture_names"`
	LegacyMixNames   []string       `toml:"legacy_mix_names"`
	LegacyStemDirs   []string       `toml:"legacy_stem_dirs"`
	Children         []ChildCatalog `toml:"children"`
	Splitters        []Splitter     `toml:"splitters"`
}

func DefaultSplitterTable() SplitterTable {
	return SplitterTable{
		Extensions:       []string{"mp3", "wav", "flac", "m4a", "ogg"},
		UploadExtensions: []string{"wav", "mp3", "aiff", "aif", "m4a", "flac", "ogg"},
		StemNames:        []string{"vocals", "drums", "bass", "other", "guitar", "piano", "accompaniment"},
		MixtureNames:     []string{"mixture"},
		LegacyMixNames:   []string{"mix", "original"},
		LegacyStemDirs:   []string{JobPlaceholder},
		Children: []ChildCatalog{
			{
				Parent:        "vocals",
				Children:      []string{"lead", "backing"},
				LegacyDir:     "vocal_splits/" + JobPlaceholder,
				AcceptedParts: []string{"lead", "backing", "backing_vocals", "lead_vocals"},
			},
			{
				Parent:        "drums",
				Children:      []string{"kick", "snare", "hihat", "cymbals"},
				LegacyDir:     "drum_splits/" + JobPlaceholder,
				AcceptedParts: []string{
					"kick", "snare", "hihat", "hi-hat", "hi_hat", "cymbal", "cymbals",
					"tom", "toms", "overhead", "overheads", "room", "crash", "ride",
				},
			},
		},
		Splitters: []Splitter{
			{
				ID:          "demucs",
				Name:        "Demucs",
				Description: "Meta Demucs - High quality separation",
				Binary:      "demucs",
				Args:        []string{InputPlaceholder, "-n", ModelPlaceholder, "-o", OutputRootPlaceholder},
				FormatArgs: map[string][]string{
					"mp3":  {"--mp3", "--mp3-bitrate", "320"},
					"flac": {"--flac"},
				},
				Models: []SplitterModel{
					{ID: "htdemucs_6s", Name: "Demucs 6s", Folder: "htdemucs_6s", Stems: []string{"vocals", "drums", "bass", "guitar", "piano", "other"}},
					{ID: "htdemucs_ft", Name: "Demucs High Quality", Folder: "htdemucs_ft", Stems: []string{"vocals", "drums", "bass", "other"}},
					{ID: "htdemucs", Name: "Demucs 4", Folder: "htdemucs", Stems: []string{"vocals", "drums", "bass", "other"}},
				},
			},
			{
				ID:          "spleeter",
				Name:        "Spleeter",
				Description: "Deezer Spleeter - Fast 2/4/5 stem separation",
				Binary:      "spleeter",
				Args:        []string{"separate", "-p", "spleeter:" + ModelPlaceholder, "-o", ModelRootPlaceholder, "-c", FormatPlaceholder, InputPlaceholder},
				Models: []SplitterModel{
					{ID: "2stems", Name: "2 Stems (Vocals/Instrumental)", Folder: "spleeter", Stems: []string{"vocals", "accompaniment"}},
					{ID: "4stems", Name: "4 Stems", Folder: "spleeter", Stems: []string{"vocals", "drums", "bass", "other"}},
					{ID: "5stems", Name: "5 Stems", Folder: "spleeter", Stems: []string{"vocals", "drums", "bass", "piano", "other"}},
				},
			},
		},
	}
}

// LoadSplitterTable reads a TOML table from disk. Sections missing from the
// file keep their default values.
func LoadSplitterTable(path string) (SplitterTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return SplitterTable{}, errors.Wrap(err, "Failed to open splitter table")
	}
	defer file.Close()

	table := DefaultSplitterTable()
	if err := toml.NewDecoder(file).Decode(&table); err != nil {
		return SplitterTable{}, errors.Wrapf(err, "Failed to decode splitter table %s", path)
	}

	if err := table.Validate(); err != nil {
		return SplitterTable{}, errors.Wrap(err, "Splitter table is invalid")
	}

	return table, nil
}

func (t SplitterTable) Validate() error {
	if len(t.Extensions) == 0 {
		return errors.New("No extensions configured")
	}

	if len(t.StemNames) == 0 {
		return errors.New("No stem names configured")
	}

	seen := map[string]bool{}
	for _, splitter := range t.Splitters {
		if splitter.ID == "" {
			return errors.New("Splitter without an ID")
		}

		if seen[splitter.ID] {
			return errors.Newf("Splitter %s is configured twice", splitter.ID)
		}
		seen[splitter.ID] = true

		if splitter.Binary == "" {
			return errors.Newf("Splitter %s has no binary", splitter.ID)
		}

		for _, model := range splitter.Models {
			if model.ID == "" || model.Folder == "" {
				return errors.Newf("Splitter %s has a model without an ID or folder", splitter.ID)
			}

			if strings.ContainsAny(model.Folder, `/\`) {
				return errors.Newf("Model folder %s must be a single path segment", model.Folder)
			}
		}
	}

	return nil
}

func (t SplitterTable) Splitter(splitterID string) (Splitter, bool) {
	for _, splitter := range t.Splitters {
		if splitter.ID == splitterID {
			return splitter, true
		}
	}

	return Splitter{}, false
}

// ModelFolders lists every model folder once, in splitter order then model
// order. This is the canonical search order.
func (t SplitterTable) ModelFolders() []string {
	folders := []string{}
	seen := map[string]bool{}

	for _, splitter := range t.Splitters {
		for _, model := range splitter.Models {
			if seen[model.Folder] {
				continue
			}
			seen[model.Folder] = true
			folders = append(folders, model.Folder)
		}
	}

	return folders
}

// IdentifyFolder guesses the splitter and model that produced a folder.
// The model is left empty when several models share the folder.
func (t SplitterTable) IdentifyFolder(folder string) (splitterID string, modelID string, ok bool) {
	for _, splitter := range t.Splitters {
		matches := []string{}
		for _, model := range splitter.Models {
			if model.Folder == folder {
				matches = append(matches, model.ID)
			}
		}

		switch len(matches) {
		case 0:
			continue
		case 1:
			return splitter.ID, matches[0], true
		default:
			return splitter.ID, "", true
		}
	}

	return "", "", false
}

func (t SplitterTable) ChildCatalog(parent string) (ChildCatalog, bool) {
	for _, catalog := range t.Children {
		if catalog.Parent == parent {
			return catalog, true
		}
	}

	return ChildCatalog{}, false
}

func (t SplitterTable) IsStemName(name string) bool {
	for _, stemName := range t.StemNames {
		if stemName == name {
			return true
		}
	}

	return false
}

func (t SplitterTable) IsExtension(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, known := range t.Extensions {
		if known == ext {
			return true
		}
	}

	return false
}

func (t SplitterTable) IsUploadExtension(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, known := range t.UploadExtensions {
		if known == ext {
			return true
		}
	}

	return false
}

func ExpandJob(pattern string, jobID string) string {
	return strings.ReplaceAll(pattern, JobPlaceholder, jobID)
}
