package stementity

import "time"

const MixName = "mix"

type Job struct {
	ID         string
	SourcePath string
}

// SeparationRun describes which splitter produced a job's stems.
type SeparationRun struct {
	Splitter      string
	Model         string
	ModelFolder   string
	OutputDir     string
	LayoutVersion int
}

type Stem struct {
	Name string
	Path string
}

type ChildSplit struct {
	Parent string
	Name   string
	Path   string
}

type Mix struct {
	Path string
}

// Resolution is everything found on disk for one job at one point in time.
type Resolution struct {
	Job         Job
	Run         SeparationRun
	Stems       []Stem
	Mix         *Mix
	ChildSplits map[string][]ChildSplit
}

func (r Resolution) Stem(name string) (Stem, bool) {
	for _, stem := range r.Stems {
		if stem.Name == name {
			return stem, true
		}
	}

	return Stem{}, false
}

func (r Resolution) ChildSplit(parent string, name string) (ChildSplit, bool) {
	for _, child := range r.ChildSplits[parent] {
		if child.Name == name {
			return child, true
		}
	}

	return ChildSplit{}, false
}

// RunMarker is persisted next to the stems of a promoted run.
type RunMarker struct {
	LayoutVersion int       `toml:"layout_version"`
	JobID         string    `toml:"job_id"`
	Splitter      string    `toml:"splitter"`
	Model         string    `toml:"model"`
	ModelFolder   string    `toml:"model_folder"`
	CreatedAt     time.Time `toml:"created_at"`
}

const RunMarkerFileName = ".stemrun.toml"
