package stementity

type ManifestStem struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

type ManifestMix struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

type ManifestChildSplit struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Path   string `json:"path"`
	Parent string `json:"parent"`
}

// Manifest is the client facing shape. Every key is always present.
type Manifest struct {
	Status      string                          `json:"status"`
	JobID       string                          `json:"job_id"`
	Splitter    string                          `json:"splitter"`
	Model       string                          `json:"model"`
	OutputDir   string                          `json:"output_dir"`
	Stems       []ManifestStem                  `json:"stems"`
	Mix         *ManifestMix                    `json:"mix"`
	ChildSplits map[string][]ManifestChildSplit `json:"child_splits"`
}
