package stemresolver

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/pelletier/go-toml/v2"
)

func ReadRunMarker(dir string) (stementity.RunMarker, bool, error) {
	contents, err := os.ReadFile(filepath.Join(dir, stementity.RunMarkerFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return stementity.RunMarker{}, false, nil
	}
	if err != nil {
		return stementity.RunMarker{}, false, errors.Wrap(err, "Failed to read run marker")
	}

	marker := stementity.RunMarker{}
	if err := toml.NewDecoder(bytes.NewReader(contents)).Decode(&marker); err != nil {
		return stementity.RunMarker{}, true, errors.Wrap(err, "Failed to decode run marker")
	}

	return marker, true, nil
}

// WriteRunMarker replaces the marker in dir through a temporary file.
func WriteRunMarker(dir string, marker stementity.RunMarker) error {
	contents, err := toml.Marshal(marker)
	if err != nil {
		return errors.Wrap(err, "Failed to encode run marker")
	}

	target := filepath.Join(dir, stementity.RunMarkerFileName)
	tmp := target + ".partial"
	if err := os.WriteFile(tmp, contents, 0o644); err != nil {
		return errors.Wrap(err, "Failed to write run marker")
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "Failed to move run marker into place")
	}

	return nil
}
