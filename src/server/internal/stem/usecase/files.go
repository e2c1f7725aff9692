package stemusecase

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

var (
	stemNamePrefixes = []string{"stem_", "track_", "audio_"}
	stemNameSuffixes = []string{"_stem", "_track", "_audio"}
)

// SecureFilename keeps the base name only, with whitespace turned into
// underscores and anything outside [A-Za-z0-9._-] dropped.
func SecureFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	var b strings.Builder
	for _, r := range filename {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_'):
			b.WriteRune(r)
		}
	}

	return strings.TrimLeft(b.String(), "._")
}

// InferStemName derives a stem name like "vocals" from "Stem_Vocals.wav".
func InferStemName(filename string) string {
	name := strings.ToLower(strings.TrimSuffix(filename, filepath.Ext(filename)))

	for _, prefix := range stemNamePrefixes {
		name = strings.TrimPrefix(name, prefix)
	}
	for _, suffix := range stemNameSuffixes {
		name = strings.TrimSuffix(name, suffix)
	}

	return name
}

// writeFile streams contents into a hidden temp file next to path, then
// renames it into place.
func writeFile(path string, contents io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "Failed to create directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.partial")
	if err != nil {
		return errors.Wrap(err, "Failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contents); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "Failed to write file")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "Failed to close file")
	}

	return errors.Wrap(os.Rename(tmp.Name(), path), "Failed to move file into place")
}
